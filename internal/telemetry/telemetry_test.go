package telemetry

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/curbz/tellofleet/internal/model"
	"github.com/curbz/tellofleet/pkg/geometry"
)

func newTestSimulator(seed int64) *Simulator {
	return NewSimulatorWithRand(model.DefaultConfig(), rand.New(rand.NewSource(seed)))
}

// newDrainSimulator uses an aggressive drain rate so battery behavior shows
// up within a few thousand ticks.
func newDrainSimulator(seed int64) *Simulator {
	cfg := model.DefaultConfig()
	cfg.Simulation.BatteryDrainRate = 10 // % per minute
	return NewSimulatorWithRand(cfg, rand.New(rand.NewSource(seed)))
}

func TestBatteryNeverIncreasesAndNeverGoesNegative(t *testing.T) {
	s := newDrainSimulator(1)
	st := model.NewFlightState("d1", 8889)
	st.IsFlying = true
	st.Velocity.X = 80

	prev := st.Battery
	for i := 0; i < 30000; i++ {
		s.Update(st, 1.0/30)
		if st.Battery > prev {
			t.Fatalf("battery rose from %d to %d", prev, st.Battery)
		}
		if st.Battery < 0 {
			t.Fatalf("battery went negative: %d", st.Battery)
		}
		prev = st.Battery
		// Keep it airborne so drain keeps its flight multiplier until
		// the emergency landing triggers.
		if st.Battery > 5 {
			st.IsFlying = true
			st.Velocity.X = 80
		}
	}
	if st.Battery > 5 {
		t.Fatalf("battery only drained to %d over the whole run", st.Battery)
	}
}

func TestCriticalBatteryForcesLanding(t *testing.T) {
	s := newDrainSimulator(2)
	st := model.NewFlightState("d1", 8889)
	st.IsFlying = true
	st.Position.Z = 150
	st.Battery = 6

	// Enough simulated time to lose the last percent.
	for i := 0; i < 30000 && st.IsFlying; i++ {
		s.Update(st, 1.0/30)
	}

	if st.IsFlying {
		t.Fatal("drone still flying at critical battery")
	}
	if st.Position.Z != 0 {
		t.Fatalf("forced landing left altitude at %v", st.Position.Z)
	}
}

func TestFlyingDrainsFasterThanIdle(t *testing.T) {
	const ticks = 10000

	idle := newDrainSimulator(3)
	idleState := model.NewFlightState("idle", 8889)

	flying := newDrainSimulator(3)
	flyingState := model.NewFlightState("fly", 8890)
	flyingState.IsFlying = true
	flyingState.Position.Z = 100
	flyingState.Velocity.X = 80

	for i := 0; i < ticks; i++ {
		idle.Update(idleState, 1.0/30)
		flying.Update(flyingState, 1.0/30)
		// Pin flight status so the comparison stays clean.
		flyingState.IsFlying = true
		flyingState.Velocity.X = 80
	}

	if flyingState.Battery >= idleState.Battery {
		t.Fatalf("flying battery %d not below idle battery %d",
			flyingState.Battery, idleState.Battery)
	}
}

func TestTemperatureStaysInRange(t *testing.T) {
	s := newTestSimulator(4)
	st := model.NewFlightState("d1", 8889)
	st.IsFlying = true
	st.Position.Z = 100

	for i := 0; i < 1000; i++ {
		s.Update(st, 1.0/30)
		if st.Temperature < 0 || st.Temperature > 80 {
			t.Fatalf("temperature out of range: %d", st.Temperature)
		}
	}
}

func TestBarometerTracksAltitude(t *testing.T) {
	s := newTestSimulator(5)
	st := model.NewFlightState("d1", 8889)
	st.Position.Z = 120

	for i := 0; i < 200; i++ {
		s.Update(st, 1.0/30)
		if st.Barometer < 115 || st.Barometer > 125 {
			t.Fatalf("barometer %d strayed from altitude 120", st.Barometer)
		}
	}
}

func TestBarometerNeverNegative(t *testing.T) {
	s := newTestSimulator(6)
	st := model.NewFlightState("d1", 8889)

	for i := 0; i < 200; i++ {
		s.Update(st, 1.0/30)
		if st.Barometer < 0 {
			t.Fatalf("barometer went negative: %d", st.Barometer)
		}
	}
}

func TestAccelerationCarriesGravitySignatureWhileFlying(t *testing.T) {
	s := newTestSimulator(7)
	st := model.NewFlightState("d1", 8889)
	st.IsFlying = true
	st.Position.Z = 100

	for i := 0; i < 200; i++ {
		s.Update(st, 1.0/30)
	}
	if st.Acceleration.Z > -800 {
		t.Fatalf("flying accel z = %v, expected near -981", st.Acceleration.Z)
	}

	st.IsFlying = false
	for i := 0; i < 200; i++ {
		s.Update(st, 1.0/30)
	}
	if st.Acceleration.Z < -100 {
		t.Fatalf("grounded accel z = %v, expected near zero", st.Acceleration.Z)
	}
}

func TestMissionPadDetection(t *testing.T) {
	tests := []struct {
		name   string
		pos    geometry.Vector3
		wantID int
	}{
		{name: "over pad 1 in band", pos: geometry.Vector3{X: 100, Y: 100, Z: 100}, wantID: 1},
		{name: "too low", pos: geometry.Vector3{X: 100, Y: 100, Z: 10}, wantID: -1},
		{name: "too high", pos: geometry.Vector3{X: 100, Y: 100, Z: 400}, wantID: -1},
		{name: "out of planar range", pos: geometry.Vector3{X: 1000, Y: 1000, Z: 100}, wantID: -1},
		{name: "nearest wins", pos: geometry.Vector3{X: 190, Y: 10, Z: 100}, wantID: 6},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSimulator(8)
			st := model.NewFlightState("d1", 8889)
			st.Position = tc.pos

			s.Update(st, 1.0/30)

			if st.MissionPadID != tc.wantID {
				t.Fatalf("pad id = %d, want %d", st.MissionPadID, tc.wantID)
			}
			if tc.wantID == -1 {
				if st.MissionPadX != -100 || st.MissionPadY != -100 || st.MissionPadZ != -100 {
					t.Fatalf("sentinel offsets not set: x=%d y=%d z=%d",
						st.MissionPadX, st.MissionPadY, st.MissionPadZ)
				}
			}
		})
	}
}

func TestMissionPadOffsetsNearTruth(t *testing.T) {
	s := newTestSimulator(9)
	st := model.NewFlightState("d1", 8889)
	st.Position = geometry.Vector3{X: 130, Y: 90, Z: 100}

	for i := 0; i < 100; i++ {
		s.Update(st, 1.0/30)
		if st.MissionPadID != 1 {
			t.Fatalf("pad id = %d, want 1", st.MissionPadID)
		}
		// True offsets are (30, -10); read noise is ±5.
		if st.MissionPadX < 25 || st.MissionPadX > 35 {
			t.Fatalf("pad x offset %d outside 30±5", st.MissionPadX)
		}
		if st.MissionPadY < -15 || st.MissionPadY > -5 {
			t.Fatalf("pad y offset %d outside -10±5", st.MissionPadY)
		}
	}
}

func TestAddAndRemoveMissionPad(t *testing.T) {
	s := newTestSimulator(10)
	st := model.NewFlightState("d1", 8889)
	st.Position = geometry.Vector3{X: 500, Y: 500, Z: 100}

	s.Update(st, 1.0/30)
	if st.MissionPadID != -1 {
		t.Fatalf("unexpected pad %d before placement", st.MissionPadID)
	}

	s.AddMissionPad(9, geometry.Vector3{X: 500, Y: 500})
	s.Update(st, 1.0/30)
	if st.MissionPadID != 9 {
		t.Fatalf("pad id = %d after placing pad 9", st.MissionPadID)
	}

	s.RemoveMissionPad(9)
	s.Update(st, 1.0/30)
	if st.MissionPadID != -1 {
		t.Fatalf("pad id = %d after removing pad 9", st.MissionPadID)
	}
}

func TestSetDetectionRangeClamps(t *testing.T) {
	s := newTestSimulator(11)

	s.SetDetectionRange(10)
	if s.detectionRange != 50 {
		t.Fatalf("range = %v, want clamp to 50", s.detectionRange)
	}
	s.SetDetectionRange(9999)
	if s.detectionRange != 500 {
		t.Fatalf("range = %v, want clamp to 500", s.detectionRange)
	}
}

func TestResetBattery(t *testing.T) {
	s := newTestSimulator(12)
	st := model.NewFlightState("d1", 8889)
	st.Battery = 10

	s.ResetBattery(st, 75)
	if st.Battery != 75 {
		t.Fatalf("battery = %d, want 75", st.Battery)
	}
	s.ResetBattery(st, 250)
	if st.Battery != 100 {
		t.Fatalf("battery = %d, want clamp to 100", st.Battery)
	}
}

func TestStateStringFields(t *testing.T) {
	s := newTestSimulator(13)
	st := model.NewFlightState("d1", 8889)
	st.Position.Z = 100
	st.Battery = 88
	st.FlightTime = 12
	st.Barometer = 101

	out := s.StateString(st)

	for _, key := range []string{
		"mid:", "x:", "y:", "z:", "mpry:",
		"vgx:", "vgy:", "vgz:", "templ:", "temph:",
		"tof:", "h:", "bat:88;", "baro:", "time:12;",
		"agx:", "agy:", "agz:",
	} {
		if !strings.Contains(out, key) {
			t.Fatalf("state string missing %q: %s", key, out)
		}
	}
	if !strings.HasSuffix(out, ";") {
		t.Fatalf("state string does not end with a separator: %s", out)
	}
}

func TestStateStringPadSentinel(t *testing.T) {
	s := newTestSimulator(14)
	st := model.NewFlightState("d1", 8889)

	out := s.StateString(st)
	if !strings.HasPrefix(out, "mid:-2;x:-200;y:-200;z:-200;") {
		t.Fatalf("missing legacy pad sentinel: %s", out)
	}
}

func TestStateStringTOFFloor(t *testing.T) {
	s := newTestSimulator(15)
	st := model.NewFlightState("d1", 8889)
	st.Position.Z = 0

	for i := 0; i < 50; i++ {
		out := s.StateString(st)
		idx := strings.Index(out, "tof:")
		rest := out[idx+len("tof:"):]
		val := rest[:strings.Index(rest, ";")]
		if val[0] == '-' {
			t.Fatalf("tof went negative: %s", val)
		}
		var tof int
		for _, c := range val {
			tof = tof*10 + int(c-'0')
		}
		if tof < 30 {
			t.Fatalf("tof = %d, want floor of 30", tof)
		}
	}
}

func TestSimulateSensorFailure(t *testing.T) {
	s := newTestSimulator(16)
	st := model.NewFlightState("d1", 8889)
	st.Battery = 90
	st.Temperature = 40
	st.Barometer = 50
	st.MissionPadID = 2
	st.Acceleration = geometry.Vector3{X: 5, Y: 5, Z: -981}

	s.SimulateSensorFailure(st, "battery")
	if st.Battery != 0 {
		t.Fatalf("battery failure left %d", st.Battery)
	}
	s.SimulateSensorFailure(st, "temperature")
	if st.Temperature != -1 {
		t.Fatalf("temperature failure left %d", st.Temperature)
	}
	s.SimulateSensorFailure(st, "barometer")
	if st.Barometer != -1 {
		t.Fatalf("barometer failure left %d", st.Barometer)
	}
	s.SimulateSensorFailure(st, "mission_pad")
	if st.MissionPadID != -1 {
		t.Fatalf("pad failure left %d", st.MissionPadID)
	}
	s.SimulateSensorFailure(st, "acceleration")
	if st.Acceleration != (geometry.Vector3{}) {
		t.Fatalf("acceleration failure left %+v", st.Acceleration)
	}
}

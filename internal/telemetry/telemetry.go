package telemetry

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/curbz/tellofleet/internal/model"
	"github.com/curbz/tellofleet/pkg/geometry"
)

const (
	baseTemperature       = 25  // °C
	defaultDetectionRange = 200 // cm, planar
	minDetectionAltitude  = 20  // cm
	maxDetectionAltitude  = 300 // cm
	gravitySignature      = -981.0 // cm/s², vertical accelerometer bias while flying

	accelSmoothing = 0.7
	accelReadNoise = 5.0 // cm/s², applied only when formatting
	velReadNoise   = 1.0 // cm/s
	rotReadNoise   = 1.0 // degrees
)

// Simulator derives the sensor read-outs of one drone from its physical
// state each tick and formats the legacy broadcast string. Noise applied to
// formatted output never feeds back into the stored state.
type Simulator struct {
	cfg *model.SimulationConfig

	pads           map[int]geometry.Vector3
	padOrder       []int // first-seen order, breaks detection ties
	detectionRange float64

	// Fractional battery drain carried between ticks so the integer
	// battery field decrements at the configured rate.
	drainCarry float64

	rng *rand.Rand
}

func NewSimulator(cfg *model.SimulationConfig) *Simulator {
	return NewSimulatorWithRand(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSimulatorWithRand builds a Simulator with a caller-supplied random
// source, which makes sensor output reproducible.
func NewSimulatorWithRand(cfg *model.SimulationConfig, rng *rand.Rand) *Simulator {
	s := &Simulator{
		cfg:            cfg,
		pads:           make(map[int]geometry.Vector3),
		detectionRange: defaultDetectionRange,
		rng:            rng,
	}
	for id, pos := range defaultMissionPads() {
		s.pads[id] = pos
	}
	for id := 1; id <= len(s.pads); id++ {
		s.padOrder = append(s.padOrder, id)
	}
	return s
}

// defaultMissionPads places eight pads on the ground in a ring around the
// origin.
func defaultMissionPads() map[int]geometry.Vector3 {
	return map[int]geometry.Vector3{
		1: {X: 100, Y: 100},
		2: {X: -100, Y: 100},
		3: {X: 100, Y: -100},
		4: {X: -100, Y: -100},
		5: {Y: 200},
		6: {X: 200},
		7: {Y: -200},
		8: {X: -200},
	}
}

// Update derives every sensor field from the post-physics state.
func (s *Simulator) Update(st *model.FlightState, dt float64) {
	s.updateBattery(st, dt)
	s.updateTemperature(st)
	s.updateBarometer(st)
	s.updateAcceleration(st)
	s.updateMissionPadDetection(st)
}

func (s *Simulator) updateBattery(st *model.FlightState, dt float64) {
	if st.Battery <= 0 {
		return
	}

	baseDrain := s.cfg.Simulation.BatteryDrainRate * (dt / 60.0)

	multiplier := 1.0
	if st.IsFlying {
		multiplier += 0.5
	}
	if v := st.Velocity.Length(); v > 10 {
		multiplier += v / 100.0
	}

	s.drainCarry += baseDrain * multiplier * s.uniform(0.8, 1.2)
	for s.drainCarry >= 1 && st.Battery > 0 {
		st.Battery--
		s.drainCarry--
	}

	// Critically low battery forces an emergency landing.
	if st.Battery <= 5 && st.IsFlying {
		st.IsFlying = false
		st.Position.Z = 0
	}
}

func (s *Simulator) updateTemperature(st *model.FlightState) {
	temp := float64(baseTemperature) + s.uniform(-2, 2)
	if st.IsFlying {
		temp += s.uniform(2, 8)
	}
	temp += -0.006 * st.Position.Z          // cooler at altitude
	temp += (float64(st.Battery) / 100) * 5 // warmer on a full pack
	temp += s.uniform(-1, 1)

	st.Temperature = int(geometry.Clamp(temp, 0, 80))
}

func (s *Simulator) updateBarometer(st *model.FlightState) {
	h := int(st.Position.Z) + s.randint(-5, 5)
	if h < 0 {
		h = 0
	}
	st.Barometer = h
}

func (s *Simulator) updateAcceleration(st *model.FlightState) {
	var gz float64
	if st.IsFlying {
		gz = gravitySignature
	}

	var ax, ay, az float64
	if st.Velocity.Length() > 5 {
		ax = s.uniform(-50, 50)
		ay = s.uniform(-50, 50)
		az = s.uniform(-30, 30) + gz
	} else {
		ax = s.uniform(-10, 10)
		ay = s.uniform(-10, 10)
		az = s.uniform(-5, 5) + gz
	}

	st.Acceleration.X = accelSmoothing*st.Acceleration.X + (1-accelSmoothing)*ax
	st.Acceleration.Y = accelSmoothing*st.Acceleration.Y + (1-accelSmoothing)*ay
	st.Acceleration.Z = accelSmoothing*st.Acceleration.Z + (1-accelSmoothing)*az
}

func (s *Simulator) updateMissionPadDetection(st *model.FlightState) {
	closestID := -1
	closestDist := 0.0
	var closestPos geometry.Vector3

	if st.Position.Z >= minDetectionAltitude && st.Position.Z <= maxDetectionAltitude {
		for _, id := range s.padOrder {
			pos, ok := s.pads[id]
			if !ok {
				continue
			}
			dist := geometry.DistanceXY(st.Position, pos)
			if dist >= s.detectionRange {
				continue
			}
			// Strictly-closer wins; ties keep the first-seen pad.
			if closestID == -1 || dist < closestDist {
				closestID = id
				closestDist = dist
				closestPos = pos
			}
		}
	}

	if closestID == -1 {
		st.MissionPadID = -1
		st.MissionPadX = -100
		st.MissionPadY = -100
		st.MissionPadZ = -100
		return
	}

	st.MissionPadID = closestID
	st.MissionPadX = int(st.Position.X-closestPos.X) + s.randint(-5, 5)
	st.MissionPadY = int(st.Position.Y-closestPos.Y) + s.randint(-5, 5)
	st.MissionPadZ = int(st.Position.Z) + s.randint(-3, 3)
}

// StateString formats the full legacy sensor string broadcast on the state
// port. Attitude, velocity, tof and baro get independent read noise here; a
// missing pad is encoded as -2/-200, distinct from the internal sentinel.
func (s *Simulator) StateString(st *model.FlightState) string {
	mid := st.MissionPadID
	x, y, z := st.MissionPadX, st.MissionPadY, st.MissionPadZ
	if mid == -1 {
		mid = -2
		x, y, z = -200, -200, -200
	}

	pitch := int(st.Rotation.X + s.uniform(-rotReadNoise, rotReadNoise))
	roll := int(st.Rotation.Y + s.uniform(-rotReadNoise, rotReadNoise))
	yaw := int(st.Rotation.Z + s.uniform(-rotReadNoise, rotReadNoise))

	vgx := int(st.Velocity.X + s.uniform(-velReadNoise, velReadNoise))
	vgy := int(st.Velocity.Y + s.uniform(-velReadNoise, velReadNoise))
	vgz := int(st.Velocity.Z + s.uniform(-velReadNoise, velReadNoise))

	templ := st.Temperature
	temph := st.Temperature + s.randint(-2, 2)

	tof := maxi(30, int(st.Position.Z))
	tof = maxi(30, tof+s.randint(-3, 3))

	baro := maxi(0, int(st.Position.Z*0.83)+s.randint(-5, 5))

	agx := int(st.Acceleration.X + s.uniform(-accelReadNoise, accelReadNoise))
	agy := int(st.Acceleration.Y + s.uniform(-accelReadNoise, accelReadNoise))
	agz := int(st.Acceleration.Z + s.uniform(-accelReadNoise, accelReadNoise))

	return fmt.Sprintf(
		"mid:%d;x:%d;y:%d;z:%d;"+
			"mpry:%d;%d;%d;"+
			"vgx:%d;vgy:%d;vgz:%d;"+
			"templ:%d;temph:%d;"+
			"tof:%d;h:%d;bat:%d;baro:%d;"+
			"time:%d;"+
			"agx:%d;agy:%d;agz:%d;",
		mid, x, y, z,
		pitch, roll, yaw,
		vgx, vgy, vgz,
		templ, temph,
		tof, st.Barometer, st.Battery, baro,
		st.FlightTime,
		agx, agy, agz,
	)
}

// AddMissionPad places (or moves) a pad. New pads detect after existing
// ones on exact ties.
func (s *Simulator) AddMissionPad(id int, pos geometry.Vector3) {
	if _, exists := s.pads[id]; !exists {
		s.padOrder = append(s.padOrder, id)
	}
	s.pads[id] = pos
}

func (s *Simulator) RemoveMissionPad(id int) {
	if _, exists := s.pads[id]; !exists {
		return
	}
	delete(s.pads, id)
	for i, v := range s.padOrder {
		if v == id {
			s.padOrder = append(s.padOrder[:i], s.padOrder[i+1:]...)
			break
		}
	}
}

// MissionPadPositions returns a copy of the configured pads.
func (s *Simulator) MissionPadPositions() map[int]geometry.Vector3 {
	out := make(map[int]geometry.Vector3, len(s.pads))
	for id, pos := range s.pads {
		out[id] = pos
	}
	return out
}

// SetDetectionRange sets the planar detection radius, clamped to 50-500cm.
func (s *Simulator) SetDetectionRange(rangeCm int) {
	s.detectionRange = geometry.Clamp(float64(rangeCm), 50, 500)
}

// ResetBattery sets the battery to level (clamped 0-100) and clears the
// accumulated drain.
func (s *Simulator) ResetBattery(st *model.FlightState, level int) {
	st.Battery = int(geometry.Clamp(float64(level), 0, 100))
	s.drainCarry = 0
}

// SimulateSensorFailure forces an invalid or empty reading for one sensor.
func (s *Simulator) SimulateSensorFailure(st *model.FlightState, sensor string) {
	switch sensor {
	case "battery":
		st.Battery = 0
	case "temperature":
		st.Temperature = -1
	case "barometer":
		st.Barometer = -1
	case "mission_pad":
		st.MissionPadID = -1
	case "acceleration":
		st.Acceleration = geometry.Vector3{}
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// randint returns an int in [lo, hi] inclusive.
func (s *Simulator) randint(lo, hi int) int {
	return lo + s.rng.Intn(hi-lo+1)
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}

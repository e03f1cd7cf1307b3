package fleet

import (
	"context"
	"errors"
	"testing"

	"github.com/curbz/tellofleet/internal/backend"
	"github.com/curbz/tellofleet/internal/model"
)

func newTestManager(maxDrones, basePort int) *Manager {
	cfg := model.DefaultConfig()
	cfg.Fleet.MaxDrones = maxDrones
	cfg.Fleet.BaseUDPPort = basePort
	cfg.Backend.URL = ""
	sink, _ := backend.NewSink("")
	return NewManager(cfg, sink)
}

func TestPortAllocationIsSequential(t *testing.T) {
	m := newTestManager(5, 19000)

	for want := 19000; want < 19003; want++ {
		port, err := m.AvailablePort()
		if err != nil {
			t.Fatalf("AvailablePort: %v", err)
		}
		if port != want {
			t.Fatalf("port = %d, want %d", port, want)
		}
		if err := m.ReservePort(port); err != nil {
			t.Fatalf("ReservePort(%d): %v", port, err)
		}
	}
}

func TestPortPoolExhaustion(t *testing.T) {
	m := newTestManager(3, 19100)

	for i := 0; i < 3; i++ {
		port, err := m.AvailablePort()
		if err != nil {
			t.Fatalf("AvailablePort #%d: %v", i, err)
		}
		if err := m.ReservePort(port); err != nil {
			t.Fatalf("ReservePort(%d): %v", port, err)
		}
	}

	if _, err := m.AvailablePort(); !errors.Is(err, ErrNoPortsAvailable) {
		t.Fatalf("expected ErrNoPortsAvailable, got %v", err)
	}
}

func TestReleasedPortIsImmediatelyReusable(t *testing.T) {
	m := newTestManager(3, 19200)

	if err := m.ReservePort(19200); err != nil {
		t.Fatalf("ReservePort: %v", err)
	}
	if err := m.ReservePort(19200); !errors.Is(err, ErrPortUnavailable) {
		t.Fatalf("double reserve: got %v, want ErrPortUnavailable", err)
	}

	m.ReleasePort(19200)
	if err := m.ReservePort(19200); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	// Releasing a free port is a no-op.
	m.ReleasePort(19250)
}

func TestReserveOutsidePool(t *testing.T) {
	m := newTestManager(3, 19300)

	tests := []int{19299, 19303, 80}
	for _, port := range tests {
		if err := m.ReservePort(port); !errors.Is(err, ErrPortUnavailable) {
			t.Fatalf("ReservePort(%d) = %v, want ErrPortUnavailable", port, err)
		}
	}
}

func TestCreateAndRemoveDrone(t *testing.T) {
	m := newTestManager(3, 19400)
	defer m.Stop()
	m.Start(context.Background())

	d, err := m.CreateDrone("alpha", 0)
	if err != nil {
		t.Fatalf("CreateDrone: %v", err)
	}
	if got := d.Info().UDPPort; got != 19400 {
		t.Fatalf("drone port = %d, want 19400", got)
	}
	if m.DroneCount() != 1 {
		t.Fatalf("drone count = %d, want 1", m.DroneCount())
	}

	if _, err := m.CreateDrone("alpha", 0); !errors.Is(err, ErrDroneExists) {
		t.Fatalf("duplicate id: got %v, want ErrDroneExists", err)
	}

	if err := m.RemoveDrone("alpha"); err != nil {
		t.Fatalf("RemoveDrone: %v", err)
	}
	if err := m.RemoveDrone("alpha"); !errors.Is(err, ErrDroneNotFound) {
		t.Fatalf("second remove: got %v, want ErrDroneNotFound", err)
	}

	// The freed port must be reusable right away.
	d2, err := m.CreateDrone("bravo", 19400)
	if err != nil {
		t.Fatalf("CreateDrone on freed port: %v", err)
	}
	if d2.Info().UDPPort != 19400 {
		t.Fatalf("drone port = %d, want 19400", d2.Info().UDPPort)
	}
}

func TestCreateMultiple(t *testing.T) {
	m := newTestManager(3, 19500)
	defer m.Stop()
	m.Start(context.Background())

	drones, err := m.CreateMultiple(3, "sim")
	if err != nil {
		t.Fatalf("CreateMultiple: %v", err)
	}
	if len(drones) != 3 {
		t.Fatalf("started %d drones, want 3", len(drones))
	}

	infos := m.ListDrones()
	if len(infos) != 3 {
		t.Fatalf("listed %d drones, want 3", len(infos))
	}
	if infos[0].DroneID != "sim-1" {
		t.Fatalf("first drone id = %q, want sim-1", infos[0].DroneID)
	}

	// Pool is full now.
	if _, err := m.CreateDrone("extra", 0); !errors.Is(err, ErrNoPortsAvailable) {
		t.Fatalf("over-capacity create: got %v, want ErrNoPortsAvailable", err)
	}
}

func TestRestartDroneKeepsPort(t *testing.T) {
	m := newTestManager(3, 19600)
	defer m.Stop()
	m.Start(context.Background())

	d, err := m.CreateDrone("alpha", 19601)
	if err != nil {
		t.Fatalf("CreateDrone: %v", err)
	}
	oldSession := d.Info().Session

	d2, err := m.RestartDrone("alpha")
	if err != nil {
		t.Fatalf("RestartDrone: %v", err)
	}
	if d2.Info().UDPPort != 19601 {
		t.Fatalf("restarted port = %d, want 19601", d2.Info().UDPPort)
	}
	if d2.Info().Session == oldSession {
		t.Fatal("restart kept the old session id")
	}

	if _, err := m.RestartDrone("ghost"); !errors.Is(err, ErrDroneNotFound) {
		t.Fatalf("restart unknown: got %v, want ErrDroneNotFound", err)
	}
}

func TestStatus(t *testing.T) {
	m := newTestManager(4, 19700)
	defer m.Stop()
	m.Start(context.Background())

	if _, err := m.CreateDrone("alpha", 0); err != nil {
		t.Fatalf("CreateDrone: %v", err)
	}

	status := m.Info()
	if !status.Running {
		t.Fatal("status reports not running")
	}
	if status.TotalDrones != 1 || status.MaxDrones != 4 {
		t.Fatalf("status counts: %+v", status)
	}
	if status.AvailablePorts != 3 {
		t.Fatalf("available ports = %d, want 3", status.AvailablePorts)
	}
	if len(status.UsedPorts) != 1 || status.UsedPorts[0] != 19700 {
		t.Fatalf("used ports = %v", status.UsedPorts)
	}

	m.Stop()
	if m.Info().Running {
		t.Fatal("status reports running after Stop")
	}
	if m.DroneCount() != 0 {
		t.Fatalf("drones remain after Stop: %d", m.DroneCount())
	}
}

func TestGetDrone(t *testing.T) {
	m := newTestManager(3, 19800)
	defer m.Stop()
	m.Start(context.Background())

	if _, err := m.GetDrone("alpha"); !errors.Is(err, ErrDroneNotFound) {
		t.Fatalf("GetDrone before create: got %v, want ErrDroneNotFound", err)
	}
	if _, err := m.CreateDrone("alpha", 0); err != nil {
		t.Fatalf("CreateDrone: %v", err)
	}
	d, err := m.GetDrone("alpha")
	if err != nil {
		t.Fatalf("GetDrone: %v", err)
	}
	if d.Info().DroneID != "alpha" {
		t.Fatalf("got drone %q", d.Info().DroneID)
	}
}

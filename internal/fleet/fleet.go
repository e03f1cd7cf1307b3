package fleet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/curbz/tellofleet/internal/backend"
	"github.com/curbz/tellofleet/internal/drone"
	"github.com/curbz/tellofleet/internal/model"
)

var (
	ErrNoPortsAvailable = errors.New("fleet: no ports available")
	ErrDroneExists      = errors.New("fleet: drone already exists")
	ErrDroneNotFound    = errors.New("fleet: drone not found")
	ErrPortUnavailable  = errors.New("fleet: port unavailable")
)

// Status is a point-in-time view of the manager for operators.
type Status struct {
	Running        bool  `json:"running"`
	TotalDrones    int   `json:"total_drones"`
	MaxDrones      int   `json:"max_drones"`
	UsedPorts      []int `json:"used_ports"`
	AvailablePorts int   `json:"available_ports"`
	BasePort       int   `json:"base_port"`
}

// Manager owns the fleet: it allocates command ports from the configured
// pool, starts and stops drones, and prunes dead ones in the background.
type Manager struct {
	cfg  *model.SimulationConfig
	sink backend.Sink

	mu        sync.Mutex
	drones    map[string]*drone.Drone
	usedPorts map[int]bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(cfg *model.SimulationConfig, sink backend.Sink) *Manager {
	return &Manager{
		cfg:       cfg,
		sink:      sink,
		drones:    make(map[string]*drone.Drone),
		usedPorts: make(map[int]bool),
	}
}

// Start launches the background monitor. Drones can be created before
// Start; the monitor only prunes ones whose loops have died.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	go m.monitor(m.ctx)
	log.Printf("fleet: manager started, %d ports from %d",
		m.cfg.Fleet.MaxDrones, m.cfg.Fleet.BaseUDPPort)
}

// Stop shuts down the monitor and every drone.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	drones := make([]*drone.Drone, 0, len(m.drones))
	for _, d := range m.drones {
		drones = append(drones, d)
	}
	m.drones = make(map[string]*drone.Drone)
	m.usedPorts = make(map[int]bool)
	m.mu.Unlock()

	for _, d := range drones {
		d.Stop()
	}
	log.Printf("fleet: manager stopped")
}

// monitor prunes drones whose loops have exited, every MonitorInterval.
func (m *Manager) monitor(ctx context.Context) {
	interval := time.Duration(m.cfg.Fleet.MonitorInterval * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.prune()
		}
	}
}

func (m *Manager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.drones {
		if d.Running() {
			continue
		}
		log.Printf("fleet: drone %s is no longer running, removing", id)
		delete(m.drones, id)
		delete(m.usedPorts, d.Info().UDPPort)
	}
}

// AvailablePort returns the lowest free port of the pool.
func (m *Manager) AvailablePort() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availablePortLocked()
}

func (m *Manager) availablePortLocked() (int, error) {
	base := m.cfg.Fleet.BaseUDPPort
	for port := base; port < base+m.cfg.Fleet.MaxDrones; port++ {
		if !m.usedPorts[port] {
			return port, nil
		}
	}
	return 0, ErrNoPortsAvailable
}

// ReservePort marks a specific pool port as taken.
func (m *Manager) ReservePort(port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservePortLocked(port)
}

func (m *Manager) reservePortLocked(port int) error {
	base := m.cfg.Fleet.BaseUDPPort
	if port < base || port >= base+m.cfg.Fleet.MaxDrones {
		return fmt.Errorf("%w: %d outside pool [%d, %d)",
			ErrPortUnavailable, port, base, base+m.cfg.Fleet.MaxDrones)
	}
	if m.usedPorts[port] {
		return fmt.Errorf("%w: %d already in use", ErrPortUnavailable, port)
	}
	m.usedPorts[port] = true
	return nil
}

// ReleasePort frees a pool port. Releasing a free port is a no-op.
func (m *Manager) ReleasePort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.usedPorts, port)
}

// CreateDrone starts a drone with the given id. Port 0 picks the lowest
// free pool port.
func (m *Manager) CreateDrone(id string, port int) (*drone.Drone, error) {
	m.mu.Lock()

	if _, exists := m.drones[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDroneExists, id)
	}

	var err error
	if port == 0 {
		port, err = m.availablePortLocked()
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.usedPorts[port] = true
	} else if err = m.reservePortLocked(port); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	d := drone.New(id, port, m.cfg, m.sink)
	m.drones[id] = d
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Unlock()

	if err := d.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.drones, id)
		delete(m.usedPorts, port)
		m.mu.Unlock()
		return nil, err
	}
	return d, nil
}

// CreateMultiple starts count drones named {prefix}-1 .. {prefix}-count.
// It stops at the first failure and returns the drones started so far.
func (m *Manager) CreateMultiple(count int, prefix string) ([]*drone.Drone, error) {
	drones := make([]*drone.Drone, 0, count)
	for i := 1; i <= count; i++ {
		d, err := m.CreateDrone(fmt.Sprintf("%s-%d", prefix, i), 0)
		if err != nil {
			return drones, err
		}
		drones = append(drones, d)
	}
	return drones, nil
}

// RemoveDrone stops a drone and frees its port.
func (m *Manager) RemoveDrone(id string) error {
	m.mu.Lock()
	d, ok := m.drones[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDroneNotFound, id)
	}
	delete(m.drones, id)
	delete(m.usedPorts, d.Info().UDPPort)
	m.mu.Unlock()

	d.Stop()
	return nil
}

// RestartDrone stops a drone and brings a fresh one up on the same port.
func (m *Manager) RestartDrone(id string) (*drone.Drone, error) {
	m.mu.Lock()
	old, ok := m.drones[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDroneNotFound, id)
	}
	port := old.Info().UDPPort
	delete(m.drones, id)
	m.mu.Unlock()

	old.Stop()

	m.mu.Lock()
	delete(m.usedPorts, port)
	m.mu.Unlock()

	return m.CreateDrone(id, port)
}

// GetDrone looks up a running drone by id.
func (m *Manager) GetDrone(id string) (*drone.Drone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drones[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDroneNotFound, id)
	}
	return d, nil
}

// ListDrones returns the identity of every running drone, sorted by id.
func (m *Manager) ListDrones() []drone.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]drone.Info, 0, len(m.drones))
	for _, d := range m.drones {
		out = append(out, d.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DroneID < out[j].DroneID })
	return out
}

func (m *Manager) DroneCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drones)
}

func (m *Manager) AvailablePortCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Fleet.MaxDrones - len(m.usedPorts)
}

// Info reports the manager's current status.
func (m *Manager) Info() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := make([]int, 0, len(m.usedPorts))
	for port := range m.usedPorts {
		used = append(used, port)
	}
	sort.Ints(used)

	return Status{
		Running:        m.cancel != nil,
		TotalDrones:    len(m.drones),
		MaxDrones:      m.cfg.Fleet.MaxDrones,
		UsedPorts:      used,
		AvailablePorts: m.cfg.Fleet.MaxDrones - len(m.usedPorts),
		BasePort:       m.cfg.Fleet.BaseUDPPort,
	}
}

package drone

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"github.com/curbz/tellofleet/internal/backend"
	"github.com/curbz/tellofleet/internal/model"
	"github.com/curbz/tellofleet/internal/physics"
	"github.com/curbz/tellofleet/internal/protocol"
	"github.com/curbz/tellofleet/internal/telemetry"
)

// Info is the static identity of a running drone.
type Info struct {
	DroneID string `json:"drone_id"`
	UDPPort int    `json:"udp_port"`
	Session string `json:"session"`
}

// Drone is one simulated aircraft: a UDP command endpoint, a physics tick,
// a backend push loop and a telemetry broadcast loop. All state access goes
// through mu; the loops only hold it for one discrete step.
type Drone struct {
	id      string
	port    int
	session string
	cfg     *model.SimulationConfig

	mu    sync.Mutex
	state *model.FlightState

	engine *physics.Engine
	telem  *telemetry.Simulator
	proto  *protocol.Protocol
	sink   backend.Sink

	conn   *net.UDPConn
	cancel context.CancelFunc
	done   chan struct{}

	// fractional flight seconds carried between ticks
	flightCarry float64
}

func New(id string, port int, cfg *model.SimulationConfig, sink backend.Sink) *Drone {
	state := model.NewFlightState(id, port)
	state.Speed = cfg.Simulation.DefaultSpeed
	engine := physics.NewEngine(cfg)
	return &Drone{
		id:      id,
		port:    port,
		session: uuid.NewString(),
		cfg:     cfg,
		state:   state,
		engine:  engine,
		telem:   telemetry.NewSimulator(cfg),
		proto:   protocol.New(state, engine),
		sink:    sink,
	}
}

// Start binds the command port and launches the four loops. It fails only
// when the port cannot be bound.
func (d *Drone) Start(ctx context.Context) error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: d.port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("drone %s: bind udp port %d: %w", d.id, d.port, err)
	}
	d.conn = conn

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); d.serveLoop(ctx) }()
	go func() { defer wg.Done(); d.physicsLoop(ctx) }()
	go func() { defer wg.Done(); d.pushLoop(ctx) }()
	go func() { defer wg.Done(); d.broadcastLoop(ctx) }()
	go func() {
		wg.Wait()
		close(d.done)
	}()

	log.Printf("drone: %s listening on udp/%d session=%s", d.id, d.port, d.session)
	return nil
}

// Stop shuts the drone down and waits for its loops to exit.
func (d *Drone) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.conn.Close()
	<-d.done
	log.Printf("drone: %s stopped", d.id)
}

// Done is closed once every loop has exited.
func (d *Drone) Done() <-chan struct{} {
	return d.done
}

// Running reports whether the drone's loops are still alive.
func (d *Drone) Running() bool {
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// State returns a snapshot safe to use without holding the lock.
func (d *Drone) State() *model.FlightState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return deepcopy.Copy(d.state).(*model.FlightState)
}

func (d *Drone) Info() Info {
	return Info{DroneID: d.id, UDPPort: d.port, Session: d.session}
}

// serveLoop answers SDK commands on the drone's UDP port.
func (d *Drone) serveLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		n, remote, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("drone: %s udp read error: %v", d.id, err)
			return
		}

		line := strings.TrimSpace(string(buf[:n]))

		d.mu.Lock()
		reply, ok := d.proto.HandleLine(line)
		d.mu.Unlock()

		if !ok {
			// Reflected telemetry, drop silently.
			continue
		}

		log.Printf("drone: %s <- %q -> %q", d.id, line, reply)
		if _, err := d.conn.WriteToUDP([]byte(reply), remote); err != nil {
			log.Printf("drone: %s udp write error: %v", d.id, err)
		}
	}
}

// physicsLoop advances the simulation at the configured rate.
func (d *Drone) physicsLoop(ctx context.Context) {
	interval := time.Second / time.Duration(d.cfg.Simulation.UpdateRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			d.mu.Lock()
			d.engine.Step(d.state, dt)
			d.telem.Update(d.state, dt)
			if d.state.IsFlying {
				d.flightCarry += dt
				for d.flightCarry >= 1 {
					d.state.FlightTime++
					d.flightCarry--
				}
			}
			d.mu.Unlock()
		}
	}
}

// pushLoop sends state snapshots to the backend sink.
func (d *Drone) pushLoop(ctx context.Context) {
	rate := d.cfg.Backend.PushRate
	if rate <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := d.State()
			if err := d.sink.Push(ctx, d.id, snapshot); err != nil {
				if ctx.Err() != nil {
					return
				}
				// A slow or absent backend never stalls the simulation.
				log.Printf("drone: %s backend push failed: %v", d.id, err)
			}
		}
	}
}

// broadcastLoop emits the legacy sensor string on the state port.
func (d *Drone) broadcastLoop(ctx context.Context) {
	rate := d.cfg.Broadcast.Rate
	if rate <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	targets := []*net.UDPAddr{
		{IP: net.ParseIP(d.cfg.Broadcast.Addr), Port: d.cfg.Broadcast.Port},
		{IP: net.IPv4(127, 0, 0, 1), Port: d.cfg.Broadcast.Port},
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			msg := d.telem.StateString(d.state)
			d.mu.Unlock()

			for _, target := range targets {
				if target.IP == nil {
					continue
				}
				if _, err := d.conn.WriteToUDP([]byte(msg), target); err != nil {
					log.Printf("drone: %s broadcast to %s failed: %v", d.id, target, err)
				}
			}
		}
	}
}

// Telemetry exposes the sensor simulator for test fixtures and tooling.
func (d *Drone) Telemetry() *telemetry.Simulator {
	return d.telem
}

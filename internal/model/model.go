package model

import (
	"time"

	"github.com/curbz/tellofleet/pkg/geometry"
	"github.com/curbz/tellofleet/pkg/util"
)

// CommandType classifies an SDK command line. The classification is
// informational only; dispatch goes by command name.
type CommandType string

const (
	CommandControl CommandType = "control"
	CommandSetting CommandType = "setting"
	CommandRead    CommandType = "read"
)

// FlightState is the complete mutable state of one simulated drone. It is
// plain data; the owning actor serializes all access to it.
type FlightState struct {
	// Identity
	DroneID string `json:"drone_id"`
	UDPPort int    `json:"udp_port"`

	// Position and orientation. Position in cm, rotation as
	// pitch/roll/yaw degrees (yaw is the only commanded axis),
	// velocity in cm/s, acceleration in cm/s².
	Position     geometry.Vector3 `json:"position"`
	Rotation     geometry.Vector3 `json:"rotation"`
	Velocity     geometry.Vector3 `json:"velocity"`
	Acceleration geometry.Vector3 `json:"acceleration"`

	// Flight status
	IsFlying    bool `json:"is_flying"`
	IsConnected bool `json:"is_connected"`
	FlightTime  int  `json:"flight_time"` // whole seconds, accumulated while flying

	// Telemetry
	Battery     int `json:"battery"`     // 0-100
	Temperature int `json:"temperature"` // °C, 0-80
	Barometer   int `json:"barometer"`   // cm, >= 0

	// Mission pad detection. -1 / -100 are the "nothing detected"
	// sentinels.
	MissionPadID int `json:"mission_pad_id"`
	MissionPadX  int `json:"mission_pad_x"`
	MissionPadY  int `json:"mission_pad_y"`
	MissionPadZ  int `json:"mission_pad_z"`

	// Settings
	Speed    int    `json:"speed"` // cm/s, 10-100
	RCValues [4]int `json:"rc_values"`

	// Timestamps (unix seconds, fractional)
	LastCommandTime float64 `json:"last_command_time"`
	LastUpdateTime  float64 `json:"last_update_time"`
}

// NewFlightState returns a grounded, connected drone with a full battery.
func NewFlightState(droneID string, udpPort int) *FlightState {
	now := float64(time.Now().UnixNano()) / 1e9
	return &FlightState{
		DroneID:         droneID,
		UDPPort:         udpPort,
		IsConnected:     true,
		Battery:         100,
		Temperature:     25,
		MissionPadID:    -1,
		MissionPadX:     -100,
		MissionPadY:     -100,
		MissionPadZ:     -100,
		Speed:           100,
		LastCommandTime: now,
		LastUpdateTime:  now,
	}
}

// SimulationConfig carries every tunable of the simulator. Zero fields are
// filled in from the defaults by normalize, so a partial YAML file works.
type SimulationConfig struct {
	Fleet struct {
		MaxDrones       int     `yaml:"max_drones"`
		BaseUDPPort     int     `yaml:"base_udp_port"`
		MonitorInterval float64 `yaml:"monitor_interval"` // seconds
	} `yaml:"fleet"`

	Physics struct {
		Gravity         float64    `yaml:"gravity"`          // m/s²
		AirResistance   float64    `yaml:"air_resistance"`   // 1/s drag coefficient
		MaxAcceleration float64    `yaml:"max_acceleration"` // cm/s²
		SceneBounds     [3]float64 `yaml:"scene_bounds"`     // x/y extents and ceiling, cm
	} `yaml:"physics"`

	Simulation struct {
		UpdateRate       int     `yaml:"update_rate"`        // physics Hz
		BatteryDrainRate float64 `yaml:"battery_drain_rate"` // % per minute
		DefaultSpeed     int     `yaml:"default_speed"`      // cm/s
	} `yaml:"simulation"`

	Backend struct {
		URL      string `yaml:"url"`       // http(s):// or ws(s)://, empty disables pushes
		PushRate int    `yaml:"push_rate"` // Hz
	} `yaml:"backend"`

	Broadcast struct {
		Port int    `yaml:"port"`
		Rate int    `yaml:"rate"` // Hz
		Addr string `yaml:"addr"` // subnet broadcast address
	} `yaml:"broadcast"`
}

func DefaultConfig() *SimulationConfig {
	cfg := &SimulationConfig{}
	cfg.Fleet.MaxDrones = 10
	cfg.Fleet.BaseUDPPort = 8889
	cfg.Fleet.MonitorInterval = 5
	cfg.Physics.Gravity = 9.81
	cfg.Physics.AirResistance = 0.1
	cfg.Physics.MaxAcceleration = 500
	cfg.Physics.SceneBounds = [3]float64{1000, 1000, 500}
	cfg.Simulation.UpdateRate = 30
	cfg.Simulation.BatteryDrainRate = 0.1
	cfg.Simulation.DefaultSpeed = 100
	cfg.Backend.URL = "http://localhost:8000"
	cfg.Backend.PushRate = 10
	cfg.Broadcast.Port = 8890
	cfg.Broadcast.Rate = 10
	cfg.Broadcast.Addr = "255.255.255.255"
	return cfg
}

// LoadConfig reads a YAML config file and fills unset fields with defaults.
func LoadConfig(cfgPath string) (*SimulationConfig, error) {
	cfg, err := util.LoadConfig[SimulationConfig](cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *SimulationConfig) normalize() {
	def := DefaultConfig()
	if c.Fleet.MaxDrones == 0 {
		c.Fleet.MaxDrones = def.Fleet.MaxDrones
	}
	if c.Fleet.BaseUDPPort == 0 {
		c.Fleet.BaseUDPPort = def.Fleet.BaseUDPPort
	}
	if c.Fleet.MonitorInterval == 0 {
		c.Fleet.MonitorInterval = def.Fleet.MonitorInterval
	}
	if c.Physics.Gravity == 0 {
		c.Physics.Gravity = def.Physics.Gravity
	}
	if c.Physics.AirResistance == 0 {
		c.Physics.AirResistance = def.Physics.AirResistance
	}
	if c.Physics.MaxAcceleration == 0 {
		c.Physics.MaxAcceleration = def.Physics.MaxAcceleration
	}
	if c.Physics.SceneBounds == [3]float64{} {
		c.Physics.SceneBounds = def.Physics.SceneBounds
	}
	if c.Simulation.UpdateRate == 0 {
		c.Simulation.UpdateRate = def.Simulation.UpdateRate
	}
	if c.Simulation.BatteryDrainRate == 0 {
		c.Simulation.BatteryDrainRate = def.Simulation.BatteryDrainRate
	}
	if c.Simulation.DefaultSpeed == 0 {
		c.Simulation.DefaultSpeed = def.Simulation.DefaultSpeed
	}
	if c.Backend.PushRate == 0 {
		c.Backend.PushRate = def.Backend.PushRate
	}
	if c.Broadcast.Port == 0 {
		c.Broadcast.Port = def.Broadcast.Port
	}
	if c.Broadcast.Rate == 0 {
		c.Broadcast.Rate = def.Broadcast.Rate
	}
	if c.Broadcast.Addr == "" {
		c.Broadcast.Addr = def.Broadcast.Addr
	}
}

package protocol

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/curbz/tellofleet/internal/model"
	"github.com/curbz/tellofleet/internal/physics"
	"github.com/curbz/tellofleet/pkg/geometry"
)

const (
	replyOK    = "ok"
	replyError = "error"
)

// Protocol parses one drone's SDK command lines and applies them to its
// flight state through the physics engine. The owning actor serializes
// calls, so Protocol itself holds no lock.
type Protocol struct {
	state  *model.FlightState
	engine *physics.Engine
}

func New(state *model.FlightState, engine *physics.Engine) *Protocol {
	return &Protocol{state: state, engine: engine}
}

// handler applies one parsed command. args excludes the command name.
type handler func(p *Protocol, args []string) string

var handlers = map[string]handler{
	"command":   (*Protocol).cmdCommand,
	"takeoff":   (*Protocol).cmdTakeoff,
	"land":      (*Protocol).cmdLand,
	"emergency": (*Protocol).cmdEmergency,
	"up":        (*Protocol).cmdUp,
	"down":      (*Protocol).cmdDown,
	"left":      (*Protocol).cmdLeft,
	"right":     (*Protocol).cmdRight,
	"forward":   (*Protocol).cmdForward,
	"back":      (*Protocol).cmdBack,
	"cw":        (*Protocol).cmdCW,
	"ccw":       (*Protocol).cmdCCW,
	"stop":      (*Protocol).cmdStop,
	"flip":      (*Protocol).cmdFlip,
	"go":        (*Protocol).cmdGo,
	"curve":     (*Protocol).cmdCurve,
	"motoron":   (*Protocol).cmdMotorOn,
	"motoroff":  (*Protocol).cmdMotorOff,
	"throwfly":  (*Protocol).cmdThrowFly,

	"speed":      (*Protocol).cmdSpeed,
	"rc":         (*Protocol).cmdRC,
	"wifi":       (*Protocol).cmdWifi,
	"mon":        (*Protocol).cmdMon,
	"moff":       (*Protocol).cmdMoff,
	"mdirection": (*Protocol).cmdMdirection,

	"speed?":        (*Protocol).readSpeed,
	"battery?":      (*Protocol).readBattery,
	"time?":         (*Protocol).readTime,
	"wifi?":         (*Protocol).readWifi,
	"sdk?":          (*Protocol).readSDK,
	"sn?":           (*Protocol).readSN,
	"hardware?":     (*Protocol).readHardware,
	"wifiversion?":  (*Protocol).readWifiVersion,
	"ap?":           (*Protocol).readAP,
	"ssid?":         (*Protocol).readAP,
	"tof?":          (*Protocol).readTOF,
	"height?":       (*Protocol).readHeight,
	"baro?":         (*Protocol).readHeight,
	"temp?":         (*Protocol).readTemp,
	"attitude?":     (*Protocol).readAttitude,
	"acceleration?": (*Protocol).readAcceleration,
}

// telemetryKeys are field prefixes of the broadcast sensor string. A line
// carrying several of them is our own telemetry echoed back, not a command.
var telemetryKeys = []string{
	"pitch:", "roll:", "yaw:", "vgx:", "vgy:", "vgz:",
	"templ:", "temph:", "tof:", "h:", "bat:", "baro:",
	"time:", "agx:", "agy:", "agz:",
}

// IsTelemetryEcho reports whether a received line is a reflected telemetry
// broadcast rather than an SDK command.
func IsTelemetryEcho(line string) bool {
	if !strings.Contains(line, ";") || !strings.Contains(line, ":") {
		return false
	}
	n := 0
	for _, key := range telemetryKeys {
		if strings.Contains(line, key) {
			n++
			if n >= 3 {
				return true
			}
		}
	}
	return false
}

// Classify buckets a command name for logging.
func Classify(name string) model.CommandType {
	if strings.HasSuffix(name, "?") {
		return model.CommandRead
	}
	switch name {
	case "speed", "rc", "wifi":
		return model.CommandSetting
	}
	return model.CommandControl
}

// HandleLine processes one received datagram. The returned bool is false
// when no reply should be sent at all (telemetry echoes).
func (p *Protocol) HandleLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return replyError, true
	}
	if IsTelemetryEcho(line) {
		return "", false
	}

	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])

	h, ok := handlers[name]
	if !ok {
		log.Printf("protocol: drone %s unknown command %q", p.state.DroneID, name)
		return replyError, true
	}

	p.state.LastCommandTime = float64(time.Now().UnixNano()) / 1e9
	return h(p, fields[1:]), true
}

// --- control commands ---

func (p *Protocol) cmdCommand(args []string) string {
	p.state.IsConnected = true
	return replyOK
}

func (p *Protocol) cmdTakeoff(args []string) string {
	if p.state.IsFlying {
		log.Printf("protocol: drone %s takeoff while already flying", p.state.DroneID)
		return replyError
	}
	p.engine.StartTakeoff(p.state)
	return replyOK
}

func (p *Protocol) cmdLand(args []string) string {
	if !p.state.IsFlying && p.state.Position.Z <= 0 {
		log.Printf("protocol: drone %s land while on the ground", p.state.DroneID)
		return replyError
	}
	p.engine.StartLanding(p.state)
	return replyOK
}

func (p *Protocol) cmdEmergency(args []string) string {
	p.engine.StopAnimation(p.state.DroneID)
	p.state.IsFlying = false
	p.state.Position.Z = 0
	p.state.Velocity = geometry.Vector3{}
	return replyOK
}

func (p *Protocol) cmdUp(args []string) string {
	d, ok := parseDistance(args)
	if !ok {
		return replyError
	}
	p.warnIfGrounded("up")
	target := p.state.Position
	target.Z += d
	p.engine.StartLinear(p.state, target, float64(p.state.Speed))
	return replyOK
}

func (p *Protocol) cmdDown(args []string) string {
	d, ok := parseDistance(args)
	if !ok {
		return replyError
	}
	target := p.state.Position
	target.Z = math.Max(0, target.Z-d)
	p.engine.StartLinear(p.state, target, float64(p.state.Speed))
	return replyOK
}

func (p *Protocol) cmdLeft(args []string) string {
	return p.lateralMove(args, -1)
}

func (p *Protocol) cmdRight(args []string) string {
	return p.lateralMove(args, 1)
}

// lateralMove translates along the global X axis. Unlike forward/back,
// left/right ignore the current heading.
func (p *Protocol) lateralMove(args []string, sign float64) string {
	d, ok := parseDistance(args)
	if !ok {
		return replyError
	}
	target := p.state.Position
	target.X += sign * d
	p.engine.StartLinear(p.state, target, float64(p.state.Speed))
	return replyOK
}

func (p *Protocol) cmdForward(args []string) string {
	return p.headingMove(args, 1)
}

func (p *Protocol) cmdBack(args []string) string {
	return p.headingMove(args, -1)
}

// headingMove translates along the current heading.
func (p *Protocol) headingMove(args []string, sign float64) string {
	d, ok := parseDistance(args)
	if !ok {
		return replyError
	}
	if sign > 0 {
		p.warnIfGrounded("forward")
	}
	yaw := p.state.Rotation.Z * math.Pi / 180
	target := p.state.Position
	target.X += sign * d * math.Sin(yaw)
	target.Y += sign * d * math.Cos(yaw)
	p.engine.StartLinear(p.state, target, float64(p.state.Speed))
	return replyOK
}

func (p *Protocol) cmdCW(args []string) string {
	return p.rotate(args, 1)
}

func (p *Protocol) cmdCCW(args []string) string {
	return p.rotate(args, -1)
}

func (p *Protocol) rotate(args []string, sign float64) string {
	deg, ok := parseIntArg(args, 1, 360)
	if !ok {
		return replyError
	}
	target := geometry.Mod360(p.state.Rotation.Z + sign*float64(deg))
	p.engine.StartRotation(p.state, target)
	return replyOK
}

// cmdStop zeroes velocity but leaves any active animation running, so a
// movement in flight still reaches its target.
func (p *Protocol) cmdStop(args []string) string {
	p.state.Velocity = geometry.Vector3{}
	return replyOK
}

func (p *Protocol) cmdFlip(args []string) string {
	if len(args) != 1 || len(args[0]) != 1 {
		return replyError
	}
	dir := strings.ToLower(args[0])[0]
	switch dir {
	case 'l', 'r', 'f', 'b':
	default:
		return replyError
	}
	if !p.state.IsFlying {
		log.Printf("protocol: drone %s flip while not flying", p.state.DroneID)
		return replyError
	}
	p.engine.StartFlip(p.state, dir)
	return replyOK
}

func (p *Protocol) cmdGo(args []string) string {
	if len(args) != 4 {
		log.Printf("protocol: drone %s go expects 4 params, got %d", p.state.DroneID, len(args))
		return replyError
	}
	x, ok1 := parseRangedInt(args[0], -500, 500)
	y, ok2 := parseRangedInt(args[1], -500, 500)
	z, ok3 := parseRangedInt(args[2], -500, 500)
	speed, ok4 := parseRangedInt(args[3], 10, 100)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return replyError
	}
	target := geometry.Vector3{
		X: p.state.Position.X + float64(x),
		Y: p.state.Position.Y + float64(y),
		Z: math.Max(0, p.state.Position.Z+float64(z)),
	}
	p.engine.StartLinear(p.state, target, float64(speed))
	return replyOK
}

func (p *Protocol) cmdCurve(args []string) string {
	if len(args) != 7 {
		log.Printf("protocol: drone %s curve expects 7 params, got %d", p.state.DroneID, len(args))
		return replyError
	}
	vals := make([]int, 6)
	for i := 0; i < 6; i++ {
		v, ok := parseRangedInt(args[i], -500, 500)
		if !ok {
			return replyError
		}
		vals[i] = v
	}
	speed, ok := parseRangedInt(args[6], 10, 60)
	if !ok {
		return replyError
	}
	control := geometry.Vector3{
		X: p.state.Position.X + float64(vals[0]),
		Y: p.state.Position.Y + float64(vals[1]),
		Z: math.Max(0, p.state.Position.Z+float64(vals[2])),
	}
	target := geometry.Vector3{
		X: p.state.Position.X + float64(vals[3]),
		Y: p.state.Position.Y + float64(vals[4]),
		Z: math.Max(0, p.state.Position.Z+float64(vals[5])),
	}
	p.engine.StartCurve(p.state, control, target, float64(speed))
	return replyOK
}

func (p *Protocol) cmdMotorOn(args []string) string {
	return replyOK
}

func (p *Protocol) cmdMotorOff(args []string) string {
	return replyOK
}

func (p *Protocol) cmdThrowFly(args []string) string {
	if !p.state.IsFlying {
		p.state.IsFlying = true
		p.state.Position.Z = 100
	}
	return replyOK
}

// --- setting commands ---

func (p *Protocol) cmdSpeed(args []string) string {
	v, ok := parseIntArg(args, 10, 100)
	if !ok {
		return replyError
	}
	p.state.Speed = v
	return replyOK
}

func (p *Protocol) cmdRC(args []string) string {
	if len(args) != 4 {
		return replyError
	}
	var vals [4]int
	for i, a := range args {
		v, ok := parseRangedInt(a, -100, 100)
		if !ok {
			// All four channels or nothing.
			return replyError
		}
		vals[i] = v
	}
	p.state.RCValues = vals
	return replyOK
}

func (p *Protocol) cmdWifi(args []string) string {
	if len(args) != 2 {
		return replyError
	}
	return replyOK
}

func (p *Protocol) cmdMon(args []string) string {
	return replyOK
}

func (p *Protocol) cmdMoff(args []string) string {
	p.state.MissionPadID = -1
	p.state.MissionPadX = -100
	p.state.MissionPadY = -100
	p.state.MissionPadZ = -100
	return replyOK
}

func (p *Protocol) cmdMdirection(args []string) string {
	if _, ok := parseIntArg(args, 0, 2); !ok {
		return replyError
	}
	return replyOK
}

// --- read commands ---

func (p *Protocol) readSpeed(args []string) string {
	return fmt.Sprintf("x:%d y:%d z:%d",
		int(p.state.Velocity.X), int(p.state.Velocity.Y), int(p.state.Velocity.Z))
}

func (p *Protocol) readBattery(args []string) string {
	return strconv.Itoa(p.state.Battery)
}

func (p *Protocol) readTime(args []string) string {
	return strconv.Itoa(p.state.FlightTime)
}

func (p *Protocol) readWifi(args []string) string {
	return "90"
}

func (p *Protocol) readSDK(args []string) string {
	return replyOK
}

func (p *Protocol) readSN(args []string) string {
	suffix := "0"
	if id := p.state.DroneID; id != "" {
		suffix = id[len(id)-1:]
	}
	return "0TQZH77ED00" + suffix
}

func (p *Protocol) readHardware(args []string) string {
	return "RMTT"
}

func (p *Protocol) readWifiVersion(args []string) string {
	return "1.3.0.0"
}

func (p *Protocol) readAP(args []string) string {
	return "TELLO-ED00A1"
}

func (p *Protocol) readTOF(args []string) string {
	tof := int(p.state.Position.Z)
	if tof < 30 {
		tof = 30
	}
	return strconv.Itoa(tof)
}

func (p *Protocol) readHeight(args []string) string {
	return strconv.Itoa(p.state.Barometer)
}

func (p *Protocol) readTemp(args []string) string {
	return strconv.Itoa(p.state.Temperature)
}

func (p *Protocol) readAttitude(args []string) string {
	return fmt.Sprintf("pitch:%d;roll:%d;yaw:%d;",
		int(p.state.Rotation.X), int(p.state.Rotation.Y), int(p.state.Rotation.Z))
}

func (p *Protocol) readAcceleration(args []string) string {
	return fmt.Sprintf("agx:%d;agy:%d;agz:%d;",
		int(p.state.Acceleration.X), int(p.state.Acceleration.Y), int(p.state.Acceleration.Z))
}

// --- helpers ---

func (p *Protocol) warnIfGrounded(cmd string) {
	if !p.state.IsFlying {
		log.Printf("protocol: drone %s %s while not flying", p.state.DroneID, cmd)
	}
}

// parseDistance validates the single 20-500cm argument of the directional
// move commands.
func parseDistance(args []string) (float64, bool) {
	v, ok := parseIntArg(args, 20, 500)
	return float64(v), ok
}

func parseIntArg(args []string, lo, hi int) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	return parseRangedInt(args[0], lo, hi)
}

func parseRangedInt(s string, lo, hi int) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
}

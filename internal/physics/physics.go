package physics

import (
	"math"
	"time"

	"github.com/curbz/tellofleet/internal/model"
	"github.com/curbz/tellofleet/pkg/geometry"
)

// Movement parameters shared by every drone.
const (
	takeoffSpeed = 50.0  // cm/s
	landingSpeed = 30.0  // cm/s
	hoverHeight  = 100.0 // cm
)

// AnimationKind is the closed set of trajectory variants. The tick loop
// dispatches on it exhaustively.
type AnimationKind int

const (
	KindTakeoff AnimationKind = iota
	KindLanding
	KindLinear
	KindCurve
	KindFlip
	KindRotation
)

func (k AnimationKind) String() string {
	switch k {
	case KindTakeoff:
		return "takeoff"
	case KindLanding:
		return "landing"
	case KindLinear:
		return "linear"
	case KindCurve:
		return "curve"
	case KindFlip:
		return "flip"
	case KindRotation:
		return "rotation"
	}
	return "unknown"
}

// ownsAltitude reports whether the variant sets position.Z directly, in
// which case gravity is not applied on top of it.
func (k AnimationKind) ownsAltitude() bool {
	switch k {
	case KindTakeoff, KindLanding, KindLinear, KindCurve:
		return true
	}
	return false
}

// Animation is one time-bounded trajectory. A drone has at most one; a new
// movement command replaces it wholesale (last command wins).
type Animation struct {
	Kind     AnimationKind
	Start    time.Time
	Duration float64 // seconds

	// Snapshots of the state at start.
	StartPosition geometry.Vector3
	StartRotation geometry.Vector3

	// Target parameters; which fields are meaningful depends on Kind.
	Target       geometry.Vector3 // linear, curve
	Control1     geometry.Vector3 // curve
	Control2     geometry.Vector3 // curve
	TargetHeight float64          // takeoff, landing
	Axis         byte             // flip: 'x' pitch, 'y' roll
	Amount       float64          // flip: ±360 degrees
	StartYaw     float64          // rotation
	TargetYaw    float64          // rotation
	HoverHeight  float64          // rotation: altitude pinned for the duration
}

// Engine advances at most one animation per drone per tick and owns the
// gravity, drag and scene-boundary physics.
type Engine struct {
	cfg        *model.SimulationConfig
	animations map[string]*Animation // drone id -> active animation

	now func() time.Time
}

func NewEngine(cfg *model.SimulationConfig) *Engine {
	return &Engine{
		cfg:        cfg,
		animations: make(map[string]*Animation),
		now:        time.Now,
	}
}

// Step advances one drone by dt seconds: animation first, then forces,
// boundary clamps, integration and the ground-contact rule.
func (e *Engine) Step(st *model.FlightState, dt float64) {
	if anim, ok := e.animations[st.DroneID]; ok {
		e.updateAnimation(st, anim)
	}

	e.applyGravity(st, dt)
	e.applyAirResistance(st, dt)
	e.applyBoundaryConstraints(st)

	st.Position.X += st.Velocity.X * dt
	st.Position.Y += st.Velocity.Y * dt
	st.Position.Z += st.Velocity.Z * dt

	// Ground contact. Flight state is only cleared here while a landing
	// animation is in progress; touching the floor during anything else
	// leaves the drone "flying" at z=0.
	if st.Position.Z < 0 {
		st.Position.Z = 0
		st.Velocity.Z = 0
		if st.IsFlying {
			if anim, ok := e.animations[st.DroneID]; ok && anim.Kind == KindLanding {
				st.IsFlying = false
			}
		}
	}

	st.LastUpdateTime = float64(e.now().UnixNano()) / 1e9
}

// StartTakeoff installs a takeoff animation and marks the drone flying.
// No-op if already airborne.
func (e *Engine) StartTakeoff(st *model.FlightState) {
	if st.IsFlying {
		return
	}
	e.animations[st.DroneID] = &Animation{
		Kind:          KindTakeoff,
		Start:         e.now(),
		StartPosition: st.Position,
		TargetHeight:  hoverHeight,
		Duration:      maxf(hoverHeight/takeoffSpeed, 0.1),
	}
	st.IsFlying = true
}

// StartLanding installs a landing animation. No-op if grounded.
func (e *Engine) StartLanding(st *model.FlightState) {
	if !st.IsFlying {
		return
	}
	e.animations[st.DroneID] = &Animation{
		Kind:          KindLanding,
		Start:         e.now(),
		StartPosition: st.Position,
		TargetHeight:  0,
		Duration:      maxf(st.Position.Z/landingSpeed, 0.1),
	}
}

// StartLinear installs a straight-line movement toward target at the given
// speed. No-op if not flying.
func (e *Engine) StartLinear(st *model.FlightState, target geometry.Vector3, speed float64) {
	if !st.IsFlying {
		return
	}
	e.animations[st.DroneID] = &Animation{
		Kind:          KindLinear,
		Start:         e.now(),
		StartPosition: st.Position,
		Target:        target,
		Duration:      travelDuration(st.Position, target, speed),
	}
}

// StartCurve installs a cubic Bezier movement through control toward target.
// No-op if not flying.
func (e *Engine) StartCurve(st *model.FlightState, control, target geometry.Vector3, speed float64) {
	if !st.IsFlying {
		return
	}
	e.animations[st.DroneID] = &Animation{
		Kind:          KindCurve,
		Start:         e.now(),
		StartPosition: st.Position,
		Control1:      control,
		Control2:      target,
		Target:        target,
		Duration:      travelDuration(st.Position, target, speed),
	}
}

// StartFlip installs a one-second 360° flip. Direction is one of l/r/f/b;
// l and r roll about Y, f and b pitch about X. No-op if not flying.
func (e *Engine) StartFlip(st *model.FlightState, direction byte) {
	if !st.IsFlying {
		return
	}
	axis := byte('y')
	if direction == 'f' || direction == 'b' {
		axis = 'x'
	}
	amount := 360.0
	if direction == 'r' || direction == 'b' {
		amount = -360.0
	}
	e.animations[st.DroneID] = &Animation{
		Kind:          KindFlip,
		Start:         e.now(),
		StartRotation: st.Rotation,
		Axis:          axis,
		Amount:        amount,
		Duration:      1.0,
	}
}

// StartRotation installs a yaw rotation toward targetYaw at 90°/s, pinning
// altitude to the current height (at least hover height) for the duration.
// No-op if not flying.
func (e *Engine) StartRotation(st *model.FlightState, targetYaw float64) {
	if !st.IsFlying {
		return
	}
	e.animations[st.DroneID] = &Animation{
		Kind:        KindRotation,
		Start:       e.now(),
		StartYaw:    st.Rotation.Z,
		TargetYaw:   targetYaw,
		Duration:    maxf(absf(targetYaw-st.Rotation.Z)/90.0, 0.1),
		HoverHeight: maxf(st.Position.Z, hoverHeight),
	}
}

// IsAnimating reports whether the drone has an active animation.
func (e *Engine) IsAnimating(droneID string) bool {
	_, ok := e.animations[droneID]
	return ok
}

// StopAnimation discards the drone's active animation without finalizing it.
func (e *Engine) StopAnimation(droneID string) {
	delete(e.animations, droneID)
}

func (e *Engine) updateAnimation(st *model.FlightState, anim *Animation) {
	elapsed := e.now().Sub(anim.Start).Seconds()
	progress := geometry.Clamp(elapsed/maxf(anim.Duration, 0.001), 0, 1)

	switch anim.Kind {
	case KindTakeoff:
		s := geometry.SmoothStep(progress)
		st.Position.Z = anim.StartPosition.Z + (anim.TargetHeight-anim.StartPosition.Z)*s
		st.Velocity.Z = takeoffSpeed * (1 - progress)
	case KindLanding:
		s := geometry.SmoothStep(progress)
		st.Position.Z = anim.StartPosition.Z + (anim.TargetHeight-anim.StartPosition.Z)*s
		st.Velocity.Z = -landingSpeed * (1 - progress)
	case KindLinear:
		s := geometry.SmoothStep(progress)
		st.Position = anim.StartPosition.Add(anim.Target.Sub(anim.StartPosition).Scale(s))
		if progress < 1 {
			// Velocity is re-derived each tick: remaining distance
			// over remaining time, pointed at the target.
			remainingDist := geometry.Distance(st.Position, anim.Target)
			remainingTime := anim.Duration * (1 - progress)
			if remainingTime > 0 {
				dir := anim.Target.Sub(st.Position).Normalize()
				st.Velocity = dir.Scale(remainingDist / remainingTime)
			}
		}
	case KindCurve:
		t := geometry.SmoothStep(progress)
		st.Position = geometry.CubicBezierVec(t, anim.StartPosition, anim.Control1, anim.Control2, anim.Target)
	case KindFlip:
		wave := sinPi(progress)
		offset := anim.Amount * wave
		switch anim.Axis {
		case 'x':
			st.Rotation.X = anim.StartRotation.X + offset
		case 'y':
			st.Rotation.Y = anim.StartRotation.Y + offset
		default:
			st.Rotation.Z = anim.StartRotation.Z + offset
		}
		// Transient vertical bump with the same shape.
		st.Position.Z += 20 * wave
	case KindRotation:
		s := geometry.SmoothStep(progress)
		diff := geometry.WrapAngle180(anim.TargetYaw - anim.StartYaw)
		st.Rotation.Z = geometry.Mod360(anim.StartYaw + diff*s)
		st.Position.Z = anim.HoverHeight
		st.Velocity.Z = 0
	}

	if progress >= 1 {
		e.finishAnimation(st, anim)
		delete(e.animations, st.DroneID)
	}
}

// finishAnimation snaps the state to the animation's exact end conditions.
func (e *Engine) finishAnimation(st *model.FlightState, anim *Animation) {
	switch anim.Kind {
	case KindLanding:
		st.IsFlying = false
		st.Position.Z = 0
		st.Velocity = geometry.Vector3{}
	case KindLinear, KindCurve:
		st.Position = anim.Target
		st.Velocity = geometry.Vector3{}
	case KindFlip:
		st.Rotation = anim.StartRotation
	}
}

func (e *Engine) applyGravity(st *model.FlightState, dt float64) {
	if !st.IsFlying {
		return
	}

	anim := e.animations[st.DroneID]
	if anim != nil && anim.Kind.ownsAltitude() {
		return
	}

	gravityCm := e.cfg.Physics.Gravity * 100
	st.Velocity.Z -= gravityCm * dt

	if anim != nil {
		// Rotation and flip hold altitude with a proportional term.
		heightError := hoverHeight - st.Position.Z
		st.Velocity.Z += heightError * 2.0 * dt
	} else if st.Position.Z > 0 {
		// Free hover: counteract gravity around the current altitude.
		targetHeight := maxf(st.Position.Z, hoverHeight)
		heightError := targetHeight - st.Position.Z
		st.Velocity.Z += (heightError*1.5 + gravityCm) * dt
	}
}

func (e *Engine) applyAirResistance(st *model.FlightState, dt float64) {
	factor := maxf(0, 1.0-e.cfg.Physics.AirResistance*dt)
	st.Velocity = st.Velocity.Scale(factor)
}

func (e *Engine) applyBoundaryConstraints(st *model.FlightState) {
	bounds := e.cfg.Physics.SceneBounds

	if st.Position.X < -bounds[0]/2 {
		st.Position.X = -bounds[0] / 2
		st.Velocity.X = 0
	} else if st.Position.X > bounds[0]/2 {
		st.Position.X = bounds[0] / 2
		st.Velocity.X = 0
	}

	if st.Position.Y < -bounds[1]/2 {
		st.Position.Y = -bounds[1] / 2
		st.Velocity.Y = 0
	} else if st.Position.Y > bounds[1]/2 {
		st.Position.Y = bounds[1] / 2
		st.Velocity.Y = 0
	}

	if st.Position.Z > bounds[2] {
		st.Position.Z = bounds[2]
		st.Velocity.Z = 0
	}
}

func travelDuration(from, to geometry.Vector3, speed float64) float64 {
	if speed <= 0 {
		return 1.0
	}
	return geometry.Distance(from, to) / speed
}

func sinPi(t float64) float64 {
	return math.Sin(t * math.Pi)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absf(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}

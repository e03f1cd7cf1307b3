package geometry

import (
	"math"
)

// --- Geometry Helpers ---

// Vector3 is a 3-component vector in simulator space. Positions are in cm,
// velocities in cm/s, rotations carry pitch/roll/yaw degrees on X/Y/Z.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns the unit vector. The zero vector normalizes to itself.
func (v Vector3) Normalize() Vector3 {
	l := v.Length()
	if l == 0 {
		return Vector3{}
	}
	return Vector3{v.X / l, v.Y / l, v.Z / l}
}

func Distance(a, b Vector3) float64 {
	return a.Sub(b).Length()
}

// DistanceXY is the planar distance, ignoring altitude.
func DistanceXY(a, b Vector3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// SmoothStep is the cubic ease curve t²(3−2t), clamped to [0,1].
func SmoothStep(t float64) float64 {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return t * t * (3.0 - 2.0*t)
}

// CubicBezier evaluates (1−t)³p0 + 3(1−t)²t·p1 + 3(1−t)t²·p2 + t³·p3.
func CubicBezier(t, p0, p1, p2, p3 float64) float64 {
	u := 1 - t
	return u*u*u*p0 + 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t*p3
}

func CubicBezierVec(t float64, p0, p1, p2, p3 Vector3) Vector3 {
	return Vector3{
		X: CubicBezier(t, p0.X, p1.X, p2.X, p3.X),
		Y: CubicBezier(t, p0.Y, p1.Y, p2.Y, p3.Y),
		Z: CubicBezier(t, p0.Z, p1.Z, p2.Z, p3.Z),
	}
}

// WrapAngle180 wraps a degree difference into [−180, 180] so rotations
// always take the shorter arc.
func WrapAngle180(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

// Mod360 normalizes a heading into [0, 360).
func Mod360(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	return m
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

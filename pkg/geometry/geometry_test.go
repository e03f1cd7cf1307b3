package geometry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSmoothStep(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "start", in: 0, want: 0},
		{name: "end", in: 1, want: 1},
		{name: "midpoint", in: 0.5, want: 0.5},
		{name: "clamped below", in: -2, want: 0},
		{name: "clamped above", in: 3, want: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := SmoothStep(tc.in)
			if !almostEqual(got, tc.want) {
				t.Fatalf("SmoothStep(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	// Ease-in: the first quarter covers less than a quarter of the range.
	if s := SmoothStep(0.25); s >= 0.25 {
		t.Fatalf("SmoothStep(0.25) = %v, expected below 0.25", s)
	}
}

func TestCubicBezierEndpoints(t *testing.T) {
	p0, p1, p2, p3 := 10.0, 50.0, -30.0, 200.0
	if got := CubicBezier(0, p0, p1, p2, p3); !almostEqual(got, p0) {
		t.Fatalf("CubicBezier(0) = %v, want %v", got, p0)
	}
	if got := CubicBezier(1, p0, p1, p2, p3); !almostEqual(got, p3) {
		t.Fatalf("CubicBezier(1) = %v, want %v", got, p3)
	}
}

func TestCubicBezierVecEndpoints(t *testing.T) {
	start := Vector3{X: 0, Y: 0, Z: 100}
	c1 := Vector3{X: 100, Y: 0, Z: 150}
	c2 := Vector3{X: 100, Y: 100, Z: 150}
	end := Vector3{X: 200, Y: 100, Z: 100}

	if got := CubicBezierVec(0, start, c1, c2, end); got != start {
		t.Fatalf("CubicBezierVec(0) = %+v, want %+v", got, start)
	}
	if got := CubicBezierVec(1, start, c1, c2, end); got != end {
		t.Fatalf("CubicBezierVec(1) = %+v, want %+v", got, end)
	}
}

func TestWrapAngle180(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{180, 180},
		{181, -179},
		{-181, 179},
		{350, -10},
		{-350, 10},
		{720, 0},
	}

	for _, tc := range tests {
		if got := WrapAngle180(tc.in); !almostEqual(got, tc.want) {
			t.Fatalf("WrapAngle180(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMod360(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{370, 10},
		{-10, 350},
		{-360, 0},
	}

	for _, tc := range tests {
		if got := Mod360(tc.in); !almostEqual(got, tc.want) {
			t.Fatalf("Mod360(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	if got := (Vector3{}).Normalize(); got != (Vector3{}) {
		t.Fatalf("zero vector normalized to %+v", got)
	}
	v := Vector3{X: 3, Y: 4, Z: 0}.Normalize()
	if !almostEqual(v.Length(), 1) {
		t.Fatalf("normalized length = %v, want 1", v.Length())
	}
}

func TestDistanceXYIgnoresAltitude(t *testing.T) {
	a := Vector3{X: 0, Y: 0, Z: 500}
	b := Vector3{X: 3, Y: 4, Z: -500}
	if got := DistanceXY(a, b); !almostEqual(got, 5) {
		t.Fatalf("DistanceXY = %v, want 5", got)
	}
}

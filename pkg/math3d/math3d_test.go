package math3d

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name         string
		v, lo, hi, w float64
	}{
		{"inside", 0.4, 0, 1, 0.4},
		{"above", 1.5, 0, 1, 1},
		{"below", -0.2, 0, 1, 0},
		{"nan", math.NaN(), -1, 1, -1},
		{"edge", 1, 0, 1, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clamp(tc.v, tc.lo, tc.hi); got != tc.w {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tc.v, tc.lo, tc.hi, got, tc.w)
			}
		})
	}
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := V3(0, 1, 5)
	view := LookAt(eye, V3(0, 1, 0), Up())

	p := view.MulVec3(eye)
	if p.Len() > 1e-9 {
		t.Errorf("eye should map to origin, got %v", p)
	}

	target := view.MulVec3(V3(0, 1, 0))
	if math.Abs(target.Z+5) > 1e-9 {
		t.Errorf("target should sit on -Z at distance 5, got %v", target)
	}
}

func TestAddScaled(t *testing.T) {
	got := V3(1, 2, 3).AddScaled(V3(1, 0, -1), 0.5)
	want := V3(1.5, 2, 2.5)
	if got != want {
		t.Errorf("AddScaled = %v, want %v", got, want)
	}
}

func BenchmarkMat4Mul(b *testing.B) {
	m1 := Translate(V3(1, 2, 3))
	m2 := RotateY(0.5)

	for b.Loop() {
		_ = m1.Mul(m2)
	}
}

func BenchmarkMat4MulVec3(b *testing.B) {
	m := Translate(V3(1, 2, 3)).Mul(RotateY(0.5))
	v := V3(1, 2, 3)

	for b.Loop() {
		_ = m.MulVec3(v)
	}
}

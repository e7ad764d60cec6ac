package event

import (
	"errors"
	"math"
)

// ErrNoBracket is returned when the end points of a search do not bracket a root.
var ErrNoBracket = errors.New("values do not bracket a root")

// Brent is a bracketing root finder: inverse quadratic interpolation or secant steps, falling
// back to bisection whenever they would not shrink the bracket fast enough. The caller asks for
// the Next abscissa, evaluates the function there and feeds the value back with SetValue.
type Brent struct {
	a, b, c, d float64
	fa, fb, fc float64
	bisected   bool
	tolerance  float64 // on the abscissa
}

// NewBrent returns a root finder which stops shrinking the bracket below the tolerance.
func NewBrent(tolerance float64) *Brent {
	return &Brent{tolerance: tolerance}
}

// Initialize sets the bracket.
func (r *Brent) Initialize(t0, f0, t1, f1 float64) error {
	if f0*f1 > 0 {
		return ErrNoBracket
	}
	r.a, r.fa, r.b, r.fb = t0, f0, t1, f1
	if math.Abs(r.fa) < math.Abs(r.fb) {
		r.a, r.b, r.fa, r.fb = r.b, r.a, r.fb, r.fa
	}
	r.c, r.fc = r.a, r.fa
	r.d = r.c
	r.bisected = true
	return nil
}

// Next returns the abscissa to evaluate next.
func (r *Brent) Next() float64 {
	var s float64
	if r.fa != r.fc && r.fb != r.fc {
		s = r.a*r.fb*r.fc/((r.fa-r.fb)*(r.fa-r.fc)) +
			r.b*r.fa*r.fc/((r.fb-r.fa)*(r.fb-r.fc)) +
			r.c*r.fa*r.fb/((r.fc-r.fa)*(r.fc-r.fb))
	} else {
		s = r.b - r.fb*(r.b-r.a)/(r.fb-r.fa)
	}
	lo, hi := (3*r.a+r.b)/4, r.b
	if lo > hi {
		lo, hi = hi, lo
	}
	if s < lo || s > hi ||
		(r.bisected && math.Abs(s-r.b) >= math.Abs(r.b-r.c)/2) ||
		(!r.bisected && math.Abs(s-r.b) >= math.Abs(r.c-r.d)/2) ||
		(r.bisected && math.Abs(r.b-r.c) < r.tolerance) ||
		(!r.bisected && math.Abs(r.c-r.d) < r.tolerance) ||
		math.IsNaN(s) {
		s = (r.a + r.b) / 2
		r.bisected = true
	} else {
		r.bisected = false
	}
	return s
}

// SetValue feeds back the function value at the abscissa returned by Next.
func (r *Brent) SetValue(s, fs float64) {
	r.d = r.c
	r.c, r.fc = r.b, r.fb
	if r.fa*fs < 0 {
		r.b, r.fb = s, fs
	} else {
		r.a, r.fa = s, fs
	}
	if math.Abs(r.fa) < math.Abs(r.fb) {
		r.a, r.b, r.fa, r.fb = r.b, r.a, r.fb, r.fa
	}
}

// Best returns the abscissa of the smallest value found so far and that value.
func (r *Brent) Best() (float64, float64) {
	return r.b, r.fb
}

// Width returns the width of the current bracket.
func (r *Brent) Width() float64 {
	return math.Abs(r.b - r.a)
}

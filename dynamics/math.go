package dynamics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// Norm returns the norm of a given vector which is supposed to be 3x1.
func Norm(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Unit returns the unit vector of a given vector.
func Unit(a []float64) (b []float64) {
	n := Norm(a)
	if scalar.EqualWithinAbs(n, 0, 1e-12) {
		return []float64{0, 0, 0}
	}
	b = make([]float64, len(a))
	for i, val := range a {
		b[i] = val / n
	}
	return
}

// Dot performs the inner product via gonum/BLAS.
func Dot(a, b []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(a), a), mat.NewVecDense(len(b), b))
}

// Cross performs the cross product.
func Cross(a, b []float64) []float64 {
	return []float64{a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0]} // Cross product R x V.
}

// Sub returns a - b for 3x1 vectors.
func Sub(a, b []float64) []float64 {
	return []float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// EpochAfter returns the epoch dt seconds after the base epoch, with nanosecond resolution.
func EpochAfter(base time.Time, dt float64) time.Time {
	return base.Add(time.Duration(math.Round(dt * 1e9)))
}

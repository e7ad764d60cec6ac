package dynamics

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func assertPanic(t *testing.T, f func()) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("code did not panic")
		}
	}()
	f()
}

func vectorsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := len(a) - 1; i >= 0; i-- {
		if !scalar.EqualWithinRel(a[i], b[i], 1e-12) {
			return false
		}
	}
	return true
}

package integrator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// oscillator integrates dx/dt = v, dv/dt = -x.
type oscillator struct {
	failErr bool
}

func (o oscillator) Dimension() int { return 2 }

func (o oscillator) GetDerivatives(state []float64, dt float64, order int) ([]float64, error) {
	return []float64{state[1], -state[0]}, nil
}

func (o oscillator) EstimateError(diffs, answer, start []float64) float64 {
	if o.failErr {
		return 1
	}
	return floats.Norm(diffs, math.Inf(1))
}

type failing struct{ oscillator }

func (failing) GetDerivatives(state []float64, dt float64, order int) ([]float64, error) {
	return nil, missionseq.ErrNumerical
}

func TestRK4Additivity(t *testing.T) {
	whole, _ := NewRK4(10)
	split, _ := NewRK4(10)
	whole.Initialize(oscillator{}, []float64{1, 0})
	split.Initialize(oscillator{}, []float64{1, 0})
	if err := whole.Step(60); err != nil {
		t.Fatal(err)
	}
	split.Step(30)
	split.Step(30)
	if !floats.Equal(whole.State(), split.State()) {
		t.Fatalf("60 s in one step %v differs from two steps of 30 s %v", whole.State(), split.State())
	}
	if whole.Elapsed() != 60 || split.Elapsed() != 60 {
		t.Fatal("elapsed time incorrect")
	}
}

func TestRK4Accuracy(t *testing.T) {
	r, _ := NewRK4(0.01)
	r.Initialize(oscillator{}, []float64{1, 0})
	if err := r.Step(math.Pi); err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(r.State(), []float64{-1, 0}, 1e-8) {
		t.Fatalf("half period incorrect: %v", r.State())
	}
}

func TestRKF45Accuracy(t *testing.T) {
	r, err := NewRKF45(1e-12, 1e-6, 10, 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Initialize(oscillator{}, []float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := r.Step(math.Pi / 10); err != nil {
			t.Fatal(err)
		}
	}
	if !floats.EqualApprox(r.State(), []float64{-1, 0}, 1e-9) {
		t.Fatalf("half period incorrect: %v", r.State())
	}
	if !scalar.EqualWithinAbs(r.Elapsed(), math.Pi, 1e-12) {
		t.Fatalf("elapsed %f", r.Elapsed())
	}
	// Stepping back returns to the start.
	if err := r.Step(-math.Pi); err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(r.State(), []float64{1, 0}, 1e-9) {
		t.Fatalf("backward propagation incorrect: %v", r.State())
	}
}

func TestRKF45Failure(t *testing.T) {
	r, _ := NewRKF45(1e-12, 1e-3, 10, 5)
	r.Initialize(oscillator{failErr: true}, []float64{1, 0})
	err := r.Step(60)
	if !errors.Is(err, missionseq.ErrNumerical) {
		t.Fatalf("expected a numerical error, got %v", err)
	}
	r.Initialize(failing{}, []float64{1, 0})
	if err := r.Step(1); !errors.Is(err, missionseq.ErrNumerical) {
		t.Fatalf("derivative errors must propagate, got %v", err)
	}
}

func TestPropagatorState(t *testing.T) {
	r, _ := NewRK4(1)
	if err := r.Step(1); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatal("uninitialized propagator stepped")
	}
	if err := r.Initialize(oscillator{}, []float64{1}); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatal("mismatched state accepted")
	}
	r.Initialize(oscillator{}, []float64{1, 0})
	state := r.State()
	state[0] = 5
	if r.State()[0] != 1 {
		t.Fatal("State must return a copy")
	}
	if err := r.SetState([]float64{0, 1}, 12); err != nil {
		t.Fatal(err)
	}
	if r.Elapsed() != 12 {
		t.Fatal("elapsed not set")
	}
	if c := r.Clone(); c.Name() != "RK4" || c.(*RK4).MaxStep != 1 {
		t.Fatal("clone lost its settings")
	}
}

func TestNew(t *testing.T) {
	cfg := missionseq.DefaultConfig().Propagation
	p, err := New("RK4", cfg)
	if err != nil || p.(*RK4).MaxStep != 60 {
		t.Fatalf("unexpected RK4: %v", err)
	}
	cfg.MinStep = time.Second
	p, err = New("", cfg)
	if err != nil || p.(*RKF45).MinStep != 1 {
		t.Fatalf("unexpected RKF45: %v", err)
	}
	if _, err := New("Euler", cfg); !errors.Is(err, missionseq.ErrConfig) {
		t.Fatal("unknown propagator accepted")
	}
}

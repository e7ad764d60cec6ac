package integrator

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/missionseq"
)

// RK4 is a fixed step Runge Kutta 4 propagator. A step longer than the maximum step is split in
// equal substeps.
type RK4 struct {
	base
	MaxStep float64
}

// NewRK4 returns a new RK4 propagator.
func NewRK4(maxStep float64) (*RK4, error) {
	if maxStep <= 0 {
		return nil, fmt.Errorf("%w: RK4 step must be positive", missionseq.ErrConfig)
	}
	return &RK4{MaxStep: maxStep}, nil
}

// Name implements the Propagator interface.
func (r *RK4) Name() string {
	return "RK4"
}

// Initialize implements the Propagator interface.
func (r *RK4) Initialize(model Derivative, state []float64) error {
	return r.initialize(model, state)
}

// Step implements the Propagator interface.
func (r *RK4) Step(dt float64) error {
	if err := r.ready(); err != nil {
		return err
	}
	if dt == 0 {
		return nil
	}
	n := math.Ceil(math.Abs(dt)/r.MaxStep - 1e-12)
	if n < 1 {
		n = 1
	}
	h := dt / n
	for i := 0; i < int(n); i++ {
		newState, err := r.step(h)
		if err != nil {
			return err
		}
		r.state = newState
		r.elapsed += h
	}
	return nil
}

func (r *RK4) step(h float64) ([]float64, error) {
	const (
		half     = 1 / 2.0
		oneSixth = 1 / 6.0
		oneThird = 1 / 3.0
	)
	state := r.state
	xi := r.elapsed
	halfStep := h * half
	newState := make([]float64, len(state))
	k1 := make([]float64, len(state))
	//k2, k3, k4 are used as buffers AND result variables.
	k2 := make([]float64, len(state))
	k3 := make([]float64, len(state))
	k4 := make([]float64, len(state))
	tState := make([]float64, len(state))

	f, err := r.model.GetDerivatives(state, xi, 1)
	if err != nil {
		return nil, err
	}
	for i, y := range f {
		k1[i] = y * h
		tState[i] = state[i] + k1[i]*half
	}
	if f, err = r.model.GetDerivatives(tState, xi+halfStep, 1); err != nil {
		return nil, err
	}
	for i, y := range f {
		k2[i] = y * h
		tState[i] = state[i] + k2[i]*half
	}
	if f, err = r.model.GetDerivatives(tState, xi+halfStep, 1); err != nil {
		return nil, err
	}
	for i, y := range f {
		k3[i] = y * h
		tState[i] = state[i] + k3[i]
	}
	if f, err = r.model.GetDerivatives(tState, xi+h, 1); err != nil {
		return nil, err
	}
	for i, y := range f {
		k4[i] = y * h
		newState[i] = state[i] + oneSixth*(k1[i]+k4[i]) + oneThird*(k2[i]+k3[i])
	}
	return newState, nil
}

// Clone implements the Propagator interface.
func (r *RK4) Clone() Propagator {
	return &RK4{MaxStep: r.MaxStep}
}

// Package integrator advances a state vector through a derivative model by exactly the requested
// time, so that a propagation can step, roll back and step again.
package integrator

import (
	"fmt"

	"github.com/ChristopherRabotin/missionseq"
)

// Derivative is the model being integrated, e.g. a force model.
type Derivative interface {
	Dimension() int
	// GetDerivatives returns the derivatives of the state dt seconds after the reference epoch.
	GetDerivatives(state []float64, dt float64, order int) ([]float64, error)
	// EstimateError normalizes the difference of two embedded solutions of a step.
	EstimateError(diffs, answer, start []float64) float64
}

// Propagator integrates a Derivative.
type Propagator interface {
	Name() string
	Initialize(model Derivative, state []float64) error
	// Step advances the state by exactly dt seconds, which may be negative.
	Step(dt float64) error
	// State returns a copy of the current state.
	State() []float64
	// SetState overwrites the state and the elapsed time since the reference epoch.
	SetState(state []float64, elapsed float64) error
	// Elapsed returns the time in seconds since the reference epoch.
	Elapsed() float64
	// Clone returns an uninitialized propagator of the same settings.
	Clone() Propagator
}

// New returns the propagator of the given name configured from the propagation settings.
func New(name string, cfg missionseq.PropagationConfig) (Propagator, error) {
	switch name {
	case "RK4", "rk4":
		return NewRK4(cfg.Step.Seconds())
	case "RKF45", "rkf45", "":
		return NewRKF45(cfg.Accuracy, cfg.MinStep.Seconds(), cfg.MaxStep.Seconds(), cfg.MaxAttempts)
	default:
		return nil, fmt.Errorf("%w: unknown propagator '%s'", missionseq.ErrConfig, name)
	}
}

// base holds what every propagator shares.
type base struct {
	model   Derivative
	state   []float64
	elapsed float64
}

func (b *base) initialize(model Derivative, state []float64) error {
	if model == nil {
		return fmt.Errorf("%w: nil derivative model", missionseq.ErrStructure)
	}
	if model.Dimension() != len(state) {
		return fmt.Errorf("%w: state of size %d for a model of size %d", missionseq.ErrStructure, len(state), model.Dimension())
	}
	b.model = model
	b.state = append([]float64(nil), state...)
	b.elapsed = 0
	return nil
}

func (b *base) ready() error {
	if b.model == nil {
		return fmt.Errorf("%w: propagator not initialized", missionseq.ErrStructure)
	}
	return nil
}

// State implements the Propagator interface.
func (b *base) State() []float64 {
	return append([]float64(nil), b.state...)
}

// SetState implements the Propagator interface.
func (b *base) SetState(state []float64, elapsed float64) error {
	if len(state) != len(b.state) {
		return fmt.Errorf("%w: state of size %d for a propagator of size %d", missionseq.ErrStructure, len(state), len(b.state))
	}
	copy(b.state, state)
	b.elapsed = elapsed
	return nil
}

// Elapsed implements the Propagator interface.
func (b *base) Elapsed() float64 {
	return b.elapsed
}

package integrator

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/missionseq"
)

// Fehlberg 4(5) tableau.
var (
	rkfC = [6]float64{0, 1 / 4., 3 / 8., 12 / 13., 1, 1 / 2.}
	rkfA = [6][5]float64{
		{},
		{1 / 4.},
		{3 / 32., 9 / 32.},
		{1932 / 2197., -7200 / 2197., 7296 / 2197.},
		{439 / 216., -8, 3680 / 513., -845 / 4104.},
		{-8 / 27., 2, -3544 / 2565., 1859 / 4104., -11 / 40.},
	}
	rkfB4 = [6]float64{25 / 216., 0, 1408 / 2565., 2197 / 4104., -1 / 5., 0}
	rkfB5 = [6]float64{16 / 135., 0, 6656 / 12825., 28561 / 56430., -9 / 50., 2 / 55.}
)

// RKF45 is an adaptive Runge Kutta Fehlberg propagator. Each Step covers exactly the requested
// time with as many accepted substeps as the accuracy requires.
type RKF45 struct {
	base
	Accuracy         float64
	MinStep, MaxStep float64
	MaxAttempts      int
	h                float64 // last accepted step size proposal
}

// NewRKF45 returns a new adaptive propagator.
func NewRKF45(accuracy, minStep, maxStep float64, maxAttempts int) (*RKF45, error) {
	if accuracy <= 0 || minStep <= 0 || maxStep < minStep || maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: invalid RKF45 settings (accuracy=%g, steps=[%g, %g], attempts=%d)", missionseq.ErrConfig, accuracy, minStep, maxStep, maxAttempts)
	}
	return &RKF45{Accuracy: accuracy, MinStep: minStep, MaxStep: maxStep, MaxAttempts: maxAttempts}, nil
}

// Name implements the Propagator interface.
func (r *RKF45) Name() string {
	return "RKF45"
}

// Initialize implements the Propagator interface.
func (r *RKF45) Initialize(model Derivative, state []float64) error {
	r.h = 0
	return r.initialize(model, state)
}

// Step implements the Propagator interface.
func (r *RKF45) Step(dt float64) error {
	if err := r.ready(); err != nil {
		return err
	}
	if dt == 0 {
		return nil
	}
	dir := math.Copysign(1, dt)
	target := r.elapsed + dt
	proposal := math.Abs(r.h)
	if proposal == 0 || proposal > r.MaxStep {
		proposal = math.Min(math.Abs(dt), r.MaxStep)
	}
	attempts := 0
	for {
		remaining := math.Abs(target - r.elapsed)
		if remaining <= 1e-12*math.Max(1, math.Abs(target)) {
			break
		}
		h := math.Min(proposal, remaining)
		last := h == remaining
		answer, diffs, err := r.trial(dir * h)
		if err != nil {
			return err
		}
		errEst := r.model.EstimateError(diffs, answer, r.state)
		if errEst <= r.Accuracy {
			r.state = answer
			if last {
				r.elapsed = target
			} else {
				r.elapsed += dir * h
			}
			attempts = 0
			grow := 5.0
			if errEst > 0 {
				grow = math.Min(5, math.Max(1, 0.9*math.Pow(r.Accuracy/errEst, 0.2)))
			}
			if !last || h == proposal {
				proposal = math.Min(h*grow, r.MaxStep)
			}
			continue
		}
		attempts++
		if attempts >= r.MaxAttempts || h <= r.MinStep {
			return fmt.Errorf("%w: failed to complete step of %g s at %g s (error %g after %d attempts)", missionseq.ErrNumerical, dt, r.elapsed, errEst, attempts)
		}
		proposal = math.Max(h*math.Max(0.1, 0.9*math.Pow(r.Accuracy/errEst, 0.25)), r.MinStep)
	}
	r.h = proposal
	return nil
}

// trial returns the fifth order solution of a step of h seconds and its difference with the
// embedded fourth order solution.
func (r *RKF45) trial(h float64) (answer, diffs []float64, err error) {
	n := len(r.state)
	var k [6][]float64
	tmp := make([]float64, n)
	for s := 0; s < 6; s++ {
		for i := 0; i < n; i++ {
			tmp[i] = r.state[i]
			for j := 0; j < s; j++ {
				tmp[i] += h * rkfA[s][j] * k[j][i]
			}
		}
		if k[s], err = r.model.GetDerivatives(tmp, r.elapsed+rkfC[s]*h, 1); err != nil {
			return nil, nil, err
		}
	}
	answer = make([]float64, n)
	diffs = make([]float64, n)
	for i := 0; i < n; i++ {
		var y4, y5 float64
		for s := 0; s < 6; s++ {
			y4 += rkfB4[s] * k[s][i]
			y5 += rkfB5[s] * k[s][i]
		}
		answer[i] = r.state[i] + h*y5
		diffs[i] = h * (y5 - y4)
	}
	return answer, diffs, nil
}

// Clone implements the Propagator interface.
func (r *RKF45) Clone() Propagator {
	return &RKF45{Accuracy: r.Accuracy, MinStep: r.MinStep, MaxStep: r.MaxStep, MaxAttempts: r.MaxAttempts}
}

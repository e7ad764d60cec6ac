// Package event detects mission events: zero crossings of scalar functions of the participant
// states, located by a bracketing root finder during propagation.
package event

import (
	"fmt"
	"math"
	"time"

	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/ChristopherRabotin/missionseq/dynamics"
	"github.com/ChristopherRabotin/missionseq/ephem"
)

// Sample is one evaluation of an event function.
type Sample struct {
	Epoch      time.Time
	Value      float64
	Derivative float64 // time derivative of the value, per second
}

// Function is a scalar, differentiable function of the Cartesian states of the locator targets
// (relative to the propagation origin) whose zero crossings are events.
type Function interface {
	// Name is unique within a locator.
	Name() string
	// Type is the kind of event recorded, e.g. Umbra.
	Type() string
	Evaluate(epoch time.Time, states [][]float64) (value, derivative float64, err error)
	// Boundary names the crossing, rising being a crossing from negative to positive values.
	Boundary(rising bool) string
}

// ShadowKind selects the shadow cone of a Shadow function.
type ShadowKind uint8

const (
	// Umbra is the full shadow.
	Umbra ShadowKind = iota + 1
	// Penumbra is the partial shadow, which includes the umbra.
	Penumbra
)

func (k ShadowKind) String() string {
	switch k {
	case Umbra:
		return "Umbra"
	case Penumbra:
		return "Penumbra"
	}
	panic("cannot stringify unknown shadow kind")
}

const shadowDiffStep = 1.0 // seconds, central difference along the velocity

// Shadow is the conical shadow of the occulting body, which is the propagation origin. Its value
// is the apparent angle between the Sun and the occulting body, minus the angle at which the
// shadow starts: it is negative inside the shadow.
type Shadow struct {
	Kind      ShadowKind
	Occulting bodies.CelestialObject
	eph       ephem.Provider
}

// NewShadow returns a shadow function of the provided kind.
func NewShadow(kind ShadowKind, occulting bodies.CelestialObject, eph ephem.Provider) (*Shadow, error) {
	if eph == nil {
		return nil, fmt.Errorf("%s requires an ephemeris", kind)
	}
	return &Shadow{Kind: kind, Occulting: occulting, eph: eph}, nil
}

// Name implements the Function interface.
func (s *Shadow) Name() string {
	return s.Kind.String() + "." + s.Occulting.Name
}

// Type implements the Function interface.
func (s *Shadow) Type() string {
	return s.Kind.String()
}

// Boundary implements the Function interface.
func (s *Shadow) Boundary(rising bool) string {
	if rising {
		return "Exit"
	}
	return "Entry"
}

// Evaluate implements the Function interface.
func (s *Shadow) Evaluate(epoch time.Time, states [][]float64) (float64, float64, error) {
	if len(states) == 0 {
		return 0, 0, fmt.Errorf("%s needs a target state", s.Name())
	}
	sun, err := s.eph.Position(bodies.Sun, s.Occulting, epoch)
	if err != nil {
		return 0, 0, err
	}
	r, v := states[0][:3], states[0][3:6]
	value := s.angle(sun, r)
	ahead := make([]float64, 3)
	behind := make([]float64, 3)
	for i := 0; i < 3; i++ {
		ahead[i] = r[i] + v[i]*shadowDiffStep
		behind[i] = r[i] - v[i]*shadowDiffStep
	}
	deriv := (s.angle(sun, ahead) - s.angle(sun, behind)) / (2 * shadowDiffStep)
	return value, deriv, nil
}

func (s *Shadow) angle(sun, r []float64) float64 {
	toSun := dynamics.Sub(sun, r)
	toBody := []float64{-r[0], -r[1], -r[2]}
	dSun, dBody := dynamics.Norm(toSun), dynamics.Norm(toBody)
	αs := math.Asin(math.Min(1, bodies.Sun.Radius/dSun))
	αb := math.Asin(math.Min(1, s.Occulting.Radius/dBody))
	θ := math.Acos(math.Max(-1, math.Min(1, dynamics.Dot(toSun, toBody)/(dSun*dBody))))
	if s.Kind == Umbra {
		return θ - (αb - αs)
	}
	return θ - (αb + αs)
}

// Apsis crosses zero at the apsides: its value is r·v, rising at periapsis.
type Apsis struct {
	Body bodies.CelestialObject
}

// Name implements the Function interface.
func (a *Apsis) Name() string {
	return "Apsis." + a.Body.Name
}

// Type implements the Function interface.
func (a *Apsis) Type() string {
	return "Apsis"
}

// Boundary implements the Function interface.
func (a *Apsis) Boundary(rising bool) string {
	if rising {
		return "Periapsis"
	}
	return "Apoapsis"
}

// Evaluate implements the Function interface.
func (a *Apsis) Evaluate(epoch time.Time, states [][]float64) (float64, float64, error) {
	if len(states) == 0 {
		return 0, 0, fmt.Errorf("%s needs a target state", a.Name())
	}
	r, v := states[0][:3], states[0][3:6]
	vNorm := dynamics.Norm(v)
	// d(r·v)/dt = v·v + r·a with the two body acceleration.
	return dynamics.Dot(r, v), vNorm*vNorm - a.Body.GM()/dynamics.Norm(r), nil
}

// Altitude crosses zero when the target passes the threshold altitude above the body radius.
type Altitude struct {
	Body      bodies.CelestialObject
	Threshold float64 // km
}

// Name implements the Function interface.
func (a *Altitude) Name() string {
	return fmt.Sprintf("Altitude.%s.%g", a.Body.Name, a.Threshold)
}

// Type implements the Function interface.
func (a *Altitude) Type() string {
	return "Altitude"
}

// Boundary implements the Function interface.
func (a *Altitude) Boundary(rising bool) string {
	if rising {
		return "Ascending"
	}
	return "Descending"
}

// Evaluate implements the Function interface.
func (a *Altitude) Evaluate(epoch time.Time, states [][]float64) (float64, float64, error) {
	if len(states) == 0 {
		return 0, 0, fmt.Errorf("%s needs a target state", a.Name())
	}
	r, v := states[0][:3], states[0][3:6]
	rNorm := dynamics.Norm(r)
	return rNorm - a.Body.Radius - a.Threshold, dynamics.Dot(r, v) / rNorm, nil
}

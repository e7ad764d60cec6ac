// Package object holds the participants of a mission and the store they are looked up from.
package object

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/ChristopherRabotin/missionseq/dynamics"
	"github.com/soniakeys/meeus/v3/julian"
)

// Spacecraft is a propagated vehicle.
type Spacecraft struct {
	name     string
	Epoch    time.Time
	State    []float64 // position (km) and velocity (km/s) relative to the origin
	Origin   bodies.CelestialObject
	DryMass  float64 // kg
	FuelMass float64 // kg
	Cd       float64
	Area     float64 // drag area in m^2
}

// NewSpacecraft returns a spacecraft at the provided state.
func NewSpacecraft(name string, epoch time.Time, state []float64, origin bodies.CelestialObject, dryMass, fuelMass float64) (*Spacecraft, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: spacecraft needs a name", missionseq.ErrStructure)
	}
	if len(state) != 6 {
		return nil, fmt.Errorf("%w: spacecraft %s needs six state elements, got %d", missionseq.ErrStructure, name, len(state))
	}
	if dryMass <= 0 || fuelMass < 0 {
		return nil, fmt.Errorf("%w: spacecraft %s has non-physical masses (dry=%f kg, fuel=%f kg)", missionseq.ErrNumerical, name, dryMass, fuelMass)
	}
	return &Spacecraft{
		name:     name,
		Epoch:    epoch,
		State:    append([]float64(nil), state...),
		Origin:   origin,
		DryMass:  dryMass,
		FuelMass: fuelMass,
		Cd:       2.2,
		Area:     1,
	}, nil
}

// Name implements the dynamics.Propagatable interface.
func (sc *Spacecraft) Name() string {
	return sc.name
}

// String implements the Stringer interface.
func (sc *Spacecraft) String() string {
	return fmt.Sprintf("%s @ %s: %v (%s) %.3f kg", sc.name, sc.Epoch.Format(time.RFC3339), sc.State, sc.Origin.Name, sc.TotalMass())
}

// TotalMass implements the dynamics.Vehicle interface.
func (sc *Spacecraft) TotalMass() float64 {
	return sc.DryMass + sc.FuelMass
}

// DragCoefficient implements the dynamics.Vehicle interface.
func (sc *Spacecraft) DragCoefficient() float64 {
	return sc.Cd
}

// DragArea implements the dynamics.Vehicle interface.
func (sc *Spacecraft) DragArea() float64 {
	return sc.Area
}

// Elements implements the dynamics.Propagatable interface.
func (sc *Spacecraft) Elements(t dynamics.ElementType) ([]float64, error) {
	switch t {
	case dynamics.CartesianState:
		return append([]float64(nil), sc.State...), nil
	case dynamics.MassState:
		return []float64{sc.TotalMass()}, nil
	default:
		return nil, fmt.Errorf("spacecraft %s has no %s elements", sc.name, t)
	}
}

// SetElements implements the dynamics.Propagatable interface.
func (sc *Spacecraft) SetElements(t dynamics.ElementType, values []float64) error {
	switch t {
	case dynamics.CartesianState:
		if len(values) != 6 {
			return fmt.Errorf("spacecraft %s needs six state elements, got %d", sc.name, len(values))
		}
		copy(sc.State, values)
	case dynamics.MassState:
		if len(values) != 1 {
			return fmt.Errorf("spacecraft %s has a single mass element", sc.name)
		}
		if fuel := values[0] - sc.DryMass; fuel < 0 {
			return fmt.Errorf("%w: spacecraft %s ran out of fuel (%f kg)", missionseq.ErrNumerical, sc.name, fuel)
		}
		sc.FuelMass = values[0] - sc.DryMass
	default:
		return fmt.Errorf("spacecraft %s has no %s elements", sc.name, t)
	}
	return nil
}

// Clone returns a deep copy of the spacecraft.
func (sc *Spacecraft) Clone() *Spacecraft {
	c := *sc
	c.State = append([]float64(nil), sc.State...)
	return &c
}

// Restore copies the mutable state of the provided snapshot into this spacecraft.
func (sc *Spacecraft) Restore(snapshot *Spacecraft) {
	sc.Epoch = snapshot.Epoch
	copy(sc.State, snapshot.State)
	sc.FuelMass = snapshot.FuelMass
	sc.Origin = snapshot.Origin
}

// Parameter returns a named parameter of the spacecraft, as used in assignments and conditions.
func (sc *Spacecraft) Parameter(name string) (float64, error) {
	switch strings.ToUpper(name) {
	case "X":
		return sc.State[0], nil
	case "Y":
		return sc.State[1], nil
	case "Z":
		return sc.State[2], nil
	case "VX":
		return sc.State[3], nil
	case "VY":
		return sc.State[4], nil
	case "VZ":
		return sc.State[5], nil
	case "RMAG":
		return dynamics.Norm(sc.State[:3]), nil
	case "VMAG":
		return dynamics.Norm(sc.State[3:]), nil
	case "ALTITUDE":
		return dynamics.Norm(sc.State[:3]) - sc.Origin.Radius, nil
	case "MASS":
		return sc.TotalMass(), nil
	case "FUEL":
		return sc.FuelMass, nil
	case "EPOCH", "JD":
		return julian.TimeToJD(sc.Epoch), nil
	case "ENERGY":
		r, v := dynamics.Norm(sc.State[:3]), dynamics.Norm(sc.State[3:])
		return v*v/2 - sc.Origin.GM()/r, nil
	case "SMA":
		r, v := dynamics.Norm(sc.State[:3]), dynamics.Norm(sc.State[3:])
		ξ := v*v/2 - sc.Origin.GM()/r
		if ξ == 0 {
			return math.Inf(1), nil
		}
		return -sc.Origin.GM() / (2 * ξ), nil
	case "ECC", "INC", "RAAN", "AOP", "TA", "APOAPSIS", "PERIAPSIS", "PERIOD":
		o, err := OrbitFromState(sc.State, sc.Origin.GM())
		if err != nil {
			return 0, fmt.Errorf("%s of %s: %w", name, sc.name, err)
		}
		return map[string]float64{
			"ECC": o.ECC, "INC": o.INC, "RAAN": o.RAAN, "AOP": o.AOP, "TA": o.TA,
			"APOAPSIS": o.Apoapsis(), "PERIAPSIS": o.Periapsis(), "PERIOD": o.Period(sc.Origin.GM()),
		}[strings.ToUpper(name)], nil
	default:
		return 0, fmt.Errorf("unknown parameter '%s' of %s", name, sc.name)
	}
}

// SetParameter sets a writable parameter of the spacecraft.
func (sc *Spacecraft) SetParameter(name string, value float64) error {
	switch strings.ToUpper(name) {
	case "X", "Y", "Z", "VX", "VY", "VZ":
		idx := map[string]int{"X": 0, "Y": 1, "Z": 2, "VX": 3, "VY": 4, "VZ": 5}[strings.ToUpper(name)]
		sc.State[idx] = value
	case "FUEL":
		if value < 0 {
			return fmt.Errorf("%w: negative fuel mass %f kg for %s", missionseq.ErrNumerical, value, sc.name)
		}
		sc.FuelMass = value
	case "SMA", "ECC", "INC", "RAAN", "AOP", "TA":
		return sc.setOrbital(strings.ToUpper(name), value)
	case "CD":
		sc.Cd = value
	case "AREA":
		sc.Area = value
	default:
		return fmt.Errorf("parameter '%s' of %s is not writable", name, sc.name)
	}
	return nil
}

// setOrbital changes one orbital element and keeps the others.
func (sc *Spacecraft) setOrbital(name string, value float64) error {
	o, err := OrbitFromState(sc.State, sc.Origin.GM())
	if err != nil {
		return fmt.Errorf("setting %s of %s: %w", name, sc.name, err)
	}
	switch name {
	case "SMA":
		o.SMA = value
	case "ECC":
		o.ECC = value
	case "INC":
		o.INC = value
	case "RAAN":
		o.RAAN = value
	case "AOP":
		o.AOP = value
	case "TA":
		o.TA = value
	}
	state, err := o.State(sc.Origin.GM())
	if err != nil {
		return fmt.Errorf("setting %s of %s: %w", name, sc.name, err)
	}
	copy(sc.State, state)
	return nil
}

var _ dynamics.Vehicle = (*Spacecraft)(nil)

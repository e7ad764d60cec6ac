package dynamics

import (
	"fmt"
	"math"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
)

// Vehicle is a propagated entity with the physical properties used by drag and burns.
type Vehicle interface {
	Propagatable
	TotalMass() float64       // kg
	DragCoefficient() float64 // Cd
	DragArea() float64        // m^2
}

// massSlots resolves the mass of each Cartesian entity, from the state when mass is propagated.
type massSlots struct {
	index []int
}

func (m *massSlots) resolve(layout []Element, owners []Propagatable) {
	m.index = make([]int, len(owners))
	for k, o := range owners {
		m.index[k] = Offset(layout, o, MassState)
	}
}

func (m *massSlots) mass(state []float64, k int, owner Propagatable) (float64, error) {
	var mass float64
	if k < len(m.index) && m.index[k] >= 0 {
		mass = state[m.index[k]]
	} else if v, ok := owner.(Vehicle); ok {
		mass = v.TotalMass()
	}
	if mass <= 0 {
		return 0, fmt.Errorf("%w: %s has a nonpositive mass (%f kg)", missionseq.ErrNumerical, owner.Name(), mass)
	}
	return mass, nil
}

// ExponentialDrag is the atmospheric drag of an exponentially decaying, co-rotating atmosphere.
type ExponentialDrag struct {
	cartesianStarts
	massSlots
	body bodies.CelestialObject
	ρ0   float64 // reference density in kg/m^3
	h0   float64 // reference altitude in km
	H    float64 // scale height in km
}

// NewExponentialDrag returns an exponential atmosphere about the provided body.
func NewExponentialDrag(body bodies.CelestialObject, ρ0, h0, H float64) (*ExponentialDrag, error) {
	if ρ0 <= 0 || H <= 0 {
		return nil, fmt.Errorf("invalid atmosphere (ρ0=%g, H=%g)", ρ0, H)
	}
	return &ExponentialDrag{body: body, ρ0: ρ0, h0: h0, H: H}, nil
}

// NewEarthDrag returns the exponential atmosphere of the Earth referenced at 700 km.
func NewEarthDrag() *ExponentialDrag {
	d, _ := NewExponentialDrag(bodies.Earth, 3.614e-13, 700, 88.667)
	return d
}

// Name implements the PhysicalModel interface.
func (d *ExponentialDrag) Name() string {
	return "Drag." + d.body.Name
}

// Kind implements the PhysicalModel interface.
func (d *ExponentialDrag) Kind() ForceKind {
	return AtmosphericDrag
}

// Body implements the PhysicalModel interface.
func (d *ExponentialDrag) Body() string {
	return d.body.Name
}

// SetLayout implements the LayoutAware interface.
func (d *ExponentialDrag) SetLayout(layout []Element) {
	d.resolve(layout, d.owners)
}

// Density returns the atmospheric density in kg/m^3 at the provided radius in km.
func (d *ExponentialDrag) Density(r float64) float64 {
	return d.ρ0 * math.Exp(-(r-d.body.Radius-d.h0)/d.H)
}

// Derivatives implements the PhysicalModel interface.
func (d *ExponentialDrag) Derivatives(state []float64, epoch time.Time, order int, deriv []float64) error {
	ω := []float64{0, 0, d.body.Rotation}
	for k, s := range d.starts {
		veh, ok := d.owners[k].(Vehicle)
		if !ok {
			continue
		}
		mass, err := d.mass(state, k, d.owners[k])
		if err != nil {
			return err
		}
		r := state[s : s+3]
		v := state[s+3 : s+6]
		vRel := Sub(v, Cross(ω, r))
		vNorm := Norm(vRel)
		// Areas in m^2 and velocities in km/s: the factor 1e3 yields km/s^2.
		b := -0.5 * d.Density(Norm(r)) * veh.DragCoefficient() * veh.DragArea() / mass * vNorm * 1e3
		for i := 0; i < 3; i++ {
			deriv[s+3+i] = b * vRel[i]
		}
	}
	return nil
}

// Clone implements the PhysicalModel interface.
func (d *ExponentialDrag) Clone() PhysicalModel {
	c := *d
	c.starts = append([]int(nil), d.starts...)
	c.index = append([]int(nil), d.index...)
	return &c
}

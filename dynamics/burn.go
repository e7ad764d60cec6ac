package dynamics

import (
	"fmt"
	"time"
)

const g0 = 9.80665 // standard gravity in m/s^2

// Thruster is a thruster of constant thrust and specific impulse.
type Thruster struct {
	Thrust float64 // N
	Isp    float64 // s
}

// MassFlow returns the mass flow rate in kg/s, which is negative.
func (t Thruster) MassFlow() float64 {
	return -t.Thrust / (t.Isp * g0)
}

// Direction is the thrust direction law of a finite burn.
type Direction uint8

const (
	// Tangential thrusts along the velocity.
	Tangential Direction = iota + 1
	// AntiTangential thrusts against the velocity.
	AntiTangential
	// Radial thrusts along the position.
	Radial
	// Normal thrusts along the orbital momentum.
	Normal
)

func (d Direction) String() string {
	switch d {
	case Tangential:
		return "tangential"
	case AntiTangential:
		return "antitangential"
	case Radial:
		return "radial"
	case Normal:
		return "normal"
	}
	panic("cannot stringify unknown direction")
}

// DirectionFromString returns the direction law from its name.
func DirectionFromString(name string) (Direction, error) {
	for _, d := range []Direction{Tangential, AntiTangential, Radial, Normal} {
		if d.String() == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown thrust direction '%s'", name)
}

func (d Direction) unit(r, v []float64) []float64 {
	switch d {
	case AntiTangential:
		u := Unit(v)
		return []float64{-u[0], -u[1], -u[2]}
	case Radial:
		return Unit(r)
	case Normal:
		return Unit(Cross(r, v))
	default:
		return Unit(v)
	}
}

// FiniteBurn is a transient force of one thruster, firing while active.
type FiniteBurn struct {
	cartesianStarts
	massSlots
	name      string
	thruster  Thruster
	direction Direction
	target    string // name of the firing entity, all entities if empty
	active    bool
}

// NewFiniteBurn returns an inactive burn.
func NewFiniteBurn(name string, thruster Thruster, direction Direction, target string) (*FiniteBurn, error) {
	if thruster.Thrust <= 0 || thruster.Isp <= 0 {
		return nil, fmt.Errorf("invalid thruster (thrust=%g N, isp=%g s)", thruster.Thrust, thruster.Isp)
	}
	return &FiniteBurn{name: name, thruster: thruster, direction: direction, target: target}, nil
}

// Name implements the PhysicalModel interface.
func (b *FiniteBurn) Name() string {
	return b.name
}

// Kind implements the PhysicalModel interface.
func (b *FiniteBurn) Kind() ForceKind {
	return TransientForce
}

// Body implements the PhysicalModel interface.
func (b *FiniteBurn) Body() string {
	return ""
}

// IsActive implements the Transient interface.
func (b *FiniteBurn) IsActive() bool {
	return b.active
}

// SetActive turns the burn on or off.
func (b *FiniteBurn) SetActive(active bool) {
	b.active = active
}

// SupportsElement implements the PhysicalModel interface.
func (b *FiniteBurn) SupportsElement(t ElementType) bool {
	return t == CartesianState || t == MassState
}

// SetStart implements the PhysicalModel interface.
func (b *FiniteBurn) SetStart(t ElementType, start, count int, owners []Propagatable) error {
	if t == MassState {
		// Mass slots are resolved from the complete layout.
		return nil
	}
	return b.cartesianStarts.SetStart(t, start, count, owners)
}

// SetLayout implements the LayoutAware interface.
func (b *FiniteBurn) SetLayout(layout []Element) {
	b.resolve(layout, b.owners)
}

// Derivatives implements the PhysicalModel interface.
func (b *FiniteBurn) Derivatives(state []float64, epoch time.Time, order int, deriv []float64) error {
	for k, s := range b.starts {
		owner := b.owners[k]
		if b.target != "" && owner.Name() != b.target {
			continue
		}
		mass, err := b.mass(state, k, owner)
		if err != nil {
			return fmt.Errorf("%w: cannot fire %s", err, b.name)
		}
		u := b.direction.unit(state[s:s+3], state[s+3:s+6])
		acc := b.thruster.Thrust / mass / 1e3 // km/s^2
		for i := 0; i < 3; i++ {
			deriv[s+3+i] = acc * u[i]
		}
		if b.index[k] >= 0 {
			deriv[b.index[k]] = b.thruster.MassFlow()
		}
	}
	return nil
}

// Clone implements the PhysicalModel interface.
func (b *FiniteBurn) Clone() PhysicalModel {
	c := *b
	c.starts = append([]int(nil), b.starts...)
	c.index = append([]int(nil), b.index...)
	return &c
}

var _ Transient = (*FiniteBurn)(nil)

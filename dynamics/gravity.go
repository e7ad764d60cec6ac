package dynamics

import (
	"fmt"
	"math"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/ChristopherRabotin/missionseq/ephem"
)

// cartesianStarts is embedded by the models acting on Cartesian elements.
type cartesianStarts struct {
	starts []int
	owners []Propagatable
}

func (c *cartesianStarts) SupportsElement(t ElementType) bool {
	return t == CartesianState
}

func (c *cartesianStarts) SetStart(t ElementType, start, count int, owners []Propagatable) error {
	if t != CartesianState {
		return fmt.Errorf("unsupported element %s", t)
	}
	c.starts = make([]int, count)
	for k := range c.starts {
		c.starts[k] = start + 6*k
	}
	c.owners = owners
	return nil
}

// PointMassGravity is the gravity of a body as a point mass. When the body is the propagation
// origin, it is the primary gravity, otherwise it is a third body perturbation whose position
// relative to the origin is read from the ephemeris.
type PointMassGravity struct {
	cartesianStarts
	body, origin bodies.CelestialObject
	eph          ephem.Provider
}

// NewPointMassGravity returns the point mass gravity of body for a propagation about origin.
// The provider is only used for third bodies and may be nil for a primary gravity.
func NewPointMassGravity(body, origin bodies.CelestialObject, eph ephem.Provider) (*PointMassGravity, error) {
	if !body.Equals(origin) && eph == nil {
		return nil, fmt.Errorf("third body %s requires an ephemeris", body.Name)
	}
	return &PointMassGravity{body: body, origin: origin, eph: eph}, nil
}

// Name implements the PhysicalModel interface.
func (g *PointMassGravity) Name() string {
	return "PointMass." + g.body.Name
}

// Kind implements the PhysicalModel interface.
func (g *PointMassGravity) Kind() ForceKind {
	if g.body.Equals(g.origin) {
		return PrimaryGravity
	}
	return ThirdBodyGravity
}

// Body implements the PhysicalModel interface.
func (g *PointMassGravity) Body() string {
	return g.body.Name
}

// Derivatives implements the PhysicalModel interface.
func (g *PointMassGravity) Derivatives(state []float64, epoch time.Time, order int, deriv []float64) error {
	μ := g.body.GM()
	if g.Kind() == PrimaryGravity {
		for _, s := range g.starts {
			r := state[s : s+3]
			rNorm3 := math.Pow(Norm(r), 3)
			if rNorm3 == 0 {
				return fmt.Errorf("%w: entity at the center of %s", missionseq.ErrNumerical, g.body.Name)
			}
			for i := 0; i < 3; i++ {
				deriv[s+3+i] = -μ * r[i] / rNorm3
			}
		}
		return nil
	}
	relPertR, err := g.eph.Position(g.body, g.origin, epoch)
	if err != nil {
		return err
	}
	relPertRNorm3 := math.Pow(Norm(relPertR), 3)
	for _, s := range g.starts {
		scPert := Sub(relPertR, state[s:s+3]) // r_{i/sc} of spacecraft to perturbing body.
		scPertNorm3 := math.Pow(Norm(scPert), 3)
		for i := 0; i < 3; i++ {
			deriv[s+3+i] = μ * (scPert[i]/scPertNorm3 - relPertR[i]/relPertRNorm3)
		}
	}
	return nil
}

// Clone implements the PhysicalModel interface.
func (g *PointMassGravity) Clone() PhysicalModel {
	c := *g
	c.starts = append([]int(nil), g.starts...)
	return &c
}

// ZonalHarmonics is the J2 (and optionally J3) perturbation of the body, which must be the origin.
type ZonalHarmonics struct {
	cartesianStarts
	body   bodies.CelestialObject
	degree uint8
}

// NewZonalHarmonics returns the zonal harmonics up to the provided degree (2 or 3).
func NewZonalHarmonics(body bodies.CelestialObject, degree uint8) (*ZonalHarmonics, error) {
	if degree < 2 || degree > 3 {
		return nil, fmt.Errorf("zonal harmonics of degree %d unsupported", degree)
	}
	return &ZonalHarmonics{body: body, degree: degree}, nil
}

// Name implements the PhysicalModel interface.
func (z *ZonalHarmonics) Name() string {
	return fmt.Sprintf("J%d.%s", z.degree, z.body.Name)
}

// Kind implements the PhysicalModel interface.
func (z *ZonalHarmonics) Kind() ForceKind {
	return Perturbation
}

// Body implements the PhysicalModel interface.
func (z *ZonalHarmonics) Body() string {
	return z.body.Name
}

// Derivatives implements the PhysicalModel interface.
func (z *ZonalHarmonics) Derivatives(state []float64, epoch time.Time, order int, deriv []float64) error {
	μ := z.body.GM()
	for _, s := range z.starts {
		R := state[s : s+3]
		x := R[0]
		y := R[1]
		z2 := math.Pow(R[2], 2)
		z3 := math.Pow(R[2], 3)
		r2 := math.Pow(R[0], 2) + math.Pow(R[1], 2) + z2
		r252 := math.Pow(r2, 5/2.)
		r272 := math.Pow(r2, 7/2.)
		accJ2 := (3 / 2.) * z.body.J(2) * math.Pow(z.body.Radius, 2) * μ
		deriv[s+3] = accJ2 * (5*x*z2/r272 - x/r252)
		deriv[s+4] = accJ2 * (5*y*z2/r272 - y/r252)
		deriv[s+5] = accJ2 * (5*z3/r272 - 3*R[2]/r252)
		if z.degree >= 3 {
			r292 := math.Pow(r2, 9/2.)
			z4 := math.Pow(R[2], 4)
			accJ3 := z.body.J(3) * math.Pow(z.body.Radius, 3) * μ
			deriv[s+3] += (5 / 2.) * accJ3 * (7*x*z3/r292 - 3*x*R[2]/r272)
			deriv[s+4] += (5 / 2.) * accJ3 * (7*y*z3/r292 - 3*y*R[2]/r272)
			deriv[s+5] += 0.5 * accJ3 * (35*z4/r292 - 30*z2/r272 + 3/r252)
		}
	}
	return nil
}

// Clone implements the PhysicalModel interface.
func (z *ZonalHarmonics) Clone() PhysicalModel {
	c := *z
	c.starts = append([]int(nil), z.starts...)
	return &c
}

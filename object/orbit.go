package object

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/dynamics"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

const (
	eccentricityε = 5e-5
	angleε        = (5e-3 / 360) * (2 * math.Pi) // 0.005 degrees
)

// Orbit is the classical orbital element set of a Cartesian state. Angles are in degrees.
// For circular orbits AOP is zero and TA is the argument of latitude; for equatorial
// orbits RAAN is zero and AOP is the longitude of periapsis.
type Orbit struct {
	SMA, ECC, INC, RAAN, AOP, TA float64
}

// OrbitFromState returns the orbital elements of the provided state (Vallado's RV2COE).
func OrbitFromState(state []float64, gm float64) (Orbit, error) {
	R, V := state[:3], state[3:6]
	r, v := dynamics.Norm(R), dynamics.Norm(V)
	if r == 0 {
		return Orbit{}, fmt.Errorf("%w: no orbit at the center of the origin", missionseq.ErrNumerical)
	}
	h := dynamics.Cross(R, V)
	hNorm := dynamics.Norm(h)
	if hNorm == 0 {
		return Orbit{}, fmt.Errorf("%w: rectilinear state has no orbit", missionseq.ErrNumerical)
	}
	n := []float64{-h[1], h[0], 0}
	nNorm := dynamics.Norm(n)
	rv := dynamics.Dot(R, V)
	eVec := make([]float64, 3)
	for i := 0; i < 3; i++ {
		eVec[i] = ((v*v-gm/r)*R[i] - rv*V[i]) / gm
	}
	e := dynamics.Norm(eVec)
	ξ := v*v/2 - gm/r
	a := math.Inf(1)
	if ξ != 0 {
		a = -gm / (2 * ξ)
	}
	i := acos(h[2] / hNorm)
	circular, equatorial := e < eccentricityε, nNorm/hNorm < math.Sin(angleε)

	var Ω, ω, ν float64
	if !equatorial {
		Ω = acos(n[0] / nNorm)
		if n[1] < 0 {
			Ω = 2*math.Pi - Ω
		}
	}
	switch {
	case circular && equatorial:
		// True longitude
		ν = acos(R[0] / r)
		if R[1] < 0 {
			ν = 2*math.Pi - ν
		}
	case circular:
		// Argument of latitude
		ν = acos(dynamics.Dot(n, R) / (nNorm * r))
		if R[2] < 0 {
			ν = 2*math.Pi - ν
		}
	default:
		if equatorial {
			ω = acos(eVec[0] / e)
			if eVec[1] < 0 {
				ω = 2*math.Pi - ω
			}
		} else {
			ω = acos(dynamics.Dot(n, eVec) / (nNorm * e))
			if eVec[2] < 0 {
				ω = 2*math.Pi - ω
			}
		}
		ν = acos(dynamics.Dot(eVec, R) / (e * r))
		if rv < 0 {
			ν = 2*math.Pi - ν
		}
	}
	return Orbit{SMA: a, ECC: e, INC: rad2deg(i), RAAN: rad2deg(Ω), AOP: rad2deg(ω), TA: rad2deg(ν)}, nil
}

// State returns the Cartesian state of these elements.
func (o Orbit) State(gm float64) ([]float64, error) {
	if o.ECC < 0 || (o.ECC < 1 && o.SMA <= 0) || (o.ECC > 1 && o.SMA >= 0) || scalar.EqualWithinAbs(o.ECC, 1, eccentricityε) {
		return nil, fmt.Errorf("%w: unsupported orbit (sma=%f km, ecc=%f)", missionseq.ErrNumerical, o.SMA, o.ECC)
	}
	p := o.SMA * (1 - o.ECC*o.ECC)
	sinν, cosν := math.Sincos(deg2rad(o.TA))
	denom := 1 + o.ECC*cosν
	if denom <= 0 {
		return nil, fmt.Errorf("%w: true anomaly %f outside of the hyperbola", missionseq.ErrNumerical, o.TA)
	}
	k := math.Sqrt(gm / p)
	pqw := mat.NewDense(3, 2, []float64{
		p * cosν / denom, -k * sinν,
		p * sinν / denom, k * (o.ECC + cosν),
		0, 0,
	})
	var eci mat.Dense
	eci.Mul(pqw2eci(deg2rad(o.INC), deg2rad(o.AOP), deg2rad(o.RAAN)), pqw)
	return []float64{eci.At(0, 0), eci.At(1, 0), eci.At(2, 0), eci.At(0, 1), eci.At(1, 1), eci.At(2, 1)}, nil
}

// Apoapsis returns the apoapsis radius in km.
func (o Orbit) Apoapsis() float64 {
	return o.SMA * (1 + o.ECC)
}

// Periapsis returns the periapsis radius in km.
func (o Orbit) Periapsis() float64 {
	return o.SMA * (1 - o.ECC)
}

// Period returns the orbital period in seconds, infinite for open orbits.
func (o Orbit) Period(gm float64) float64 {
	if o.ECC >= 1 {
		return math.Inf(1)
	}
	return 2 * math.Pi * math.Sqrt(math.Pow(o.SMA, 3)/gm)
}

// pqw2eci is the 3-1-3 rotation from the perifocal frame.
func pqw2eci(i, ω, Ω float64) *mat.Dense {
	si, ci := math.Sincos(i)
	sω, cω := math.Sincos(ω)
	sΩ, cΩ := math.Sincos(Ω)
	return mat.NewDense(3, 3, []float64{
		cΩ*cω - sΩ*sω*ci, -cΩ*sω - sΩ*cω*ci, sΩ * si,
		sΩ*cω + cΩ*sω*ci, cΩ*cω*ci - sΩ*sω, -cΩ * si,
		sω * si, cω * si, ci,
	})
}

// acos clamps rounding errors which would otherwise return NaN.
func acos(x float64) float64 {
	return math.Acos(math.Max(-1, math.Min(1, x)))
}

func deg2rad(a float64) float64 {
	return math.Mod(a, 360) * math.Pi / 180
}

func rad2deg(a float64) float64 {
	return math.Mod(a*180/math.Pi, 360)
}

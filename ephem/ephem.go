// Package ephem provides the positions of the celestial bodies used by third body gravity,
// eclipse events and origin shifts.
package ephem

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

// Provider returns the position in km of a target body relative to a center body, in an
// Earth equatorial frame.
type Provider interface {
	Position(target, center bodies.CelestialObject, epoch time.Time) ([]float64, error)
}

// New returns the provider selected by the configuration.
func New(cfg missionseq.EphemerisConfig) (Provider, error) {
	switch strings.ToLower(cfg.Source) {
	case "meeus", "":
		return Meeus{}, nil
	case "jpl":
		return OpenJPL(cfg.File)
	default:
		return nil, fmt.Errorf("%w: unknown ephemeris source '%s'", missionseq.ErrConfig, cfg.Source)
	}
}

// Meeus computes the geocentric positions of the Sun and the Moon from the analytical
// series of Meeus' Astronomical Algorithms. Only the Sun, the Earth and the Moon are supported.
type Meeus struct{}

// Position implements the Provider interface.
func (Meeus) Position(target, center bodies.CelestialObject, epoch time.Time) ([]float64, error) {
	jde := julian.TimeToJD(epoch)
	t, err := geocentric(target, jde)
	if err != nil {
		return nil, err
	}
	c, err := geocentric(center, jde)
	if err != nil {
		return nil, err
	}
	return []float64{t[0] - c[0], t[1] - c[1], t[2] - c[2]}, nil
}

func geocentric(body bodies.CelestialObject, jde float64) ([]float64, error) {
	ε := nutation.MeanObliquity(jde)
	switch body.Name {
	case bodies.Earth.Name:
		return []float64{0, 0, 0}, nil
	case bodies.Sun.Name:
		T := base.J2000Century(jde)
		s, _ := solar.True(T)
		return eclipticToEquatorial(s, 0, solar.Radius(T)*bodies.AU, ε), nil
	case bodies.Moon.Name:
		λ, β, Δ := moonposition.Position(jde)
		return eclipticToEquatorial(λ, β, Δ, ε), nil
	default:
		return nil, fmt.Errorf("no analytical ephemeris for %s", body.Name)
	}
}

func eclipticToEquatorial(λ, β unit.Angle, r float64, ε unit.Angle) []float64 {
	sλ, cλ := math.Sincos(λ.Rad())
	sβ, cβ := math.Sincos(β.Rad())
	sε, cε := math.Sincos(ε.Rad())
	return []float64{
		r * cβ * cλ,
		r * (cε*cβ*sλ - sε*sβ),
		r * (sε*cβ*sλ + cε*sβ),
	}
}

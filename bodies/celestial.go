// Package bodies defines the celestial objects a mission propagates around.
package bodies

import (
	"fmt"
	"strings"
)

const (
	// AU is one astronomical unit in kilometers.
	AU = 1.49597870700e8
)

// CelestialObject defines a celestial object.
type CelestialObject struct {
	Name     string
	Radius   float64 // equatorial radius in km
	μ        float64 // gravitational parameter in km^3/s^2
	J2       float64
	J3       float64
	J4       float64
	Rotation float64 // rotation rate in rad/s, used for the co-rotating atmosphere
}

// GM returns μ (which is unexported because it's a lowercase letter)
func (c CelestialObject) GM() float64 {
	return c.μ
}

// J returns the perturbing J_n factor for the provided n.
func (c CelestialObject) J(n uint8) float64 {
	switch n {
	case 2:
		return c.J2
	case 3:
		return c.J3
	case 4:
		return c.J4
	default:
		return 0.0
	}
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.μ == b.μ && c.J2 == b.J2
}

// New returns a custom celestial object, e.g. for tests or for bodies not defined here.
func New(name string, radius, μ, j2, j3, j4, rotation float64) CelestialObject {
	return CelestialObject{name, radius, μ, j2, j3, j4, rotation}
}

// FromString returns the object from its name
func FromString(name string) (CelestialObject, error) {
	switch strings.ToLower(name) {
	case "sun":
		return Sun, nil
	case "earth":
		return Earth, nil
	case "luna", "moon":
		return Moon, nil
	case "venus":
		return Venus, nil
	case "mars":
		return Mars, nil
	case "jupiter":
		return Jupiter, nil
	default:
		return CelestialObject{}, fmt.Errorf("undefined body '%s'", name)
	}
}

/* Definitions */

// Sun is our closest star.
var Sun = CelestialObject{"Sun", 695700, 1.32712440017987e11, 0, 0, 0, 2.865329607e-6}

// Earth is home.
var Earth = CelestialObject{"Earth", 6378.1363, 3.98600433e5, 1082.6269e-6, -2.5324e-6, -1.6204e-6, 7.292115146706979e-5}

// Moon is where we went.
var Moon = CelestialObject{"Luna", 1738.2, 4902.8005821478, 202.7e-6, 0, 0, 2.661699538e-6}

// Venus is poisonous.
var Venus = CelestialObject{"Venus", 6051.8, 3.24858599e5, 0.000027, 0, 0, -2.99246e-7}

// Mars is the vacation place.
var Mars = CelestialObject{"Mars", 3396.19, 4.28283100e4, 1964e-6, 36e-6, -18e-6, 7.088218e-5}

// Jupiter is big.
var Jupiter = CelestialObject{"Jupiter", 71492.0, 1.266865361e8, 0.01475, 0, -0.00058, 1.758531e-4}

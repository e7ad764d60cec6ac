package dynamics

import (
	"fmt"
	"strings"
)

// OperatingPoint is the electrical input at which a catalogued thruster delivers its rating.
type OperatingPoint struct {
	Voltage uint // V
	Power   uint // W
}

type catalogued struct {
	point    OperatingPoint
	thruster Thruster
}

/* Available thrusters */

var catalog = map[string]catalogued{
	// PPS1350 is the Snecma thruster used on SMART-1.
	"pps1350": {OperatingPoint{350, 2500}, Thruster{Thrust: 89e-3, Isp: 1650}},
	// HERMeS is based on the NASA & Rocketdyne 12.5kW demo.
	"hermes": {OperatingPoint{800, 12500}, Thruster{Thrust: 0.680, Isp: 2960}},
}

// CatalogThruster returns a thruster of the catalog by name, and its operating point.
func CatalogThruster(name string) (Thruster, OperatingPoint, error) {
	c, ok := catalog[strings.ToLower(name)]
	if !ok {
		return Thruster{}, OperatingPoint{}, fmt.Errorf("unknown thruster '%s'", name)
	}
	return c.thruster, c.point, nil
}

// GenericEP returns a generic electric propulsion thruster.
func GenericEP(thrust, isp float64) (Thruster, error) {
	if thrust <= 0 || isp <= 0 {
		return Thruster{}, fmt.Errorf("invalid thruster (thrust=%g N, isp=%g s)", thrust, isp)
	}
	return Thruster{Thrust: thrust, Isp: isp}, nil
}

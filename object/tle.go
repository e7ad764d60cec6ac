package object

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	satellite "github.com/joshuaferrara/go-satellite"
)

// SpacecraftFromTLE returns an Earth centered spacecraft at the SGP4 state of the two-line
// elements at the provided epoch. The TEME frame is used as is.
func SpacecraftFromTLE(name, line1, line2 string, epoch time.Time, dryMass, fuelMass float64) (*Spacecraft, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	// go-satellite aborts on malformed lines, so check the layout first.
	if len(line1) != 69 || len(line2) != 69 || !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return nil, fmt.Errorf("%w: malformed two-line elements for %s", missionseq.ErrConfig, name)
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	utc := epoch.UTC()
	year, month, day := utc.Date()
	hour, minute, sec := utc.Clock()
	pos, vel := satellite.Propagate(sat, year, int(month), day, hour, minute, sec)
	state := []float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z}
	for _, v := range state {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: SGP4 failed for %s at %s (decayed orbit?)", missionseq.ErrNumerical, name, utc)
		}
	}
	// SGP4 works at whole seconds.
	return NewSpacecraft(name, utc.Truncate(time.Second), state, bodies.Earth, dryMass, fuelMass)
}

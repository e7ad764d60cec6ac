package ephem

import (
	"fmt"
	"sync"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/mshafiee/jpleph"
	"github.com/soniakeys/meeus/v3/julian"
)

// JPL reads the body positions from a JPL DE binary ephemeris.
type JPL struct {
	mu  sync.Mutex
	eph *jpleph.Ephemeris
	au  float64
}

// OpenJPL opens the provided DE binary file.
func OpenJPL(path string) (*JPL, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no JPL ephemeris file provided", missionseq.ErrConfig)
	}
	eph, err := jpleph.NewEphemeris(path, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", missionseq.ErrConfig, err)
	}
	au := eph.GetEphemerisDouble(jpleph.AUinKM)
	if au <= 0 {
		au = bodies.AU
	}
	return &JPL{eph: eph, au: au}, nil
}

// Close releases the ephemeris file.
func (j *JPL) Close() error {
	return j.eph.Close()
}

// Position implements the Provider interface.
func (j *JPL) Position(target, center bodies.CelestialObject, epoch time.Time) ([]float64, error) {
	tgt, err := planet(target)
	if err != nil {
		return nil, err
	}
	ctr, err := planet(center)
	if err != nil {
		return nil, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	pos, _, err := j.eph.CalculatePV(julian.TimeToJD(epoch), tgt, jpleph.CenterBody(ctr), false)
	if err != nil {
		return nil, fmt.Errorf("position of %s from %s: %w", target.Name, center.Name, err)
	}
	return []float64{pos.X * j.au, pos.Y * j.au, pos.Z * j.au}, nil
}

func planet(body bodies.CelestialObject) (jpleph.Planet, error) {
	switch body.Name {
	case bodies.Sun.Name:
		return jpleph.Sun, nil
	case bodies.Earth.Name:
		return jpleph.Earth, nil
	case bodies.Moon.Name:
		return jpleph.Moon, nil
	case bodies.Venus.Name:
		return jpleph.Venus, nil
	case bodies.Mars.Name:
		return jpleph.Mars, nil
	case bodies.Jupiter.Name:
		return jpleph.Jupiter, nil
	default:
		return 0, fmt.Errorf("%s is not in the JPL ephemeris", body.Name)
	}
}

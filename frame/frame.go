// Package frame moves Cartesian states between the origins of the propagation frames.
package frame

import (
	"fmt"
	"time"

	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/ChristopherRabotin/missionseq/ephem"
	"gonum.org/v1/gonum/mat"
)

// Transformer converts a Cartesian state (km, km/s) between two frames named by their origin.
type Transformer interface {
	Transform(epoch time.Time, state []float64, from, to string) ([]float64, error)
}

// Identity only accepts transforms between identical frames.
type Identity struct{}

// Transform implements the Transformer interface.
func (Identity) Transform(epoch time.Time, state []float64, from, to string) ([]float64, error) {
	if from != to {
		return nil, fmt.Errorf("no transform from %s to %s", from, to)
	}
	return append([]float64(nil), state...), nil
}

// velocityStep is the half width of the central difference of the origin velocity.
const velocityStep = 30 * time.Second

// OriginShift translates states between body centered frames of parallel axes, reading the
// relative position of the origins from the ephemeris.
type OriginShift struct {
	eph ephem.Provider
}

// NewOriginShift returns an origin shift based on the provided ephemeris.
func NewOriginShift(eph ephem.Provider) *OriginShift {
	return &OriginShift{eph: eph}
}

// Transform implements the Transformer interface.
func (o *OriginShift) Transform(epoch time.Time, state []float64, from, to string) ([]float64, error) {
	if len(state) != 6 {
		return nil, fmt.Errorf("expected a Cartesian state, got %d elements", len(state))
	}
	if from == to {
		return append([]float64(nil), state...), nil
	}
	fromBody, err := bodies.FromString(from)
	if err != nil {
		return nil, err
	}
	toBody, err := bodies.FromString(to)
	if err != nil {
		return nil, err
	}
	// Position of the old origin in the new frame.
	r, err := o.eph.Position(fromBody, toBody, epoch)
	if err != nil {
		return nil, err
	}
	ahead, err := o.eph.Position(fromBody, toBody, epoch.Add(velocityStep))
	if err != nil {
		return nil, err
	}
	behind, err := o.eph.Position(fromBody, toBody, epoch.Add(-velocityStep))
	if err != nil {
		return nil, err
	}
	v := mat.NewVecDense(3, nil)
	v.SubVec(mat.NewVecDense(3, ahead), mat.NewVecDense(3, behind))
	v.ScaleVec(1/(2*velocityStep.Seconds()), v)

	shift := mat.NewVecDense(6, []float64{r[0], r[1], r[2], v.AtVec(0), v.AtVec(1), v.AtVec(2)})
	out := mat.NewVecDense(6, nil)
	out.AddVec(mat.NewVecDense(6, append([]float64(nil), state...)), shift)
	return out.RawVector().Data, nil
}

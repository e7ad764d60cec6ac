package command

import (
	"github.com/ChristopherRabotin/missionseq/dynamics"
	"github.com/ChristopherRabotin/missionseq/frame"
	"github.com/ChristopherRabotin/missionseq/object"
)

// participant presents a spacecraft to the state manager in the frame of the propagation origin.
// The spacecraft keeps its own origin: states are transformed at every step boundary.
type participant struct {
	sc        *object.Spacecraft
	origin    string
	transform frame.Transformer
}

func (p *participant) Name() string {
	return p.sc.Name()
}

func (p *participant) TotalMass() float64 {
	return p.sc.TotalMass()
}

func (p *participant) DragCoefficient() float64 {
	return p.sc.DragCoefficient()
}

func (p *participant) DragArea() float64 {
	return p.sc.DragArea()
}

func (p *participant) Elements(t dynamics.ElementType) ([]float64, error) {
	if t != dynamics.CartesianState || p.sc.Origin.Name == p.origin {
		return p.sc.Elements(t)
	}
	return p.transform.Transform(p.sc.Epoch, p.sc.State, p.sc.Origin.Name, p.origin)
}

func (p *participant) SetElements(t dynamics.ElementType, values []float64) error {
	if t == dynamics.CartesianState && p.sc.Origin.Name != p.origin {
		var err error
		if values, err = p.transform.Transform(p.sc.Epoch, values, p.origin, p.sc.Origin.Name); err != nil {
			return err
		}
	}
	return p.sc.SetElements(t, values)
}

var _ dynamics.Vehicle = (*participant)(nil)

package dynamics

import (
	"fmt"
	"math"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"gonum.org/v1/gonum/floats"
)

// ForceKind classifies a physical model for the force model composition rules.
type ForceKind uint8

const (
	// PrimaryGravity is the central gravity of the propagation origin.
	PrimaryGravity ForceKind = iota + 1
	// ThirdBodyGravity is the point mass gravity of another body.
	ThirdBodyGravity
	// Perturbation is any other conservative perturbation, e.g. zonal harmonics.
	Perturbation
	// AtmosphericDrag requires the primary gravity of the same body.
	AtmosphericDrag
	// TransientForce is switched on and off during the mission, e.g. a finite burn.
	TransientForce
	// EventDerivatives supplies the derivatives of the event function slots.
	EventDerivatives
)

func (k ForceKind) String() string {
	switch k {
	case PrimaryGravity:
		return "primary"
	case ThirdBodyGravity:
		return "third-body"
	case Perturbation:
		return "perturbation"
	case AtmosphericDrag:
		return "drag"
	case TransientForce:
		return "transient"
	case EventDerivatives:
		return "event"
	}
	panic("cannot stringify unknown force kind")
}

// PhysicalModel is one contribution to the superposition of a ForceModel.
type PhysicalModel interface {
	Name() string
	Kind() ForceKind
	// Body returns the name of the body this model is tied to, if any.
	Body() string
	SupportsElement(t ElementType) bool
	// SetStart tells the model where one contiguous run of supported elements starts in the
	// state vector, and for how many entities.
	SetStart(t ElementType, start, count int, owners []Propagatable) error
	// Derivatives adds nothing: it writes its own contribution into deriv, which is zeroed
	// beforehand and has the dimension of the state.
	Derivatives(state []float64, epoch time.Time, order int, deriv []float64) error
	Clone() PhysicalModel
}

// Transient is a physical model which may be inactive.
type Transient interface {
	PhysicalModel
	IsActive() bool
}

// LayoutAware models receive the complete layout after the mapping, e.g. to find mass slots.
type LayoutAware interface {
	SetLayout(layout []Element)
}

type segment struct {
	start, count int
}

// ForceModel sums the derivatives of its physical models over the whole state vector.
type ForceModel struct {
	components   []PhysicalModel
	buffers      [][]float64
	layout       []Element
	cartesian    []segment
	other        []segment
	epoch        time.Time
	norm         missionseq.ErrorNorm
	relThreshold float64
	built        bool
}

// NewForceModel returns an empty force model with the provided error control settings.
func NewForceModel(norm missionseq.ErrorNorm, relThreshold float64) *ForceModel {
	return &ForceModel{norm: norm, relThreshold: relThreshold}
}

// AddForce adds a physical model, enforcing the composition rules.
func (fm *ForceModel) AddForce(pm PhysicalModel) error {
	if pm == nil {
		return fmt.Errorf("%w: nil physical model", missionseq.ErrStructure)
	}
	switch pm.Kind() {
	case PrimaryGravity:
		if fm.primary(pm.Body()) != nil {
			return fmt.Errorf("%w: %s already has a primary gravity model", missionseq.ErrStructure, pm.Body())
		}
	case AtmosphericDrag:
		if fm.primary(pm.Body()) == nil {
			return fmt.Errorf("%w: drag of %s requires the primary gravity of %s", missionseq.ErrStructure, pm.Name(), pm.Body())
		}
	case TransientForce:
		if tr, ok := pm.(Transient); ok && tr.IsActive() && fm.activeTransient() != nil {
			return fmt.Errorf("%w: %s cannot be added while %s is active", missionseq.ErrStructure, pm.Name(), fm.activeTransient().Name())
		}
	}
	fm.components = append(fm.components, pm)
	fm.built = false
	return nil
}

// DeleteForce removes the first model of the given name and returns whether one was removed.
func (fm *ForceModel) DeleteForce(name string) bool {
	for i, pm := range fm.components {
		if pm.Name() == name {
			fm.components = append(fm.components[:i], fm.components[i+1:]...)
			fm.built = false
			return true
		}
	}
	return false
}

// Forces returns the models in the order they were added.
func (fm *ForceModel) Forces() []PhysicalModel {
	return fm.components
}

func (fm *ForceModel) primary(body string) PhysicalModel {
	for _, pm := range fm.components {
		if pm.Kind() == PrimaryGravity && pm.Body() == body {
			return pm
		}
	}
	return nil
}

func (fm *ForceModel) activeTransient() PhysicalModel {
	for _, pm := range fm.components {
		if tr, ok := pm.(Transient); ok && tr.IsActive() {
			return pm
		}
	}
	return nil
}

// BuildModelFromMap binds the models to the state layout: each contiguous run of one element type
// is offered to every model, and the models supporting it are told where it starts.
func (fm *ForceModel) BuildModelFromMap(layout []Element) error {
	fm.cartesian = fm.cartesian[:0]
	fm.other = fm.other[:0]
	active := 0
	for _, pm := range fm.components {
		if tr, ok := pm.(Transient); ok && tr.IsActive() {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("%w: %d transient forces active simultaneously", missionseq.ErrStructure, active)
	}
	for i := 0; i < len(layout); {
		t := layout[i].Type
		j := i
		for j < len(layout) && layout[j].Type == t {
			if layout[j].Index != j {
				return fmt.Errorf("%w: layout entry %d claims index %d", missionseq.ErrStructure, j, layout[j].Index)
			}
			j++
		}
		size := t.Size()
		if (j-i)%size != 0 {
			return fmt.Errorf("%w: %d %s slots is not a multiple of %d", missionseq.ErrStructure, j-i, t, size)
		}
		count := (j - i) / size
		owners := make([]Propagatable, 0, count)
		for k := i; k < j; k += size {
			owners = append(owners, layout[k].Owner)
		}
		if t == CartesianState {
			for k := 0; k < count; k++ {
				fm.cartesian = append(fm.cartesian, segment{i + 6*k, 6})
			}
		} else {
			fm.other = append(fm.other, segment{i, j - i})
		}
		for _, pm := range fm.components {
			if !pm.SupportsElement(t) {
				continue
			}
			if err := pm.SetStart(t, i, count, owners); err != nil {
				return fmt.Errorf("%s: %w", pm.Name(), err)
			}
		}
		i = j
	}
	for _, pm := range fm.components {
		if la, ok := pm.(LayoutAware); ok {
			la.SetLayout(layout)
		}
	}
	fm.layout = layout
	fm.buffers = make([][]float64, len(fm.components))
	for i := range fm.buffers {
		fm.buffers[i] = make([]float64, len(layout))
	}
	fm.built = true
	return nil
}

// SetEpoch sets the epoch corresponding to an elapsed time of zero.
func (fm *ForceModel) SetEpoch(epoch time.Time) {
	fm.epoch = epoch
}

// Epoch returns the reference epoch.
func (fm *ForceModel) Epoch() time.Time {
	return fm.epoch
}

// Dimension returns the size of the mapped state.
func (fm *ForceModel) Dimension() int {
	return len(fm.layout)
}

// GetDerivatives returns the first order derivatives of the state, dt seconds after the epoch.
func (fm *ForceModel) GetDerivatives(state []float64, dt float64, order int) ([]float64, error) {
	if !fm.built {
		return nil, fmt.Errorf("%w: force model not mapped to a state", missionseq.ErrStructure)
	}
	if order != 1 {
		return nil, fmt.Errorf("%w: derivative order %d unsupported", missionseq.ErrNumerical, order)
	}
	if len(state) != len(fm.layout) {
		return nil, fmt.Errorf("%w: state of size %d for a model of size %d", missionseq.ErrStructure, len(state), len(fm.layout))
	}
	deriv := make([]float64, len(state))
	for _, seg := range fm.cartesian {
		copy(deriv[seg.start:seg.start+3], state[seg.start+3:seg.start+6])
	}
	epoch := EpochAfter(fm.epoch, dt)
	for i, pm := range fm.components {
		if tr, ok := pm.(Transient); ok && !tr.IsActive() {
			continue
		}
		buf := fm.buffers[i]
		for k := range buf {
			buf[k] = 0
		}
		if err := pm.Derivatives(state, epoch, order, buf); err != nil {
			return nil, fmt.Errorf("%s: %w", pm.Name(), err)
		}
		floats.Add(deriv, buf)
	}
	for _, d := range deriv {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: non-finite derivative at %s", missionseq.ErrNumerical, epoch)
		}
	}
	return deriv, nil
}

// EstimateError returns the normalized error of a step from start to answer given the
// difference between the embedded solutions.
func (fm *ForceModel) EstimateError(diffs, answer, start []float64) float64 {
	if fm.norm == missionseq.NormNone {
		return floats.Norm(diffs, math.Inf(1))
	}
	var worst float64
	for _, seg := range fm.cartesian {
		for _, off := range []int{0, 3} {
			s := seg.start + off
			worst = math.Max(worst, fm.blockError(diffs[s:s+3], answer[s:s+3], start[s:s+3]))
		}
	}
	for _, seg := range fm.other {
		for k := seg.start; k < seg.start+seg.count; k++ {
			worst = math.Max(worst, fm.blockError(diffs[k:k+1], answer[k:k+1], start[k:k+1]))
		}
	}
	return worst
}

func (fm *ForceModel) blockError(diff, answer, start []float64) float64 {
	delta := make([]float64, len(diff))
	floats.SubTo(delta, answer, start)
	var num, den float64
	if fm.norm == missionseq.NormLargest {
		num = floats.Norm(diff, math.Inf(1))
		den = floats.Norm(delta, math.Inf(1))
	} else {
		num = floats.Norm(diff, 2)
		den = floats.Norm(delta, 2)
	}
	if den > fm.relThreshold {
		return num / den
	}
	return num
}

// Clone returns a deep copy mapped on the same layout.
func (fm *ForceModel) Clone() (*ForceModel, error) {
	clone := NewForceModel(fm.norm, fm.relThreshold)
	clone.epoch = fm.epoch
	for _, pm := range fm.components {
		clone.components = append(clone.components, pm.Clone())
	}
	if fm.built {
		if err := clone.BuildModelFromMap(fm.layout); err != nil {
			return nil, fmt.Errorf("cloning force model: %w", err)
		}
	}
	return clone, nil
}

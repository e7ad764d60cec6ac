package event

import (
	"fmt"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/dynamics"
)

// Model exposes the derivatives of the event functions to a force model, so that the event slots
// of the state take part in the step size control of adaptive propagators.
type Model struct {
	locators []*Locator
	offsets  []int   // event slot of each locator, -1 if not mapped
	targets  [][]int // Cartesian offset of each target of each locator
}

// NewModel returns the event model of the provided locators.
func NewModel(locators ...*Locator) *Model {
	return &Model{locators: locators}
}

// Locators returns the locators of this model.
func (m *Model) Locators() []*Locator {
	return m.locators
}

// Name implements the dynamics.PhysicalModel interface.
func (m *Model) Name() string {
	return "EventModel"
}

// Kind implements the dynamics.PhysicalModel interface.
func (m *Model) Kind() dynamics.ForceKind {
	return dynamics.EventDerivatives
}

// Body implements the dynamics.PhysicalModel interface.
func (m *Model) Body() string {
	return ""
}

// SupportsElement implements the dynamics.PhysicalModel interface.
func (m *Model) SupportsElement(t dynamics.ElementType) bool {
	return t == dynamics.EventState
}

// SetStart implements the dynamics.PhysicalModel interface. The slots of each locator are
// resolved from the whole layout.
func (m *Model) SetStart(t dynamics.ElementType, start, count int, owners []dynamics.Propagatable) error {
	if t != dynamics.EventState {
		return fmt.Errorf("unsupported element %s", t)
	}
	return nil
}

// SetLayout implements the dynamics.LayoutAware interface.
func (m *Model) SetLayout(layout []dynamics.Element) {
	m.offsets = make([]int, len(m.locators))
	m.targets = make([][]int, len(m.locators))
	for k, loc := range m.locators {
		m.offsets[k] = dynamics.Offset(layout, loc, dynamics.EventState)
		m.targets[k] = make([]int, len(loc.Targets))
		for j, name := range loc.Targets {
			m.targets[k][j] = -1
			for _, el := range layout {
				if el.Type == dynamics.CartesianState && el.Owner.Name() == name {
					m.targets[k][j] = el.Index
					break
				}
			}
		}
	}
}

// Derivatives implements the dynamics.PhysicalModel interface.
func (m *Model) Derivatives(state []float64, epoch time.Time, order int, deriv []float64) error {
	for k, loc := range m.locators {
		if !loc.Active || m.offsets[k] < 0 {
			continue
		}
		states := make([][]float64, len(m.targets[k]))
		for j, off := range m.targets[k] {
			if off < 0 {
				return fmt.Errorf("%w: target %s of %s is not propagated", missionseq.ErrStructure, loc.Targets[j], loc.Name())
			}
			states[j] = state[off : off+6]
		}
		for i, fn := range loc.Functions() {
			_, d, err := fn.Evaluate(epoch, states)
			if err != nil {
				return fmt.Errorf("%s: %w", fn.Name(), err)
			}
			deriv[m.offsets[k]+i] = d
		}
	}
	return nil
}

// Clone implements the dynamics.PhysicalModel interface. Locators are shared, not copied.
func (m *Model) Clone() dynamics.PhysicalModel {
	return &Model{
		locators: append([]*Locator(nil), m.locators...),
		offsets:  append([]int(nil), m.offsets...),
		targets:  append([][]int(nil), m.targets...),
	}
}

var _ dynamics.LayoutAware = (*Model)(nil)

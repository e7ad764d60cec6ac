package dynamics

import (
	"fmt"

	"github.com/ChristopherRabotin/missionseq"
)

// ElementType identifies what a slot of the state vector holds.
type ElementType uint8

const (
	// CartesianState is the position (km) and velocity (km/s) of an entity, six slots.
	CartesianState ElementType = iota + 1
	// MassState is the total mass (kg) of an entity, one slot.
	MassState
	// EventState is the integrated value of one event function, one slot per function.
	EventState
)

// Size returns the number of slots one entity takes for this element type.
func (t ElementType) Size() int {
	switch t {
	case CartesianState:
		return 6
	case MassState, EventState:
		return 1
	}
	panic(fmt.Errorf("unknown element type %d", t))
}

func (t ElementType) String() string {
	switch t {
	case CartesianState:
		return "Cartesian"
	case MassState:
		return "Mass"
	case EventState:
		return "Event"
	}
	panic("cannot stringify unknown element type")
}

// Propagatable is any entity whose elements are mapped into a propagation state vector.
type Propagatable interface {
	Name() string
	// Elements returns the current values of the requested element type, or an error if unsupported.
	Elements(t ElementType) ([]float64, error)
	// SetElements stores back the values of the requested element type.
	SetElements(t ElementType, values []float64) error
}

// Element describes one slot of the state vector.
type Element struct {
	Type   ElementType
	Owner  Propagatable
	Index  int // position in the state vector
	Offset int // position within the owner's elements of that type
}

type request struct {
	obj   Propagatable
	types []ElementType
}

// StateManager maps the participants of a propagation to and from one flat state vector.
// Slots are grouped by element type so that each type occupies a contiguous run.
type StateManager struct {
	requests []request
	layout   []Element
	state    []float64
	built    bool
}

// NewStateManager returns an empty state manager.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// AddObject registers an entity with the element types it contributes to the state.
func (m *StateManager) AddObject(obj Propagatable, types ...ElementType) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object added to state", missionseq.ErrStructure)
	}
	if len(types) == 0 {
		types = []ElementType{CartesianState}
	}
	for i, r := range m.requests {
		if r.obj == obj {
			for _, t := range types {
				if !hasType(r.types, t) {
					m.requests[i].types = append(m.requests[i].types, t)
				}
			}
			m.built = false
			return nil
		}
	}
	m.requests = append(m.requests, request{obj, append([]ElementType(nil), types...)})
	m.built = false
	return nil
}

// Objects returns the registered entities in registration order.
func (m *StateManager) Objects() []Propagatable {
	objs := make([]Propagatable, len(m.requests))
	for i, r := range m.requests {
		objs[i] = r.obj
	}
	return objs
}

// BuildState computes the layout and fills the state from the registered entities.
func (m *StateManager) BuildState() error {
	m.layout = m.layout[:0]
	for _, t := range []ElementType{CartesianState, MassState, EventState} {
		for _, r := range m.requests {
			if !hasType(r.types, t) {
				continue
			}
			vals, err := r.obj.Elements(t)
			if err != nil {
				return fmt.Errorf("%w: %s cannot provide %s elements: %s", missionseq.ErrStructure, r.obj.Name(), t, err)
			}
			count := len(vals)
			if t != EventState && count != t.Size() {
				return fmt.Errorf("%w: %s provided %d %s elements, expected %d", missionseq.ErrStructure, r.obj.Name(), count, t, t.Size())
			}
			for k := 0; k < count; k++ {
				m.layout = append(m.layout, Element{Type: t, Owner: r.obj, Index: len(m.layout), Offset: k})
			}
		}
	}
	m.state = make([]float64, len(m.layout))
	m.built = true
	return m.MapObjectsToVector()
}

// Layout returns the slot descriptions, one per state vector index.
func (m *StateManager) Layout() []Element {
	return m.layout
}

// Dimension returns the length of the state vector.
func (m *StateManager) Dimension() int {
	return len(m.layout)
}

// State returns the state vector (not a copy).
func (m *StateManager) State() []float64 {
	return m.state
}

// SetState overwrites the state vector.
func (m *StateManager) SetState(state []float64) error {
	if len(state) != len(m.state) {
		return fmt.Errorf("%w: state of size %d does not match layout of size %d", missionseq.ErrStructure, len(state), len(m.state))
	}
	copy(m.state, state)
	return nil
}

// MapObjectsToVector copies the entity elements into the state vector.
func (m *StateManager) MapObjectsToVector() error {
	if !m.built {
		return fmt.Errorf("%w: state not built", missionseq.ErrStructure)
	}
	return m.walk(func(r request, t ElementType, start, count int) error {
		vals, err := r.obj.Elements(t)
		if err != nil {
			return err
		}
		if len(vals) != count {
			return fmt.Errorf("%w: %s now provides %d %s elements instead of %d", missionseq.ErrStructure, r.obj.Name(), len(vals), t, count)
		}
		copy(m.state[start:start+count], vals)
		return nil
	})
}

// MapVectorToObjects stores the state vector back into the entities.
func (m *StateManager) MapVectorToObjects() error {
	if !m.built {
		return fmt.Errorf("%w: state not built", missionseq.ErrStructure)
	}
	return m.walk(func(r request, t ElementType, start, count int) error {
		vals := make([]float64, count)
		copy(vals, m.state[start:start+count])
		return r.obj.SetElements(t, vals)
	})
}

// walk calls fn for each contiguous run of one owner's elements of one type.
func (m *StateManager) walk(fn func(r request, t ElementType, start, count int) error) error {
	for i := 0; i < len(m.layout); {
		el := m.layout[i]
		j := i + 1
		for j < len(m.layout) && m.layout[j].Owner == el.Owner && m.layout[j].Type == el.Type {
			j++
		}
		if err := fn(request{obj: el.Owner}, el.Type, i, j-i); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// Offset returns the first state index of the owner's elements of the given type, or -1.
func Offset(layout []Element, owner Propagatable, t ElementType) int {
	for _, el := range layout {
		if el.Owner == owner && el.Type == t {
			return el.Index
		}
	}
	return -1
}

func hasType(types []ElementType, t ElementType) bool {
	for _, tt := range types {
		if tt == t {
			return true
		}
	}
	return false
}

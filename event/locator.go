package event

import (
	"fmt"
	"math"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/dynamics"
)

// Locator batches the event functions of one set of targets. It keeps the previous and current
// sample of every function to detect sign changes between two propagation steps.
type Locator struct {
	name          string
	Targets       []string // participant names whose states are fed to the functions
	Tolerance     float64
	MaxIterations int
	MinSeparation time.Duration
	Active        bool
	functions     []Function
	previous      []Sample
	current       []Sample
	last          []Sample // last data of each function, including search evaluations
	samples       int
	lastEvent     []time.Time
	integrated    []float64
	table         *Table
}

// NewLocator returns an active locator recording into the table.
func NewLocator(name string, targets []string, cfg missionseq.EventConfig, table *Table, fns ...Function) (*Locator, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: locator %s has no target", missionseq.ErrStructure, name)
	}
	if table == nil {
		table = NewTable()
	}
	l := &Locator{
		name:          name,
		Targets:       targets,
		Tolerance:     cfg.Tolerance,
		MaxIterations: cfg.MaxIterations,
		MinSeparation: cfg.MinSeparation,
		Active:        true,
		table:         table,
	}
	for _, fn := range fns {
		if err := l.AddFunction(fn); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// AddFunction adds an event function, whose name must be unique in this locator.
func (l *Locator) AddFunction(fn Function) error {
	if fn == nil {
		return fmt.Errorf("%w: nil event function", missionseq.ErrStructure)
	}
	for _, f := range l.functions {
		if f.Name() == fn.Name() {
			return fmt.Errorf("%w: locator %s already has a function %s", missionseq.ErrStructure, l.name, fn.Name())
		}
	}
	l.functions = append(l.functions, fn)
	l.previous = append(l.previous, Sample{})
	l.current = append(l.current, Sample{})
	l.last = append(l.last, Sample{})
	l.lastEvent = append(l.lastEvent, time.Time{})
	l.integrated = append(l.integrated, 0)
	return nil
}

// Name implements the dynamics.Propagatable interface.
func (l *Locator) Name() string {
	return l.name
}

// Functions returns the event functions.
func (l *Locator) Functions() []Function {
	return l.functions
}

// Count returns the number of event functions.
func (l *Locator) Count() int {
	return len(l.functions)
}

// Table returns the table in which the events are recorded.
func (l *Locator) Table() *Table {
	return l.table
}

// Targeting returns whether the provided participant is one of the targets.
func (l *Locator) Targeting(name string) bool {
	for _, t := range l.Targets {
		if t == name {
			return true
		}
	}
	return false
}

// Reset forgets the samples, e.g. before a new propagation. The last event epochs are kept.
func (l *Locator) Reset() {
	l.samples = 0
	for i := range l.current {
		l.previous[i] = Sample{}
		l.current[i] = Sample{}
	}
}

// Evaluate evaluates every function on the supplied target states, shifting the current samples
// into the previous ones.
func (l *Locator) Evaluate(epoch time.Time, states [][]float64) error {
	for i, fn := range l.functions {
		value, deriv, err := fn.Evaluate(epoch, states)
		if err != nil {
			return fmt.Errorf("%s: %w", fn.Name(), err)
		}
		l.previous[i] = l.current[i]
		l.current[i] = Sample{Epoch: epoch, Value: value, Derivative: deriv}
		l.last[i] = l.current[i]
	}
	if l.samples < 2 {
		l.samples++
	}
	return nil
}

// EvaluateFunction evaluates one function without touching the step samples, e.g. during a
// search, and keeps the result as the last data of that function.
func (l *Locator) EvaluateFunction(i int, epoch time.Time, states [][]float64) (Sample, error) {
	value, deriv, err := l.functions[i].Evaluate(epoch, states)
	if err != nil {
		return Sample{}, fmt.Errorf("%s: %w", l.functions[i].Name(), err)
	}
	l.last[i] = Sample{Epoch: epoch, Value: value, Derivative: deriv}
	return l.last[i], nil
}

// Previous returns the sample of the function before the last step.
func (l *Locator) Previous(i int) Sample {
	return l.previous[i]
}

// Current returns the sample of the function after the last step.
func (l *Locator) Current(i int) Sample {
	return l.current[i]
}

// Last returns the last data of the function.
func (l *Locator) Last(i int) Sample {
	return l.last[i]
}

// SignChange returns whether the value, respectively the derivative, of the function changed sign
// over the last step. Both are false until two samples are available.
func (l *Locator) SignChange(i int) (value, derivative bool) {
	if l.samples < 2 {
		return false, false
	}
	p, c := l.previous[i], l.current[i]
	return crossed(p.Value, c.Value), crossed(p.Derivative, c.Derivative)
}

func crossed(a, b float64) bool {
	return (a < 0 && b >= 0) || (a >= 0 && b < 0)
}

// BufferEvent records the last data of the function into the event table, unless it is within
// the minimum separation of the previous event of that function. It returns whether it recorded.
func (l *Locator) BufferEvent(i int) bool {
	s := l.last[i]
	if prev := l.lastEvent[i]; !prev.IsZero() && absDuration(s.Epoch.Sub(prev)) < l.MinSeparation {
		return false
	}
	fn := l.functions[i]
	l.table.Append(Record{
		Locator:      l.name,
		Function:     fn.Name(),
		Type:         fn.Type(),
		Participants: append([]string(nil), l.Targets...),
		Boundary:     fn.Boundary(s.Derivative > 0),
		Epoch:        s.Epoch,
		Value:        s.Value,
	})
	l.lastEvent[i] = s.Epoch
	return true
}

// LastEvent returns the epoch of the last recorded event of the function, zero if none.
func (l *Locator) LastEvent(i int) time.Time {
	return l.lastEvent[i]
}

// Converged returns whether the value is within the tolerance.
func (l *Locator) Converged(value float64) bool {
	return math.Abs(value) <= l.Tolerance
}

// Elements implements the dynamics.Propagatable interface: the event slots start from the
// current function values.
func (l *Locator) Elements(t dynamics.ElementType) ([]float64, error) {
	if t != dynamics.EventState {
		return nil, fmt.Errorf("locator %s only provides event elements", l.name)
	}
	vals := make([]float64, len(l.functions))
	for i := range vals {
		vals[i] = l.current[i].Value
	}
	return vals, nil
}

// SetElements implements the dynamics.Propagatable interface.
func (l *Locator) SetElements(t dynamics.ElementType, values []float64) error {
	if t != dynamics.EventState || len(values) != len(l.integrated) {
		return fmt.Errorf("locator %s cannot store %d %s elements", l.name, len(values), t)
	}
	copy(l.integrated, values)
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

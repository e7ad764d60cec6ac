package command

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/dynamics"
	"github.com/ChristopherRabotin/missionseq/event"
	"github.com/ChristopherRabotin/missionseq/integrator"
	"github.com/ChristopherRabotin/missionseq/object"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// searchResolution is the smallest bracket, in seconds, the event search shrinks by interpolation.
const searchResolution = 1e-6

var cartesianNames = [6]string{"X", "Y", "Z", "VX", "VY", "VZ"}

// Setup pairs a propagator with the force model it integrates for a set of participants.
type Setup struct {
	Propagator   integrator.Propagator
	Model        *dynamics.ForceModel
	Participants []string
	Origin       string // defaults to the origin of the first participant
}

// association is the run time copy of a Setup.
type association struct {
	prop         integrator.Propagator
	model        *dynamics.ForceModel
	manager      *dynamics.StateManager
	origin       string
	names        []string
	participants []*object.Spacecraft
	snapshots    []*object.Spacecraft // rollback buffer of the event search
	locators     []*event.Locator
	targets      map[*event.Locator][]int // Cartesian offset of each target
	base         time.Time
	stream       int
	registered   bool
	start        []float64 // state at the start of the last step
	startElapsed float64
}

func (a *association) epoch() time.Time {
	return dynamics.EpochAfter(a.base, a.prop.Elapsed())
}

// sync stores the propagator state into the participants.
func (a *association) sync() error {
	if err := a.manager.SetState(a.prop.State()); err != nil {
		return err
	}
	epoch := a.epoch()
	for _, sc := range a.participants {
		sc.Epoch = epoch
	}
	return a.manager.MapVectorToObjects()
}

func (a *association) resolveTargets() {
	layout := a.manager.Layout()
	for _, loc := range a.locators {
		offsets := make([]int, len(loc.Targets))
		for j, name := range loc.Targets {
			offsets[j] = -1
			for _, obj := range a.manager.Objects() {
				if obj.Name() == name {
					offsets[j] = dynamics.Offset(layout, obj, dynamics.CartesianState)
					break
				}
			}
		}
		a.targets[loc] = offsets
	}
}

func (a *association) targetStates(loc *event.Locator, state []float64) [][]float64 {
	offsets := a.targets[loc]
	states := make([][]float64, len(offsets))
	for j, off := range offsets {
		states[j] = state[off : off+6]
	}
	return states
}

func (a *association) elementNames() []string {
	layout := a.manager.Layout()
	names := make([]string, len(layout))
	for i, el := range layout {
		switch el.Type {
		case dynamics.CartesianState:
			names[i] = el.Owner.Name() + "." + cartesianNames[el.Offset]
		case dynamics.MassState:
			names[i] = el.Owner.Name() + ".Mass"
		case dynamics.EventState:
			names[i] = el.Owner.Name() + "." + el.Owner.(*event.Locator).Functions()[el.Offset].Name()
		}
	}
	return names
}

// resumePoint is where the propagation resumes after an event search.
type resumePoint struct {
	state   []float64
	elapsed float64
}

// Propagate integrates the dynamics of its participants for a duration, locating on the way the
// events of the mission locators which target them.
type Propagate struct {
	Duration time.Duration // may be negative
	StepSize time.Duration // zero for the configured step
	setups   []Setup

	assocs    []*association
	hasFired  bool
	searching bool
	logger    kitlog.Logger
}

// NewPropagate returns a propagation of the provided duration.
func NewPropagate(duration time.Duration, setups ...Setup) *Propagate {
	return &Propagate{Duration: duration, setups: setups}
}

// Type implements the Command interface.
func (*Propagate) Type() string { return "Propagate" }

// Kind implements the Command interface.
func (*Propagate) Kind() Kind { return Propagation }

// Fired returns whether the propagation already ran since the last initialization or reset.
func (p *Propagate) Fired() bool {
	return p.hasFired
}

// Initialize implements the Command interface: it resolves the participants, clones the
// propagators and force models, and registers the locators targeting the participants.
func (p *Propagate) Initialize(ctx *Context) error {
	p.logger = ctx.logger("prop")
	p.assocs, p.hasFired, p.searching = nil, false, false
	if len(p.setups) == 0 {
		return fmt.Errorf("%w: Propagate without a propagator", missionseq.ErrStructure)
	}
	seen := make(map[string]bool)
	for i, setup := range p.setups {
		switch {
		case setup.Propagator == nil:
			return fmt.Errorf("%w: propagator %d is missing", missionseq.ErrStructure, i)
		case setup.Model == nil:
			return fmt.Errorf("%w: propagator %d (%s) has no force model", missionseq.ErrStructure, i, setup.Propagator.Name())
		case len(setup.Participants) == 0:
			return fmt.Errorf("%w: propagator %d (%s) has no participant", missionseq.ErrStructure, i, setup.Propagator.Name())
		}
		model, err := setup.Model.Clone()
		if err != nil {
			return err
		}
		a := &association{
			prop:    setup.Propagator.Clone(),
			model:   model,
			manager: dynamics.NewStateManager(),
			origin:  setup.Origin,
			names:   append([]string(nil), setup.Participants...),
			targets: make(map[*event.Locator][]int),
		}
		types := []dynamics.ElementType{dynamics.CartesianState}
		for _, pm := range a.model.Forces() {
			if pm.Kind() == dynamics.TransientForce {
				types = append(types, dynamics.MassState)
				break
			}
		}
		for _, name := range setup.Participants {
			if seen[name] {
				return fmt.Errorf("%w: %s is propagated twice by the same command", missionseq.ErrStructure, name)
			}
			seen[name] = true
			sc, err := ctx.Resolve(name)
			if err != nil {
				return err
			}
			if a.origin == "" {
				a.origin = sc.Origin.Name
			}
			a.participants = append(a.participants, sc)
			a.snapshots = append(a.snapshots, sc.Clone())
			view := &participant{sc: sc, origin: a.origin, transform: ctx.transformer()}
			if err := a.manager.AddObject(view, types...); err != nil {
				return err
			}
		}
		for _, loc := range ctx.Locators {
			if !loc.Active {
				continue
			}
			targeted := 0
			for _, name := range setup.Participants {
				if loc.Targeting(name) {
					targeted++
				}
			}
			switch {
			case targeted == len(loc.Targets):
				a.locators = append(a.locators, loc)
				if err := a.manager.AddObject(loc, dynamics.EventState); err != nil {
					return err
				}
			case targeted > 0:
				level.Warn(p.logger).Log("locator", loc.Name(), "status", "ignored", "reason", "targets split across propagators")
			}
		}
		if len(a.locators) > 0 {
			if err := a.model.AddForce(event.NewModel(a.locators...)); err != nil {
				return err
			}
		}
		p.assocs = append(p.assocs, a)
	}
	return nil
}

// PrepareToPropagate builds the state vectors and force models on the first execution, and only
// reloads the participant states when the command runs again, e.g. in a loop. The elapsed time
// restarts from zero at the current epoch of the participants.
func (p *Propagate) PrepareToPropagate(ctx *Context) error {
	if p.assocs == nil {
		return fmt.Errorf("%w: Propagate was not initialized", missionseq.ErrStructure)
	}
	for _, a := range p.assocs {
		epoch := a.participants[0].Epoch
		for _, sc := range a.participants[1:] {
			if !sc.Epoch.Equal(epoch) {
				return fmt.Errorf("%w: %s is at %s but %s is at %s", missionseq.ErrStructure, sc.Name(), sc.Epoch, a.participants[0].Name(), epoch)
			}
		}
		a.base = epoch
		if err := p.applyBurns(ctx, a); err != nil {
			return err
		}
		if !p.hasFired {
			if err := a.manager.BuildState(); err != nil {
				return err
			}
			if err := a.model.BuildModelFromMap(a.manager.Layout()); err != nil {
				return err
			}
			a.resolveTargets()
		} else if err := a.manager.MapObjectsToVector(); err != nil {
			return err
		}
		a.model.SetEpoch(epoch)
		if len(a.locators) > 0 {
			for _, loc := range a.locators {
				loc.Reset()
				if err := loc.Evaluate(epoch, a.targetStates(loc, a.manager.State())); err != nil {
					return err
				}
			}
			// The event slots start from the function values.
			if err := a.manager.MapObjectsToVector(); err != nil {
				return err
			}
		}
		if err := a.prop.Initialize(a.model, a.manager.State()); err != nil {
			return err
		}
		if !p.hasFired && ctx.Publisher != nil {
			id, err := ctx.Publisher.RegisterStream(a.names, a.elementNames(), epoch, a.manager.State())
			if err != nil {
				return fmt.Errorf("registering %s: %w", strings.Join(a.names, ","), err)
			}
			a.stream, a.registered = id, true
		}
		level.Info(p.logger).Log("command", "Propagate", "status", "prepared", "epoch", epoch.Format(time.RFC3339Nano), "participants", strings.Join(a.names, ","), "origin", a.origin, "dimension", a.manager.Dimension(), "reentry", p.hasFired)
	}
	return nil
}

// applyBurns turns the finite burns of the force model on or off as the burn commands left them.
func (p *Propagate) applyBurns(ctx *Context, a *association) error {
	active := 0
	for _, pm := range a.model.Forces() {
		if burn, ok := pm.(interface{ SetActive(bool) }); ok {
			if on, known := ctx.Burning(pm.Name()); known {
				burn.SetActive(on)
			}
		}
		if tr, ok := pm.(dynamics.Transient); ok && tr.IsActive() {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("%w: %d finite burns are active at once", missionseq.ErrStructure, active)
	}
	return nil
}

// Execute implements the Command interface: it steps until the duration elapsed, the last step
// being shortened to land on it, and checks for events after every step.
func (p *Propagate) Execute(ctx *Context) error {
	if err := p.PrepareToPropagate(ctx); err != nil {
		return err
	}
	step := p.StepSize
	if step <= 0 {
		step = ctx.Config.Propagation.Step
	}
	if step <= 0 {
		return fmt.Errorf("%w: nonpositive propagation step %s", missionseq.ErrConfig, step)
	}
	total := p.Duration.Seconds()
	h := step.Seconds()
	if total < 0 {
		h = -h
	}
	elapsed := 0.0
	for remaining := total; math.Abs(remaining) > 1e-9; remaining = total - elapsed {
		dt := h
		if math.Abs(remaining) < math.Abs(h) {
			dt = remaining
		}
		if err := p.Step(ctx, dt); err != nil {
			return err
		}
		elapsed += dt
		if err := p.CheckForEvents(ctx); err != nil {
			return err
		}
	}
	p.hasFired = true
	for _, a := range p.assocs {
		level.Info(p.logger).Log("command", "Propagate", "status", "complete", "epoch", a.epoch().Format(time.RFC3339Nano), "participants", strings.Join(a.names, ","), "duration", p.Duration)
	}
	return nil
}

// Step advances every association by dt seconds and publishes the new states, unless an event
// search is running. It polls the interrupt flag first.
func (p *Propagate) Step(ctx *Context, dt float64) error {
	if err := ctx.Interrupt.Check("Propagate"); err != nil {
		return err
	}
	for _, a := range p.assocs {
		a.start, a.startElapsed = a.prop.State(), a.prop.Elapsed()
		if err := a.prop.Step(dt); err != nil {
			return fmt.Errorf("%s from %s: %w", a.prop.Name(), a.epoch().Format(time.RFC3339Nano), err)
		}
		if err := a.sync(); err != nil {
			return err
		}
		ctx.Metrics.StepTaken(dt)
	}
	for _, a := range p.assocs {
		if err := p.publish(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (p *Propagate) publish(ctx *Context, a *association) error {
	if p.searching || !a.registered || ctx.Publisher == nil || !ctx.Publishing(a.names) {
		return nil
	}
	if err := ctx.Publisher.Publish(a.stream, a.epoch(), a.manager.State()); err != nil {
		return fmt.Errorf("publishing %s: %w", strings.Join(a.names, ","), err)
	}
	ctx.Metrics.Published()
	return nil
}

// CheckForEvents evaluates the active locators after a step. A sign change of a function value
// starts a search of its root; a sign change of its derivative alone starts a search of the
// extremum, and of the two roots around it if the extremum crosses zero.
func (p *Propagate) CheckForEvents(ctx *Context) error {
	for _, a := range p.assocs {
		for _, loc := range a.locators {
			if !loc.Active {
				continue
			}
			if err := loc.Evaluate(a.epoch(), a.targetStates(loc, a.manager.State())); err != nil {
				return fmt.Errorf("%s: %w", loc.Name(), err)
			}
			for i := 0; i < loc.Count(); i++ {
				value, derivative := loc.SignChange(i)
				var err error
				switch {
				case value:
					_, err = p.locate(ctx, a, loc, i)
				case derivative:
					err = p.locateExtremum(ctx, a, loc, i)
				}
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// LocateEvent searches the last step for the root of a function of the locator and records it.
// It returns whether an event was recorded: a search which does not converge within the
// iteration budget of the locator records nothing and is not an error.
func (p *Propagate) LocateEvent(ctx *Context, loc *event.Locator, i int) (bool, error) {
	if i < 0 || i >= loc.Count() {
		return false, fmt.Errorf("%w: %s has no function %d", missionseq.ErrStructure, loc.Name(), i)
	}
	for _, a := range p.assocs {
		for _, l := range a.locators {
			if l == loc {
				return p.locate(ctx, a, loc, i)
			}
		}
	}
	return false, fmt.Errorf("%w: %s is not registered with this Propagate", missionseq.ErrStructure, loc.Name())
}

func (p *Propagate) locate(ctx *Context, a *association, loc *event.Locator, i int) (bool, error) {
	prev, cur := loc.Previous(i), loc.Current(i)
	resume := p.beginSearch(a)
	_, _, found, err := p.search(a, loc, i, 0, prev.Value, resume.elapsed-a.startElapsed, cur.Value, false)
	if rerr := p.endSearch(a, resume); err == nil {
		err = rerr
	}
	if err != nil {
		return false, err
	}
	return p.record(ctx, loc, i, found), nil
}

func (p *Propagate) locateExtremum(ctx *Context, a *association, loc *event.Locator, i int) error {
	prev, cur := loc.Previous(i), loc.Current(i)
	resume := p.beginSearch(a)
	span := resume.elapsed - a.startElapsed
	err := func() error {
		tE, ext, _, err := p.search(a, loc, i, 0, prev.Derivative, span, cur.Derivative, true)
		if err != nil || ext.Epoch.IsZero() || (prev.Value < 0) == (ext.Value < 0) {
			return err
		}
		for _, b := range [2][4]float64{{0, prev.Value, tE, ext.Value}, {tE, ext.Value, span, cur.Value}} {
			_, _, found, err := p.search(a, loc, i, b[0], b[1], b[2], b[3], false)
			if err != nil {
				return err
			}
			p.record(ctx, loc, i, found)
		}
		return nil
	}()
	if rerr := p.endSearch(a, resume); err == nil {
		err = rerr
	}
	return err
}

// search runs the bracketing root finder on the value, or the derivative, of a function between
// two times relative to the start of the last step. It returns the last evaluated time and sample
// and whether they are within the tolerance of the locator.
func (p *Propagate) search(a *association, loc *event.Locator, i int, t0, f0, t1, f1 float64, derivative bool) (float64, event.Sample, bool, error) {
	root := event.NewBrent(searchResolution)
	if err := root.Initialize(t0, f0, t1, f1); err != nil {
		return 0, event.Sample{}, false, nil
	}
	var (
		t float64
		s event.Sample
	)
	for iter := 0; iter < loc.MaxIterations; iter++ {
		t = root.Next()
		var err error
		if s, err = p.trial(a, loc, i, t); err != nil {
			return t, s, false, err
		}
		v := s.Value
		if derivative {
			v = s.Derivative
		}
		if loc.Converged(v) {
			return t, s, true, nil
		}
		root.SetValue(t, v)
	}
	return t, s, false, nil
}

// trial steps from the start of the last step by t seconds and evaluates the function there.
func (p *Propagate) trial(a *association, loc *event.Locator, i int, t float64) (event.Sample, error) {
	if err := a.prop.SetState(a.start, a.startElapsed); err != nil {
		return event.Sample{}, err
	}
	if t != 0 {
		if err := a.prop.Step(t); err != nil {
			return event.Sample{}, fmt.Errorf("event search of %s: %w", loc.Functions()[i].Name(), err)
		}
	}
	if err := a.sync(); err != nil {
		return event.Sample{}, err
	}
	return loc.EvaluateFunction(i, a.epoch(), a.targetStates(loc, a.manager.State()))
}

// beginSearch buffers the participants and suspends the publishing.
func (p *Propagate) beginSearch(a *association) resumePoint {
	p.searching = true
	for k, sc := range a.participants {
		a.snapshots[k].Restore(sc)
	}
	return resumePoint{state: a.prop.State(), elapsed: a.prop.Elapsed()}
}

// endSearch restores the state from before the search.
func (p *Propagate) endSearch(a *association, r resumePoint) error {
	p.searching = false
	for k, sc := range a.participants {
		sc.Restore(a.snapshots[k])
	}
	if err := a.prop.SetState(r.state, r.elapsed); err != nil {
		return err
	}
	return a.manager.SetState(r.state)
}

func (p *Propagate) record(ctx *Context, loc *event.Locator, i int, found bool) bool {
	fn := loc.Functions()[i]
	if !found {
		ctx.Metrics.EventAbandoned()
		level.Debug(p.logger).Log("locator", loc.Name(), "event", fn.Name(), "status", "abandoned", "iterations", loc.MaxIterations)
		return false
	}
	s := loc.Last(i)
	if !loc.BufferEvent(i) {
		level.Debug(p.logger).Log("locator", loc.Name(), "event", fn.Name(), "status", "skipped", "epoch", s.Epoch.Format(time.RFC3339Nano))
		return false
	}
	boundary := fn.Boundary(s.Derivative > 0)
	ctx.Metrics.EventLocated(fn.Type(), boundary)
	level.Info(p.logger).Log("locator", loc.Name(), "event", fn.Name(), "boundary", boundary, "epoch", s.Epoch.Format(time.RFC3339Nano), "value", s.Value)
	return true
}

// TakeAction implements the ActionTaker interface: ResetLoopData and Clear make the next
// execution rebuild the states as on the first one.
func (p *Propagate) TakeAction(action string) bool {
	switch action {
	case ResetLoopData, Clear:
		p.hasFired = false
		return true
	}
	return false
}

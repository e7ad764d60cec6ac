package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/ChristopherRabotin/missionseq/dynamics"
	"github.com/ChristopherRabotin/missionseq/event"
	"github.com/ChristopherRabotin/missionseq/integrator"
	"github.com/ChristopherRabotin/missionseq/object"
	"github.com/ChristopherRabotin/missionseq/publish"
	"github.com/stretchr/testify/require"
)

var epoch0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func spacecraft(t *testing.T, name string, state []float64, origin bodies.CelestialObject) *object.Spacecraft {
	sc, err := object.NewSpacecraft(name, epoch0, state, origin, 500, 100)
	require.NoError(t, err)
	return sc
}

func twoBody(t *testing.T) *dynamics.ForceModel {
	fm := dynamics.NewForceModel(missionseq.NormRSS, 0.1)
	grav, err := dynamics.NewPointMassGravity(bodies.Earth, bodies.Earth, nil)
	require.NoError(t, err)
	require.NoError(t, fm.AddForce(grav))
	return fm
}

func rkf45(t *testing.T) integrator.Propagator {
	prop, err := integrator.New("RKF45", missionseq.DefaultConfig().Propagation)
	require.NoError(t, err)
	return prop
}

// mission returns a context on a store of the spacecraft recording into a new recorder.
func mission(t *testing.T, scs ...*object.Spacecraft) (*Context, *publish.Recorder) {
	store, err := object.NewStore(scs...)
	require.NoError(t, err)
	ctx := NewContext(store, missionseq.DefaultConfig())
	rec := publish.NewRecorder()
	ctx.Publisher = rec
	return ctx, rec
}

func run(ctx *Context, cmds ...Command) error {
	s := NewSequence()
	for _, cmd := range cmds {
		if _, err := s.AppendCommand(cmd); err != nil {
			return err
		}
	}
	return NewSandbox(s, ctx).Run(context.Background())
}

func propagate(t *testing.T, d time.Duration, model *dynamics.ForceModel, names ...string) *Propagate {
	p := NewPropagate(d, Setup{Propagator: rkf45(t), Model: model, Participants: names})
	p.StepSize = time.Minute
	return p
}

func TestPropagateInLoop(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, rec := mission(t, sc)
	prop := propagate(t, time.Minute, twoBody(t), "sc")
	require.NoError(t, run(ctx,
		NewFor("i", Constant(1), Constant(1), Constant(3)),
		prop,
		EndFor{},
	))
	require.True(t, prop.Fired())
	require.Len(t, rec.Streams(), 1, "a command registers its stream once")
	require.Equal(t, 3, rec.Count(), "one publish per step, none on re-entry")
	require.WithinDuration(t, epoch0.Add(3*time.Minute), sc.Epoch, time.Microsecond)
	streams := rec.Streams()
	require.Equal(t, []string{"sc"}, streams[0].Owners)
	require.Equal(t, []string{"sc.X", "sc.Y", "sc.Z", "sc.VX", "sc.VY", "sc.VZ"}, streams[0].Elements)
	require.Equal(t, epoch0, streams[0].Epoch)
	entries := rec.Entries()
	require.Equal(t, sc.State, entries[2].Data)

	require.True(t, prop.TakeAction(ResetLoopData))
	require.False(t, prop.Fired())
}

func TestPropagateStepAdditivity(t *testing.T) {
	one := spacecraft(t, "one", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	two := spacecraft(t, "two", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, _ := mission(t, one, two)
	coarse := propagate(t, 2*time.Minute, twoBody(t), "one")
	coarse.StepSize = 2 * time.Minute
	fine := propagate(t, 2*time.Minute, twoBody(t), "two")
	require.NoError(t, run(ctx, coarse, fine))
	require.InDeltaSlice(t, one.State, two.State, 1e-6)
	require.Equal(t, one.Epoch, two.Epoch)
}

func TestPropagateBackwards(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, rec := mission(t, sc)
	require.NoError(t, run(ctx,
		propagate(t, 150*time.Second, twoBody(t), "sc"),
		propagate(t, -150*time.Second, twoBody(t), "sc"),
	))
	require.Equal(t, epoch0, sc.Epoch)
	require.InDeltaSlice(t, []float64{7000, 0, 0, 0, 7.5, 0}, sc.State, 1e-6)
	require.Equal(t, 6, rec.Count(), "the last step of each direction is shortened")
}

func apsides(t *testing.T, cfg missionseq.EventConfig) (*event.Locator, *event.Table) {
	table := event.NewTable()
	loc, err := event.NewLocator("apsides", []string{"sc"}, cfg, table, &event.Apsis{Body: bodies.Earth})
	require.NoError(t, err)
	return loc, table
}

func TestPropagateLocatesApsides(t *testing.T) {
	// Periapsis at 7000 km, period of about 7108 s.
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 8, 0}, bodies.Earth)
	ctx, rec := mission(t, sc)
	cfg := ctx.Config.Events
	cfg.Tolerance = 1e-4
	loc, table := apsides(t, cfg)
	ctx.Locators = []*event.Locator{loc}
	require.NoError(t, run(ctx, propagate(t, 2*time.Hour, twoBody(t), "sc")))

	records := table.Records()
	require.Len(t, records, 2)
	for i, exp := range []struct {
		boundary string
		from, to float64
	}{
		{"Apoapsis", 3500, 3600},
		{"Periapsis", 7050, 7150},
	} {
		r := records[i]
		require.Equal(t, exp.boundary, r.Boundary)
		require.Equal(t, "Apsis", r.Type)
		require.Equal(t, "Apsis.Earth", r.Function)
		require.Equal(t, []string{"sc"}, r.Participants)
		at := r.Epoch.Sub(epoch0).Seconds()
		require.True(t, at > exp.from && at < exp.to, "%s at %f s", exp.boundary, at)
		require.LessOrEqual(t, abs(r.Value), 1e-4)
	}
	require.Equal(t, 120, rec.Count(), "searches do not publish")
	require.Len(t, rec.Streams()[0].Elements, 7, "the event slot is part of the stream")
	require.Equal(t, "apsides.Apsis.Earth", rec.Streams()[0].Elements[6])

	// The searches leave the trajectory untouched.
	ref := spacecraft(t, "ref", []float64{7000, 0, 0, 0, 8, 0}, bodies.Earth)
	refCtx, _ := mission(t, ref)
	require.NoError(t, run(refCtx, propagate(t, 2*time.Hour, twoBody(t), "ref")))
	require.InDeltaSlice(t, ref.State, sc.State, 1e-3)
	require.Equal(t, ref.Epoch, sc.Epoch)
}

func TestPropagateAbandonsSearch(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 8, 0}, bodies.Earth)
	ctx, _ := mission(t, sc)
	cfg := ctx.Config.Events
	cfg.Tolerance, cfg.MaxIterations = 1e-12, 1
	loc, table := apsides(t, cfg)
	ctx.Locators = []*event.Locator{loc}
	require.NoError(t, run(ctx, propagate(t, time.Hour, twoBody(t), "sc")))
	require.Zero(t, table.Len())
	require.WithinDuration(t, epoch0.Add(time.Hour), sc.Epoch, time.Microsecond)
}

func TestPropagateIgnoresOtherTargets(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 8, 0}, bodies.Earth)
	other := spacecraft(t, "other", []float64{7000, 0, 0, 0, 8, 0}, bodies.Earth)
	ctx, rec := mission(t, sc, other)
	loc, table := apsides(t, ctx.Config.Events)
	ctx.Locators = []*event.Locator{loc}
	require.NoError(t, run(ctx, propagate(t, 2*time.Hour, twoBody(t), "other")))
	require.Zero(t, table.Len())
	require.Len(t, rec.Streams()[0].Elements, 6)

	loc.Active = false
	ctx, _ = mission(t, spacecraft(t, "sc", []float64{7000, 0, 0, 0, 8, 0}, bodies.Earth))
	ctx.Locators = []*event.Locator{loc}
	require.NoError(t, run(ctx, propagate(t, 2*time.Hour, twoBody(t), "sc")))
	require.Zero(t, table.Len(), "inactive locator")
}

func TestLocateEventErrors(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 8, 0}, bodies.Earth)
	ctx, _ := mission(t, sc)
	loc, _ := apsides(t, ctx.Config.Events)
	prop := propagate(t, time.Minute, twoBody(t), "sc")
	require.NoError(t, prop.Initialize(ctx))
	_, err := prop.LocateEvent(ctx, loc, 0)
	require.True(t, errors.Is(err, missionseq.ErrStructure), "unregistered locator: %v", err)
	_, err = prop.LocateEvent(ctx, loc, 3)
	require.True(t, errors.Is(err, missionseq.ErrStructure), "no such function: %v", err)
}

func TestPropagateStructuralErrors(t *testing.T) {
	orbiting := func() *Context {
		c, _ := mission(t, spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth))
		return c
	}
	collapsed := func() *Context {
		c, _ := mission(t, spacecraft(t, "sc", make([]float64, 6), bodies.Earth))
		return c
	}
	for _, test := range []struct {
		name  string
		ctx   func() *Context
		setup func() Setup
		err   error
	}{
		{
			"missing force model",
			orbiting,
			func() Setup { return Setup{Propagator: rkf45(t), Participants: []string{"sc"}} },
			missionseq.ErrStructure,
		},
		{
			"missing propagator",
			orbiting,
			func() Setup { return Setup{Model: twoBody(t), Participants: []string{"sc"}} },
			missionseq.ErrStructure,
		},
		{
			"unknown participant",
			orbiting,
			func() Setup { return Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"ghost"}} },
			missionseq.ErrStructure,
		},
		{
			"participant twice",
			orbiting,
			func() Setup {
				return Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"sc", "sc"}}
			},
			missionseq.ErrStructure,
		},
		{
			"no object store",
			func() *Context { return NewContext(nil, missionseq.DefaultConfig()) },
			func() Setup { return Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"sc"}} },
			missionseq.ErrStructure,
		},
		{
			"collapsed orbit",
			collapsed,
			func() Setup { return Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"sc"}} },
			missionseq.ErrNumerical,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := run(test.ctx(), NewPropagate(time.Minute, test.setup()))
			require.Error(t, err)
			require.True(t, errors.Is(err, test.err), "got %v", err)
		})
	}

	ctx, _ := mission(t, spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth))
	err := run(ctx, NewPropagate(time.Minute))
	require.True(t, errors.Is(err, missionseq.ErrStructure), "no setup: %v", err)
}

func TestPropagateRequiresCommonEpoch(t *testing.T) {
	a := spacecraft(t, "a", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	b := spacecraft(t, "b", []float64{-7000, 0, 0, 0, -7.5, 0}, bodies.Earth)
	b.Epoch = epoch0.Add(time.Second)
	ctx, _ := mission(t, a, b)
	err := run(ctx, propagate(t, time.Minute, twoBody(t), "a", "b"))
	require.True(t, errors.Is(err, missionseq.ErrStructure), "got %v", err)
}

func TestPropagateSeveralParticipants(t *testing.T) {
	a := spacecraft(t, "a", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	b := spacecraft(t, "b", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	c := spacecraft(t, "c", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, rec := mission(t, a, b, c)
	together := NewPropagate(5*time.Minute,
		Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"a", "b"}},
		Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"c"}},
	)
	require.NoError(t, run(ctx, together))
	require.InDeltaSlice(t, a.State, b.State, 1e-9)
	require.InDeltaSlice(t, a.State, c.State, 1e-6)
	require.Len(t, rec.Streams(), 2)
	require.Equal(t, []string{"a", "b"}, rec.Streams()[0].Owners)
	require.Len(t, rec.Streams()[0].Elements, 12)
}

func TestStopBeforePropagate(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, rec := mission(t, sc)
	err := run(ctx, Stop{}, propagate(t, time.Hour, twoBody(t), "sc"))
	require.True(t, errors.Is(err, missionseq.ErrInterrupted), "got %v", err)
	require.Equal(t, epoch0, sc.Epoch)
	require.Zero(t, rec.Count())
}

func TestToggleMutesPublishing(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, rec := mission(t, sc)
	require.NoError(t, run(ctx,
		&Toggle{Participants: []string{"sc"}, On: false},
		propagate(t, 2*time.Minute, twoBody(t), "sc"),
		&Toggle{Participants: []string{"sc"}, On: true},
		propagate(t, 2*time.Minute, twoBody(t), "sc"),
	))
	require.Len(t, rec.Streams(), 2, "muted streams are still registered")
	require.Equal(t, 2, rec.Count())
	for _, e := range rec.Entries() {
		require.Equal(t, 1, e.Stream)
	}
}

// offset places the Moon at a fixed distance from the Earth along X.
type offset float64

func (o offset) Transform(epoch time.Time, state []float64, from, to string) ([]float64, error) {
	out := append([]float64(nil), state...)
	switch {
	case from == to:
	case from == bodies.Moon.Name && to == bodies.Earth.Name:
		out[0] += float64(o)
	case from == bodies.Earth.Name && to == bodies.Moon.Name:
		out[0] -= float64(o)
	default:
		return nil, fmt.Errorf("no transform from %s to %s", from, to)
	}
	return out, nil
}

func TestPropagateInAnotherFrame(t *testing.T) {
	const d = 384400.0
	moon := spacecraft(t, "moon", []float64{7000 - d, 0, 0, 0, 7.5, 0}, bodies.Moon)
	earth := spacecraft(t, "earth", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, _ := mission(t, moon, earth)
	ctx.Transform = offset(d)
	p := NewPropagate(10*time.Minute,
		Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"moon"}, Origin: bodies.Earth.Name},
		Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"earth"}},
	)
	require.NoError(t, run(ctx, p))
	require.Equal(t, bodies.Moon.Name, moon.Origin.Name, "participants keep their origin")
	require.InDelta(t, earth.State[0]-d, moon.State[0], 1e-6)
	require.InDeltaSlice(t, earth.State[1:], moon.State[1:], 1e-6)

	// Without a transform the frames cannot be bridged.
	ctx, _ = mission(t, spacecraft(t, "moon", []float64{7000 - d, 0, 0, 0, 7.5, 0}, bodies.Moon))
	err := run(ctx, NewPropagate(time.Minute, Setup{Propagator: rkf45(t), Model: twoBody(t), Participants: []string{"moon"}, Origin: bodies.Earth.Name}))
	require.Error(t, err)
}

func TestFiniteBurnCommands(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, rec := mission(t, sc)
	model := twoBody(t)
	burn, err := dynamics.NewFiniteBurn("main", dynamics.Thruster{Thrust: 1, Isp: 300}, dynamics.Tangential, "")
	require.NoError(t, err)
	require.NoError(t, model.AddForce(burn))

	require.NoError(t, run(ctx,
		&BeginBurn{Burn: "main"},
		propagate(t, 10*time.Minute, model, "sc"),
		NewAssignment("fuelAfter", Parameter{Object: "sc", Name: "FUEL"}),
		&EndBurn{Burn: "main"},
		propagate(t, 10*time.Minute, model, "sc"),
	))
	fuel, ok := ctx.Variable("fuelAfter")
	require.True(t, ok)
	require.InDelta(t, 100-600/(300*9.80665), fuel, 1e-6)
	require.InDelta(t, fuel, sc.FuelMass, 1e-9, "no mass flow once the burn ended")
	require.False(t, burn.IsActive(), "the commands act on copies of the force model")
	require.Equal(t, "sc.Mass", rec.Streams()[0].Elements[6])

	// The energy gained shows the thrust was applied.
	ref := spacecraft(t, "ref", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	refCtx, _ := mission(t, ref)
	require.NoError(t, run(refCtx, propagate(t, 20*time.Minute, twoBody(t), "ref")))
	got, _ := sc.Parameter("ENERGY")
	exp, _ := ref.Parameter("ENERGY")
	require.Greater(t, got, exp)
}

func TestSeveralActiveBurns(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, _ := mission(t, sc)
	model := twoBody(t)
	for _, name := range []string{"a", "b"} {
		burn, err := dynamics.NewFiniteBurn(name, dynamics.Thruster{Thrust: 1, Isp: 300}, dynamics.Tangential, "")
		require.NoError(t, err)
		require.NoError(t, model.AddForce(burn))
	}
	err := run(ctx, &BeginBurn{Burn: "a"}, &BeginBurn{Burn: "b"}, propagate(t, time.Minute, model, "sc"))
	require.True(t, errors.Is(err, missionseq.ErrStructure), "got %v", err)
}

func TestBurnStopsWithEmptyTank(t *testing.T) {
	sc, err := object.NewSpacecraft("sc", epoch0, []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth, 500, 1)
	require.NoError(t, err)
	ctx, _ := mission(t, sc)
	model := twoBody(t)
	burn, err := dynamics.NewFiniteBurn("main", dynamics.Thruster{Thrust: 10, Isp: 300}, dynamics.Tangential, "")
	require.NoError(t, err)
	require.NoError(t, model.AddForce(burn))

	// About 2 kg of propellant needed, 1 kg on board.
	err = run(ctx, &BeginBurn{Burn: "main"}, propagate(t, 10*time.Minute, model, "sc"))
	require.True(t, errors.Is(err, missionseq.ErrNumerical), "got %v", err)
	require.Contains(t, err.Error(), "ran out of fuel")
	require.GreaterOrEqual(t, sc.FuelMass, 0.0)
	require.GreaterOrEqual(t, sc.TotalMass(), sc.DryMass)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

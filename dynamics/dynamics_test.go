package dynamics

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

type craft struct {
	name      string
	rv        []float64
	mass      float64
	cd, area  float64
	eventVals []float64
}

func (c *craft) Name() string { return c.name }

func (c *craft) Elements(t ElementType) ([]float64, error) {
	switch t {
	case CartesianState:
		return append([]float64(nil), c.rv...), nil
	case MassState:
		return []float64{c.mass}, nil
	case EventState:
		if c.eventVals == nil {
			return nil, errors.New("no events")
		}
		return append([]float64(nil), c.eventVals...), nil
	}
	return nil, fmt.Errorf("unsupported %s", t)
}

func (c *craft) SetElements(t ElementType, v []float64) error {
	switch t {
	case CartesianState:
		copy(c.rv, v)
	case MassState:
		c.mass = v[0]
	case EventState:
		copy(c.eventVals, v)
	}
	return nil
}

func (c *craft) TotalMass() float64       { return c.mass }
func (c *craft) DragCoefficient() float64 { return c.cd }
func (c *craft) DragArea() float64        { return c.area }

func leo(name string) *craft {
	return &craft{name: name, rv: []float64{7000, 0, 0, 0, 7.5460491, 0}, mass: 500, cd: 2.2, area: 10}
}

func TestStateManagerLayout(t *testing.T) {
	a, b := leo("a"), leo("b")
	b.rv[0] = 8000
	ev := &craft{name: "events", eventVals: []float64{1, 2}}
	sm := NewStateManager()
	if err := sm.AddObject(a, CartesianState, MassState); err != nil {
		t.Fatal(err)
	}
	sm.AddObject(b)
	sm.AddObject(ev, EventState)
	if err := sm.BuildState(); err != nil {
		t.Fatal(err)
	}
	if sm.Dimension() != 6+6+1+2 {
		t.Fatalf("dimension %d", sm.Dimension())
	}
	layout := sm.Layout()
	expTypes := []ElementType{CartesianState, CartesianState, MassState, EventState, EventState}
	expStarts := []int{0, 6, 12, 13, 14}
	for i, start := range expStarts {
		if layout[start].Type != expTypes[i] || layout[start].Index != start {
			t.Fatalf("unexpected layout at %d: %+v", start, layout[start])
		}
	}
	if layout[6].Owner != b || layout[12].Owner != a || layout[14].Offset != 1 {
		t.Fatal("wrong owners")
	}
	if Offset(layout, a, MassState) != 12 || Offset(layout, b, MassState) != -1 {
		t.Fatal("wrong mass offsets")
	}
	state := append([]float64(nil), sm.State()...)
	state[6] = 9000
	state[12] = 450
	state[14] = -3
	sm.SetState(state)
	if err := sm.MapVectorToObjects(); err != nil {
		t.Fatal(err)
	}
	if b.rv[0] != 9000 || a.mass != 450 || ev.eventVals[1] != -3 {
		t.Fatal("state not mapped back")
	}
	if err := sm.SetState([]float64{1}); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatalf("expected a structure error, got %v", err)
	}
}

func TestStateManagerUnsupported(t *testing.T) {
	sm := NewStateManager()
	sm.AddObject(leo("a"), EventState)
	if err := sm.BuildState(); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatalf("expected a structure error, got %v", err)
	}
}

func TestAddForceRules(t *testing.T) {
	fm := NewForceModel(missionseq.NormRSS, 0.1)
	if err := fm.AddForce(nil); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatal("nil force accepted")
	}
	if err := fm.AddForce(NewEarthDrag()); err == nil {
		t.Fatal("drag accepted without primary gravity")
	}
	earth, _ := NewPointMassGravity(bodies.Earth, bodies.Earth, nil)
	if err := fm.AddForce(earth); err != nil {
		t.Fatal(err)
	}
	again, _ := NewPointMassGravity(bodies.Earth, bodies.Earth, nil)
	if err := fm.AddForce(again); err == nil {
		t.Fatal("second primary gravity for the same body accepted")
	}
	if err := fm.AddForce(NewEarthDrag()); err != nil {
		t.Fatal(err)
	}
	burn1, _ := NewFiniteBurn("burn1", Thruster{1, 300}, Tangential, "")
	burn2, _ := NewFiniteBurn("burn2", Thruster{1, 300}, Tangential, "")
	burn1.SetActive(true)
	burn2.SetActive(true)
	if err := fm.AddForce(burn1); err != nil {
		t.Fatal(err)
	}
	if err := fm.AddForce(burn2); err == nil {
		t.Fatal("two active transients accepted")
	}
	burn2.SetActive(false)
	if err := fm.AddForce(burn2); err != nil {
		t.Fatal(err)
	}
	burn2.SetActive(true)
	sm := NewStateManager()
	sm.AddObject(leo("sc"))
	sm.BuildState()
	if err := fm.BuildModelFromMap(sm.Layout()); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatal("two active transients mapped")
	}
	if !fm.DeleteForce("burn2") || fm.DeleteForce("burn2") {
		t.Fatal("delete force failed")
	}
	if len(fm.Forces()) != 3 {
		t.Fatalf("expected 3 forces, got %d", len(fm.Forces()))
	}
}

type recorder struct {
	cartesianStarts
	calls []string
}

func (r *recorder) Name() string                       { return "recorder" }
func (r *recorder) Kind() ForceKind                    { return Perturbation }
func (r *recorder) Body() string                       { return "" }
func (r *recorder) SupportsElement(t ElementType) bool { return t != EventState }
func (r *recorder) SetStart(t ElementType, start, count int, owners []Propagatable) error {
	r.calls = append(r.calls, fmt.Sprintf("%s@%d*%d", t, start, count))
	return nil
}
func (r *recorder) Derivatives(state []float64, epoch time.Time, order int, deriv []float64) error {
	deriv[len(deriv)-1] = 1
	return nil
}
func (r *recorder) Clone() PhysicalModel { return &recorder{} }

func TestBuildModelFromMap(t *testing.T) {
	sm := NewStateManager()
	a, b := leo("a"), leo("b")
	sm.AddObject(a, CartesianState, MassState)
	sm.AddObject(b, CartesianState, MassState)
	sm.AddObject(&craft{name: "ev", eventVals: []float64{0}}, EventState)
	sm.BuildState()
	rec := &recorder{}
	fm := NewForceModel(missionseq.NormRSS, 0.1)
	fm.AddForce(rec)
	if err := fm.BuildModelFromMap(sm.Layout()); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 2 || rec.calls[0] != "Cartesian@0*2" || rec.calls[1] != "Mass@12*2" {
		t.Fatalf("unexpected start calls: %v", rec.calls)
	}
	deriv, err := fm.GetDerivatives(sm.State(), 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Velocities are seeded in the position rates and the recorder wrote the last slot.
	if deriv[1] != a.rv[4] || deriv[7] != b.rv[4] || deriv[14] != 1 {
		t.Fatalf("unexpected derivatives: %v", deriv)
	}
	if _, err := fm.GetDerivatives(sm.State(), 0, 2); !errors.Is(err, missionseq.ErrNumerical) {
		t.Fatal("second order accepted")
	}
	broken := []Element{{Type: CartesianState, Index: 0}}
	if err := fm.BuildModelFromMap(broken); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatal("partial Cartesian block accepted")
	}
}

func TestTwoBodyDerivatives(t *testing.T) {
	sc := leo("sc")
	sm := NewStateManager()
	sm.AddObject(sc)
	sm.BuildState()
	fm := NewForceModel(missionseq.NormRSS, 0.1)
	earth, _ := NewPointMassGravity(bodies.Earth, bodies.Earth, nil)
	fm.AddForce(earth)
	j2, _ := NewZonalHarmonics(bodies.Earth, 2)
	fm.AddForce(j2)
	if err := fm.BuildModelFromMap(sm.Layout()); err != nil {
		t.Fatal(err)
	}
	deriv, err := fm.GetDerivatives(sm.State(), 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	μ := bodies.Earth.GM()
	// In the equatorial plane, J2 strengthens the radial pull by 3/2 J2 (R/r)^2.
	expAx := -μ / (7000 * 7000) * (1 + 1.5*bodies.Earth.J2*math.Pow(bodies.Earth.Radius/7000, 2))
	if !scalar.EqualWithinRel(deriv[3], expAx, 1e-12) {
		t.Fatalf("ax=%g expected %g", deriv[3], expAx)
	}
	if !scalar.EqualWithinAbs(deriv[4], 0, 1e-15) || !scalar.EqualWithinAbs(deriv[5], 0, 1e-15) {
		t.Fatalf("unexpected out of plane acceleration: %v", deriv)
	}
	if deriv[1] != sc.rv[4] {
		t.Fatal("position rates not seeded")
	}
	clone, err := fm.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if clone.Dimension() != 6 {
		t.Fatal("clone not mapped")
	}
	cderiv, err := clone.GetDerivatives(sm.State(), 0, 1)
	if err != nil || !floats.Equal(cderiv, deriv) {
		t.Fatalf("clone differs: %v", err)
	}
}

func TestThirdBody(t *testing.T) {
	if _, err := NewPointMassGravity(bodies.Sun, bodies.Earth, nil); err == nil {
		t.Fatal("third body without ephemeris")
	}
	moon, _ := NewPointMassGravity(bodies.Moon, bodies.Earth, fixedEphem{384400, 0, 0})
	if moon.Kind() != ThirdBodyGravity {
		t.Fatal("moon should be a third body")
	}
	moon.SetStart(CartesianState, 0, 1, []Propagatable{leo("sc")})
	deriv := make([]float64, 6)
	state := []float64{7000, 0, 0, 0, 7.5, 0}
	if err := moon.Derivatives(state, time.Now(), 1, deriv); err != nil {
		t.Fatal(err)
	}
	μ := bodies.Moon.GM()
	exp := μ * (1/math.Pow(384400-7000, 2) - 1/math.Pow(384400, 2))
	if !scalar.EqualWithinRel(deriv[3], exp, 1e-12) {
		t.Fatalf("moon tide %g expected %g", deriv[3], exp)
	}
}

type fixedEphem []float64

func (f fixedEphem) Position(target, center bodies.CelestialObject, epoch time.Time) ([]float64, error) {
	return f, nil
}

func TestCloneReportsLayoutErrors(t *testing.T) {
	sm := NewStateManager()
	sm.AddObject(leo("sc"), CartesianState, MassState)
	sm.BuildState()
	fm := NewForceModel(missionseq.NormRSS, 0.1)
	earth, _ := NewPointMassGravity(bodies.Earth, bodies.Earth, nil)
	fm.AddForce(earth)
	a, _ := NewFiniteBurn("a", Thruster{Thrust: 1, Isp: 300}, Tangential, "")
	b, _ := NewFiniteBurn("b", Thruster{Thrust: 1, Isp: 300}, Tangential, "")
	fm.AddForce(a)
	fm.AddForce(b)
	if err := fm.BuildModelFromMap(sm.Layout()); err != nil {
		t.Fatal(err)
	}
	a.SetActive(true)
	b.SetActive(true)
	if _, err := fm.Clone(); !errors.Is(err, missionseq.ErrStructure) {
		t.Fatalf("expected a structural error, got %v", err)
	}
}

func TestDragAndBurn(t *testing.T) {
	sc := leo("sc")
	sc.rv = []float64{bodies.Earth.Radius + 700, 0, 0, 0, 7.5, 0}
	sm := NewStateManager()
	sm.AddObject(sc, CartesianState, MassState)
	sm.BuildState()
	fm := NewForceModel(missionseq.NormRSS, 0.1)
	earth, _ := NewPointMassGravity(bodies.Earth, bodies.Earth, nil)
	fm.AddForce(earth)
	drag := NewEarthDrag()
	fm.AddForce(drag)
	burn, _ := NewFiniteBurn("burn", Thruster{Thrust: 10, Isp: 300}, Tangential, "sc")
	burn.SetActive(true)
	fm.AddForce(burn)
	if err := fm.BuildModelFromMap(sm.Layout()); err != nil {
		t.Fatal(err)
	}
	deriv, err := fm.GetDerivatives(sm.State(), 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	vRel := 7.5 - bodies.Earth.Rotation*sc.rv[0]
	dragAcc := -0.5 * 3.614e-13 * 2.2 * 10 / 500 * vRel * vRel * 1e3
	burnAcc := 10 / 500. / 1e3
	if !scalar.EqualWithinRel(deriv[4], dragAcc+burnAcc, 1e-9) {
		t.Fatalf("ay=%g expected %g", deriv[4], dragAcc+burnAcc)
	}
	if !scalar.EqualWithinRel(deriv[6], -10/(300*g0), 1e-12) {
		t.Fatalf("mass flow %g", deriv[6])
	}
	burn.SetActive(false)
	deriv, _ = fm.GetDerivatives(sm.State(), 0, 1)
	if deriv[6] != 0 {
		t.Fatal("inactive burn still flowing")
	}
	state := append([]float64(nil), sm.State()...)
	state[6] = 0
	if _, err := fm.GetDerivatives(state, 0, 1); !errors.Is(err, missionseq.ErrNumerical) {
		t.Fatalf("expected a numerical error on a massless craft, got %v", err)
	}
}

func TestEstimateError(t *testing.T) {
	sm := NewStateManager()
	sm.AddObject(leo("sc"))
	sm.BuildState()
	start := []float64{7000, 0, 0, 0, 7.5, 0}
	answer := []float64{7000, 75, 0, -0.1, 7.5, 0}
	diffs := []float64{0, 1e-6, 0, 0, 1e-9, 0}
	for _, test := range []struct {
		norm missionseq.ErrorNorm
		exp  float64
	}{
		{missionseq.NormNone, 1e-6},
		{missionseq.NormRSS, 1e-6 / 75},
		{missionseq.NormLargest, 1e-6 / 75},
	} {
		fm := NewForceModel(test.norm, 0.1)
		fm.BuildModelFromMap(sm.Layout())
		if got := fm.EstimateError(diffs, answer, start); !scalar.EqualWithinRel(got, test.exp, 1e-9) {
			t.Fatalf("%s: error %g expected %g", test.norm, got, test.exp)
		}
	}
}

func TestVectors(t *testing.T) {
	if !floats.Equal(Cross([]float64{1, 0, 0}, []float64{0, 1, 0}), []float64{0, 0, 1}) {
		t.Fatal("cross failed")
	}
	if Dot([]float64{1, 2, 3}, []float64{4, 5, 6}) != 32 {
		t.Fatal("dot failed")
	}
	if !floats.Equal(Unit([]float64{0, 0, 0}), []float64{0, 0, 0}) {
		t.Fatal("unit of zero")
	}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !EpochAfter(base, 60.5).Equal(base.Add(60500 * time.Millisecond)) {
		t.Fatal("epoch offset failed")
	}
}

func TestSuperpositionOrder(t *testing.T) {
	sm := NewStateManager()
	sm.AddObject(leo("sc"))
	sm.BuildState()
	models := func() []PhysicalModel {
		earth, _ := NewPointMassGravity(bodies.Earth, bodies.Earth, nil)
		j2, _ := NewZonalHarmonics(bodies.Earth, 2)
		moon, _ := NewPointMassGravity(bodies.Moon, bodies.Earth, fixedEphem{384400, 0, 0})
		return []PhysicalModel{earth, j2, moon}
	}
	derivatives := func(order ...int) []float64 {
		pms := models()
		fm := NewForceModel(missionseq.NormRSS, 0.1)
		for _, i := range order {
			if err := fm.AddForce(pms[i]); err != nil {
				t.Fatal(err)
			}
		}
		if err := fm.BuildModelFromMap(sm.Layout()); err != nil {
			t.Fatal(err)
		}
		deriv, err := fm.GetDerivatives(sm.State(), 0, 1)
		if err != nil {
			t.Fatal(err)
		}
		return deriv
	}
	forward := derivatives(0, 1, 2)
	for _, order := range [][]int{{2, 1, 0}, {1, 0, 2}, {0, 2, 1}} {
		if got := derivatives(order...); !vectorsEqual(got, forward) {
			t.Fatalf("order %v: %v != %v", order, got, forward)
		}
	}
	// The sum of the parts, minus the velocities seeded by each part.
	sum := make([]float64, 6)
	for i := range models() {
		floats.Add(sum, derivatives(i))
	}
	copy(sum[:3], sm.State()[3:])
	if !vectorsEqual(sum, forward) {
		t.Fatalf("parts %v != whole %v", sum, forward)
	}
}

func TestThrusters(t *testing.T) {
	thr, point, err := CatalogThruster("HERMeS")
	if err != nil {
		t.Fatal(err)
	}
	if thr.Thrust != 0.680 || thr.Isp != 2960 || point.Power != 12500 {
		t.Fatalf("unexpected HERMeS rating %+v at %+v", thr, point)
	}
	if _, _, err := CatalogThruster("warp"); err == nil {
		t.Fatal("unknown thruster")
	}
	if _, err := GenericEP(0, 1000); err == nil {
		t.Fatal("thrustless thruster")
	}
	ep, _ := GenericEP(1, 300)
	if !scalar.EqualWithinRel(ep.MassFlow(), -1/(300*g0), 1e-12) {
		t.Fatalf("mass flow %g", ep.MassFlow())
	}
	for _, d := range []Direction{Tangential, AntiTangential, Radial, Normal} {
		back, err := DirectionFromString(d.String())
		if err != nil || back != d {
			t.Fatalf("%s does not round trip", d)
		}
	}
	assertPanic(t, func() {
		_ = Direction(0).String()
	})
}

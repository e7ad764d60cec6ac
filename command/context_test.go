package command

import (
	"errors"
	"testing"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/ChristopherRabotin/missionseq/object"
	"github.com/stretchr/testify/require"
)

func TestResolveFollowsRenames(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, _ := mission(t, sc)
	got, err := ctx.Resolve("sc")
	require.NoError(t, err)
	require.Same(t, sc, got)

	// Renaming through the store directly is detected by its revision.
	require.NoError(t, ctx.Objects.Rename("sc", "probe"))
	_, err = ctx.Resolve("sc")
	require.True(t, errors.Is(err, missionseq.ErrStructure), "stale name resolved: %v", err)
	require.True(t, errors.Is(err, object.ErrNotFound))
	got, err = ctx.Resolve("probe")
	require.NoError(t, err)
	require.Same(t, sc, got)

	require.NoError(t, ctx.Rename("probe", "sc"))
	got, err = ctx.Resolve("sc")
	require.NoError(t, err)
	require.Same(t, sc, got)
	require.Error(t, ctx.Rename("ghost", "sc"))

	empty := NewContext(nil, missionseq.DefaultConfig())
	_, err = empty.Resolve("sc")
	require.True(t, errors.Is(err, missionseq.ErrStructure))
	require.True(t, errors.Is(empty.Rename("a", "b"), missionseq.ErrStructure))
}

func TestParseOperand(t *testing.T) {
	for _, test := range []struct {
		in  string
		exp Expression
	}{
		{"42", Constant(42)},
		{" -1.5e3 ", Constant(-1500)},
		{"sc.RMAG", Parameter{Object: "sc", Name: "RMAG"}},
		{"counter", Variable("counter")},
	} {
		got, err := ParseOperand(test.in)
		require.NoError(t, err, test.in)
		require.Equal(t, test.exp, got, test.in)
	}
	for _, in := range []string{"", "  ", ".RMAG", "sc."} {
		_, err := ParseOperand(in)
		require.True(t, errors.Is(err, missionseq.ErrConfig), "%q: %v", in, err)
	}
}

func TestExpressions(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, _ := mission(t, sc)
	ctx.SetVariable("n", 3)
	for _, test := range []struct {
		expr Expression
		exp  float64
	}{
		{BinaryOp{Op: '+', Left: Variable("n"), Right: Constant(2)}, 5},
		{BinaryOp{Op: '-', Left: Variable("n"), Right: Constant(2)}, 1},
		{BinaryOp{Op: '*', Left: Variable("n"), Right: Constant(2)}, 6},
		{BinaryOp{Op: '/', Left: Variable("n"), Right: Constant(2)}, 1.5},
		{BinaryOp{Op: '^', Left: Variable("n"), Right: Constant(2)}, 9},
		{BinaryOp{Op: '-', Left: Parameter{Object: "sc", Name: "RMAG"}, Right: Constant(bodies.Earth.Radius)}, 7000 - bodies.Earth.Radius},
	} {
		got, err := test.expr.Evaluate(ctx)
		require.NoError(t, err, test.expr)
		require.InDelta(t, test.exp, got, 1e-12, test.expr)
	}

	_, err := BinaryOp{Op: '/', Left: Constant(1), Right: BinaryOp{Op: '-', Left: Variable("n"), Right: Constant(3)}}.Evaluate(ctx)
	require.True(t, errors.Is(err, missionseq.ErrNumerical), "got %v", err)
	_, err = BinaryOp{Op: '%', Left: Constant(1), Right: Constant(1)}.Evaluate(ctx)
	require.True(t, errors.Is(err, missionseq.ErrStructure))
	_, err = Variable("undefined").Evaluate(ctx)
	require.True(t, errors.Is(err, missionseq.ErrStructure))
	_, err = Parameter{Object: "ghost", Name: "X"}.Evaluate(ctx)
	require.True(t, errors.Is(err, missionseq.ErrStructure))
	require.Equal(t, "(n + sc.X)", BinaryOp{Op: '+', Left: Variable("n"), Right: Parameter{Object: "sc", Name: "X"}}.String())
}

func TestConditionLeftToRight(t *testing.T) {
	ctx := NewContext(nil, missionseq.DefaultConfig())
	ctx.SetVariable("x", 1)
	cond, err := NewCondition(Variable("x"), "==", Constant(1))
	require.NoError(t, err)
	require.NoError(t, cond.Join('|', Variable("x"), "==", Constant(1)))
	require.NoError(t, cond.Join('&', Variable("x"), "==", Constant(2)))
	ok, err := cond.Evaluate(ctx)
	require.NoError(t, err)
	require.False(t, ok, "(true | true) & false")

	for _, test := range []struct {
		op  string
		exp bool
	}{
		{"==", false}, {"~=", true}, {"!=", true}, {"<", true}, {"<=", true}, {">", false}, {">=", false},
	} {
		cond, err := NewCondition(Variable("x"), test.op, Constant(2))
		require.NoError(t, err)
		ok, err := cond.Evaluate(ctx)
		require.NoError(t, err)
		require.Equal(t, test.exp, ok, "1 %s 2", test.op)
	}

	_, err = NewCondition(Variable("x"), "=<", Constant(2))
	require.True(t, errors.Is(err, missionseq.ErrConfig))
	require.True(t, errors.Is(cond.Join('^', Variable("x"), "<", Constant(2)), missionseq.ErrConfig))

	cond, _ = NewCondition(Variable("x"), "<", Constant(2))
	require.NoError(t, cond.Join('|', Variable("missing"), "<", Constant(2)))
	_, err = cond.Evaluate(ctx)
	require.True(t, errors.Is(err, missionseq.ErrStructure), "undefined operands are reported")
}

func TestAssignmentToParameter(t *testing.T) {
	sc := spacecraft(t, "sc", []float64{7000, 0, 0, 0, 7.5, 0}, bodies.Earth)
	ctx, _ := mission(t, sc)
	require.NoError(t, run(ctx,
		NewAssignment("dv", Constant(0.1)),
		NewAssignment("sc.VY", BinaryOp{Op: '+', Left: Parameter{Object: "sc", Name: "VY"}, Right: Variable("dv")}),
		NewAssignment("sc.Fuel", Constant(40)),
	))
	require.InDelta(t, 7.6, sc.State[4], 1e-12)
	require.Equal(t, 40.0, sc.FuelMass)

	err := run(ctx, NewAssignment("ghost.X", Constant(1)))
	require.True(t, errors.Is(err, missionseq.ErrStructure), "unresolved at initialization: %v", err)
	err = run(ctx, NewAssignment("sc.Fuel", Constant(-1)))
	require.True(t, errors.Is(err, missionseq.ErrNumerical), "got %v", err)
	err = run(ctx, &Assignment{Target: "x"})
	require.True(t, errors.Is(err, missionseq.ErrStructure))
}

func TestToggleAndBurnFlags(t *testing.T) {
	ctx := NewContext(nil, missionseq.DefaultConfig())
	require.True(t, ctx.Publishing([]string{"a", "b"}))
	ctx.SetPublishing("b", false)
	require.False(t, ctx.Publishing([]string{"a", "b"}))
	require.True(t, ctx.Publishing([]string{"a"}))

	_, known := ctx.Burning("main")
	require.False(t, known)
	ctx.SetBurn("main", true)
	on, known := ctx.Burning("main")
	require.True(t, on && known)
}

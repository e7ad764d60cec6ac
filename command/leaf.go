package command

import (
	"fmt"
	"strings"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/go-kit/log/level"
)

// Assignment sets a script variable, or a writable parameter of a participant (object.name),
// to the value of an expression.
type Assignment struct {
	Target string
	Value  Expression
}

// NewAssignment returns the assignment of the value to the target.
func NewAssignment(target string, value Expression) *Assignment {
	return &Assignment{Target: target, Value: value}
}

// Type implements the Command interface.
func (*Assignment) Type() string { return "Assignment" }

// Kind implements the Command interface.
func (*Assignment) Kind() Kind { return Leaf }

// Initialize implements the Command interface.
func (a *Assignment) Initialize(ctx *Context) error {
	if a.Target == "" || a.Value == nil {
		return fmt.Errorf("%w: incomplete assignment", missionseq.ErrStructure)
	}
	if obj, _, found := strings.Cut(a.Target, "."); found {
		if _, err := ctx.Resolve(obj); err != nil {
			return err
		}
	}
	return nil
}

// Execute implements the Command interface.
func (a *Assignment) Execute(ctx *Context) error {
	v, err := a.Value.Evaluate(ctx)
	if err != nil {
		return err
	}
	obj, param, found := strings.Cut(a.Target, ".")
	if !found {
		ctx.SetVariable(a.Target, v)
		return nil
	}
	sc, err := ctx.Resolve(obj)
	if err != nil {
		return err
	}
	return sc.SetParameter(param, v)
}

func (a *Assignment) String() string {
	return fmt.Sprintf("%s = %s", a.Target, a.Value)
}

// NoOp does nothing.
type NoOp struct{ simple }

// Type implements the Command interface.
func (NoOp) Type() string { return "NoOp" }

// Kind implements the Command interface.
func (NoOp) Kind() Kind { return Leaf }

// Stop requests the interruption of the run, which stops at the next poll.
type Stop struct{ simple }

// Type implements the Command interface.
func (Stop) Type() string { return "Stop" }

// Kind implements the Command interface.
func (Stop) Kind() Kind { return Leaf }

// Execute implements the Command interface.
func (Stop) Execute(ctx *Context) error {
	level.Info(ctx.logger("seq")).Log("command", "Stop", "status", "interrupt requested")
	if ctx.Interrupt == nil {
		ctx.Interrupt = &missionseq.Interrupt{}
	}
	ctx.Interrupt.Request("Stop command")
	return nil
}

// Toggle turns the publishing of the states of participants on or off.
type Toggle struct {
	simple
	Participants []string
	On           bool
}

// Type implements the Command interface.
func (*Toggle) Type() string { return "Toggle" }

// Kind implements the Command interface.
func (*Toggle) Kind() Kind { return Leaf }

// Execute implements the Command interface.
func (t *Toggle) Execute(ctx *Context) error {
	for _, name := range t.Participants {
		ctx.SetPublishing(name, t.On)
	}
	return nil
}

// BeginBurn turns a finite burn on: the propagations which follow fire it.
type BeginBurn struct {
	simple
	Burn string
}

// Type implements the Command interface.
func (*BeginBurn) Type() string { return "BeginFiniteBurn" }

// Kind implements the Command interface.
func (*BeginBurn) Kind() Kind { return Leaf }

// Execute implements the Command interface.
func (b *BeginBurn) Execute(ctx *Context) error {
	ctx.SetBurn(b.Burn, true)
	return nil
}

// EndBurn turns a finite burn off.
type EndBurn struct {
	simple
	Burn string
}

// Type implements the Command interface.
func (*EndBurn) Type() string { return "EndFiniteBurn" }

// Kind implements the Command interface.
func (*EndBurn) Kind() Kind { return Leaf }

// Execute implements the Command interface.
func (b *EndBurn) Execute(ctx *Context) error {
	ctx.SetBurn(b.Burn, false)
	return nil
}

package command

import (
	"fmt"

	"github.com/ChristopherRabotin/missionseq"
)

// If runs its first branch when the condition holds, and its Else branch, if any, otherwise.
type If struct {
	simple
	Condition *Condition
}

// NewIf returns an If on the provided condition.
func NewIf(cond *Condition) *If {
	return &If{Condition: cond}
}

// Type implements the Command interface.
func (*If) Type() string { return "If" }

// Kind implements the Command interface.
func (*If) Kind() Kind { return Branch }

// Initialize implements the Command interface.
func (c *If) Initialize(*Context) error {
	if c.Condition == nil {
		return fmt.Errorf("%w: If without a condition", missionseq.ErrStructure)
	}
	return nil
}

// SelectBranch implements the Brancher interface.
func (c *If) SelectBranch(ctx *Context, iteration, branches int) (int, error) {
	if iteration > 0 {
		return -1, nil
	}
	ok, err := c.Condition.Evaluate(ctx)
	switch {
	case err != nil:
		return -1, err
	case ok:
		return 0, nil
	case branches > 1:
		return 1, nil
	default:
		return -1, nil
	}
}

// Terminator implements the Brancher interface.
func (*If) Terminator() string { return "EndIf" }

// Splitter implements the Brancher interface.
func (*If) Splitter() string { return "Else" }

// MaxBranches implements the Brancher interface.
func (*If) MaxBranches() int { return 2 }

func (c *If) String() string {
	return "If " + c.Condition.String()
}

// Else separates the two branches of an If.
type Else struct{ simple }

// Type implements the Command interface.
func (Else) Type() string { return "Else" }

// Kind implements the Command interface.
func (Else) Kind() Kind { return Splitter }

// EndIf closes an If.
type EndIf struct{ simple }

// Type implements the Command interface.
func (EndIf) Type() string { return "EndIf" }

// Kind implements the Command interface.
func (EndIf) Kind() Kind { return Terminator }

// While runs its branch for as long as the condition holds, checking it before every iteration.
type While struct {
	simple
	Condition *Condition
}

// NewWhile returns a While on the provided condition.
func NewWhile(cond *Condition) *While {
	return &While{Condition: cond}
}

// Type implements the Command interface.
func (*While) Type() string { return "While" }

// Kind implements the Command interface.
func (*While) Kind() Kind { return Branch }

// Initialize implements the Command interface.
func (c *While) Initialize(*Context) error {
	if c.Condition == nil {
		return fmt.Errorf("%w: While without a condition", missionseq.ErrStructure)
	}
	return nil
}

// SelectBranch implements the Brancher interface.
func (c *While) SelectBranch(ctx *Context, iteration, branches int) (int, error) {
	ok, err := c.Condition.Evaluate(ctx)
	if err != nil || !ok {
		return -1, err
	}
	return 0, nil
}

// Terminator implements the Brancher interface.
func (*While) Terminator() string { return "EndWhile" }

// Splitter implements the Brancher interface.
func (*While) Splitter() string { return "" }

// MaxBranches implements the Brancher interface.
func (*While) MaxBranches() int { return 1 }

// EndWhile closes a While.
type EndWhile struct{ simple }

// Type implements the Command interface.
func (EndWhile) Type() string { return "EndWhile" }

// Kind implements the Command interface.
func (EndWhile) Kind() Kind { return Terminator }

// For runs its branch once per value of the index from Start to End (inclusive) by Step. The
// bounds are evaluated when the loop starts, and the index is stored in the script variable.
type For struct {
	simple
	Index             string
	Start, Step, End  Expression
	start, step, stop float64
}

// NewFor returns a For loop on the index variable.
func NewFor(index string, start, step, end Expression) *For {
	return &For{Index: index, Start: start, Step: step, End: end}
}

// Type implements the Command interface.
func (*For) Type() string { return "For" }

// Kind implements the Command interface.
func (*For) Kind() Kind { return Branch }

// Initialize implements the Command interface.
func (c *For) Initialize(*Context) error {
	if c.Index == "" || c.Start == nil || c.Step == nil || c.End == nil {
		return fmt.Errorf("%w: For needs an index, a start, a step and an end", missionseq.ErrStructure)
	}
	if step, ok := c.Step.(Constant); ok && step == 0 {
		return fmt.Errorf("%w: For %s has a zero step", missionseq.ErrStructure, c.Index)
	}
	return nil
}

// SelectBranch implements the Brancher interface.
func (c *For) SelectBranch(ctx *Context, iteration, branches int) (int, error) {
	if iteration == 0 {
		var err error
		if c.start, err = c.Start.Evaluate(ctx); err != nil {
			return -1, err
		}
		if c.step, err = c.Step.Evaluate(ctx); err != nil {
			return -1, err
		}
		if c.stop, err = c.End.Evaluate(ctx); err != nil {
			return -1, err
		}
		if c.step == 0 {
			return -1, fmt.Errorf("%w: For %s has a zero step", missionseq.ErrStructure, c.Index)
		}
	}
	// Computed from the start to avoid accumulating rounding errors.
	value := c.start + float64(iteration)*c.step
	if (c.step > 0 && value > c.stop) || (c.step < 0 && value < c.stop) {
		return -1, nil
	}
	ctx.SetVariable(c.Index, value)
	return 0, nil
}

// Terminator implements the Brancher interface.
func (*For) Terminator() string { return "EndFor" }

// Splitter implements the Brancher interface.
func (*For) Splitter() string { return "" }

// MaxBranches implements the Brancher interface.
func (*For) MaxBranches() int { return 1 }

func (c *For) String() string {
	return fmt.Sprintf("For %s = %s:%s:%s", c.Index, c.Start, c.Step, c.End)
}

// EndFor closes a For.
type EndFor struct{ simple }

// Type implements the Command interface.
func (EndFor) Type() string { return "EndFor" }

// Kind implements the Command interface.
func (EndFor) Kind() Kind { return Terminator }

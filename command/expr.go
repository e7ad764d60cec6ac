package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ChristopherRabotin/missionseq"
)

// Expression is a numerical operand of assignments and conditions.
type Expression interface {
	Evaluate(ctx *Context) (float64, error)
	String() string
}

// Constant is a literal number.
type Constant float64

// Evaluate implements the Expression interface.
func (c Constant) Evaluate(*Context) (float64, error) {
	return float64(c), nil
}

func (c Constant) String() string {
	return strconv.FormatFloat(float64(c), 'g', -1, 64)
}

// Variable is a script variable.
type Variable string

// Evaluate implements the Expression interface.
func (v Variable) Evaluate(ctx *Context) (float64, error) {
	val, ok := ctx.Variable(string(v))
	if !ok {
		return 0, fmt.Errorf("%w: undefined variable %s", missionseq.ErrStructure, string(v))
	}
	return val, nil
}

func (v Variable) String() string {
	return string(v)
}

// Parameter is a parameter of a participant, e.g. sc.RMAG.
type Parameter struct {
	Object, Name string
}

// Evaluate implements the Expression interface.
func (p Parameter) Evaluate(ctx *Context) (float64, error) {
	sc, err := ctx.Resolve(p.Object)
	if err != nil {
		return 0, err
	}
	return sc.Parameter(p.Name)
}

func (p Parameter) String() string {
	return p.Object + "." + p.Name
}

// BinaryOp combines two expressions with one of + - * / ^.
type BinaryOp struct {
	Op          byte
	Left, Right Expression
}

// Evaluate implements the Expression interface.
func (b BinaryOp) Evaluate(ctx *Context) (float64, error) {
	l, err := b.Left.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	r, err := b.Right.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	switch b.Op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	case '/':
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero in %s", missionseq.ErrNumerical, b)
		}
		return l / r, nil
	case '^':
		return math.Pow(l, r), nil
	default:
		return 0, fmt.Errorf("%w: unknown operator '%c'", missionseq.ErrStructure, b.Op)
	}
}

func (b BinaryOp) String() string {
	return fmt.Sprintf("(%s %c %s)", b.Left, b.Op, b.Right)
}

// ParseOperand reads a single operand: a number, a participant parameter (object.name) or a
// variable name.
func ParseOperand(s string) (Expression, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty operand", missionseq.ErrConfig)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Constant(v), nil
	}
	if obj, param, found := strings.Cut(s, "."); found {
		if obj == "" || param == "" {
			return nil, fmt.Errorf("%w: malformed parameter '%s'", missionseq.ErrConfig, s)
		}
		return Parameter{Object: obj, Name: param}, nil
	}
	return Variable(s), nil
}

// Comparison compares two expressions.
type Comparison struct {
	Left  Expression
	Op    string
	Right Expression
}

// Evaluate returns the truth of the comparison.
func (c Comparison) Evaluate(ctx *Context) (bool, error) {
	l, err := c.Left.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	r, err := c.Right.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case "==":
		return l == r, nil
	case "~=", "!=":
		return l != r, nil
	case "<":
		return l < r, nil
	case "<=":
		return l <= r, nil
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	default:
		return false, fmt.Errorf("%w: unknown comparison '%s'", missionseq.ErrStructure, c.Op)
	}
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

func validComparison(op string) bool {
	switch op {
	case "==", "~=", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// Condition is a list of comparisons joined by & or |, evaluated from left to right without
// precedence: a | b & c is (a | b) & c.
type Condition struct {
	comparisons []Comparison
	joins       []byte
}

// NewCondition returns a condition made of a single comparison.
func NewCondition(left Expression, op string, right Expression) (*Condition, error) {
	if !validComparison(op) {
		return nil, fmt.Errorf("%w: unknown comparison '%s'", missionseq.ErrConfig, op)
	}
	return &Condition{comparisons: []Comparison{{Left: left, Op: op, Right: right}}}, nil
}

// Join appends a comparison joined by & or |.
func (c *Condition) Join(join byte, left Expression, op string, right Expression) error {
	if join != '&' && join != '|' {
		return fmt.Errorf("%w: unknown logical operator '%c'", missionseq.ErrConfig, join)
	}
	if !validComparison(op) {
		return fmt.Errorf("%w: unknown comparison '%s'", missionseq.ErrConfig, op)
	}
	c.comparisons = append(c.comparisons, Comparison{Left: left, Op: op, Right: right})
	c.joins = append(c.joins, join)
	return nil
}

// Evaluate returns the truth of the condition. Every comparison is evaluated, so that an
// undefined operand is always reported.
func (c *Condition) Evaluate(ctx *Context) (bool, error) {
	if c == nil || len(c.comparisons) == 0 {
		return false, fmt.Errorf("%w: empty condition", missionseq.ErrStructure)
	}
	result, err := c.comparisons[0].Evaluate(ctx)
	if err != nil {
		return false, err
	}
	for i, join := range c.joins {
		v, err := c.comparisons[i+1].Evaluate(ctx)
		if err != nil {
			return false, err
		}
		if join == '&' {
			result = result && v
		} else {
			result = result || v
		}
	}
	return result, nil
}

func (c *Condition) String() string {
	if c == nil || len(c.comparisons) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(c.comparisons[0].String())
	for i, join := range c.joins {
		fmt.Fprintf(&sb, " %c %s", join, c.comparisons[i+1])
	}
	return sb.String()
}

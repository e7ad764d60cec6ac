/*
Package command holds the mission sequence: a graph of commands stored in an arena and driven one
command at a time.

Branch commands (If, While, For) own nested sub-sequences. While one of their branches is being
executed, Next returns the branch command itself so that the driver keeps re-entering it until the
branch loops back; the sequence is therefore a resumable state machine rather than a recursive
interpreter.
*/
package command

import "fmt"

// ID addresses a command slot of a Sequence.
type ID int

// None is the ID of no command.
const None ID = -1

// Kind is the closed set of command variants the sequence dispatches on.
type Kind uint8

const (
	// Leaf commands execute in a single call.
	Leaf Kind = iota + 1
	// Branch commands own nested branches and implement Brancher.
	Branch
	// Terminator commands close the last branch of a branch command (EndIf, EndWhile, EndFor).
	Terminator
	// Splitter commands close one branch of a branch command and open the next (Else).
	Splitter
	// Propagation commands integrate the dynamics of their participants.
	Propagation
)

func (k Kind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Branch:
		return "branch"
	case Terminator:
		return "terminator"
	case Splitter:
		return "splitter"
	case Propagation:
		return "propagation"
	default:
		panic(fmt.Errorf("unknown command kind %d", k))
	}
}

// Command is one scripted instruction.
type Command interface {
	// Type is the script keyword of the command, e.g. "Propagate" or "EndIf".
	Type() string
	Kind() Kind
	// Initialize prepares the command for a run; it is called once per run before any Execute.
	Initialize(ctx *Context) error
	// Execute performs the action of the command.
	Execute(ctx *Context) error
}

// Brancher is a branch command. The sequence handles the traversal of the branches and asks the
// Brancher which one to run each time the previous branch iteration is finished.
type Brancher interface {
	Command
	// SelectBranch returns the branch to execute next, or a negative number once the command is
	// complete. The iteration counts the branch iterations already run since the command started.
	SelectBranch(ctx *Context, iteration, branches int) (int, error)
	// Terminator returns the type of the command closing the last branch.
	Terminator() string
	// Splitter returns the type of the command opening a new branch, empty if none.
	Splitter() string
	// MaxBranches returns the maximum number of branches.
	MaxBranches() int
}

// ActionTaker is implemented by commands which react to the actions of TakeAction.
type ActionTaker interface {
	TakeAction(action string) bool
}

// Actions understood by TakeAction.
const (
	ResetLoopData = "ResetLoopData"
	Clear         = "Clear"
)

// simple is embedded by the commands which need no initialization and do nothing on execution.
type simple struct{}

func (simple) Initialize(*Context) error { return nil }

func (simple) Execute(*Context) error { return nil }

package command

import (
	"fmt"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/go-kit/log/level"
)

// Initialize validates the sequence, resets the execution state of every command and
// initializes them in script order.
func (s *Sequence) Initialize(ctx *Context) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return s.Walk(func(id ID, depth int) error {
		n := &s.nodes[id]
		n.executing, n.complete = false, false
		if n.branch != nil {
			n.branch.reset()
		}
		if err := n.cmd.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing %s: %w", s.describe(id), err)
		}
		return nil
	})
}

// Execute runs one unit of work of the command: the whole of a leaf command, or a single command
// of the current branch of a branch command. The driver then moves on to Next.
func (s *Sequence) Execute(ctx *Context, id ID) error {
	if err := s.check(id); err != nil {
		return err
	}
	n := &s.nodes[id]
	if n.branch != nil {
		return s.executeBranchCommand(ctx, id)
	}
	if k := n.cmd.Kind(); k == Leaf || k == Propagation {
		ctx.Metrics.CommandExecuted(n.cmd.Type())
	}
	n.executing, n.complete = true, false
	if err := n.cmd.Execute(ctx); err != nil {
		n.executing = false
		return fmt.Errorf("%s: %w", s.describe(id), err)
	}
	n.executing, n.complete = false, true
	return nil
}

// Next returns the command to execute after this one: a branch command returns itself for as long
// as it is executing, and the stored next command otherwise.
func (s *Sequence) Next(id ID) ID {
	n := &s.nodes[id]
	if n.branch != nil && n.executing && !n.complete {
		return id
	}
	return n.next
}

// Complete returns whether the command ran to completion since the last initialization.
func (s *Sequence) Complete(id ID) bool {
	return s.nodes[id].complete
}

// Executing returns whether the command started and is not complete yet.
func (s *Sequence) Executing(id ID) bool {
	return s.nodes[id].executing
}

func (s *Sequence) executeBranchCommand(ctx *Context, id ID) error {
	n := &s.nodes[id]
	bs := n.branch
	if !n.executing {
		// Starting only flags the command: the driver comes back through Next.
		n.executing, n.complete = true, false
		bs.reset()
		ctx.Metrics.CommandExecuted(n.cmd.Type())
		level.Debug(ctx.logger("seq")).Log("command", n.cmd.Type(), "id", id, "status", "started")
		return nil
	}
	if !bs.running {
		if err := ctx.Interrupt.Check(s.describe(id)); err != nil {
			n.executing = false
			return err
		}
		which, err := n.cmd.(Brancher).SelectBranch(ctx, bs.iteration, len(bs.entries))
		if err != nil {
			n.executing = false
			return fmt.Errorf("%s: %w", s.describe(id), err)
		}
		if which < 0 || which >= len(bs.entries) {
			n.executing, n.complete = false, true
			bs.active = -1
			level.Debug(ctx.logger("seq")).Log("command", n.cmd.Type(), "id", id, "status", "complete", "iterations", bs.iteration)
			return nil
		}
		bs.active, bs.running = which, true
		bs.iteration++
	}
	return s.ExecuteBranch(ctx, id, bs.active)
}

// ExecuteBranch executes the command at the cursor of a branch and advances the cursor. Once the
// cursor is back on the branch command the branch iteration is over.
func (s *Sequence) ExecuteBranch(ctx *Context, id ID, which int) error {
	if err := s.check(id); err != nil {
		return err
	}
	bs := s.nodes[id].branch
	if bs == nil || which < 0 || which >= len(bs.entries) {
		return fmt.Errorf("%w: %s has no branch %d", missionseq.ErrStructure, s.describe(id), which)
	}
	if bs.cursors[which] == None {
		bs.cursors[which] = bs.entries[which]
	}
	cur := bs.cursors[which]
	switch cur {
	case id:
		bs.cursors[which] = None
		bs.running = false
		return nil
	case None:
		return fmt.Errorf("%w: branch %d of %s is empty and unterminated", missionseq.ErrStructure, which, s.describe(id))
	}
	if err := s.Execute(ctx, cur); err != nil {
		s.nodes[id].executing = false
		return err
	}
	bs.cursors[which] = s.Next(cur)
	return nil
}

// TakeAction forwards the action to the command and, for branch commands, to all the commands
// of their branches. ResetLoopData and Clear also reset the execution state of branch commands.
// It returns whether any command handled the action.
func (s *Sequence) TakeAction(id ID, action string) bool {
	n := &s.nodes[id]
	handled := false
	if at, ok := n.cmd.(ActionTaker); ok {
		handled = at.TakeAction(action)
	}
	if n.branch == nil {
		return handled
	}
	if action == ResetLoopData || action == Clear {
		n.executing, n.complete = false, false
		n.branch.reset()
		handled = true
	}
	for _, entry := range n.branch.entries {
		for cur, steps := entry, 0; cur != None && cur != id && steps <= len(s.nodes); cur, steps = s.nodes[cur].next, steps+1 {
			if s.TakeAction(cur, action) {
				handled = true
			}
		}
	}
	return handled
}

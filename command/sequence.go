package command

import (
	"fmt"

	"github.com/ChristopherRabotin/missionseq"
)

// node is one slot of the arena. next is the owning link; prev only serves structural edits.
type node struct {
	cmd       Command
	next      ID
	prev      ID
	attached  bool
	executing bool
	complete  bool
	branch    *branchState
}

// branchState is the resumption state of a branch command.
type branchState struct {
	entries   []ID // first command of each branch
	cursors   []ID // command of each branch to execute next, None when unset
	active    int  // branch being executed, -1 if none
	running   bool // a branch iteration is in flight
	fill      int  // branch receiving appended commands
	closed    bool // the terminator was appended
	depth     int
	iteration int
}

func (bs *branchState) reset() {
	bs.active, bs.running, bs.iteration = -1, false, 0
	for k := range bs.cursors {
		bs.cursors[k] = None
	}
}

// location is where a command sits: the branch command owning it (None at the top level), the
// branch number and the command preceding it in that chain (None if it is the first one).
type location struct {
	owner  ID
	branch int
	pred   ID
}

// Sequence is a mission sequence stored as an arena of command slots.
type Sequence struct {
	nodes []node
	head  ID
}

// NewSequence returns an empty sequence.
func NewSequence() *Sequence {
	return &Sequence{head: None}
}

// Add stores a command in the arena and returns its ID. The command is not linked anywhere yet.
func (s *Sequence) Add(cmd Command) (ID, error) {
	if cmd == nil {
		return None, fmt.Errorf("%w: nil command", missionseq.ErrStructure)
	}
	n := node{cmd: cmd, next: None, prev: None}
	if cmd.Kind() == Branch {
		if _, ok := cmd.(Brancher); !ok {
			return None, fmt.Errorf("%w: branch command %s does not select branches", missionseq.ErrStructure, cmd.Type())
		}
		n.branch = &branchState{entries: []ID{None}, cursors: []ID{None}, active: -1}
	}
	s.nodes = append(s.nodes, n)
	return ID(len(s.nodes) - 1), nil
}

// AppendCommand adds the command to the arena and appends it.
func (s *Sequence) AppendCommand(cmd Command) (ID, error) {
	id, err := s.Add(cmd)
	if err != nil {
		return None, err
	}
	return id, s.Append(id)
}

// Head returns the first command of the sequence.
func (s *Sequence) Head() ID {
	return s.head
}

// Len returns the number of slots of the arena, linked or not.
func (s *Sequence) Len() int {
	return len(s.nodes)
}

// Command returns the command stored at id.
func (s *Sequence) Command(id ID) Command {
	return s.nodes[id].cmd
}

// Following returns the stored next command, regardless of the execution state.
func (s *Sequence) Following(id ID) ID {
	return s.nodes[id].next
}

// Previous returns the back-reference of the command.
func (s *Sequence) Previous(id ID) ID {
	return s.nodes[id].prev
}

// Branches returns the entry of every branch of a branch command, nil for other commands.
func (s *Sequence) Branches(id ID) []ID {
	if s.nodes[id].branch == nil {
		return nil
	}
	return append([]ID(nil), s.nodes[id].branch.entries...)
}

// Depth returns the nesting depth of a branch command as of the last validation.
func (s *Sequence) Depth(id ID) int {
	if s.nodes[id].branch == nil {
		return 0
	}
	return s.nodes[id].branch.depth
}

// Attached returns whether the command is linked into the sequence or into a detached construct.
func (s *Sequence) Attached(id ID) bool {
	return s.nodes[id].attached
}

func (s *Sequence) check(ids ...ID) error {
	for _, id := range ids {
		if id < 0 || int(id) >= len(s.nodes) {
			return fmt.Errorf("%w: no command %d", missionseq.ErrStructure, id)
		}
	}
	return nil
}

func (s *Sequence) describe(id ID) string {
	return fmt.Sprintf("%s (%d)", s.nodes[id].cmd.Type(), id)
}

// Append links the command at the end of the sequence. While a branch command is waiting for its
// terminator, appended commands go into its current branch, and a splitter starts a new branch.
func (s *Sequence) Append(id ID) error {
	if err := s.check(id); err != nil {
		return err
	}
	if s.nodes[id].attached || id == s.head {
		return fmt.Errorf("%w: %s is already in the sequence", missionseq.ErrStructure, s.describe(id))
	}
	if s.head == None {
		if k := s.nodes[id].cmd.Kind(); k == Terminator || k == Splitter {
			return fmt.Errorf("%w: %s has no branch command to close", missionseq.ErrStructure, s.describe(id))
		}
		s.head = id
		s.nodes[id].attached = true
		return nil
	}
	return s.appendAfter(s.head, id)
}

// AppendInto appends the command into the open branch of a branch command, which need not be part
// of the sequence. This builds constructs which are then inserted as a whole.
func (s *Sequence) AppendInto(owner, id ID) error {
	if err := s.check(owner, id); err != nil {
		return err
	}
	bs := s.nodes[owner].branch
	if bs == nil || bs.closed {
		return fmt.Errorf("%w: %s has no open branch", missionseq.ErrStructure, s.describe(owner))
	}
	if s.nodes[id].attached || id == owner {
		return fmt.Errorf("%w: %s is already in the sequence", missionseq.ErrStructure, s.describe(id))
	}
	return s.appendInto(owner, id)
}

// appendAfter walks the chain from cur to its end, descending into any open branch.
func (s *Sequence) appendAfter(cur, id ID) error {
	for steps := 0; ; steps++ {
		if steps > len(s.nodes) {
			return fmt.Errorf("%w: cycle in the sequence after %s", missionseq.ErrStructure, s.describe(cur))
		}
		n := &s.nodes[cur]
		if n.branch != nil && !n.branch.closed {
			return s.appendInto(cur, id)
		}
		if n.next == None {
			break
		}
		cur = n.next
	}
	if k := s.nodes[id].cmd.Kind(); k == Terminator || k == Splitter {
		return fmt.Errorf("%w: %s has no branch command to close", missionseq.ErrStructure, s.describe(id))
	}
	s.link(cur, id)
	return nil
}

func (s *Sequence) appendInto(owner, id ID) error {
	bs := s.nodes[owner].branch
	last := None
	if entry := bs.entries[bs.fill]; entry != None {
		last = entry
		for steps := 0; ; steps++ {
			if steps > len(s.nodes) {
				return fmt.Errorf("%w: cycle in branch %d of %s", missionseq.ErrStructure, bs.fill, s.describe(owner))
			}
			n := &s.nodes[last]
			if n.branch != nil && !n.branch.closed {
				return s.appendInto(last, id)
			}
			if n.next == None {
				break
			}
			last = n.next
		}
	}

	br := s.nodes[owner].cmd.(Brancher)
	cmd := s.nodes[id].cmd
	switch cmd.Kind() {
	case Terminator:
		if cmd.Type() != br.Terminator() {
			return fmt.Errorf("%w: %s cannot close %s", missionseq.ErrStructure, cmd.Type(), s.describe(owner))
		}
	case Splitter:
		if cmd.Type() != br.Splitter() || len(bs.entries) >= br.MaxBranches() {
			return fmt.Errorf("%w: %s cannot split %s", missionseq.ErrStructure, cmd.Type(), s.describe(owner))
		}
	}

	if last == None {
		if err := s.AddBranch(owner, id, bs.fill); err != nil {
			return err
		}
	} else {
		s.link(last, id)
	}
	switch cmd.Kind() {
	case Terminator:
		if last == None {
			s.nodes[id].prev = owner
		}
		s.nodes[id].next = owner
		bs.closed = true
	case Splitter:
		s.nodes[id].next = owner
		bs.fill++
		s.growBranches(owner, bs.fill)
	}
	return nil
}

// AddBranch sets the entry of a branch, growing the branch array as needed. The back-reference
// of terminators is left to the caller, which links them explicitly.
func (s *Sequence) AddBranch(owner, id ID, which int) error {
	if err := s.check(owner, id); err != nil {
		return err
	}
	bs := s.nodes[owner].branch
	if bs == nil {
		return fmt.Errorf("%w: %s has no branches", missionseq.ErrStructure, s.describe(owner))
	}
	if max := s.nodes[owner].cmd.(Brancher).MaxBranches(); which < 0 || which >= max {
		return fmt.Errorf("%w: %s has at most %d branches", missionseq.ErrStructure, s.describe(owner), max)
	}
	s.growBranches(owner, which)
	bs.entries[which] = id
	if s.nodes[id].cmd.Kind() != Terminator {
		s.nodes[id].prev = owner
	}
	s.nodes[id].attached = true
	return nil
}

func (s *Sequence) growBranches(owner ID, which int) {
	bs := s.nodes[owner].branch
	for len(bs.entries) <= which {
		bs.entries = append(bs.entries, None)
		bs.cursors = append(bs.cursors, None)
	}
}

func (s *Sequence) link(cur, id ID) {
	s.nodes[cur].next = id
	s.nodes[id].prev = cur
	s.nodes[id].attached = true
}

// locate searches the sequence for the command, descending into every branch.
func (s *Sequence) locate(target ID) (location, bool) {
	return s.search(s.head, None, 0, target)
}

func (s *Sequence) search(start, owner ID, branch int, target ID) (location, bool) {
	pred := None
	for cur, steps := start, 0; cur != None && cur != owner; cur, steps = s.nodes[cur].next, steps+1 {
		if steps > len(s.nodes) {
			return location{}, false
		}
		if bs := s.nodes[cur].branch; bs != nil {
			for k, entry := range bs.entries {
				if loc, ok := s.search(entry, cur, k, target); ok {
					return loc, true
				}
			}
		}
		if cur == target {
			return location{owner: owner, branch: branch, pred: pred}, true
		}
		pred = cur
	}
	return location{}, false
}

// Insert links the command right after another one anywhere in the sequence. Inserting after a
// branch command starts its first branch; after a splitter, the next branch; after a terminator,
// the command follows the whole construct. Inserting a splitter in a branch splits that branch in
// two.
func (s *Sequence) Insert(id, after ID) error {
	if err := s.check(id, after); err != nil {
		return err
	}
	n := &s.nodes[id]
	if n.attached || id == s.head || id == after {
		return fmt.Errorf("%w: %s is already in the sequence", missionseq.ErrStructure, s.describe(id))
	}
	switch n.cmd.Kind() {
	case Terminator:
		return fmt.Errorf("%w: %s is only appended to its branch command", missionseq.ErrStructure, s.describe(id))
	case Branch:
		if !n.branch.closed {
			return fmt.Errorf("%w: %s is not terminated", missionseq.ErrStructure, s.describe(id))
		}
	}
	loc, ok := s.locate(after)
	if !ok {
		return fmt.Errorf("%w: %s is not in the sequence", missionseq.ErrStructure, s.describe(after))
	}
	switch s.nodes[after].cmd.Kind() {
	case Branch:
		loc = location{owner: after, branch: 0, pred: None}
	case Splitter:
		loc = location{owner: loc.owner, branch: loc.branch + 1, pred: None}
	case Terminator:
		owner := loc.owner
		if loc, ok = s.locate(owner); !ok {
			return fmt.Errorf("%w: %s is not in the sequence", missionseq.ErrStructure, s.describe(owner))
		}
		loc.pred = owner
	default:
		loc.pred = after
	}
	return s.insertAt(loc, id)
}

func (s *Sequence) insertAt(loc location, id ID) error {
	if s.nodes[id].cmd.Kind() == Splitter {
		return s.ShiftBranches(loc, id)
	}
	var succ ID
	switch {
	case loc.pred != None:
		succ = s.nodes[loc.pred].next
		s.link(loc.pred, id)
	case loc.owner != None:
		bs := s.nodes[loc.owner].branch
		s.growBranches(loc.owner, loc.branch)
		succ = bs.entries[loc.branch]
		if err := s.AddBranch(loc.owner, id, loc.branch); err != nil {
			return err
		}
	default:
		succ = s.head
		s.head = id
		s.nodes[id].attached = true
	}
	s.nodes[id].next = succ
	if succ != None {
		s.nodes[succ].prev = id
	}
	return nil
}

// ShiftBranches inserts a splitter at the location: the commands following it in that branch
// become a new branch right after it, and the later branches shift up by one. An in-flight
// cursor follows the commands it points to.
func (s *Sequence) ShiftBranches(loc location, splitter ID) error {
	if loc.owner == None {
		return fmt.Errorf("%w: %s outside of a branch command", missionseq.ErrStructure, s.describe(splitter))
	}
	bs := s.nodes[loc.owner].branch
	br := s.nodes[loc.owner].cmd.(Brancher)
	cmd := s.nodes[splitter].cmd
	switch {
	case cmd.Type() != br.Splitter() || len(bs.entries) >= br.MaxBranches():
		return fmt.Errorf("%w: %s cannot split %s", missionseq.ErrStructure, cmd.Type(), s.describe(loc.owner))
	case !bs.closed:
		return fmt.Errorf("%w: %s is not terminated", missionseq.ErrStructure, s.describe(loc.owner))
	}

	var rest ID
	if loc.pred == None {
		rest = bs.entries[loc.branch]
		bs.entries[loc.branch] = splitter
		s.nodes[splitter].prev = loc.owner
	} else {
		rest = s.nodes[loc.pred].next
		s.nodes[loc.pred].next = splitter
		s.nodes[splitter].prev = loc.pred
	}
	s.nodes[splitter].next = loc.owner
	s.nodes[splitter].attached = true
	s.nodes[rest].prev = loc.owner

	k := loc.branch + 1
	bs.entries = append(bs.entries[:k], append([]ID{rest}, bs.entries[k:]...)...)
	bs.cursors = append(bs.cursors[:k], append([]ID{None}, bs.cursors[k:]...)...)
	if bs.running {
		switch {
		case bs.active >= k:
			bs.active++
		case bs.active == loc.branch && s.inChain(rest, loc.owner, bs.cursors[loc.branch]):
			bs.cursors[k], bs.cursors[loc.branch] = bs.cursors[loc.branch], None
			bs.active = k
		}
	}
	return nil
}

// inChain returns whether target is reached from start before the owner.
func (s *Sequence) inChain(start, owner, target ID) bool {
	if target == None {
		return false
	}
	for cur, steps := start, 0; cur != None && cur != owner && steps <= len(s.nodes); cur, steps = s.nodes[cur].next, steps+1 {
		if cur == target {
			return true
		}
	}
	return false
}

// Remove detaches the command from the sequence and returns it, so that it may be inserted
// elsewhere. A branch command is removed with all its branches. Removing a splitter merges the
// two branches it separated. Terminators cannot be removed on their own.
func (s *Sequence) Remove(id ID) (ID, error) {
	if err := s.check(id); err != nil {
		return None, err
	}
	loc, ok := s.locate(id)
	if !ok {
		return None, fmt.Errorf("%w: %s is not in the sequence", missionseq.ErrStructure, s.describe(id))
	}
	switch s.nodes[id].cmd.Kind() {
	case Terminator:
		return None, fmt.Errorf("%w: %s closes %s, remove the branch command instead", missionseq.ErrStructure, s.describe(id), s.describe(loc.owner))
	case Splitter:
		s.mergeBranches(loc, id)
		s.detach(id)
		return id, nil
	}

	succ := s.nodes[id].next
	switch {
	case loc.pred != None:
		s.nodes[loc.pred].next = succ
		if succ != None {
			s.nodes[succ].prev = loc.pred
		}
	case loc.owner != None:
		s.nodes[loc.owner].branch.entries[loc.branch] = succ
		if succ != None {
			s.nodes[succ].prev = loc.owner
		}
	default:
		s.head = succ
		if succ != None {
			s.nodes[succ].prev = None
		}
	}
	if loc.owner != None {
		bs := s.nodes[loc.owner].branch
		if bs.cursors[loc.branch] == id {
			bs.cursors[loc.branch] = succ
		}
	}
	s.detach(id)
	return id, nil
}

// mergeBranches removes the splitter closing a branch by appending the following branch to it.
func (s *Sequence) mergeBranches(loc location, splitter ID) {
	bs := s.nodes[loc.owner].branch
	k := loc.branch
	following := bs.entries[k+1]
	if loc.pred == None {
		bs.entries[k] = following
		if following != None {
			s.nodes[following].prev = loc.owner
		}
	} else {
		s.nodes[loc.pred].next = following
		if following != None {
			s.nodes[following].prev = loc.pred
		}
	}
	cursor := bs.cursors[k+1]
	bs.entries = append(bs.entries[:k+1], bs.entries[k+2:]...)
	bs.cursors = append(bs.cursors[:k+1], bs.cursors[k+2:]...)
	if !bs.closed && bs.fill > k {
		bs.fill--
	}
	if bs.running {
		switch {
		case bs.active == k+1:
			bs.active, bs.cursors[k] = k, cursor
		case bs.active > k+1:
			bs.active--
		}
	}
}

func (s *Sequence) detach(id ID) {
	n := &s.nodes[id]
	n.next, n.prev = None, None
	n.attached, n.executing, n.complete = false, false, false
}

// Validate checks that every branch loops back to its branch command through its terminator.
func (s *Sequence) Validate() error {
	return s.validate(s.head, None, 0)
}

func (s *Sequence) validate(start, owner ID, depth int) error {
	for cur, steps := start, 0; ; cur, steps = s.nodes[cur].next, steps+1 {
		if cur == owner {
			return nil
		}
		if cur == None {
			return fmt.Errorf("%w: a branch of %s never loops back to it", missionseq.ErrStructure, s.describe(owner))
		}
		if steps > len(s.nodes) {
			return fmt.Errorf("%w: cycle through %s", missionseq.ErrStructure, s.describe(cur))
		}
		n := &s.nodes[cur]
		if k := n.cmd.Kind(); (k == Terminator || k == Splitter) && (owner == None || n.next != owner) {
			return fmt.Errorf("%w: %s does not close its branch", missionseq.ErrStructure, s.describe(cur))
		}
		if n.branch == nil {
			continue
		}
		if !n.branch.closed {
			return fmt.Errorf("%w: %s has no %s", missionseq.ErrStructure, s.describe(cur), n.cmd.(Brancher).Terminator())
		}
		n.branch.depth = depth
		for _, entry := range n.branch.entries {
			if err := s.validate(entry, cur, depth+1); err != nil {
				return err
			}
		}
	}
}

// Walk calls fn on every command of the sequence in script order, with its nesting depth.
func (s *Sequence) Walk(fn func(id ID, depth int) error) error {
	return s.walk(s.head, None, 0, fn)
}

func (s *Sequence) walk(start, owner ID, depth int, fn func(id ID, depth int) error) error {
	for cur, steps := start, 0; cur != None && cur != owner; cur, steps = s.nodes[cur].next, steps+1 {
		if steps > len(s.nodes) {
			return fmt.Errorf("%w: cycle through %s", missionseq.ErrStructure, s.describe(cur))
		}
		if err := fn(cur, depth); err != nil {
			return err
		}
		if bs := s.nodes[cur].branch; bs != nil {
			for _, entry := range bs.entries {
				if err := s.walk(entry, cur, depth+1, fn); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

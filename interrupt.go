package missionseq

import (
	"fmt"
	"sync/atomic"
)

// Interrupt is the cooperative stop flag of a run. It is polled once per branch iteration and
// once per propagation step. The zero value is ready to use.
type Interrupt struct {
	requested atomic.Bool
	reason    atomic.Value
}

// Request asks the run to stop at the next poll.
func (i *Interrupt) Request(reason string) {
	i.reason.Store(reason)
	i.requested.Store(true)
}

// Requested returns whether a stop was requested.
func (i *Interrupt) Requested() bool {
	if i == nil {
		return false
	}
	return i.requested.Load()
}

// Reset clears the flag so the run may be restarted.
func (i *Interrupt) Reset() {
	i.requested.Store(false)
	i.reason.Store("")
}

// Check returns an ErrInterrupted error if a stop was requested, naming where it was noticed.
func (i *Interrupt) Check(where string) error {
	if !i.Requested() {
		return nil
	}
	reason, _ := i.reason.Load().(string)
	if reason == "" {
		return fmt.Errorf("%w in %s", ErrInterrupted, where)
	}
	return fmt.Errorf("%w in %s: %s", ErrInterrupted, where, reason)
}

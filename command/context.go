package command

import (
	"fmt"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/event"
	"github.com/ChristopherRabotin/missionseq/frame"
	"github.com/ChristopherRabotin/missionseq/internal/logs"
	"github.com/ChristopherRabotin/missionseq/internal/observability"
	"github.com/ChristopherRabotin/missionseq/object"
	"github.com/ChristopherRabotin/missionseq/publish"
	kitlog "github.com/go-kit/log"
)

// Context is what a run shares with every command: the object store, the collaborators and the
// script variables. It replaces any process wide state, so that two runs never interfere.
type Context struct {
	Objects   *object.Store
	Publisher publish.Publisher // optional
	Transform frame.Transformer // defaults to frame.Identity
	Interrupt *missionseq.Interrupt
	Locators  []*event.Locator // mission wide event locators
	Logger    kitlog.Logger
	Metrics   *observability.Collector // optional
	Config    missionseq.Config

	variables map[string]float64
	muted     map[string]bool
	burns     map[string]bool
	resolved  map[string]*object.Spacecraft
	revision  uint64
}

// NewContext returns a context on the provided store with the default collaborators.
func NewContext(store *object.Store, cfg missionseq.Config) *Context {
	return &Context{
		Objects:   store,
		Transform: frame.Identity{},
		Interrupt: &missionseq.Interrupt{},
		Logger:    logs.Nop(),
		Config:    cfg,
	}
}

func (c *Context) logger(subsys string) kitlog.Logger {
	return logs.Subsystem(c.Logger, subsys)
}

func (c *Context) transformer() frame.Transformer {
	if c.Transform == nil {
		return frame.Identity{}
	}
	return c.Transform
}

// Resolve returns the participant of the provided name. Resolutions are cached until the set of
// names of the store changes or Invalidate is called.
func (c *Context) Resolve(name string) (*object.Spacecraft, error) {
	if c.Objects == nil {
		return nil, fmt.Errorf("%w: no object store to resolve %s", missionseq.ErrStructure, name)
	}
	if rev := c.Objects.Revision(); c.resolved == nil || rev != c.revision {
		c.resolved = make(map[string]*object.Spacecraft)
		c.revision = rev
	}
	if sc, ok := c.resolved[name]; ok {
		return sc, nil
	}
	sc, err := c.Objects.FindObject(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", missionseq.ErrStructure, err)
	}
	c.resolved[name] = sc
	return sc, nil
}

// Invalidate drops the resolved names.
func (c *Context) Invalidate() {
	c.resolved = nil
}

// Rename renames an object of the store and drops the resolved names.
func (c *Context) Rename(from, to string) error {
	if c.Objects == nil {
		return fmt.Errorf("%w: no object store", missionseq.ErrStructure)
	}
	if err := c.Objects.Rename(from, to); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Variable returns the value of a script variable.
func (c *Context) Variable(name string) (float64, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// SetVariable sets a script variable, creating it if needed.
func (c *Context) SetVariable(name string, value float64) {
	if c.variables == nil {
		c.variables = make(map[string]float64)
	}
	c.variables[name] = value
}

// SetPublishing turns the publishing of the states of a participant on or off.
func (c *Context) SetPublishing(name string, on bool) {
	if c.muted == nil {
		c.muted = make(map[string]bool)
	}
	c.muted[name] = !on
}

// Publishing returns whether none of the participants has its publishing turned off.
func (c *Context) Publishing(names []string) bool {
	for _, name := range names {
		if c.muted[name] {
			return false
		}
	}
	return true
}

// SetBurn turns a finite burn of the force models on or off for the following propagations.
func (c *Context) SetBurn(name string, on bool) {
	if c.burns == nil {
		c.burns = make(map[string]bool)
	}
	c.burns[name] = on
}

// Burning returns whether the burn was turned on, and whether it was ever turned on or off.
func (c *Context) Burning(name string) (on, known bool) {
	on, known = c.burns[name]
	return on, known
}

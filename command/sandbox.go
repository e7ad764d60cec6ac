package command

import (
	"context"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/internal/observability"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Sandbox runs a sequence in its context.
type Sandbox struct {
	Sequence *Sequence
	Context  *Context
}

// NewSandbox returns a sandbox running the sequence.
func NewSandbox(seq *Sequence, ctx *Context) *Sandbox {
	return &Sandbox{Sequence: seq, Context: ctx}
}

// Run initializes the sequence and drives it to its end. Cancelling the context requests the
// cooperative interrupt, so the run stops at the next poll with an ErrInterrupted error.
func (sb *Sandbox) Run(ctx context.Context) (err error) {
	c, seq := sb.Context, sb.Sequence
	logger := c.logger("seq")
	ctx, span := observability.Tracer().Start(ctx, "mission.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.Interrupt == nil {
		c.Interrupt = &missionseq.Interrupt{}
	}
	c.Interrupt.Reset()
	if err = seq.Initialize(c); err != nil {
		return err
	}
	if ctx.Err() != nil {
		c.Interrupt.Request(context.Cause(ctx).Error())
	}
	stop := context.AfterFunc(ctx, func() {
		c.Interrupt.Request(context.Cause(ctx).Error())
	})
	defer stop()

	start := time.Now()
	level.Info(logger).Log("status", "started", "head", seq.Head())
	for cur := seq.Head(); cur != None; {
		if err = c.Interrupt.Check("sequence"); err != nil {
			level.Warn(logger).Log("status", "interrupted", "err", err)
			return err
		}
		if cur, err = sb.runCommand(ctx, cur); err != nil {
			level.Error(logger).Log("status", "failed", "err", err)
			return err
		}
	}
	// A trailing Stop has no following poll.
	if err = c.Interrupt.Check("sequence"); err != nil {
		level.Warn(logger).Log("status", "interrupted", "err", err)
		return err
	}
	level.Info(logger).Log("status", "complete", "duration", time.Since(start))
	return nil
}

// runCommand drives a top level command until it hands over to the next one, in its own span.
func (sb *Sandbox) runCommand(ctx context.Context, id ID) (ID, error) {
	c, seq := sb.Context, sb.Sequence
	_, span := observability.Tracer().Start(ctx, seq.Command(id).Type(), trace.WithAttributes(attribute.Int("command.id", int(id))))
	defer span.End()
	for {
		if err := seq.Execute(c, id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return None, err
		}
		if next := seq.Next(id); next != id {
			return next, nil
		}
	}
}

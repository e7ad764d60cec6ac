// Package publish receives the states produced by the propagation commands.
package publish

import (
	"fmt"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

// Publisher receives the propagated states. A stream is registered once per propagation with the
// initial state, then every published buffer follows the registered element layout.
type Publisher interface {
	RegisterStream(owners, elements []string, epoch time.Time, initial []float64) (int, error)
	Publish(stream int, epoch time.Time, data []float64) error
}

// Stream describes a registered stream.
type Stream struct {
	ID       int
	Run      uuid.UUID
	Owners   []string
	Elements []string
	Epoch    time.Time // epoch of the initial state
	Initial  []float64
}

// Entry is one published state.
type Entry struct {
	Stream int
	Epoch  time.Time
	Data   []float64
}

// Recorder keeps every stream and published state in memory.
type Recorder struct {
	mu      sync.Mutex
	run     uuid.UUID
	streams []Stream
	entries []Entry
}

// NewRecorder returns an empty recorder with a new run identifier.
func NewRecorder() *Recorder {
	return &Recorder{run: uuid.New()}
}

// RegisterStream implements the Publisher interface.
func (r *Recorder) RegisterStream(owners, elements []string, epoch time.Time, initial []float64) (int, error) {
	if len(elements) != len(initial) {
		return -1, fmt.Errorf("%d elements for an initial state of %d", len(elements), len(initial))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := len(r.streams)
	r.streams = append(r.streams, Stream{
		ID:       id,
		Run:      r.run,
		Owners:   append([]string(nil), owners...),
		Elements: append([]string(nil), elements...),
		Epoch:    epoch,
		Initial:  append([]float64(nil), initial...),
	})
	return id, nil
}

// Publish implements the Publisher interface.
func (r *Recorder) Publish(stream int, epoch time.Time, data []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stream < 0 || stream >= len(r.streams) {
		return fmt.Errorf("unknown stream %d", stream)
	}
	if len(data) != len(r.streams[stream].Elements) {
		return fmt.Errorf("stream %d expects %d elements, got %d", stream, len(r.streams[stream].Elements), len(data))
	}
	r.entries = append(r.entries, Entry{Stream: stream, Epoch: epoch, Data: append([]float64(nil), data...)})
	return nil
}

// Run returns the run identifier of this recorder.
func (r *Recorder) Run() uuid.UUID {
	return r.run
}

// Streams returns the registered streams.
func (r *Recorder) Streams() []Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stream(nil), r.streams...)
}

// Entries returns the published states, in order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns the number of states published on all streams.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// LogPublisher logs every published state at debug level.
type LogPublisher struct {
	mu      sync.Mutex
	logger  kitlog.Logger
	run     uuid.UUID
	streams [][]string
}

// NewLogPublisher returns a publisher writing to the provided logger.
func NewLogPublisher(logger kitlog.Logger) *LogPublisher {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	return &LogPublisher{logger: kitlog.With(logger, "subsys", "publish"), run: uuid.New()}
}

// RegisterStream implements the Publisher interface.
func (p *LogPublisher) RegisterStream(owners, elements []string, epoch time.Time, initial []float64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := len(p.streams)
	p.streams = append(p.streams, append([]string(nil), elements...))
	level.Info(p.logger).Log("run", p.run, "stream", id, "owners", fmt.Sprintf("%v", owners), "epoch", epoch.Format(time.RFC3339Nano), "state", fmt.Sprintf("%v", initial))
	return id, nil
}

// Publish implements the Publisher interface.
func (p *LogPublisher) Publish(stream int, epoch time.Time, data []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stream < 0 || stream >= len(p.streams) {
		return fmt.Errorf("unknown stream %d", stream)
	}
	level.Debug(p.logger).Log("run", p.run, "stream", stream, "epoch", epoch.Format(time.RFC3339Nano), "state", fmt.Sprintf("%v", data))
	return nil
}

// Multi fans out to several publishers, which must agree on the stream identifiers.
type Multi []Publisher

// RegisterStream implements the Publisher interface.
func (m Multi) RegisterStream(owners, elements []string, epoch time.Time, initial []float64) (int, error) {
	id := -1
	for i, p := range m {
		got, err := p.RegisterStream(owners, elements, epoch, initial)
		if err != nil {
			return -1, err
		}
		if i > 0 && got != id {
			return -1, fmt.Errorf("publishers disagree on stream id (%d vs %d)", got, id)
		}
		id = got
	}
	return id, nil
}

// Publish implements the Publisher interface.
func (m Multi) Publish(stream int, epoch time.Time, data []float64) error {
	for _, p := range m {
		if err := p.Publish(stream, epoch, data); err != nil {
			return err
		}
	}
	return nil
}

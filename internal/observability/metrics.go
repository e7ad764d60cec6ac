// Package observability bundles the prometheus metrics and the tracer of a mission run.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ChristopherRabotin/missionseq"

// Collector bundles the prometheus metrics of the sequencer. A nil *Collector is valid and records nothing.
type Collector struct {
	Commands        *prometheus.CounterVec
	Steps           prometheus.Counter
	StepSize        prometheus.Histogram
	Publishes       prometheus.Counter
	EventsLocated   *prometheus.CounterVec
	EventsAbandoned prometheus.Counter
}

// NewCollector registers the metrics against the provided registerer, defaulting to the global
// prometheus registry when nil. Collectors already registered under the same name are reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "missionseq_commands_executed_total",
		Help: "Command executions, labeled by command type.",
	}, []string{"type"}), "missionseq_commands_executed_total")
	if err != nil {
		return nil, err
	}
	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "missionseq_propagation_steps_total",
		Help: "Propagation steps taken, event searches excluded.",
	}), "missionseq_propagation_steps_total")
	if err != nil {
		return nil, err
	}
	stepSize, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "missionseq_step_size_seconds",
		Help:    "Size of the propagation steps in seconds.",
		Buckets: []float64{0.1, 1, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}), "missionseq_step_size_seconds")
	if err != nil {
		return nil, err
	}
	publishes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "missionseq_publishes_total",
		Help: "States published to the publisher.",
	}), "missionseq_publishes_total")
	if err != nil {
		return nil, err
	}
	located, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "missionseq_events_located_total",
		Help: "Events located and recorded, labeled by event type and boundary.",
	}, []string{"type", "boundary"}), "missionseq_events_located_total")
	if err != nil {
		return nil, err
	}
	abandoned, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "missionseq_event_searches_abandoned_total",
		Help: "Event searches which exhausted their iteration budget.",
	}), "missionseq_event_searches_abandoned_total")
	if err != nil {
		return nil, err
	}
	return &Collector{
		Commands:        commands,
		Steps:           steps,
		StepSize:        stepSize,
		Publishes:       publishes,
		EventsLocated:   located,
		EventsAbandoned: abandoned,
	}, nil
}

// CommandExecuted counts one execution of a command of the provided type.
func (c *Collector) CommandExecuted(typ string) {
	if c == nil {
		return
	}
	c.Commands.WithLabelValues(typ).Inc()
}

// StepTaken counts one propagation step of dt seconds.
func (c *Collector) StepTaken(dt float64) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	if dt < 0 {
		dt = -dt
	}
	c.StepSize.Observe(dt)
}

// Published counts one published state.
func (c *Collector) Published() {
	if c == nil {
		return
	}
	c.Publishes.Inc()
}

// EventLocated counts one recorded event.
func (c *Collector) EventLocated(typ, boundary string) {
	if c == nil {
		return
	}
	c.EventsLocated.WithLabelValues(typ, boundary).Inc()
}

// EventAbandoned counts one event search which did not converge.
func (c *Collector) EventAbandoned() {
	if c == nil {
		return
	}
	c.EventsAbandoned.Inc()
}

// Handler exposes the metrics of the gatherer, the default one if nil, on a /metrics handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Tracer returns the tracer of the sequencer from the global otel provider (no-op unless configured).
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

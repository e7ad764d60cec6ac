package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	c.CommandExecuted("Propagate")
	c.CommandExecuted("Propagate")
	c.StepTaken(-60)
	c.Published()
	c.EventLocated("Umbra", "Entry")
	c.EventAbandoned()
	if got := testutil.ToFloat64(c.Commands.WithLabelValues("Propagate")); got != 2 {
		t.Fatalf("commands: got %f", got)
	}
	if got := testutil.ToFloat64(c.Steps); got != 1 {
		t.Fatalf("steps: got %f", got)
	}
	if got := testutil.ToFloat64(c.EventsLocated.WithLabelValues("Umbra", "Entry")); got != 1 {
		t.Fatalf("events: got %f", got)
	}
}

func TestCollectorReuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("re-registration should reuse collectors: %s", err)
	}
	first.Published()
	if got := testutil.ToFloat64(second.Publishes); got != 1 {
		t.Fatalf("collectors not shared: got %f", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.CommandExecuted("If")
	c.StepTaken(1)
	c.Published()
	c.EventLocated("Apsis", "Periapsis")
	c.EventAbandoned()
	if Tracer() == nil {
		t.Fatal("expected a tracer")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	c.Published()
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if body := rec.Body.String(); !strings.Contains(body, "missionseq_publishes_total 1") {
		t.Fatalf("unexpected metrics page:\n%s", body)
	}
}

package event

import (
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// Record is one located event.
type Record struct {
	Locator      string    `yaml:"locator"`
	Function     string    `yaml:"function"`
	Type         string    `yaml:"type"`
	Participants []string  `yaml:"participants"`
	Boundary     string    `yaml:"boundary"`
	Epoch        time.Time `yaml:"epoch"`
	JD           float64   `yaml:"jd"`
	Value        float64   `yaml:"value"`
}

// Table is an append-only list of located events, shared by the locators of a mission.
type Table struct {
	mu      sync.Mutex
	records []Record
}

// NewTable returns an empty event table.
func NewTable() *Table {
	return &Table{}
}

// Append records an event.
func (t *Table) Append(r Record) {
	r.JD = julian.TimeToJD(r.Epoch)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, r)
}

// Records returns a copy of the events in the order they were recorded.
func (t *Table) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Record(nil), t.records...)
}

// Len returns the number of events recorded.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ChristopherRabotin/missionseq/event"
	"github.com/ChristopherRabotin/missionseq/publish"
	"github.com/soniakeys/meeus/v3/julian"
	"gopkg.in/yaml.v3"
)

// report summarizes a run.
type report struct {
	Scenario   string         `yaml:"scenario"`
	Run        string         `yaml:"run"`
	Status     string         `yaml:"status"`
	Error      string         `yaml:"error,omitempty"`
	Published  int            `yaml:"published"`
	Events     []event.Record `yaml:"events"`
	Spacecraft []finalState   `yaml:"spacecraft"`
}

type finalState struct {
	Name   string    `yaml:"name"`
	Origin string    `yaml:"origin"`
	Epoch  time.Time `yaml:"epoch"`
	JD     float64   `yaml:"jd"`
	State  []float64 `yaml:"state,flow"`
	Fuel   float64   `yaml:"fuel"`
}

func newReport(name string, rec *publish.Recorder, m *mission, runErr error) *report {
	r := &report{
		Scenario:  name,
		Run:       rec.Run().String(),
		Status:    "complete",
		Published: rec.Count(),
		Events:    m.table.Records(),
	}
	if runErr != nil {
		r.Status, r.Error = "failed", runErr.Error()
	}
	for _, n := range m.store.Names() {
		sc, err := m.store.FindObject(n)
		if err != nil {
			continue
		}
		r.Spacecraft = append(r.Spacecraft, finalState{
			Name:   sc.Name(),
			Origin: sc.Origin.Name,
			Epoch:  sc.Epoch,
			JD:     julian.TimeToJD(sc.Epoch),
			State:  append([]float64(nil), sc.State...),
			Fuel:   sc.FuelMass,
		})
	}
	return r
}

func (r *report) write(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

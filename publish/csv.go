package publish

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// CSVExporter writes each stream to its own CSV file in a directory, one row per state.
type CSVExporter struct {
	mu      sync.Mutex
	dir     string
	files   []*os.File
	writers []*csv.Writer
	last    []time.Time
}

// NewCSVExporter creates the output directory if needed.
func NewCSVExporter(dir string) (*CSVExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export directory: %w", err)
	}
	return &CSVExporter{dir: dir}, nil
}

// RegisterStream implements the Publisher interface. The initial state is the first row.
func (e *CSVExporter) RegisterStream(owners, elements []string, epoch time.Time, initial []float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := len(e.files)
	name := filepath.Join(e.dir, fmt.Sprintf("%s-%03d.csv", strings.Join(owners, "_"), id))
	f, err := os.Create(name)
	if err != nil {
		return -1, err
	}
	fmt.Fprintf(f, "# Creation date (UTC): %s\n# Simulation time start (UTC): %s\n", time.Now().UTC().Format(time.RFC3339), epoch.UTC().Format(time.RFC3339Nano))
	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"epoch", "jd"}, elements...)); err != nil {
		f.Close()
		return -1, err
	}
	e.files = append(e.files, f)
	e.writers = append(e.writers, w)
	e.last = append(e.last, epoch)
	return id, e.row(id, epoch, initial)
}

// Publish implements the Publisher interface.
func (e *CSVExporter) Publish(stream int, epoch time.Time, data []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stream < 0 || stream >= len(e.files) {
		return fmt.Errorf("unknown stream %d", stream)
	}
	if e.files[stream] == nil {
		return fmt.Errorf("stream %d is closed", stream)
	}
	e.last[stream] = epoch
	return e.row(stream, epoch, data)
}

func (e *CSVExporter) row(stream int, epoch time.Time, data []float64) error {
	record := make([]string, 0, len(data)+2)
	record = append(record, epoch.UTC().Format(time.RFC3339Nano), strconv.FormatFloat(julian.TimeToJD(epoch), 'f', 6, 64))
	for _, v := range data {
		record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return e.writers[stream].Write(record)
}

// Close flushes every stream and closes the files.
func (e *CSVExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for i, f := range e.files {
		if f == nil {
			continue
		}
		e.writers[i].Flush()
		if err := e.writers[i].Error(); err != nil {
			errs = append(errs, err)
		}
		fmt.Fprintf(f, "# Simulation time end (UTC): %s\n", e.last[i].UTC().Format(time.RFC3339Nano))
		errs = append(errs, f.Close())
		e.files[i] = nil
	}
	return errors.Join(errs...)
}

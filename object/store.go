package object

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ChristopherRabotin/missionseq"
)

// ErrNotFound is returned when no object has the requested name.
var ErrNotFound = errors.New("object not found")

// Store keys the mission participants by name.
type Store struct {
	mu       sync.RWMutex
	objects  map[string]*Spacecraft
	revision uint64
}

// NewStore returns a store holding the provided spacecraft.
func NewStore(scs ...*Spacecraft) (*Store, error) {
	s := &Store{objects: make(map[string]*Spacecraft)}
	for _, sc := range scs {
		if err := s.Add(sc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add adds a spacecraft, whose name must be unique.
func (s *Store) Add(sc *Spacecraft) error {
	if sc == nil {
		return fmt.Errorf("%w: nil spacecraft", missionseq.ErrStructure)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[sc.name]; exists {
		return fmt.Errorf("%w: %s already exists", missionseq.ErrStructure, sc.name)
	}
	s.objects[sc.name] = sc
	s.revision++
	return nil
}

// FindObject returns the spacecraft of the provided name.
func (s *Store) FindObject(name string) (*Spacecraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return sc, nil
}

// Rename renames an object. References resolved before the rename are stale: the revision
// changes so that resolution caches can detect it.
func (s *Store) Rename(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.objects[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if _, exists := s.objects[to]; exists {
		return fmt.Errorf("%w: %s already exists", missionseq.ErrStructure, to)
	}
	delete(s.objects, from)
	sc.name = to
	s.objects[to] = sc
	s.revision++
	return nil
}

// Revision changes every time the set of names changes.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Names returns the sorted names of the objects.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

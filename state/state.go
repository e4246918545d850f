package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// ErrNoMarker is returned when clearing an index that has no marker.
var ErrNoMarker = errors.New("no marker for index")

// Achievements holds the achieved waypoint indexes. Indexes never achieved
// are absent, not false.
type Achievements map[int]bool

// Indices returns the achieved indexes in ascending order.
func (a Achievements) Indices() []int {
	indices := make([]int, 0, len(a))
	for i, ok := range a {
		if ok {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)
	return indices
}

// Store persists one empty marker file per achieved waypoint index. The
// presence of a marker is the only state, so a crash between two marker
// operations never corrupts the other indexes.
//
// A Store does no locking: only one course may own a directory.
type Store struct {
	dir string
}

// New opens the store in dir, creating the directory when missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state folder '%s': %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) filename(i int) string {
	return filepath.Join(s.dir, strconv.Itoa(i))
}

// Load lists the markers currently present. Entries whose name is not a
// canonical decimal index ("01", "+1") are ignored.
func (s *Store) Load() (Achievements, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.WithError(err).Errorf("Error reading state folder '%s'", s.dir)
		return nil, err
	}

	achievements := make(Achievements)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		i, err := strconv.Atoi(e.Name())
		if err != nil || i < 0 || strconv.Itoa(i) != e.Name() {
			log.Debugf("Ignore state file '%s'", e.Name())
			continue
		}
		achievements[i] = true
	}
	return achievements, nil
}

// Save reconciles the markers with full: markers are created for true
// entries and removed for false ones and for indexes beyond len(full).
// Markers already in the wanted state are left alone. A failing index is
// logged and does not stop the others; all failures are returned together.
func (s *Store) Save(full []bool) error {
	current, err := s.Load()
	if err != nil {
		return err
	}

	var errs []error
	for i, achieved := range full {
		if achieved && !current[i] {
			if err := s.mark(i); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, i := range current.Indices() {
		if i >= len(full) || !full[i] {
			if err := s.ClearIndex(i); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (s *Store) mark(i int) error {
	f, err := os.OpenFile(s.filename(i), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.WithError(err).Errorf("Error saving state %d", i)
		return fmt.Errorf("mark %d: %w", i, err)
	}
	if err := f.Close(); err != nil {
		log.WithError(err).Errorf("Error saving state %d", i)
		return fmt.Errorf("mark %d: %w", i, err)
	}
	return nil
}

// ClearIndex removes the marker of index i. A missing marker is reported
// with ErrNoMarker.
func (s *Store) ClearIndex(i int) error {
	err := os.Remove(s.filename(i))
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("No state to clear for %d", i)
		return fmt.Errorf("clear %d: %w", i, ErrNoMarker)
	}
	log.WithError(err).Errorf("Error clearing state %d", i)
	return fmt.Errorf("clear %d: %w", i, err)
}

// ClearAll removes every marker currently present.
func (s *Store) ClearAll() error {
	current, err := s.Load()
	if err != nil {
		return err
	}

	var errs []error
	for _, i := range current.Indices() {
		if err := s.ClearIndex(i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

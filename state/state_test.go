package state

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state", "race"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func checkState(t *testing.T, s *Store, want []int) {
	t.Helper()
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Errorf("Load() = %v; want %v", got.Indices(), want)
	}
	if !reflect.DeepEqual(got.Indices(), want) {
		t.Errorf("Load().Indices() = %v; want %v", got.Indices(), want)
	}
	for _, i := range want {
		if v, found := got[i]; !found || !v {
			t.Errorf("Load()[%d] = %t, %t; want true, true", i, v, found)
		}
	}
}

func TestNewCreatesFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("New(%s) did not create the folder: %v", dir, err)
	}
	if s.Dir() != dir {
		t.Errorf("Dir() = %s; want %s", s.Dir(), dir)
	}
	checkState(t, s, []int{})
}

func TestSaveAndLoad(t *testing.T) {
	s := newStore(t)

	if err := s.Save([]bool{true, true, false, true}); err != nil {
		t.Fatal(err)
	}
	checkState(t, s, []int{0, 1, 3})

	got, _ := s.Load()
	if _, found := got[2]; found {
		t.Errorf("Load()[2] present; want absent")
	}

	if err := s.Save([]bool{false, true, false, false}); err != nil {
		t.Fatal(err)
	}
	checkState(t, s, []int{1})
}

func TestSaveLeavesMatchingMarkers(t *testing.T) {
	s := newStore(t)
	if err := s.Save([]bool{true, true}); err != nil {
		t.Fatal(err)
	}
	// content is never written by the store; use it to detect a rewrite
	if err := os.WriteFile(filepath.Join(s.Dir(), "1"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Save([]bool{false, true}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(s.Dir(), "1"))
	if err != nil || string(b) != "x" {
		t.Errorf("marker 1 was rewritten: %q, %v", b, err)
	}
	checkState(t, s, []int{1})
}

func TestSaveShorterState(t *testing.T) {
	s := newStore(t)
	if err := s.Save([]bool{true, false, true, true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save([]bool{true}); err != nil {
		t.Fatal(err)
	}
	checkState(t, s, []int{0})
}

func TestLoadIgnoresForeignEntries(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"readme", "-1", "2.tmp", "01", "+3"} {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(s.Dir(), "7"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "12"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	checkState(t, s, []int{12})
}

func TestSaveContinuesAfterFailure(t *testing.T) {
	s := newStore(t)
	if err := os.Mkdir(filepath.Join(s.Dir(), "1"), 0755); err != nil {
		t.Fatal(err)
	}

	if err := s.Save([]bool{true, true, true}); err == nil {
		t.Errorf("Save() with index 1 blocked succeeded; want error")
	}
	for _, name := range []string{"0", "2"} {
		if _, err := os.Stat(filepath.Join(s.Dir(), name)); err != nil {
			t.Errorf("marker %s: %v; want it saved", name, err)
		}
	}
	checkState(t, s, []int{0, 2})
}

func TestLoadMissingFolder(t *testing.T) {
	s := newStore(t)
	if err := os.RemoveAll(s.Dir()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil {
		t.Errorf("Load() on a missing folder succeeded; want error")
	}
	if err := s.Save([]bool{true}); err == nil {
		t.Errorf("Save() on a missing folder succeeded; want error")
	}
}

func TestClearIndex(t *testing.T) {
	s := newStore(t)
	if err := s.Save([]bool{true, true, false, true}); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearIndex(1); err != nil {
		t.Fatal(err)
	}
	checkState(t, s, []int{0, 3})

	err := s.ClearIndex(1)
	if !errors.Is(err, ErrNoMarker) {
		t.Errorf("ClearIndex(1) twice = %v; want ErrNoMarker", err)
	}
	checkState(t, s, []int{0, 3})
}

func TestClearAll(t *testing.T) {
	s := newStore(t)
	if err := s.Save([]bool{true, false, true, true, false, true}); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearAll(); err != nil {
		t.Fatal(err)
	}
	checkState(t, s, []int{})

	if err := s.ClearAll(); err != nil {
		t.Errorf("ClearAll() on an empty store = %v; want nil", err)
	}
}

func TestIndices(t *testing.T) {
	a := Achievements{5: true, 1: true, 3: false, 0: true}
	if got := a.Indices(); !reflect.DeepEqual(got, []int{0, 1, 5}) {
		t.Errorf("Indices() = %v; want [0 1 5]", got)
	}
}

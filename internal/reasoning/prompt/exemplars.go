package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Exemplar is one few-shot example shown to the model.
type Exemplar struct {
	Example string `yaml:"example" json:"example"`
}

// ExemplarStore holds the few-shot set. The set is replaced atomically on
// Reload and never mutated in place.
type ExemplarStore struct {
	path string
	set  atomic.Pointer[[]Exemplar]
}

// NewExemplarStore returns a store backed by path. Call Reload to read it.
func NewExemplarStore(path string) *ExemplarStore {
	s := &ExemplarStore{path: path}
	s.set.Store(&[]Exemplar{})
	return s
}

// StaticExemplars returns a store with a fixed set and no backing file.
func StaticExemplars(examples ...Exemplar) *ExemplarStore {
	s := &ExemplarStore{}
	set := append([]Exemplar(nil), examples...)
	s.set.Store(&set)
	return s
}

// Reload reads the backing file, which may be JSON or YAML. A missing file
// leaves the store empty and is not an error.
func (s *ExemplarStore) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.set.Store(&[]Exemplar{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("read exemplars %s: %w", s.path, err)
	}

	var set []Exemplar
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("parse exemplars %s: %w", s.path, err)
	}
	kept := set[:0]
	for _, ex := range set {
		if ex.Example != "" {
			kept = append(kept, ex)
		}
	}
	s.set.Store(&kept)
	return nil
}

// Path returns the backing file, if any.
func (s *ExemplarStore) Path() string { return s.path }

// Examples returns the current set. Callers must not modify it.
func (s *ExemplarStore) Examples() []Exemplar {
	if s == nil {
		return nil
	}
	return *s.set.Load()
}

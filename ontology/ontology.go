// Package ontology provides the read-only knowledge-base lookup consumed by
// the WEIGHT stage. Entries classify concepts into ontology dimensions with
// per-dimension weights. The handle is versioned; a run requesting a missing
// or incompatible version is rejected before any operator executes.
package ontology

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a term has no ontology entry.
var ErrNotFound = errors.New("ontology term not found")

// ErrVersionMismatch is returned when a run requests a version the knowledge
// base does not serve.
var ErrVersionMismatch = errors.New("ontology version mismatch")

// Entry classifies a term: the ontology dimension weights attached to any
// graph element resolved to this term.
type Entry struct {
	Term    string             `yaml:"term" json:"term"`
	Kind    string             `yaml:"kind" json:"kind"`
	Weights map[string]float64 `yaml:"weights" json:"weights"`
}

// KnowledgeBase is the read-only lookup interface handed to each pipeline run.
// Implementations must be safe for concurrent use; the engine never writes.
type KnowledgeBase interface {
	// Version returns the ontology version this handle serves.
	Version() string

	// Lookup returns the entry for a term (case-insensitive), or ErrNotFound.
	Lookup(term string) (*Entry, error)
}

// InMemory is a KnowledgeBase backed by a fixed entry map. It is immutable
// after construction, so concurrent runs share it without coordination.
type InMemory struct {
	version string
	entries map[string]*Entry
}

// NewInMemory builds an immutable knowledge base from entries.
func NewInMemory(version string, entries []Entry) *InMemory {
	m := make(map[string]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		m[strings.ToLower(e.Term)] = &e
	}
	return &InMemory{version: version, entries: m}
}

// Version returns the ontology version.
func (kb *InMemory) Version() string { return kb.version }

// Lookup returns the entry for a term, or ErrNotFound.
func (kb *InMemory) Lookup(term string) (*Entry, error) {
	e, ok := kb.entries[strings.ToLower(term)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, term)
	}
	return e, nil
}

// Len returns the number of entries.
func (kb *InMemory) Len() int { return len(kb.entries) }

// file is the YAML layout of a knowledge-base file.
type file struct {
	Version string  `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// LoadFromFile reads a YAML knowledge base.
func LoadFromFile(path string) (*InMemory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ontology file: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("ontology file %s missing version", path)
	}
	return NewInMemory(f.Version, f.Entries), nil
}

// CheckVersion verifies that kb serves the requested version. An empty
// requested version accepts whatever the handle serves.
func CheckVersion(kb KnowledgeBase, requested string) error {
	if requested == "" {
		return nil
	}
	if kb.Version() != requested {
		return fmt.Errorf("%w: requested %q, have %q", ErrVersionMismatch, requested, kb.Version())
	}
	return nil
}

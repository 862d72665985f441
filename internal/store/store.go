// Package store holds the artifact lookup shared within one orchestration
// run, plus the filesystem layout conventions for raw and processed files.
package store

import (
	"sort"
	"sync"

	"reportflow/pkg/types"
)

// Store maps artifact names to their filesystem locations for the duration
// of one run. It is not a cache: there is no eviction, and the last write
// for a given name wins.
type Store struct {
	mu        sync.RWMutex
	artifacts map[string]types.Artifact
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		artifacts: make(map[string]types.Artifact),
	}
}

// Put registers an artifact under name, superseding any previous entry.
func (s *Store) Put(name string, artifact types.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = artifact
}

// Get looks up an artifact by name.
func (s *Store) Get(name string) (types.Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[name]
	return artifact, ok
}

// Names returns all registered artifact names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}

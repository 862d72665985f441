// Package registry holds the static catalogue of report units and validates
// their dependency graph before anything runs.
//
// Units are registered explicitly once at process start. A dependency may
// name either another registered unit or a known artifact-producing source
// (an acquisition module); anything else is a configuration defect surfaced
// before execution.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"reportflow/pkg/types"
)

// ErrDuplicateUnit is returned when a unit name is registered twice.
var ErrDuplicateUnit = errors.New("report unit already registered")

// UnknownDependencyError means a declared dependency resolves to neither a
// registered unit nor a known source artifact.
type UnknownDependencyError struct {
	Unit       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("unit %q depends on unknown name %q", e.Unit, e.Dependency)
}

// CycleError means the dependency relation is not acyclic. Path lists every
// member of the offending cycle exactly once.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// ArtifactStore is the slice of the shared store a report unit sees: named
// inputs in, one named output back.
type ArtifactStore interface {
	Get(name string) (types.Artifact, bool)
	Put(name string, artifact types.Artifact)
}

// RunFunc is a unit's transform: read declared inputs from the store, write
// one new artifact. It must be deterministic given its inputs and must not
// mutate shared state outside its own output.
type RunFunc func(ctx context.Context, store ArtifactStore) (types.Artifact, error)

// Unit is one named report-processing step.
type Unit struct {
	Name         string
	Description  string
	Dependencies []string
	Run          RunFunc
}

// Registry is the static unit catalogue. Register every unit and source at
// process start, then build the graph once per scheduling pass.
type Registry struct {
	mu      sync.RWMutex
	units   map[string]Unit
	order   []string            // registration order, the topological tie-break
	sources map[string]struct{} // artifact names produced outside the registry
}

// New creates a Registry that recognizes the given source artifact names as
// valid dependencies.
func New(sources ...string) *Registry {
	r := &Registry{
		units:   make(map[string]Unit),
		sources: make(map[string]struct{}, len(sources)),
	}
	for _, s := range sources {
		r.sources[s] = struct{}{}
	}
	return r
}

// AddSource declares one more artifact-producing source name.
func (r *Registry) AddSource(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = struct{}{}
}

// Register adds a unit to the catalogue. Names must be unique across units
// and must not collide with a source name.
func (r *Registry) Register(unit Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.units[unit.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, unit.Name)
	}
	if _, exists := r.sources[unit.Name]; exists {
		return fmt.Errorf("%w: %s collides with a source name", ErrDuplicateUnit, unit.Name)
	}

	r.units[unit.Name] = unit
	r.order = append(r.order, unit.Name)
	return nil
}

// Units returns the registered units in registration order.
func (r *Registry) Units() []Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Unit, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.units[name])
	}
	return out
}

// BuildGraph validates the catalogue and returns the dependency graph for
// one scheduling pass. Every declared dependency must resolve, and the
// relation must be acyclic.
func (r *Registry) BuildGraph() (*Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		unit := r.units[name]
		for _, dep := range unit.Dependencies {
			if _, ok := r.units[dep]; ok {
				continue
			}
			if _, ok := r.sources[dep]; ok {
				continue
			}
			return nil, &UnknownDependencyError{Unit: name, Dependency: dep}
		}
	}

	if cycle := r.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	g := &Graph{
		units:   make(map[string]Unit, len(r.units)),
		sources: make(map[string]struct{}, len(r.sources)),
	}
	for name, unit := range r.units {
		g.units[name] = unit
	}
	for name := range r.sources {
		g.sources[name] = struct{}{}
	}
	g.order = r.topoOrder()
	return g, nil
}

// findCycle runs a depth-first traversal with an in-progress marker and
// returns the members of the first cycle found, or nil. Only unit-to-unit
// edges can form cycles; source dependencies are leaves.
func (r *Registry) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(r.units))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)

		for _, dep := range r.units[name].Dependencies {
			if _, isUnit := r.units[dep]; !isUnit {
				continue
			}
			switch color[dep] {
			case gray:
				// Back edge: the cycle is the stack suffix starting at dep.
				for i, n := range stack {
					if n == dep {
						cycle = append(cycle, stack[i:]...)
						break
					}
				}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range r.order {
		if color[name] == white && visit(name) {
			return cycle
		}
	}
	return nil
}

// topoOrder computes a topological order over all units. Among units with no
// remaining ordering constraint the tie-break is registration order, keeping
// runs deterministic. Must be called on an acyclic catalogue.
func (r *Registry) topoOrder() []string {
	indegree := make(map[string]int, len(r.units))
	for _, name := range r.order {
		for _, dep := range r.units[name].Dependencies {
			if _, isUnit := r.units[dep]; isUnit {
				indegree[name]++
			}
		}
	}

	placed := make(map[string]bool, len(r.units))
	order := make([]string, 0, len(r.units))
	for len(order) < len(r.order) {
		progressed := false
		for _, name := range r.order {
			if placed[name] || indegree[name] > 0 {
				continue
			}
			placed[name] = true
			order = append(order, name)
			progressed = true
			for _, other := range r.order {
				for _, dep := range r.units[other].Dependencies {
					if dep == name {
						indegree[other]--
					}
				}
			}
		}
		if !progressed {
			break // unreachable on a validated acyclic catalogue
		}
	}
	return order
}

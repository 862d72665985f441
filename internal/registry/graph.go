package registry

// Graph is a validated, read-only view of the unit catalogue for one
// scheduling pass. It is built by Registry.BuildGraph and never persisted.
type Graph struct {
	units   map[string]Unit
	sources map[string]struct{}
	order   []string // topological order over all units
}

// Unit looks up a unit by name.
func (g *Graph) Unit(name string) (Unit, bool) {
	u, ok := g.units[name]
	return u, ok
}

// IsSource reports whether name is a known artifact-producing source.
func (g *Graph) IsSource(name string) bool {
	_, ok := g.sources[name]
	return ok
}

// Order returns the topological order over all registered units.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Closure returns the topological order restricted to the enabled units and
// every unit they transitively depend on. An enabled name that is not a
// registered unit is an UnknownDependencyError.
func (g *Graph) Closure(enabled []string) ([]string, error) {
	wanted := make(map[string]bool, len(enabled))

	var include func(name string)
	include = func(name string) {
		if wanted[name] {
			return
		}
		wanted[name] = true
		for _, dep := range g.units[name].Dependencies {
			if _, isUnit := g.units[dep]; isUnit {
				include(dep)
			}
		}
	}

	for _, name := range enabled {
		if _, ok := g.units[name]; !ok {
			return nil, &UnknownDependencyError{Unit: name, Dependency: name}
		}
		include(name)
	}

	out := make([]string, 0, len(wanted))
	for _, name := range g.order {
		if wanted[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

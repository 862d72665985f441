package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportflow/pkg/types"
)

func noopRun(ctx context.Context, store ArtifactStore) (types.Artifact, error) {
	return types.Artifact{}, nil
}

func unit(name string, deps ...string) Unit {
	return Unit{Name: name, Dependencies: deps, Run: noopRun}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(unit("clean")))

	err := reg.Register(unit("clean"))
	assert.ErrorIs(t, err, ErrDuplicateUnit)
}

func TestRegisterCollidesWithSource(t *testing.T) {
	reg := New("raw")

	err := reg.Register(unit("raw"))
	assert.ErrorIs(t, err, ErrDuplicateUnit)
}

func TestUnitsPreserveRegistrationOrder(t *testing.T) {
	reg := New()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Register(unit(name)))
	}

	units := reg.Units()
	require.Len(t, units, 3)
	assert.Equal(t, "c", units[0].Name)
	assert.Equal(t, "a", units[1].Name)
	assert.Equal(t, "b", units[2].Name)
}

func TestBuildGraphUnknownDependency(t *testing.T) {
	reg := New("raw")
	require.NoError(t, reg.Register(unit("clean", "raw", "ghost")))

	_, err := reg.BuildGraph()
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "clean", unknown.Unit)
	assert.Equal(t, "ghost", unknown.Dependency)
}

func TestBuildGraphSourceDependencyResolves(t *testing.T) {
	reg := New("raw")
	require.NoError(t, reg.Register(unit("clean", "raw")))

	_, err := reg.BuildGraph()
	assert.NoError(t, err)
}

func TestBuildGraphCycle(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(unit("a", "c")))
	require.NoError(t, reg.Register(unit("b", "a")))
	require.NoError(t, reg.Register(unit("c", "b")))

	_, err := reg.BuildGraph()
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)

	// Every cycle member appears exactly once.
	seen := make(map[string]int)
	for _, n := range cycle.Path {
		seen[n]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestBuildGraphSelfCycle(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(unit("a", "a")))

	_, err := reg.BuildGraph()
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a"}, cycle.Path)
}

// indexOf fails the test when name is absent.
func indexOf(t *testing.T, order []string, name string) int {
	t.Helper()
	for i, n := range order {
		if n == name {
			return i
		}
	}
	t.Fatalf("%s not in order %v", name, order)
	return -1
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	reg := New("raw")
	require.NoError(t, reg.Register(unit("pivot", "clean")))
	require.NoError(t, reg.Register(unit("clean", "raw")))
	require.NoError(t, reg.Register(unit("merge", "pivot", "clean")))

	graph, err := reg.BuildGraph()
	require.NoError(t, err)

	order := graph.Order()
	require.Len(t, order, 3)
	assert.Less(t, indexOf(t, order, "clean"), indexOf(t, order, "pivot"))
	assert.Less(t, indexOf(t, order, "pivot"), indexOf(t, order, "merge"))
}

func TestTopologicalOrderTieBreakIsRegistrationOrder(t *testing.T) {
	reg := New()
	// No edges at all: the only ordering constraint is registration order.
	for _, name := range []string{"zeta", "alpha", "mike"} {
		require.NoError(t, reg.Register(unit(name)))
	}

	graph, err := reg.BuildGraph()
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mike"}, graph.Order())
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	reg := New("raw")
	require.NoError(t, reg.Register(unit("b", "raw")))
	require.NoError(t, reg.Register(unit("a", "raw")))
	require.NoError(t, reg.Register(unit("c", "a", "b")))

	first, err := reg.BuildGraph()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := reg.BuildGraph()
		require.NoError(t, err)
		assert.Equal(t, first.Order(), again.Order())
	}
}

func TestClosureIncludesTransitiveDependencies(t *testing.T) {
	reg := New("raw")
	require.NoError(t, reg.Register(unit("clean", "raw")))
	require.NoError(t, reg.Register(unit("pivot", "clean")))
	require.NoError(t, reg.Register(unit("unrelated")))

	graph, err := reg.BuildGraph()
	require.NoError(t, err)

	order, err := graph.Closure([]string{"pivot"})
	require.NoError(t, err)
	assert.Equal(t, []string{"clean", "pivot"}, order)
}

func TestClosureUnknownEnabledName(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(unit("clean")))

	graph, err := reg.BuildGraph()
	require.NoError(t, err)

	_, err = graph.Closure([]string{"ghost"})
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Unit)
}

func TestGraphIsSource(t *testing.T) {
	reg := New("raw")
	require.NoError(t, reg.Register(unit("clean", "raw")))

	graph, err := reg.BuildGraph()
	require.NoError(t, err)
	assert.True(t, graph.IsSource("raw"))
	assert.False(t, graph.IsSource("clean"))
}

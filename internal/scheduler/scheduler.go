// Package scheduler executes enabled report units in dependency order with
// per-unit failure isolation.
//
// A unit failure never propagates as an error: it is recorded in the
// execution report and its dependents are skipped, so a run always completes
// and reports a definite outcome for every enabled unit.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reportflow/internal/metrics"
	"reportflow/internal/registry"
	"reportflow/pkg/types"
)

var log = slog.Default()

// UnitStatus is the terminal outcome of one unit within a run.
type UnitStatus string

const (
	UnitSucceeded UnitStatus = "succeeded"
	UnitFailed    UnitStatus = "failed"
	UnitSkipped   UnitStatus = "skipped"
)

// UnitResult records the outcome of one unit.
type UnitResult struct {
	Name     string
	Status   UnitStatus
	Reason   string         // failure detail, set when Status is failed
	Blocking string         // the dependency that caused a skip
	Artifact types.Artifact // set when Status is succeeded
	Duration time.Duration
}

// ExecutionReport lists one terminal result per executed unit, in the order
// they were considered (a valid topological order of the dependency graph).
type ExecutionReport struct {
	StartedAt time.Time
	Results   []UnitResult
}

// Result looks up the outcome for a unit by name.
func (r *ExecutionReport) Result(name string) (UnitResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return UnitResult{}, false
}

// Counts returns how many units succeeded, failed, and were skipped.
func (r *ExecutionReport) Counts() (succeeded, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case UnitSucceeded:
			succeeded++
		case UnitFailed:
			failed++
		case UnitSkipped:
			skipped++
		}
	}
	return
}

// Scheduler drives report unit execution over a validated dependency graph.
type Scheduler struct {
	registry  *registry.Registry
	collector *metrics.Collector // may be nil
}

// New creates a Scheduler over the registry. collector may be nil when
// metrics are disabled.
func New(reg *registry.Registry, collector *metrics.Collector) *Scheduler {
	return &Scheduler{registry: reg, collector: collector}
}

// Run executes the enabled units and their transitive unit dependencies in
// topological order. Registry configuration defects (unknown dependency,
// cycle, unknown enabled name) fail before any unit runs; unit failures are
// isolated and recorded.
func (s *Scheduler) Run(ctx context.Context, enabled []string, store registry.ArtifactStore) (*ExecutionReport, error) {
	graph, err := s.registry.BuildGraph()
	if err != nil {
		return nil, err
	}
	order, err := graph.Closure(enabled)
	if err != nil {
		return nil, err
	}

	report := &ExecutionReport{StartedAt: time.Now()}
	log.Info("starting report run", "units", len(order))

	for _, name := range order {
		unit, _ := graph.Unit(name)

		if blocking, ok := missingDependency(unit, store); ok {
			log.Warn("unit skipped", "unit", name, "blocking", blocking)
			report.Results = append(report.Results, UnitResult{
				Name:     name,
				Status:   UnitSkipped,
				Blocking: blocking,
			})
			s.record(UnitSkipped, 0)
			continue
		}

		start := time.Now()
		artifact, err := s.invoke(ctx, unit, store)
		elapsed := time.Since(start)

		if err != nil {
			log.Error("unit failed", "unit", name, "error", err, "duration", elapsed)
			report.Results = append(report.Results, UnitResult{
				Name:     name,
				Status:   UnitFailed,
				Reason:   err.Error(),
				Duration: elapsed,
			})
			s.record(UnitFailed, elapsed)
			continue
		}

		if artifact.Name == "" {
			artifact.Name = name
		}
		store.Put(artifact.Name, artifact)

		log.Info("unit succeeded", "unit", name, "artifact", artifact.Path, "duration", elapsed)
		report.Results = append(report.Results, UnitResult{
			Name:     name,
			Status:   UnitSucceeded,
			Artifact: artifact,
			Duration: elapsed,
		})
		s.record(UnitSucceeded, elapsed)
	}

	succeeded, failed, skipped := report.Counts()
	log.Info("report run finished", "succeeded", succeeded, "failed", failed, "skipped", skipped)
	return report, nil
}

// missingDependency returns the first dependency whose artifact is absent
// from the store. An upstream failure or skip leaves its artifact absent, so
// this single check propagates failures structurally to dependents.
func missingDependency(unit registry.Unit, store registry.ArtifactStore) (string, bool) {
	for _, dep := range unit.Dependencies {
		if _, ok := store.Get(dep); !ok {
			return dep, true
		}
	}
	return "", false
}

// invoke runs one unit, converting a panic into that unit's failure so a
// misbehaving transform cannot abort the run.
func (s *Scheduler) invoke(ctx context.Context, unit registry.Unit, store registry.ArtifactStore) (artifact types.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panicked: %v", r)
		}
	}()
	return unit.Run(ctx, store)
}

func (s *Scheduler) record(status UnitStatus, elapsed time.Duration) {
	if s.collector == nil {
		return
	}
	switch status {
	case UnitSucceeded:
		s.collector.RecordUnitSucceeded(elapsed.Seconds())
	case UnitFailed:
		s.collector.RecordUnitFailed()
	case UnitSkipped:
		s.collector.RecordUnitSkipped()
	}
}

// Package orchestrator composes export submission, polling, and download
// into the single acquisition operation the rest of the system consumes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"reportflow/internal/metrics"
	"reportflow/internal/registry"
	"reportflow/internal/store"
	"reportflow/pkg/types"
)

var log = slog.Default()

// AcquisitionError means the export job itself reached Failed or was
// abandoned on the local deadline. It is terminal for that acquisition and
// is never retried automatically: resubmission may duplicate billable remote
// work.
type AcquisitionError struct {
	Producer string
	Status   types.JobStatus
	Reason   string
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition %s ended %s: %s", e.Producer, e.Status, e.Reason)
}

// jobRunner is the export lifecycle slice the orchestrator consumes.
type jobRunner interface {
	Submit(ctx context.Context, req types.ExportRequest) (types.ExportJob, error)
	PollUntilTerminal(ctx context.Context, job types.ExportJob, interval, maxWait time.Duration) (types.ExportJob, error)
}

// fileDownloader materializes a succeeded job as a local file.
type fileDownloader interface {
	Download(ctx context.Context, job types.ExportJob, destination string) (types.Artifact, error)
}

// Config bounds the blocking points of one acquisition.
type Config struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Orchestrator acquires one raw artifact per call and registers it in the
// shared store.
type Orchestrator struct {
	jobs      jobRunner
	files     fileDownloader
	artifacts registry.ArtifactStore
	layout    store.Layout
	config    Config
	collector *metrics.Collector // may be nil
}

// New wires an Orchestrator. collector may be nil when metrics are disabled.
func New(jobs jobRunner, files fileDownloader, artifacts registry.ArtifactStore, layout store.Layout, config Config, collector *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		jobs:      jobs,
		files:     files,
		artifacts: artifacts,
		layout:    layout,
		config:    config,
		collector: collector,
	}
}

// Acquire submits one export, polls it to a terminal state, downloads the
// result into the downloads area, and registers the artifact under the
// request's producer name.
//
// Exactly one remote job is created per call. SubmissionError, PollingError,
// and IntegrityError propagate unchanged; a Failed or TimedOut job becomes
// an AcquisitionError.
func (o *Orchestrator) Acquire(ctx context.Context, req types.ExportRequest) (types.Artifact, error) {
	start := time.Now()

	job, err := o.jobs.Submit(ctx, req)
	if err != nil {
		return types.Artifact{}, err
	}
	if o.collector != nil {
		o.collector.RecordExportSubmitted()
	}

	job, err = o.jobs.PollUntilTerminal(ctx, job, o.config.PollInterval, o.config.MaxWait)
	if err != nil {
		return types.Artifact{}, err
	}

	switch job.Status {
	case types.StatusSucceeded:
	case types.StatusFailed:
		if o.collector != nil {
			o.collector.RecordExportFailed()
		}
		return types.Artifact{}, &AcquisitionError{Producer: req.Producer, Status: job.Status, Reason: job.Reason}
	case types.StatusTimedOut:
		if o.collector != nil {
			o.collector.RecordExportTimedOut()
		}
		return types.Artifact{}, &AcquisitionError{Producer: req.Producer, Status: job.Status, Reason: job.Reason}
	default:
		return types.Artifact{}, &AcquisitionError{Producer: req.Producer, Status: job.Status, Reason: "poll returned non-terminal status"}
	}

	destination := filepath.Join(o.layout.DownloadsDir(), store.TimestampedFilename(req.Producer, "csv"))
	artifact, err := o.files.Download(ctx, job, destination)
	if err != nil {
		return types.Artifact{}, err
	}

	o.artifacts.Put(artifact.Name, artifact)
	if o.collector != nil {
		o.collector.RecordExportSucceeded(time.Since(start).Seconds())
		if job.Result != nil && job.Result.Size > 0 {
			o.collector.RecordDownloadBytes(job.Result.Size)
		}
	}

	log.Info("artifact acquired", "producer", req.Producer, "path", artifact.Path, "elapsed", time.Since(start))
	return artifact, nil
}

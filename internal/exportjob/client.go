// Package exportjob drives one export request from submission to terminal
// status.
//
// State machine: submitted -> running -> {succeeded | failed}. The poll loop
// marks a job timed_out locally when max-wait expires; the remote job may
// still be running, so a timed_out job must never be trusted for download.
package exportjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reportflow/pkg/types"
)

var log = slog.Default()

// API is the consumed slice of the remote export interface.
type API interface {
	SubmitExport(ctx context.Context, reportType string, params map[string]any) (types.JobID, error)
	ExportStatus(ctx context.Context, id types.JobID) (types.StatusReport, error)
}

// SubmissionError means the remote system rejected the request outright.
// It is never retried: resubmission may duplicate remote work.
type SubmissionError struct {
	ReportType string
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("export submission rejected for %s: %v", e.ReportType, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollingError means status checks failed repeatedly and the retry budget
// was exhausted twice in a row.
type PollingError struct {
	JobID types.JobID
	Err   error
}

func (e *PollingError) Error() string {
	return fmt.Sprintf("polling job %s failed: %v", e.JobID, e.Err)
}

func (e *PollingError) Unwrap() error { return e.Err }

// transienter is implemented by errors that are safe to retry.
type transienter interface {
	Transient() bool
}

func isTransient(err error) bool {
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	// Plain transport errors (connection reset, timeout) carry no
	// classification; treat them as transient.
	return true
}

// Client submits export jobs and polls them to a terminal state.
type Client struct {
	api          API
	checkRetries int           // retry budget for one status check
	backoffBase  time.Duration // first backoff step, doubled per retry
}

// NewClient wraps api with the default per-check retry budget.
func NewClient(api API) *Client {
	return &Client{
		api:          api,
		checkRetries: 3,
		backoffBase:  500 * time.Millisecond,
	}
}

// NewClientWithRetry wraps api with an explicit per-check retry budget and
// initial backoff. Used by tests and by callers with tighter budgets.
func NewClientWithRetry(api API, checkRetries int, backoffBase time.Duration) *Client {
	return &Client{api: api, checkRetries: checkRetries, backoffBase: backoffBase}
}

// Submit sends one export request. A rejection is surfaced immediately as a
// SubmissionError; there is no retry at this level.
func (c *Client) Submit(ctx context.Context, req types.ExportRequest) (types.ExportJob, error) {
	log.Info("submitting export", "report_type", req.ReportType, "producer", req.Producer)

	id, err := c.api.SubmitExport(ctx, req.ReportType, req.Params)
	if err != nil {
		return types.ExportJob{}, &SubmissionError{ReportType: req.ReportType, Err: err}
	}

	job := types.ExportJob{
		ID:          id,
		ReportType:  req.ReportType,
		Producer:    req.Producer,
		Params:      req.Params,
		Status:      types.StatusSubmitted,
		SubmittedAt: time.Now(),
	}
	log.Info("export submitted", "job_id", id, "producer", req.Producer)
	return job, nil
}

// PollUntilTerminal checks the job's remote status at a fixed cadence until
// it reaches succeeded or failed, or until maxWait elapses, in which case the
// job is marked timed_out locally.
//
// Each individual check that fails transiently is retried up to the client's
// budget with exponential backoff. One exhausted budget is tolerated; two in
// a row escalate to a PollingError. A non-transient check failure escalates
// immediately.
func (c *Client) PollUntilTerminal(ctx context.Context, job types.ExportJob, interval, maxWait time.Duration) (types.ExportJob, error) {
	if job.Status.Terminal() {
		return job, nil
	}

	deadline := time.Now().Add(maxWait)
	exhausted := 0

	for {
		if time.Now().After(deadline) {
			job.Status = types.StatusTimedOut
			job.Reason = fmt.Sprintf("no terminal status within %s", maxWait)
			log.Warn("export poll deadline expired", "job_id", job.ID, "max_wait", maxWait)
			return job, nil
		}

		report, err := c.checkWithRetry(ctx, job.ID)
		if ctx.Err() != nil {
			return job, ctx.Err()
		}
		switch {
		case err != nil && !isTransient(err):
			return job, &PollingError{JobID: job.ID, Err: err}
		case err != nil:
			exhausted++
			log.Warn("status check budget exhausted", "job_id", job.ID, "consecutive", exhausted, "error", err)
			if exhausted >= 2 {
				return job, &PollingError{JobID: job.ID, Err: err}
			}
		default:
			exhausted = 0
			done, updated := applyReport(job, report)
			job = updated
			if done {
				log.Info("export reached terminal status", "job_id", job.ID, "status", job.Status)
				return job, nil
			}
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// checkWithRetry performs one status check, retrying transient failures with
// exponential backoff up to the budget.
func (c *Client) checkWithRetry(ctx context.Context, id types.JobID) (types.StatusReport, error) {
	var lastErr error
	backoff := c.backoffBase

	for attempt := 1; attempt <= c.checkRetries; attempt++ {
		report, err := c.api.ExportStatus(ctx, id)
		if err == nil {
			return report, nil
		}
		lastErr = err
		if !isTransient(err) {
			return types.StatusReport{}, err
		}
		log.Debug("status check failed", "job_id", id, "attempt", attempt, "error", err)
		if attempt == c.checkRetries {
			break
		}
		select {
		case <-ctx.Done():
			return types.StatusReport{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return types.StatusReport{}, fmt.Errorf("status check retries exhausted: %w", lastErr)
}

// applyReport folds one remote status report into the job. Returns true when
// the job reached a terminal state.
func applyReport(job types.ExportJob, report types.StatusReport) (bool, types.ExportJob) {
	switch report.State {
	case types.RemotePending:
		job.Status = types.StatusSubmitted
	case types.RemoteRunning:
		job.Status = types.StatusRunning
	case types.RemoteSucceeded:
		job.Status = types.StatusSucceeded
		job.Result = &types.ExportResult{
			URL:      report.ResultURL,
			Size:     report.Size,
			Checksum: report.Checksum,
		}
		return true, job
	case types.RemoteFailed:
		job.Status = types.StatusFailed
		job.Reason = report.Message
		return true, job
	default:
		// Unknown vocabulary from the remote side; keep polling.
		log.Warn("unknown remote state", "job_id", job.ID, "state", report.State)
	}
	return false, job
}

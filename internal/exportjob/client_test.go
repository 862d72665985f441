package exportjob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportflow/pkg/types"
)

// permanentError is a non-transient failure, like a business-level rejection.
type permanentError struct{ msg string }

func (e *permanentError) Error() string   { return e.msg }
func (e *permanentError) Transient() bool { return false }

// statusStep is one scripted answer from the fake status endpoint.
type statusStep struct {
	report types.StatusReport
	err    error
}

// fakeAPI replays a script of status answers; the last step repeats forever.
type fakeAPI struct {
	mu        sync.Mutex
	submitID  types.JobID
	submitErr error
	script    []statusStep
	calls     int
}

func (f *fakeAPI) SubmitExport(ctx context.Context, reportType string, params map[string]any) (types.JobID, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeAPI) ExportStatus(ctx context.Context, id types.JobID) (types.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.script[len(f.script)-1]
	if f.calls < len(f.script) {
		step = f.script[f.calls]
	}
	f.calls++
	return step.report, step.err
}

func newTestClient(api API) *Client {
	return NewClientWithRetry(api, 3, time.Millisecond)
}

func submittedJob() types.ExportJob {
	return types.ExportJob{
		ID:          "job-001",
		ReportType:  "inventory_query",
		Producer:    "inventory_query",
		Status:      types.StatusSubmitted,
		SubmittedAt: time.Now(),
	}
}

func TestSubmitBuildsJob(t *testing.T) {
	api := &fakeAPI{submitID: "job-001"}
	client := newTestClient(api)

	job, err := client.Submit(context.Background(), types.ExportRequest{
		ReportType: "inventory_query",
		Producer:   "inventory_query",
		Params:     map[string]any{"unit_type": "PURCHASE"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobID("job-001"), job.ID)
	assert.Equal(t, types.StatusSubmitted, job.Status)
	assert.False(t, job.SubmittedAt.IsZero())
}

func TestSubmitRejectionIsNotRetried(t *testing.T) {
	api := &fakeAPI{submitErr: &permanentError{msg: "quota exceeded"}}
	client := newTestClient(api)

	_, err := client.Submit(context.Background(), types.ExportRequest{ReportType: "inventory_query"})
	var submission *SubmissionError
	require.ErrorAs(t, err, &submission)
	assert.Equal(t, "inventory_query", submission.ReportType)
}

// The common lifecycle: pending, one transient check failure absorbed by the
// retry budget, running, then succeeded with a result handle.
func TestPollUntilTerminalSucceeds(t *testing.T) {
	api := &fakeAPI{script: []statusStep{
		{report: types.StatusReport{State: types.RemotePending}},
		{err: errors.New("connection reset")},
		{report: types.StatusReport{State: types.RemoteRunning}},
		{report: types.StatusReport{
			State:     types.RemoteSucceeded,
			ResultURL: "https://files.example.com/job-001.csv",
			Size:      2048,
			Checksum:  "sha256:abc",
		}},
	}}
	client := newTestClient(api)

	job, err := client.PollUntilTerminal(context.Background(), submittedJob(), time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "https://files.example.com/job-001.csv", job.Result.URL)
	assert.Equal(t, int64(2048), job.Result.Size)
}

func TestPollUntilTerminalRemoteFailure(t *testing.T) {
	api := &fakeAPI{script: []statusStep{
		{report: types.StatusReport{State: types.RemoteRunning}},
		{report: types.StatusReport{State: types.RemoteFailed, Message: "export backend error"}},
	}}
	client := newTestClient(api)

	job, err := client.PollUntilTerminal(context.Background(), submittedJob(), time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, job.Status)
	assert.Equal(t, "export backend error", job.Reason)
	assert.Nil(t, job.Result)
}

func TestPollUntilTerminalTimesOutLocally(t *testing.T) {
	// The remote job never finishes; the local deadline marks it timed_out
	// without an error, because timing out is an expected outcome.
	api := &fakeAPI{script: []statusStep{
		{report: types.StatusReport{State: types.RemoteRunning}},
	}}
	client := newTestClient(api)

	job, err := client.PollUntilTerminal(context.Background(), submittedJob(), 5*time.Millisecond, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTimedOut, job.Status)
	assert.NotEmpty(t, job.Reason)
	assert.Nil(t, job.Result)
}

func TestPollUntilTerminalNonTransientEscalatesImmediately(t *testing.T) {
	api := &fakeAPI{script: []statusStep{
		{err: &permanentError{msg: "job not found"}},
	}}
	client := newTestClient(api)

	_, err := client.PollUntilTerminal(context.Background(), submittedJob(), time.Millisecond, time.Second)
	var polling *PollingError
	require.ErrorAs(t, err, &polling)
	assert.Equal(t, types.JobID("job-001"), polling.JobID)
	// The first non-transient answer stops everything; no retries burned.
	assert.Equal(t, 1, api.calls)
}

func TestPollUntilTerminalEscalatesAfterTwoExhaustedBudgets(t *testing.T) {
	// Every check fails transiently. One exhausted budget is tolerated; the
	// second consecutive one escalates.
	api := &fakeAPI{script: []statusStep{
		{err: errors.New("connection reset")},
	}}
	client := NewClientWithRetry(api, 2, time.Millisecond)

	_, err := client.PollUntilTerminal(context.Background(), submittedJob(), time.Millisecond, time.Second)
	var polling *PollingError
	require.ErrorAs(t, err, &polling)
	// Two full budgets of two attempts each.
	assert.Equal(t, 4, api.calls)
}

func TestPollUntilTerminalRecoveredCheckResetsTheTolerance(t *testing.T) {
	api := &fakeAPI{script: []statusStep{
		{err: errors.New("reset")},
		{err: errors.New("reset")}, // first budget exhausted
		{report: types.StatusReport{State: types.RemoteRunning}}, // recovery
		{err: errors.New("reset")},
		{err: errors.New("reset")}, // exhausted again, but not consecutively
		{report: types.StatusReport{State: types.RemoteSucceeded, ResultURL: "https://x/f.csv"}},
	}}
	client := NewClientWithRetry(api, 2, time.Millisecond)

	job, err := client.PollUntilTerminal(context.Background(), submittedJob(), time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, job.Status)
}

func TestPollUntilTerminalUnknownStateKeepsPolling(t *testing.T) {
	api := &fakeAPI{script: []statusStep{
		{report: types.StatusReport{State: "queued_v2"}},
		{report: types.StatusReport{State: types.RemoteSucceeded, ResultURL: "https://x/f.csv"}},
	}}
	client := newTestClient(api)

	job, err := client.PollUntilTerminal(context.Background(), submittedJob(), time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSucceeded, job.Status)
}

func TestPollUntilTerminalAlreadyTerminal(t *testing.T) {
	api := &fakeAPI{script: []statusStep{
		{report: types.StatusReport{State: types.RemoteRunning}},
	}}
	client := newTestClient(api)

	job := submittedJob()
	job.Status = types.StatusFailed
	got, err := client.PollUntilTerminal(context.Background(), job, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, 0, api.calls)
}

func TestPollUntilTerminalHonorsContextCancellation(t *testing.T) {
	api := &fakeAPI{script: []statusStep{
		{report: types.StatusReport{State: types.RemoteRunning}},
	}}
	client := newTestClient(api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.PollUntilTerminal(ctx, submittedJob(), time.Millisecond, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

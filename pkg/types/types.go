// Package types defines the core domain model shared by the reportflow
// components: export jobs tracked against the remote BI platform, and the
// artifacts they produce.
package types

import (
	"time"
)

// JobID is the opaque identifier the remote system assigns to an export job.
type JobID string

// JobStatus is the local view of an export job's lifecycle.
type JobStatus string

const (
	StatusSubmitted JobStatus = "submitted" // accepted by the remote system, not yet running
	StatusRunning   JobStatus = "running"   // remote export in progress
	StatusSucceeded JobStatus = "succeeded" // remote export finished, result available
	StatusFailed    JobStatus = "failed"    // remote export finished unsuccessfully
	StatusTimedOut  JobStatus = "timed_out" // local deadline expired; remote outcome unknown
)

// Terminal reports whether the status is final. Terminal jobs are immutable.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// RemoteState is the status vocabulary of the remote export API.
type RemoteState string

const (
	RemotePending   RemoteState = "pending"
	RemoteRunning   RemoteState = "running"
	RemoteSucceeded RemoteState = "succeeded"
	RemoteFailed    RemoteState = "failed"
)

// StatusReport is one answer from the remote status endpoint.
type StatusReport struct {
	State     RemoteState
	ResultURL string // retrieval handle, set when State is succeeded
	Size      int64  // declared result size in bytes, 0 when undeclared
	Checksum  string // declared checksum ("sha256:<hex>"), empty when undeclared
	Message   string // remote failure detail, set when State is failed
}

// ExportRequest describes one export to submit to the remote system.
type ExportRequest struct {
	ReportType string         // remote export type identifier
	Producer   string         // local module name, used for artifact naming
	Params     map[string]any // opaque parameter payload, already normalized
}

// ExportResult carries the retrieval handle of a succeeded job.
type ExportResult struct {
	URL      string
	Size     int64  // 0 when the remote did not declare a size
	Checksum string // empty when the remote did not declare a checksum
}

// ExportJob tracks one export request from submission to terminal status.
// Status transitions are one-directional: submitted -> running ->
// {succeeded | failed}, with timed_out reachable from any non-terminal
// status when the local deadline expires.
type ExportJob struct {
	ID          JobID
	ReportType  string
	Producer    string
	Params      map[string]any
	Status      JobStatus
	SubmittedAt time.Time
	Result      *ExportResult // set only when Status is succeeded
	Reason      string        // failure detail for failed/timed_out jobs
}

// Artifact is a named, dated file produced by acquisition or by a report
// unit. Names are unique within one run; a later write for the same name
// supersedes the earlier one in the artifact store.
type Artifact struct {
	Name       string
	Path       string
	ProducedAt time.Time
	Producer   string
}

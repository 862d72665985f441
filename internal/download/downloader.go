// Package download materializes the remote result of a succeeded export job
// as a local file.
//
// Writes are atomic: the stream lands in a temporary file next to the
// destination and is renamed into place only after verification, so no
// partial file is ever left at the final path.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"reportflow/pkg/types"
)

var log = slog.Default()

// ErrNotSucceeded is returned when a download is attempted for a job that
// has not reached the succeeded status.
var ErrNotSucceeded = errors.New("export job has not succeeded")

// IntegrityError means the downloaded file failed verification. The partial
// file is discarded and the transfer is not retried.
type IntegrityError struct {
	Path   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s", e.Path, e.Reason)
}

// Fetcher opens a byte stream for a retrieval handle. It returns the stream,
// the declared content length (0 when undeclared), and the declared sha256
// checksum (empty when undeclared).
type Fetcher interface {
	FetchFile(ctx context.Context, url string) (io.ReadCloser, int64, string, error)
}

// Downloader streams succeeded export results to disk with bounded transfer
// retries.
type Downloader struct {
	fetcher    Fetcher
	maxRetries int
	retryDelay time.Duration
}

// New creates a Downloader with the default transfer retry budget.
func New(fetcher Fetcher) *Downloader {
	return &Downloader{fetcher: fetcher, maxRetries: 3, retryDelay: 2 * time.Second}
}

// NewWithRetry creates a Downloader with an explicit transfer retry budget.
func NewWithRetry(fetcher Fetcher, maxRetries int, retryDelay time.Duration) *Downloader {
	return &Downloader{fetcher: fetcher, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Download fetches the result file of a succeeded job to destination and
// returns the artifact describing it. The job must be in the succeeded
// status. Transient transfer failures are retried up to the budget; an
// IntegrityError aborts immediately.
func (d *Downloader) Download(ctx context.Context, job types.ExportJob, destination string) (types.Artifact, error) {
	if job.Status != types.StatusSucceeded || job.Result == nil || job.Result.URL == "" {
		return types.Artifact{}, fmt.Errorf("%w: job %s is %s", ErrNotSucceeded, job.ID, job.Status)
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		artifact, err := d.fetchOnce(ctx, job, destination)
		if err == nil {
			return artifact, nil
		}

		var integrity *IntegrityError
		if errors.As(err, &integrity) {
			return types.Artifact{}, err
		}
		if ctx.Err() != nil {
			return types.Artifact{}, ctx.Err()
		}

		lastErr = err
		log.Warn("transfer failed", "job_id", job.ID, "attempt", attempt, "error", err)
		if attempt == d.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return types.Artifact{}, ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
	return types.Artifact{}, fmt.Errorf("transfer retries exhausted for job %s: %w", job.ID, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, job types.ExportJob, destination string) (types.Artifact, error) {
	body, declaredSize, declaredChecksum, err := d.fetcher.FetchFile(ctx, job.Result.URL)
	if err != nil {
		return types.Artifact{}, err
	}
	defer func() { _ = body.Close() }()

	tmpPath := destination + ".tmp-" + uuid.NewString()
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("create temp file: %w", err)
	}

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), body)
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if err == nil {
			err = closeErr
		}
		return types.Artifact{}, fmt.Errorf("write temp file: %w", err)
	}

	if err := verify(job, declaredSize, declaredChecksum, written, hash.Sum(nil), destination); err != nil {
		_ = os.Remove(tmpPath)
		return types.Artifact{}, err
	}

	if err := os.Rename(tmpPath, destination); err != nil {
		_ = os.Remove(tmpPath)
		return types.Artifact{}, fmt.Errorf("rename into place: %w", err)
	}

	log.Info("artifact downloaded", "producer", job.Producer, "path", destination, "bytes", written)
	return types.Artifact{
		Name:       job.Producer,
		Path:       destination,
		ProducedAt: time.Now(),
		Producer:   job.Producer,
	}, nil
}

// verify checks the transferred byte count and checksum against whatever the
// remote side declared. The status report's declaration wins over the
// transfer response's.
func verify(job types.ExportJob, declaredSize int64, declaredChecksum string, written int64, sum []byte, destination string) error {
	if written == 0 {
		return &IntegrityError{Path: destination, Reason: "file is empty"}
	}

	expectedSize := job.Result.Size
	if expectedSize == 0 {
		expectedSize = declaredSize
	}
	if expectedSize > 0 && written != expectedSize {
		return &IntegrityError{
			Path:   destination,
			Reason: fmt.Sprintf("size mismatch: expected %d bytes, got %d", expectedSize, written),
		}
	}

	expectedChecksum := job.Result.Checksum
	if expectedChecksum == "" {
		expectedChecksum = declaredChecksum
	}
	if expectedChecksum != "" {
		actual := "sha256:" + hex.EncodeToString(sum)
		if actual != expectedChecksum {
			return &IntegrityError{
				Path:   destination,
				Reason: fmt.Sprintf("checksum mismatch: expected %s, got %s", expectedChecksum, actual),
			}
		}
	}
	return nil
}

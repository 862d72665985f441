// Package biapi implements the HTTP client for the remote BI platform.
//
// The platform speaks JSON over HTTP and wraps every response in a business
// envelope {code, msg, data}. Code 0 means success. Code 2006 on submission
// means an identical export is already being processed, which callers treat
// as an accepted submission. Result files are served from presigned URLs
// returned by the status endpoint.
package biapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"reportflow/pkg/types"
)

const (
	codeOK                = 0
	codeAlreadyProcessing = 2006

	// ChecksumHeader carries the declared sha256 of a result file, when the
	// remote storage provides one.
	ChecksumHeader = "X-Checksum-Sha256"

	defaultTimeout = 30 * time.Second
)

// APIError is a business-level rejection carried in the response envelope.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Msg)
}

// Transient reports false: a business rejection will not heal on retry.
func (e *APIError) Transient() bool { return false }

// HTTPError is a non-2xx transport response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// Transient reports whether the failure is worth retrying. Server-side
// errors are; client-side errors are not.
func (e *HTTPError) Transient() bool {
	return e.StatusCode >= 500
}

// Client talks to the BI platform's export endpoints.
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// NewClient creates a client for the platform at baseURL. The headers map is
// attached to every request (operator identity, company scope, and the like);
// it may be nil.
func NewClient(baseURL string, headers map[string]string) *Client {
	return &Client{
		baseURL:    baseURL,
		headers:    headers,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// SubmitExport submits one export request and returns the job identifier the
// platform assigned. It issues exactly one request: submission is never
// retried here, because a duplicate submission may start duplicate remote
// work.
func (c *Client) SubmitExport(ctx context.Context, reportType string, params map[string]any) (types.JobID, error) {
	env, err := c.postJSON(ctx, "/api/export/"+reportType, params)
	if err != nil {
		return "", err
	}

	switch env.Code {
	case codeOK, codeAlreadyProcessing:
	default:
		return "", &APIError{Code: env.Code, Msg: env.Msg}
	}

	var data struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if data.JobID == "" {
		return "", fmt.Errorf("submit response missing job_id")
	}
	return types.JobID(data.JobID), nil
}

// ExportStatus queries the current state of an export job. It issues exactly
// one request; the caller owns the retry policy.
func (c *Client) ExportStatus(ctx context.Context, id types.JobID) (types.StatusReport, error) {
	env, err := c.postJSON(ctx, "/api/export/status", map[string]any{"job_id": string(id)})
	if err != nil {
		return types.StatusReport{}, err
	}
	if env.Code != codeOK {
		return types.StatusReport{}, &APIError{Code: env.Code, Msg: env.Msg}
	}

	var data struct {
		State    string `json:"state"`
		URL      string `json:"url"`
		Size     int64  `json:"size"`
		Checksum string `json:"checksum"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return types.StatusReport{}, fmt.Errorf("decode status response: %w", err)
	}

	return types.StatusReport{
		State:     types.RemoteState(data.State),
		ResultURL: data.URL,
		Size:      data.Size,
		Checksum:  data.Checksum,
		Message:   data.Message,
	}, nil
}

// FetchFile opens a stream for the result file behind a retrieval handle.
// The returned size is the declared Content-Length (0 when chunked) and the
// returned checksum is the declared sha256, empty when the remote storage
// does not provide one. The caller must close the stream.
func (c *Client) FetchFile(ctx context.Context, url string) (io.ReadCloser, int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("fetch file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, "", &HTTPError{StatusCode: resp.StatusCode}
	}

	var size int64
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		size, _ = strconv.ParseInt(cl, 10, 64)
	}
	return resp.Body, size, resp.Header.Get(ChecksumHeader), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &env, nil
}

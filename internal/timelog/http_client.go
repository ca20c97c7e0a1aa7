package timelog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// MinServerVersion is the oldest service version this client speaks to.
const MinServerVersion = "1.0.0"

// HTTPClient talks to the time-log service over its JSON API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logFn      func(level, msg string)
}

// HTTPClientConfig holds configuration for the HTTP client.
type HTTPClientConfig struct {
	// BaseURL is the service root (e.g., "http://localhost:8780")
	BaseURL string

	// APIKey is sent as a bearer token when set
	APIKey string

	// Timeout is the per-request timeout (default: 10s)
	Timeout time.Duration

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)
}

// NewHTTPClient creates a client for the time-log service.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logFn:   cfg.LogFn,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *HTTPClient) log(level, format string, args ...any) {
	if c.logFn != nil {
		c.logFn(level, fmt.Sprintf(format, args...))
	}
}

// BaseURL returns the configured service root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

type stopRequest struct {
	Notes string `json:"notes,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`

	// Sync is present when the service forwards completed sessions downstream
	Sync *SyncHealth `json:"sync,omitempty"`
}

// SyncHealth describes delivery of completed sessions to a downstream stream.
type SyncHealth struct {
	Delivered           int64      `json:"delivered"`
	LastSync            *time.Time `json:"last_sync,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

func (c *HTTPClient) Start(ctx context.Context, jobID string) (TimeLog, error) {
	return c.mutate(ctx, jobID, "start", nil)
}

func (c *HTTPClient) Pause(ctx context.Context, jobID string) (TimeLog, error) {
	return c.mutate(ctx, jobID, "pause", nil)
}

func (c *HTTPClient) Resume(ctx context.Context, jobID string) (TimeLog, error) {
	return c.mutate(ctx, jobID, "resume", nil)
}

func (c *HTTPClient) Stop(ctx context.Context, jobID, notes string) (TimeLog, error) {
	return c.mutate(ctx, jobID, "stop", stopRequest{Notes: notes})
}

func (c *HTTPClient) ListLogs(ctx context.Context, jobID string) ([]TimeLog, error) {
	var logs []TimeLog
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, "timelogs"), nil, &logs); err != nil {
		return nil, fmt.Errorf("list time logs: %w", err)
	}
	return logs, nil
}

// GetJob fetches a job with its shifts.
func (c *HTTPClient) GetJob(ctx context.Context, jobID string) (Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, jobPath(jobID), nil, &job); err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs fetches the job catalog.
func (c *HTTPClient) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs", nil, &jobs); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Health calls GET /health.
func (c *HTTPClient) Health(ctx context.Context) (HealthResponse, error) {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return HealthResponse{}, fmt.Errorf("health check: %w", err)
	}
	return h, nil
}

// CheckServerVersion fails when the service reports a version older than
// MinServerVersion. Development builds ("dev") are accepted.
func (c *HTTPClient) CheckServerVersion(ctx context.Context) (string, error) {
	h, err := c.Health(ctx)
	if err != nil {
		return "", err
	}
	if h.Version == "" || h.Version == "dev" {
		return h.Version, nil
	}
	got, err := version.NewVersion(h.Version)
	if err != nil {
		return h.Version, fmt.Errorf("server reported unparsable version %q: %w", h.Version, err)
	}
	minVersion := version.Must(version.NewVersion(MinServerVersion))
	if got.LessThan(minVersion) {
		return h.Version, fmt.Errorf("server version %s is older than the minimum supported %s", got, minVersion)
	}
	return h.Version, nil
}

func jobPath(jobID string, elems ...string) string {
	p := "/v1/jobs/" + url.PathEscape(jobID)
	for _, e := range elems {
		p += "/" + e
	}
	return p
}

func (c *HTTPClient) mutate(ctx context.Context, jobID, action string, body any) (TimeLog, error) {
	var tl TimeLog
	if err := c.do(ctx, http.MethodPost, jobPath(jobID, "timelogs", action), body, &tl); err != nil {
		return TimeLog{}, fmt.Errorf("%s time log: %w", action, err)
	}
	return tl, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log("debug", "%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); len(data) > 0 {
			if json.Unmarshal(data, &er) == nil && er.Error != "" {
				apiErr.Message = er.Error
			} else {
				apiErr.Message = strings.TrimSpace(string(data))
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

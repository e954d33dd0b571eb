// Package client is a Go client for the job engine's HTTP admin surface.
//
// Usage:
//
//	c := client.New("http://localhost:8080",
//	    client.WithTimeout(5*time.Second),
//	)
//
//	// Enqueue a job.
//	jobID, err := c.Enqueue(ctx, "send-email", payload, client.WithPriority(5))
//
//	// Inspect it.
//	info, err := c.GetJob(ctx, jobID)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/api"
)

// ErrNotFound is matched by errors for unknown jobs, schedules and dead
// letters.
var ErrNotFound = errors.New("jobs/client: not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jobs/client: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps well-known codes to the engine sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "QUEUE_FULL":
		return jobs.ErrQueueFull
	case "SHUTTING_DOWN":
		return jobs.ErrShuttingDown
	case "INVALID_SCHEDULE":
		return jobs.ErrInvalidSchedule
	case "UNKNOWN_JOB_TYPE":
		return jobs.ErrUnknownJobType
	case "NOT_FOUND":
		return ErrNotFound
	default:
		return nil
	}
}

// Client talks to one server.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + api.BasePath,
		http:    http.DefaultClient,
		timeout: 10 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request and decodes the JSON response into out when it is
// not nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("jobs/client: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("jobs/client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jobs/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	c.logger.Debug("admin request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jobs/client: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

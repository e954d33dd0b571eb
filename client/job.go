package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xraph/jobs/api"
	"github.com/xraph/jobs/engine"
	"github.com/xraph/jobs/history"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

// Enqueue submits a job. payload is JSON-encoded.
func (c *Client) Enqueue(ctx context.Context, jobType string, payload any, opts ...EnqueueOption) (id.JobID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return id.NilJob, fmt.Errorf("jobs/client: marshal payload: %w", err)
	}

	req := api.EnqueueRequest{Type: jobType, Payload: raw}
	for _, opt := range opts {
		opt(&req)
	}

	var resp api.EnqueueResponse
	if err := c.do(ctx, http.MethodPost, "/enqueue", req, &resp); err != nil {
		return id.NilJob, err
	}
	return resp.ID, nil
}

// GetJob returns the status of one job.
func (c *Client) GetJob(ctx context.Context, jobID id.JobID) (engine.JobInfo, error) {
	var info engine.JobInfo
	err := c.do(ctx, http.MethodGet, "/"+jobID.String(), nil, &info)
	return info, err
}

// ListJobs returns jobs in state (any when empty), newest first.
func (c *Client) ListJobs(ctx context.Context, state job.State, limit int) ([]engine.JobInfo, error) {
	q := url.Values{}
	if state != "" {
		q.Set("status", string(state))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp api.ListJobsResponse
	if err := c.do(ctx, http.MethodGet, "/list?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// CancelJob cancels a live job.
func (c *Client) CancelJob(ctx context.Context, jobID id.JobID) error {
	return c.do(ctx, http.MethodPost, "/"+jobID.String()+"/cancel", nil, nil)
}

// History returns one page of finished jobs.
func (c *Client) History(ctx context.Context, page, pageSize int, query string) (history.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	if query != "" {
		q.Set("q", query)
	}

	var out history.Page
	err := c.do(ctx, http.MethodGet, "/history?"+q.Encode(), nil, &out)
	return out, err
}

// Stats returns the server's aggregate statistics.
func (c *Client) Stats(ctx context.Context) (api.StatsResponse, error) {
	var out api.StatsResponse
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// EnqueueOption configures an enqueue request.
type EnqueueOption func(*api.EnqueueRequest)

// WithPriority sets the job priority.
func WithPriority(priority int) EnqueueOption {
	return func(r *api.EnqueueRequest) { r.Priority = &priority }
}

// WithMaxRetries sets the number of retries after the first failure.
func WithMaxRetries(n int) EnqueueOption {
	return func(r *api.EnqueueRequest) { r.MaxRetries = &n }
}

// WithJobTimeout sets the per-attempt timeout in time.Duration syntax.
func WithJobTimeout(timeout string) EnqueueOption {
	return func(r *api.EnqueueRequest) { r.Timeout = timeout }
}

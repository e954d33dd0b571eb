package client

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xraph/jobs/api"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/scheduler"
)

// DeadLetters returns up to limit dead letters, newest first.
func (c *Client) DeadLetters(ctx context.Context, limit int) ([]*persistence.DeadLetter, error) {
	var resp api.DeadLettersResponse
	if err := c.do(ctx, http.MethodGet, "/dead-letter?limit="+strconv.Itoa(limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.DeadLetters, nil
}

// Retry re-enqueues one dead letter and returns the new job id.
func (c *Client) Retry(ctx context.Context, jobID id.JobID) (id.JobID, error) {
	var resp api.RetryResponse
	if err := c.do(ctx, http.MethodPost, "/"+jobID.String()+"/retry", nil, &resp); err != nil {
		return id.NilJob, err
	}
	return resp.ID, nil
}

// RetryAll re-enqueues every dead letter.
func (c *Client) RetryAll(ctx context.Context) (int, error) {
	var resp api.RetryAllResponse
	if err := c.do(ctx, http.MethodPost, "/retry-all", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Retried, nil
}

// ClearDeadLetters deletes every dead letter.
func (c *Client) ClearDeadLetters(ctx context.Context) (int, error) {
	var resp api.ClearResponse
	if err := c.do(ctx, http.MethodDelete, "/dead-letter", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Cleared, nil
}

// ListScheduled returns every schedule ordered by next execution.
func (c *Client) ListScheduled(ctx context.Context) ([]scheduler.Entry, error) {
	var out []scheduler.Entry
	err := c.do(ctx, http.MethodGet, "/scheduled", nil, &out)
	return out, err
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/job"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// fail maps an engine error to a status code and writes it.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		a.logger.Error("admin request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		return http.StatusServiceUnavailable, "QUEUE_FULL"
	case errors.Is(err, jobs.ErrShuttingDown):
		return http.StatusServiceUnavailable, "SHUTTING_DOWN"
	case errors.Is(err, jobs.ErrInvalidSchedule):
		return http.StatusBadRequest, "INVALID_SCHEDULE"
	case errors.Is(err, jobs.ErrUnknownJobType):
		return http.StatusBadRequest, "UNKNOWN_JOB_TYPE"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, jobs.ErrUnknownJob),
		errors.Is(err, jobs.ErrScheduleNotFound),
		errors.Is(err, jobs.ErrDeadLetterNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, jobs.ErrInvalidSchedule) {
			return err
		}
		return badRequest("decode body: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", key)
	}
	return n, nil
}

// jobOptions converts optional request fields into job options.
func jobOptions(priority, maxRetries *int, timeout string) ([]job.Option, error) {
	var opts []job.Option
	if priority != nil {
		opts = append(opts, job.WithPriority(*priority))
	}
	if maxRetries != nil {
		opts = append(opts, job.WithMaxRetries(*maxRetries))
	}
	if timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, badRequest("timeout: %v", err)
		}
		opts = append(opts, job.WithTimeout(d))
	}
	return opts, nil
}

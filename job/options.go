package job

import "time"

// Definition is the immutable description of a unit of work.
type Definition struct {
	// Type selects the handler.
	Type string `json:"type"`

	// Payload is passed to the handler untouched.
	Payload []byte `json:"payload,omitempty"`

	// Priority determines dequeue ordering. Higher values are served first.
	Priority int `json:"priority"`

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int `json:"max_retries"`

	// Timeout bounds a single attempt. Zero means no deadline.
	Timeout time.Duration `json:"timeout"`
}

// Options configures per-job behavior such as retries and priority.
type Options struct {
	Priority   int
	MaxRetries int
	Timeout    time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Priority:   0,
		MaxRetries: 3,
		Timeout:    5 * time.Minute,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxRetries sets the number of retries after the first failure.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithPriority sets the job priority. Higher values are processed first.
func WithPriority(p int) Option {
	return func(o *Options) {
		o.Priority = p
	}
}

// WithTimeout sets the maximum duration of a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// NewDefinition builds a Definition from base options and overrides.
// Negative retry counts are clamped to zero.
func NewDefinition(jobType string, payload []byte, base Options, opts ...Option) Definition {
	o := base
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return Definition{
		Type:       jobType,
		Payload:    payload,
		Priority:   o.Priority,
		MaxRetries: o.MaxRetries,
		Timeout:    o.Timeout,
	}
}

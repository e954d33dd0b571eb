// Package id defines the identity types used across the job subsystem.
//
// Job and schedule identifiers are 128-bit random values (UUID version 4)
// rendered in the canonical hyphenated form. The zero value of each type is
// the nil identifier.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// JobID identifies one job. It is assigned at enqueue time and never
// changes; queue, history, persistence and the cancellation registry all
// key on it.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type JobID struct {
	inner uuid.UUID
}

// ScheduleID identifies one scheduler entry.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ScheduleID struct {
	inner uuid.UUID
}

// NilJob is the zero-value JobID.
var NilJob JobID

// NilSchedule is the zero-value ScheduleID.
var NilSchedule ScheduleID

// NewJobID generates a new random job ID.
func NewJobID() JobID { return JobID{inner: uuid.New()} }

// NewScheduleID generates a new random schedule ID.
func NewScheduleID() ScheduleID { return ScheduleID{inner: uuid.New()} }

// ParseJobID parses the canonical string form of a job ID.
func ParseJobID(s string) (JobID, error) {
	u, err := parse(s)
	if err != nil {
		return NilJob, err
	}
	return JobID{inner: u}, nil
}

// ParseScheduleID parses the canonical string form of a schedule ID.
func ParseScheduleID(s string) (ScheduleID, error) {
	u, err := parse(s)
	if err != nil {
		return NilSchedule, err
	}
	return ScheduleID{inner: u}, nil
}

// MustParseJobID is like ParseJobID but panics on error. Use for hardcoded
// values in tests.
func MustParseJobID(s string) JobID {
	j, err := ParseJobID(s)
	if err != nil {
		panic(err)
	}
	return j
}

func parse(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return u, nil
}

// ──────────────────────────────────────────────────
// JobID methods
// ──────────────────────────────────────────────────

// String returns the canonical form, or "" for the nil ID.
func (i JobID) String() string {
	if i.IsNil() {
		return ""
	}
	return i.inner.String()
}

// IsNil reports whether this ID is the zero value.
func (i JobID) IsNil() bool { return i.inner == uuid.Nil }

// MarshalText implements encoding.TextMarshaler.
func (i JobID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *JobID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = NilJob
		return nil
	}
	parsed, err := ParseJobID(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// ──────────────────────────────────────────────────
// ScheduleID methods
// ──────────────────────────────────────────────────

// String returns the canonical form, or "" for the nil ID.
func (i ScheduleID) String() string {
	if i.IsNil() {
		return ""
	}
	return i.inner.String()
}

// IsNil reports whether this ID is the zero value.
func (i ScheduleID) IsNil() bool { return i.inner == uuid.Nil }

// MarshalText implements encoding.TextMarshaler.
func (i ScheduleID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ScheduleID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = NilSchedule
		return nil
	}
	parsed, err := ParseScheduleID(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

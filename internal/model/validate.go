package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ValidationError holds a list of field-level validation errors. It
// unwraps to ErrMalformedInput.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "malformed input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrMalformedInput }

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.add(field, "is required")
	}
}

func (e *ValidationError) timestamp(field, value string) time.Time {
	if strings.TrimSpace(value) == "" {
		e.add(field, "is required")
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		e.add(field, "malformed timestamp %q", value)
		return time.Time{}
	}
	return t
}

func (e *ValidationError) finite(field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		e.add(field, "must be a finite number")
	}
}

func (e *ValidationError) result() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ConnectArgs is a validated ConnectRequest.
type ConnectArgs struct {
	AgentID     string
	ArrivalTime time.Time
}

// Validate checks r and returns its parsed form, or a *ValidationError.
func (r *ConnectRequest) Validate() (ConnectArgs, error) {
	var ve ValidationError
	ve.required("agent_id", r.AgentID)
	arrival := ve.timestamp("arrival_time", r.ArrivalTime)
	return ConnectArgs{AgentID: r.AgentID, ArrivalTime: arrival}, ve.result()
}

// NotifyArgs is a validated NotifyRequest.
type NotifyArgs struct {
	SessionID   string
	ArrivalTime time.Time
}

// Validate checks r and returns its parsed form, or a *ValidationError.
func (r *NotifyRequest) Validate() (NotifyArgs, error) {
	var ve ValidationError
	ve.required("session_id", r.SessionID)
	arrival := ve.timestamp("arrival_time", r.ArrivalTime)
	return NotifyArgs{SessionID: r.SessionID, ArrivalTime: arrival}, ve.result()
}

// ReserveArgs is a validated ReserveRequest.
type ReserveArgs struct {
	SessionID     string
	Entry         string
	Exit          string
	TimeRef       time.Time
	EarliestEntry float64
	LatestEntry   float64
}

// Validate checks r and returns its parsed form, or a *ValidationError.
// Route legality is not checked here; that needs the zone.
func (r *ReserveRequest) Validate() (ReserveArgs, error) {
	var ve ValidationError
	ve.required("session_id", r.SessionID)
	timeRef := ve.timestamp("time_ref", r.TimeRef)
	ve.finite("earliest_entry", r.EarliestEntry)
	ve.finite("latest_entry", r.LatestEntry)
	return ReserveArgs{
		SessionID:     r.SessionID,
		Entry:         r.Entry,
		Exit:          r.Exit,
		TimeRef:       timeRef,
		EarliestEntry: r.EarliestEntry,
		LatestEntry:   r.LatestEntry,
	}, ve.result()
}

// MaxRosterIdle bounds RosterRequest.MaxIdle.
const MaxRosterIdle = 24 * time.Hour

// Validate checks r and returns MaxIdle as a duration, or a *ValidationError.
func (r *RosterRequest) Validate() (time.Duration, error) {
	var ve ValidationError
	ve.finite("max_idle", r.MaxIdle)
	switch {
	case r.MaxIdle < 0:
		ve.add("max_idle", "must not be negative")
	case r.MaxIdle > MaxRosterIdle.Seconds():
		ve.add("max_idle", "must not exceed %s", MaxRosterIdle)
	}
	if err := ve.result(); err != nil {
		return 0, err
	}
	return time.Duration(r.MaxIdle * float64(time.Second)), nil
}

// FormatTime renders t the way requests and responses carry timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

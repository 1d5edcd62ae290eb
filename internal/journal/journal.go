// Package journal defines the audit log of granted reservations and
// evictions.
package journal

import (
	"context"
	"time"

	"github.com/alfredjeanlab/crossing/internal/model"
)

// Kind classifies a journal record.
type Kind string

const (
	KindReserved Kind = "reserved"
	KindEvicted  Kind = "evicted"
)

// Record is one journal row. Window fields are set for reservations only.
type Record struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	SessionID   string    `json:"session_id"`
	AgentID     string    `json:"agent_id"`
	ArrivalTime time.Time `json:"arrival_time"`

	TimeRef       *time.Time `json:"time_ref,omitempty"`
	Entry         string     `json:"entry,omitempty"`
	Exit          string     `json:"exit,omitempty"`
	EarliestEntry *float64   `json:"earliest_entry,omitempty"`
	LatestEntry   *float64   `json:"latest_entry,omitempty"`
	EarliestExit  *float64   `json:"earliest_exit,omitempty"`
	LatestExit    *float64   `json:"latest_exit,omitempty"`

	Reason     string    `json:"reason,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	AgentID string
	Kind    Kind
	Limit   int
}

// Journal persists records.
type Journal interface {
	Append(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}

// Reserved builds the record for a freshly committed reservation.
func Reserved(sess *model.Session, at time.Time) *Record {
	rec := &Record{
		Kind:        KindReserved,
		SessionID:   sess.ID,
		AgentID:     sess.AgentID,
		ArrivalTime: sess.ArrivalTime,
		RecordedAt:  at,
	}
	if r := sess.Reservation; r != nil {
		timeRef := r.TimeRef
		rec.TimeRef = &timeRef
		rec.Entry, rec.Exit = r.Entry, r.Exit
		rec.EarliestEntry = ptr(r.EarliestEntry)
		rec.LatestEntry = ptr(r.LatestEntry)
		rec.EarliestExit = ptr(r.EarliestExit)
		rec.LatestExit = ptr(r.LatestExit)
	}
	return rec
}

// Evicted builds the record for a session removed by the reaper.
func Evicted(sess *model.Session, reason string, at time.Time) *Record {
	rec := Reserved(sess, at)
	rec.Kind = KindEvicted
	rec.Reason = reason
	return rec
}

func ptr[T any](v T) *T { return &v }

// Noop discards every record. Used when no database is configured.
type Noop struct{}

func (Noop) Append(ctx context.Context, rec *Record) error { return nil }

func (Noop) List(ctx context.Context, filter Filter) ([]*Record, error) { return nil, nil }

func (Noop) Close() error { return nil }

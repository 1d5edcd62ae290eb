package postgres

import (
	"database/sql"
	"time"

	"github.com/alfredjeanlab/crossing/internal/journal"
)

type scannable interface {
	Scan(dest ...any) error
}

// scanRecord scans one row in recordColumns order.
func scanRecord(row scannable) (*journal.Record, error) {
	var (
		r           journal.Record
		kind        string
		timeRef     sql.NullTime
		entry       sql.NullString
		exit        sql.NullString
		earliestIn  sql.NullFloat64
		latestIn    sql.NullFloat64
		earliestOut sql.NullFloat64
		latestOut   sql.NullFloat64
		reason      sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&kind,
		&r.SessionID,
		&r.AgentID,
		&r.ArrivalTime,
		&timeRef,
		&entry,
		&exit,
		&earliestIn,
		&latestIn,
		&earliestOut,
		&latestOut,
		&reason,
		&r.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = journal.Kind(kind)
	if timeRef.Valid {
		t := timeRef.Time
		r.TimeRef = &t
	}
	r.Entry = entry.String
	r.Exit = exit.String
	r.EarliestEntry = floatPtr(earliestIn)
	r.LatestEntry = floatPtr(latestIn)
	r.EarliestExit = floatPtr(earliestOut)
	r.LatestExit = floatPtr(latestOut)
	r.Reason = reason.String
	return &r, nil
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloatPtr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

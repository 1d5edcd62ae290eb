package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/crossing/internal/journal"
)

const recordColumns = `id, kind, session_id, agent_id, arrival_time, time_ref,
	entry_location, exit_location, earliest_entry, latest_entry, earliest_exit, latest_exit,
	reason, recorded_at`

const defaultListLimit = 100

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryAppend(ctx context.Context, db executor, r *journal.Record) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO journal (
			kind, session_id, agent_id, arrival_time, time_ref,
			entry_location, exit_location, earliest_entry, latest_entry, earliest_exit, latest_exit,
			reason, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13
		) RETURNING id`,
		string(r.Kind),
		r.SessionID,
		r.AgentID,
		r.ArrivalTime,
		nullTimePtr(r.TimeRef),
		nullString(r.Entry),
		nullString(r.Exit),
		nullFloatPtr(r.EarliestEntry),
		nullFloatPtr(r.LatestEntry),
		nullFloatPtr(r.EarliestExit),
		nullFloatPtr(r.LatestExit),
		nullString(r.Reason),
		r.RecordedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("append %s record for %s: %w", r.Kind, r.SessionID, err)
	}
	return nil
}

func queryList(ctx context.Context, db executor, f journal.Filter) ([]*journal.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	q := `SELECT ` + recordColumns + ` FROM journal`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY recorded_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []*journal.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func queryPrune(ctx context.Context, db executor, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM journal WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return res.RowsAffected()
}

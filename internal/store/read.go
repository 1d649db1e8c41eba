package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/robotcore/internal/telemetry"
)

const selectEvents = `
	SELECT seq, kind, ts, source, client, phase, tick, elapsed_ns, period_ns,
	       run_id, routine, node, outcome, mode, message, err
	FROM events
`

// Filter narrows ReadEvents. Zero fields match everything.
type Filter struct {
	RunID    string
	Kinds    []telemetry.Kind
	AfterSeq int64
	Limit    int
}

// ReadEvents returns the stored events matching f, ordered by seq then
// insertion order. The result is never nil.
func (s *Store) ReadEvents(ctx context.Context, f Filter) ([]telemetry.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	query := selectEvents
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	events := []telemetry.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (telemetry.Event, error) {
	var (
		ev                      telemetry.Event
		kind                    string
		ts                      sql.NullInt64
		tick, elapsed, periodNs int64
	)
	err := rows.Scan(
		&ev.Seq, &kind, &ts, &ev.Source, &ev.Client, &ev.Phase,
		&tick, &elapsed, &periodNs,
		&ev.RunID, &ev.Routine, &ev.Node, &ev.Outcome, &ev.Mode, &ev.Message, &ev.Err,
	)
	if err != nil {
		return telemetry.Event{}, err
	}
	ev.Kind = telemetry.Kind(kind)
	ev.Timestamp = decodeTime(ts)
	ev.Tick = uint64(tick)
	ev.Elapsed = durationNs(elapsed)
	ev.Period = durationNs(periodNs)
	return ev, nil
}

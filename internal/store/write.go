package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/robotcore/internal/telemetry"
)

const insertEvent = `
	INSERT OR IGNORE INTO events
		(seq, kind, ts, source, client, phase, tick, elapsed_ns, period_ns,
		 run_id, routine, node, outcome, mode, message, err)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteEvent appends a single event.
// An event whose non-zero Seq is already stored is ignored.
func (s *Store) WriteEvent(ctx context.Context, ev telemetry.Event) error {
	if err := writeEvent(ctx, s.db, ev); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Kind, err)
	}
	return nil
}

// WriteEvents appends events in one transaction. Either all are stored or
// none are.
func (s *Store) WriteEvents(ctx context.Context, evs []telemetry.Event) error {
	if len(evs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write batch: %w", err)
	}
	for _, ev := range evs {
		if err := writeEvent(ctx, tx, ev); err != nil {
			tx.Rollback()
			return fmt.Errorf("write event seq=%d %s: %w", ev.Seq, ev.Kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write batch: %w", err)
	}
	return nil
}

func writeEvent(ctx context.Context, db execer, ev telemetry.Event) error {
	if ev.Kind == "" {
		return fmt.Errorf("event kind is required")
	}
	_, err := db.ExecContext(ctx, insertEvent,
		ev.Seq,
		string(ev.Kind),
		encodeTime(ev.Timestamp),
		ev.Source,
		ev.Client,
		ev.Phase,
		int64(ev.Tick),
		int64(ev.Elapsed),
		int64(ev.Period),
		ev.RunID,
		ev.Routine,
		ev.Node,
		ev.Outcome,
		ev.Mode,
		ev.Message,
		ev.Err,
	)
	return err
}

// encodeTime stores timestamps as Unix nanoseconds; the zero time is NULL.
func encodeTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func decodeTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).UTC()
}

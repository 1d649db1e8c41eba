package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/robotcore/internal/telemetry"
)

// RunSummary describes one routine run reconstructed from the log.
type RunSummary struct {
	RunID     string
	Routine   string
	Outcome   string // empty while the run has no terminal event
	Node      string // failing node path for aborted runs
	StartedAt time.Time
	EndedAt   time.Time
	FirstSeq  int64
	LastSeq   int64
	Events    int
}

// Finished reports whether a terminal event was logged for the run.
func (r RunSummary) Finished() bool {
	return r.Outcome != ""
}

// ReplayRun returns every event of a run in the order it was emitted.
// Returns an empty slice for an unknown run.
func (s *Store) ReplayRun(ctx context.Context, runID string) ([]telemetry.Event, error) {
	if runID == "" {
		return nil, fmt.Errorf("replay run: run id is required")
	}
	evs, err := s.ReadEvents(ctx, Filter{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("replay run %s: %w", runID, err)
	}
	return evs, nil
}

// Runs summarizes every run in the log, ordered by the seq of its first
// event. Runs whose routine_started event is missing are still listed.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, MIN(seq), MAX(seq), COUNT(*)
		FROM events
		WHERE run_id != ''
		GROUP BY run_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	byID := make(map[string]*RunSummary)
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.FirstSeq, &r.LastSeq, &r.Events); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		byID[r.RunID] = &r
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	lifecycle, err := s.ReadEvents(ctx, Filter{Kinds: []telemetry.Kind{
		telemetry.KindRoutineStarted,
		telemetry.KindRoutineFinished,
		telemetry.KindRoutineAborted,
	}})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for _, ev := range lifecycle {
		r, ok := byID[ev.RunID]
		if !ok {
			continue
		}
		if r.Routine == "" {
			r.Routine = ev.Routine
		}
		switch ev.Kind {
		case telemetry.KindRoutineStarted:
			r.StartedAt = ev.Timestamp
		default:
			r.Outcome = ev.Outcome
			r.Node = ev.Node
			r.EndedAt = ev.Timestamp
		}
	}

	runs := make([]RunSummary, 0, len(byID))
	for _, r := range byID {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].FirstSeq != runs[j].FirstSeq {
			return runs[i].FirstSeq < runs[j].FirstSeq
		}
		return runs[i].RunID < runs[j].RunID
	})
	return runs, nil
}

// LastSeq returns the highest seq stored, or zero for an empty log. Used to
// resume a telemetry.Sequencer so a new session continues the total order.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq.Int64, nil
}

// ListRunIDs returns the distinct run IDs in the log, sorted.
func (s *Store) ListRunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT run_id FROM events
		WHERE run_id != ''
		ORDER BY run_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list run ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run ids: %w", err)
	}
	return ids, nil
}

func durationNs(n int64) time.Duration { return time.Duration(n) }

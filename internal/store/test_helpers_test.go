package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/robotcore/internal/telemetry"
	"github.com/roach88/robotcore/internal/testutil"
)

// createTestStore opens a fresh database in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// runEvents returns the lifecycle of one routine run, seq starting at first.
func runEvents(runID, routine string, first int64, outcome telemetry.Kind) []telemetry.Event {
	at := func(ms int) time.Time { return testutil.Epoch.Add(time.Duration(ms) * time.Millisecond) }
	evs := []telemetry.Event{
		{Kind: telemetry.KindRoutineStarted, Timestamp: at(0), Source: "executor", RunID: runID, Routine: routine},
		{Kind: telemetry.KindNodeStarted, Timestamp: at(0), Source: "executor", RunID: runID, Routine: routine, Node: routine + "/0:wait", Message: "wait"},
		{Kind: telemetry.KindNodeFinished, Timestamp: at(40), Source: "executor", RunID: runID, Routine: routine, Node: routine + "/0:wait", Message: "wait"},
	}
	end := telemetry.Event{Kind: outcome, Timestamp: at(60), Source: "executor", RunID: runID, Routine: routine, Outcome: "completed"}
	if outcome == telemetry.KindRoutineAborted {
		end.Outcome = "aborted"
		end.Node = routine + "/1:shooter.set_power"
		end.Err = "motor fault"
	}
	evs = append(evs, end)
	for i := range evs {
		evs[i].Seq = first + int64(i)
	}
	return evs
}

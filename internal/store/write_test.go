package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/telemetry"
	"github.com/roach88/robotcore/internal/testutil"
)

func TestWriteEvent_RoundTripsEveryField(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := telemetry.Event{
		Seq:       7,
		Kind:      telemetry.KindTickOverrun,
		Timestamp: testutil.Epoch.Add(1500 * time.Microsecond),
		Source:    "enabled",
		Client:    "drive",
		Phase:     "write",
		Tick:      42,
		Elapsed:   31 * time.Millisecond,
		Period:    20 * time.Millisecond,
		RunID:     "run-1",
		Routine:   "two_middle",
		Node:      "two_middle/0:wait",
		Outcome:   "completed",
		Mode:      "autonomous",
		Message:   "tick overran period",
		Err:       "boom",
	}
	require.NoError(t, s.WriteEvent(ctx, ev))

	got, err := s.ReadEvents(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, ev.Timestamp.Equal(got[0].Timestamp))
	got[0].Timestamp = ev.Timestamp
	assert.Equal(t, ev, got[0])
}

func TestWriteEvent_ZeroTimestampStaysZero(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEvent(ctx, telemetry.Event{Kind: telemetry.KindModeChanged, Mode: "disabled"}))
	got, err := s.ReadEvents(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.IsZero())
}

func TestWriteEvent_RequiresKind(t *testing.T) {
	s := createTestStore(t)
	assert.ErrorContains(t, s.WriteEvent(context.Background(), telemetry.Event{Seq: 1}), "kind is required")
}

func TestWriteEvent_DuplicateSeqIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := telemetry.Event{Seq: 3, Kind: telemetry.KindLooperStarted, Source: "enabled"}
	require.NoError(t, s.WriteEvent(ctx, ev))
	require.NoError(t, s.WriteEvent(ctx, ev))

	// unsequenced events are never deduplicated
	unseq := telemetry.Event{Kind: telemetry.KindLooperStopped, Source: "enabled"}
	require.NoError(t, s.WriteEvent(ctx, unseq))
	require.NoError(t, s.WriteEvent(ctx, unseq))

	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestWriteEvents_BatchIsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WriteEvents(ctx, []telemetry.Event{
		{Seq: 1, Kind: telemetry.KindLooperStarted},
		{Seq: 2},
	})
	require.Error(t, err)

	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed batch must leave nothing behind")

	require.NoError(t, s.WriteEvents(ctx, nil))
}

func TestReadEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteEvents(ctx, runEvents("run-a", "two_middle", 1, telemetry.KindRoutineFinished)))
	require.NoError(t, s.WriteEvents(ctx, runEvents("run-b", "two_stage_side", 5, telemetry.KindRoutineAborted)))

	all, err := s.ReadEvents(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 8)
	for i, ev := range all {
		assert.EqualValues(t, i+1, ev.Seq, "ordered by seq")
	}

	byRun, err := s.ReadEvents(ctx, Filter{RunID: "run-b"})
	require.NoError(t, err)
	assert.Len(t, byRun, 4)

	byKind, err := s.ReadEvents(ctx, Filter{Kinds: []telemetry.Kind{telemetry.KindRoutineAborted, telemetry.KindRoutineFinished}})
	require.NoError(t, err)
	require.Len(t, byKind, 2)
	assert.Equal(t, "run-a", byKind[0].RunID)
	assert.Equal(t, "motor fault", byKind[1].Err)

	tail, err := s.ReadEvents(ctx, Filter{AfterSeq: 6, Limit: 1})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.EqualValues(t, 7, tail[0].Seq)

	none, err := s.ReadEvents(ctx, Filter{RunID: "missing"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

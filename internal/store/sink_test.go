package store

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/robotcore/internal/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSink_PersistsSequencedEvents(t *testing.T) {
	s := createTestStore(t)
	sink := NewSink(s, WithQueueSize(1024), WithLogger(quietLogger()))
	seq := telemetry.NewSequenced(sink, nil)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				seq.Emit(telemetry.Event{Kind: telemetry.KindNodeStarted, Source: "executor"})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	stats := sink.Stats()
	assert.EqualValues(t, 200, stats.Written+stats.Dropped)
	assert.Zero(t, stats.Failed)

	evs, err := s.ReadEvents(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, evs, int(stats.Written))
	for i := 1; i < len(evs); i++ {
		assert.Less(t, evs[i-1].Seq, evs[i].Seq)
	}
}

func TestSink_EmitAfterCloseIsDropped(t *testing.T) {
	s := createTestStore(t)
	sink := NewSink(s, WithLogger(quietLogger()))
	sink.Emit(telemetry.Event{Seq: 1, Kind: telemetry.KindLooperStarted})
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	sink.Emit(telemetry.Event{Seq: 2, Kind: telemetry.KindLooperStopped})
	assert.Equal(t, SinkStats{Written: 1, Dropped: 1}, sink.Stats())
}

func TestSink_CountsFailedWrites(t *testing.T) {
	s := createTestStore(t)
	sink := NewSink(s, WithLogger(quietLogger()))
	sink.Emit(telemetry.Event{Seq: 1}) // no kind
	require.NoError(t, sink.Close())

	assert.EqualValues(t, 1, sink.Stats().Failed)
}

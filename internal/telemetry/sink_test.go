package telemetry

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenced_AssignsIncreasingSeq(t *testing.T) {
	rec := NewRecorder()
	s := NewSequenced(rec, nil)

	s.Emit(Event{Kind: KindLooperStarted})
	s.Emit(Event{Kind: KindTickOverrun})
	s.Emit(Event{Kind: KindLooperStopped})

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(2), events[1].Seq)
	assert.Equal(t, int64(3), events[2].Seq)
}

func TestSequenced_ResumesFromStart(t *testing.T) {
	rec := NewRecorder()
	seq := NewSequencerAt(41)
	s := NewSequenced(rec, seq)

	s.Emit(Event{Kind: KindModeChanged})

	assert.Equal(t, int64(42), rec.Events()[0].Seq)
	assert.Equal(t, int64(42), seq.Current())
}

func TestSequencer_ConcurrentNextIsUnique(t *testing.T) {
	seq := &Sequencer{}
	const workers, per = 8, 200

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				v := seq.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*per)
	assert.Equal(t, int64(workers*per), seq.Current())
}

func TestFanout_SkipsNilAndPreservesOrder(t *testing.T) {
	var order []string
	a := SinkFunc(func(Event) { order = append(order, "a") })
	b := SinkFunc(func(Event) { order = append(order, "b") })

	Fanout{a, nil, b}.Emit(Event{Kind: KindClientFault})

	assert.Equal(t, []string{"a", "b"}, order)
}

func TestRecorder_OfKind(t *testing.T) {
	rec := NewRecorder()
	rec.Emit(Event{Kind: KindNodeStarted, Node: "a"})
	rec.Emit(Event{Kind: KindClientFault, Client: "arm"})
	rec.Emit(Event{Kind: KindNodeFinished, Node: "a"})

	faults := rec.OfKind(KindClientFault)
	require.Len(t, faults, 1)
	assert.Equal(t, "arm", faults[0].Client)

	nodes := rec.OfKind(KindNodeStarted, KindNodeFinished)
	assert.Len(t, nodes, 2)

	rec.Reset()
	assert.Equal(t, 0, rec.Len())
}

func TestLogSink_LevelsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewLogSink(logger)

	s.Emit(Event{
		Kind:      KindClientFault,
		Source:    "enabled",
		Client:    "arm",
		Phase:     "loop",
		Tick:      7,
		Err:       "encoder timeout",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	s.Emit(Event{Kind: KindTickOverrun, Source: "enabled", Elapsed: 30 * time.Millisecond, Period: 20 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "client=arm")
	assert.Contains(t, out, "tick=7")
	assert.Contains(t, out, `error="encoder timeout"`)
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "elapsed=30ms")
}

func TestEvent_IsFault(t *testing.T) {
	assert.True(t, Event{Kind: KindClientFault}.IsFault())
	assert.True(t, Event{Kind: KindRoutineAborted}.IsFault())
	assert.False(t, Event{Kind: KindTickOverrun}.IsFault())
}

package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives telemetry events.
//
// Emit is called from the real-time tick goroutine and the routine drive
// goroutine. Implementations must not block on I/O.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard returns a Sink that drops every event.
func Discard() Sink { return discard{} }

// Fanout delivers each event to every sink in order. Nil entries are skipped.
type Fanout []Sink

// Emit forwards ev to every sink.
func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Sequencer is a monotonic counter used to stamp events with a total order.
//
// Wall-clock timestamps from two goroutines can tie or interleave; the
// sequence number is the ordering key the event store and traces sort by.
type Sequencer struct {
	seq atomic.Int64
}

// NewSequencerAt creates a sequencer whose next value is start+1.
func NewSequencerAt(start int64) *Sequencer {
	s := &Sequencer{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() int64 {
	return s.seq.Load()
}

// Sequenced stamps every event with the next sequence number before
// forwarding it.
type Sequenced struct {
	seq  *Sequencer
	next Sink
}

// NewSequenced wraps next. A nil seq starts a fresh sequencer at zero.
func NewSequenced(next Sink, seq *Sequencer) *Sequenced {
	if seq == nil {
		seq = &Sequencer{}
	}
	if next == nil {
		next = Discard()
	}
	return &Sequenced{seq: seq, next: next}
}

// Emit assigns ev.Seq and forwards the event.
func (s *Sequenced) Emit(ev Event) {
	ev.Seq = s.seq.Next()
	s.next.Emit(ev)
}

// LogSink writes events through slog. Faults log at Error, overruns at Warn,
// node-level events at Debug and everything else at Info.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

// Emit logs ev.
func (s *LogSink) Emit(ev Event) {
	level := slog.LevelInfo
	switch ev.Kind {
	case KindClientFault, KindRoutineAborted:
		level = slog.LevelError
	case KindTickOverrun:
		level = slog.LevelWarn
	case KindNodeStarted, KindNodeFinished, KindNodeCancelled:
		level = slog.LevelDebug
	}

	attrs := []slog.Attr{slog.String("source", ev.Source)}
	if ev.Seq != 0 {
		attrs = append(attrs, slog.Int64("seq", ev.Seq))
	}
	if ev.Client != "" {
		attrs = append(attrs, slog.String("client", ev.Client))
	}
	if ev.Phase != "" {
		attrs = append(attrs, slog.String("phase", ev.Phase))
	}
	if ev.Tick != 0 {
		attrs = append(attrs, slog.Uint64("tick", ev.Tick))
	}
	if ev.Kind == KindTickOverrun {
		attrs = append(attrs, slog.Duration("elapsed", ev.Elapsed), slog.Duration("period", ev.Period))
	}
	if ev.RunID != "" {
		attrs = append(attrs, slog.String("run_id", ev.RunID))
	}
	if ev.Routine != "" {
		attrs = append(attrs, slog.String("routine", ev.Routine))
	}
	if ev.Node != "" {
		attrs = append(attrs, slog.String("node", ev.Node))
	}
	if ev.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", ev.Outcome))
	}
	if ev.Mode != "" {
		attrs = append(attrs, slog.String("mode", ev.Mode))
	}
	if ev.Err != "" {
		attrs = append(attrs, slog.String("error", ev.Err))
	}
	if !ev.Timestamp.IsZero() {
		attrs = append(attrs, slog.Time("at", ev.Timestamp))
	}

	msg := ev.Message
	if msg == "" {
		msg = string(ev.Kind)
	}
	s.Logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Recorder keeps every event in memory. Used by the harness and tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends ev.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of the given kinds, in order.
func (r *Recorder) OfKind(kinds ...Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		for _, k := range kinds {
			if ev.Kind == k {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/robotcore/internal/telemetry"
)

// DefaultQueueSize is the sink buffer used when none is configured.
const DefaultQueueSize = 4096

const maxBatch = 256

// Sink is a telemetry.Sink that persists events to a Store from a single
// writer goroutine. Emit never blocks: when the queue is full the event is
// dropped and counted.
type Sink struct {
	store  *Store
	logger *slog.Logger
	queue  chan telemetry.Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// SinkOption configures a Sink.
type SinkOption func(*sinkConfig)

type sinkConfig struct {
	queueSize int
	logger    *slog.Logger
}

// WithQueueSize sets the number of events buffered ahead of the writer.
func WithQueueSize(n int) SinkOption {
	return func(c *sinkConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(lg *slog.Logger) SinkOption {
	return func(c *sinkConfig) {
		if lg != nil {
			c.logger = lg
		}
	}
}

// NewSink starts the writer goroutine. Close must be called to flush it.
func NewSink(s *Store, opts ...SinkOption) *Sink {
	cfg := sinkConfig{queueSize: DefaultQueueSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	k := &Sink{
		store:  s,
		logger: cfg.logger,
		queue:  make(chan telemetry.Event, cfg.queueSize),
		done:   make(chan struct{}),
	}
	go k.run()
	return k
}

// Emit enqueues ev for writing.
func (k *Sink) Emit(ev telemetry.Event) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		k.dropped.Add(1)
		return
	}
	select {
	case k.queue <- ev:
	default:
		k.dropped.Add(1)
	}
}

func (k *Sink) run() {
	defer close(k.done)
	batch := make([]telemetry.Event, 0, maxBatch)
	for ev := range k.queue {
		batch = append(batch[:0], ev)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-k.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		if err := k.store.WriteEvents(context.Background(), batch); err != nil {
			k.failed.Add(int64(len(batch)))
			k.logger.Error("telemetry write failed", "events", len(batch), "error", err)
			continue
		}
		k.written.Add(int64(len(batch)))
	}
}

// Close stops accepting events and waits until every queued event has been
// written. Safe to call more than once.
func (k *Sink) Close() error {
	k.once.Do(func() {
		k.mu.Lock()
		k.closed = true
		close(k.queue)
		k.mu.Unlock()
	})
	<-k.done
	return nil
}

// SinkStats counts what happened to emitted events.
type SinkStats struct {
	Written int64
	Dropped int64
	Failed  int64
}

// Stats returns the sink counters.
func (k *Sink) Stats() SinkStats {
	return SinkStats{
		Written: k.written.Load(),
		Dropped: k.dropped.Load(),
		Failed:  k.failed.Load(),
	}
}

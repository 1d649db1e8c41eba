package looper

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/robotcore/internal/telemetry"
)

// DefaultPeriod is the tick period used when none is configured (50 Hz).
const DefaultPeriod = 20 * time.Millisecond

// Stats summarizes tick timing since the last Start.
type Stats struct {
	Ticks    uint64
	Overruns uint64
	Faults   uint64

	// LastDt is the interval between the starts of the two most recent
	// ticks; MaxDt is the largest such interval seen.
	LastDt time.Duration
	MaxDt  time.Duration

	// LastElapsed is the time the most recent tick's callbacks took.
	LastElapsed time.Duration
}

type entry struct {
	name   string
	client LoopClient
	reader InputReader
	writer OutputWriter
}

// Looper runs registered clients at a fixed period.
//
// Every tick runs three phases across all clients in registration order:
// ReadInputs (clients implementing InputReader), OnLoop, then WriteOutputs
// (clients implementing OutputWriter).
//
// Thread-safety model:
//   - Register, Start, Stop, Stats: safe from any goroutine
//   - Tick: manual drive only; serialized with itself and with Stop
//   - Stop must not be called from inside a client callback
//
// INVARIANTS:
//   - clients never changes while RUNNING
//   - no OnLoop begins after Stop returns
//   - a tick that overruns the period is followed immediately by the next;
//     missed periods are not made up
type Looper struct {
	name       string
	period     time.Duration
	clock      Clock
	sink       telemetry.Sink
	logger     *slog.Logger
	manual     bool
	overrunLog bool

	mu      sync.Mutex
	clients []entry
	stopCh  chan struct{}
	doneCh  chan struct{}

	running atomic.Bool

	// tickMu is held for the whole of a tick.
	tickMu    sync.Mutex
	tickN     uint64
	lastStart time.Time

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Looper.
type Option func(*Looper)

// WithPeriod sets the tick period. Non-positive values keep the default.
func WithPeriod(d time.Duration) Option {
	return func(l *Looper) {
		if d > 0 {
			l.period = d
		}
	}
}

// WithClock sets the timestamp source handed to clients.
func WithClock(c Clock) Option {
	return func(l *Looper) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithSink sets the telemetry sink for lifecycle, fault and overrun events.
func WithSink(s telemetry.Sink) Option {
	return func(l *Looper) {
		if s != nil {
			l.sink = s
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(l *Looper) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithManualDrive disables the tick goroutine. The owner calls Tick instead,
// which lets tests and the scenario harness run lock-step with a manual clock.
func WithManualDrive() Option {
	return func(l *Looper) {
		l.manual = true
	}
}

// WithOverrunLog controls whether overruns are logged at warn level. They are
// always emitted to the sink and counted in Stats.
func WithOverrunLog(enabled bool) Option {
	return func(l *Looper) {
		l.overrunLog = enabled
	}
}

// New creates a stopped Looper.
func New(name string, opts ...Option) *Looper {
	l := &Looper{
		name:       name,
		period:     DefaultPeriod,
		clock:      SystemClock{},
		sink:       telemetry.Discard(),
		logger:     slog.Default(),
		overrunLog: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the looper name.
func (l *Looper) Name() string { return l.name }

// Period returns the configured tick period.
func (l *Looper) Period() time.Duration { return l.period }

// Running reports whether the looper is RUNNING.
func (l *Looper) Running() bool { return l.running.Load() }

// Register appends client to the tick order under name.
func (l *Looper) Register(name string, client LoopClient) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return &RegistrationError{Looper: l.name, Client: name, Err: ErrAlreadyRunning}
	}
	if client == nil || name == "" {
		return &RegistrationError{Looper: l.name, Client: name, Err: ErrNilClient}
	}
	for _, e := range l.clients {
		if e.name == name {
			return &RegistrationError{Looper: l.name, Client: name, Err: ErrDuplicateClient}
		}
	}

	e := entry{name: name, client: client}
	e.reader, _ = client.(InputReader)
	e.writer, _ = client.(OutputWriter)
	l.clients = append(l.clients, e)
	return nil
}

// Clients returns the registered client names in tick order.
func (l *Looper) Clients() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, len(l.clients))
	for i, e := range l.clients {
		names[i] = e.name
	}
	return names
}

// Start moves the looper to RUNNING: OnStart once per client in registration
// order, then periodic ticks. It is a no-op if already RUNNING.
func (l *Looper) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return
	}

	l.tickMu.Lock()
	l.tickN = 0
	l.lastStart = time.Time{}
	l.statsMu.Lock()
	l.stats = Stats{}
	l.statsMu.Unlock()

	now := l.clock.Now()
	for _, e := range l.clients {
		l.call(e, PhaseStart, 0, now, e.client.OnStart)
	}
	l.running.Store(true)
	l.tickMu.Unlock()

	l.logger.Info("looper started",
		"looper", l.name,
		"period", l.period,
		"clients", len(l.clients),
		"manual", l.manual,
	)
	l.sink.Emit(telemetry.Event{
		Kind:      telemetry.KindLooperStarted,
		Timestamp: now,
		Source:    l.name,
		Period:    l.period,
	})

	if l.manual {
		return
	}
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	go l.run(l.stopCh, l.doneCh)
}

// Stop waits for any in-flight tick, calls OnStop once per client in reverse
// registration order, and moves the looper to STOPPED. It is a no-op if
// already STOPPED.
func (l *Looper) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running.Load() {
		return
	}

	if l.stopCh != nil {
		close(l.stopCh)
		<-l.doneCh
		l.stopCh, l.doneCh = nil, nil
	}

	l.tickMu.Lock()
	l.running.Store(false)
	n := l.tickN
	now := l.clock.Now()
	for i := len(l.clients) - 1; i >= 0; i-- {
		e := l.clients[i]
		l.call(e, PhaseStop, n, now, e.client.OnStop)
	}
	l.tickMu.Unlock()

	stats := l.Stats()
	l.logger.Info("looper stopped",
		"looper", l.name,
		"ticks", stats.Ticks,
		"overruns", stats.Overruns,
		"faults", stats.Faults,
	)
	l.sink.Emit(telemetry.Event{
		Kind:      telemetry.KindLooperStopped,
		Timestamp: now,
		Source:    l.name,
		Tick:      n,
	})
}

// Tick runs one read/loop/write cycle. It is only legal in manual drive mode
// while RUNNING.
func (l *Looper) Tick() error {
	if !l.manual {
		return ErrNotManual
	}
	if _, ok := l.tick(); !ok {
		return ErrNotRunning
	}
	return nil
}

// Stats returns a snapshot of the timing counters.
func (l *Looper) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// run is the tick goroutine. The wait before each tick is the remainder of
// the period after the previous tick's work, floored at zero.
func (l *Looper) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		began := time.Now()
		l.tick()
		wait := l.period - time.Since(began)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (l *Looper) tick() (time.Duration, bool) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	if !l.running.Load() {
		return 0, false
	}

	l.tickN++
	n := l.tickN
	start := l.clock.Now()

	for _, e := range l.clients {
		if e.reader != nil {
			l.call(e, PhaseRead, n, start, e.reader.ReadInputs)
		}
	}
	for _, e := range l.clients {
		l.call(e, PhaseLoop, n, start, e.client.OnLoop)
	}
	for _, e := range l.clients {
		if e.writer != nil {
			l.call(e, PhaseWrite, n, start, e.writer.WriteOutputs)
		}
	}

	elapsed := l.clock.Now().Sub(start)
	overrun := elapsed > l.period

	l.statsMu.Lock()
	l.stats.Ticks = n
	l.stats.LastElapsed = elapsed
	if !l.lastStart.IsZero() {
		dt := start.Sub(l.lastStart)
		l.stats.LastDt = dt
		if dt > l.stats.MaxDt {
			l.stats.MaxDt = dt
		}
	}
	if overrun {
		l.stats.Overruns++
	}
	l.statsMu.Unlock()
	l.lastStart = start

	if overrun {
		if l.overrunLog {
			l.logger.Warn("tick overrun",
				"looper", l.name,
				"tick", n,
				"elapsed", elapsed,
				"period", l.period,
			)
		}
		l.sink.Emit(telemetry.Event{
			Kind:      telemetry.KindTickOverrun,
			Timestamp: start,
			Source:    l.name,
			Tick:      n,
			Elapsed:   elapsed,
			Period:    l.period,
		})
	}
	return elapsed, true
}

// call runs one client callback, converting an error or panic into a
// reported ClientFault.
func (l *Looper) call(e entry, phase Phase, n uint64, now time.Time, fn func(time.Time) error) {
	err, panicked := protect(fn, now)
	if err == nil {
		return
	}
	l.report(&ClientFault{
		Looper:   l.name,
		Client:   e.name,
		Phase:    phase,
		Tick:     n,
		At:       now,
		Err:      err,
		Panicked: panicked,
	})
}

func protect(fn func(time.Time) error, now time.Time) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			panicked = true
		}
	}()
	return fn(now), false
}

func (l *Looper) report(f *ClientFault) {
	l.statsMu.Lock()
	l.stats.Faults++
	l.statsMu.Unlock()

	l.logger.Error("client fault",
		"looper", f.Looper,
		"client", f.Client,
		"phase", string(f.Phase),
		"tick", f.Tick,
		"at", f.At,
		"panic", f.Panicked,
		"error", f.Err,
	)
	l.sink.Emit(telemetry.Event{
		Kind:      telemetry.KindClientFault,
		Timestamp: f.At,
		Source:    f.Looper,
		Client:    f.Client,
		Phase:     string(f.Phase),
		Tick:      f.Tick,
		Err:       f.Err.Error(),
	})
}

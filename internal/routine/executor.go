package routine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/robotcore/internal/action"
	"github.com/roach88/robotcore/internal/looper"
	"github.com/roach88/robotcore/internal/telemetry"
)

// Source is the telemetry source name of executor events.
const Source = "executor"

// DriveMode selects who calls Tick.
type DriveMode string

const (
	// DriveMerged leaves ticking to the owner, normally the enabled looper
	// via AsLoopClient, so routine updates land before that tick's writes.
	DriveMerged DriveMode = "merged"

	// DriveDedicated runs a goroutine per run that ticks at the executor's
	// period.
	DriveDedicated DriveMode = "dedicated"
)

// run is the state of one routine run. Fields are guarded by Executor.mu.
type run struct {
	id      string
	routine string
	root    *action.Action
	started time.Time
	ticks   uint64
	result  Result

	// done is closed when the run ends.
	done chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	driverCh chan struct{}
}

func (r *run) halt() {
	if r.stopCh != nil {
		r.stopOnce.Do(func() { close(r.stopCh) })
	}
}

// RunInfo describes the run in progress.
type RunInfo struct {
	RunID     string
	Routine   string
	StartedAt time.Time
	Ticks     uint64
}

// Executor drives at most one routine tree at a time.
//
// Thread-safety model:
//   - Start, Stop, Tick, Wait, Running, Current: safe from any goroutine
//   - none of them may be called from inside a node of the running tree
//
// INVARIANTS:
//   - never two roots at once: Start on a RUNNING executor ends the current
//     run (outcome preempted) before starting the new one
//   - when Stop returns, every node of the old tree has left RUNNING and no
//     drive goroutine remains
//   - an error in any node ends the whole run (outcome aborted)
type Executor struct {
	clock  looper.Clock
	period time.Duration
	sink   telemetry.Sink
	logger *slog.Logger
	ids    RunIDGenerator
	mode   DriveMode

	mu   sync.Mutex
	cur  *run
	last *Result
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the time source passed to nodes.
func WithClock(c looper.Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithPeriod sets the dedicated drive period. Non-positive values keep the
// default.
func WithPeriod(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.period = d
		}
	}
}

// WithSink sets the telemetry sink for routine and node events.
func WithSink(s telemetry.Sink) Option {
	return func(e *Executor) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(e *Executor) {
		if lg != nil {
			e.logger = lg
		}
	}
}

// WithRunIDs sets the run ID generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(e *Executor) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithDriveMode selects merged (default) or dedicated driving.
func WithDriveMode(m DriveMode) Option {
	return func(e *Executor) {
		if m == DriveMerged || m == DriveDedicated {
			e.mode = m
		}
	}
}

// NewExecutor creates an IDLE executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		clock:  looper.SystemClock{},
		period: looper.DefaultPeriod,
		sink:   telemetry.Discard(),
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		mode:   DriveMerged,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the drive mode.
func (e *Executor) Mode() DriveMode { return e.mode }

// Start begins running root and returns the new run ID. A run already in
// progress is ended first with outcome preempted. If root fails while
// starting, the run is aborted and the *AbortError is returned alongside
// the run ID.
func (e *Executor) Start(root *action.Action) (string, error) {
	if root == nil {
		return "", ErrNilRoutine
	}

	e.mu.Lock()
	now := e.clock.Now()
	prev := e.endLocked(now, OutcomePreempted, nil)

	if root.State() == action.Done {
		if err := root.Reset(); err != nil {
			e.mu.Unlock()
			waitDriver(prev)
			return "", err
		}
	}

	r := &run{
		id:      e.ids.Generate(),
		routine: root.Name(),
		root:    root,
		started: now,
		done:    make(chan struct{}),
	}
	e.cur = r
	root.Observe(e.observer(r))

	e.logger.Info("routine started",
		"run_id", r.id,
		"routine", r.routine,
		"mode", string(e.mode),
	)
	e.sink.Emit(telemetry.Event{
		Kind:      telemetry.KindRoutineStarted,
		Timestamp: now,
		Source:    Source,
		RunID:     r.id,
		Routine:   r.routine,
	})

	if err := root.Start(now); err != nil {
		abort := e.abortLocked(now, err)
		e.mu.Unlock()
		waitDriver(prev)
		return r.id, abort
	}
	if root.IsFinished() {
		e.endLocked(now, OutcomeCompleted, nil)
	} else if e.mode == DriveDedicated {
		r.stopCh = make(chan struct{})
		r.driverCh = make(chan struct{})
		go e.drive(r)
	}
	e.mu.Unlock()

	waitDriver(prev)
	return r.id, nil
}

// Stop ends the current run with outcome stopped, cancelling every RUNNING
// node, and returns once cleanup is complete. It is a no-op when IDLE.
func (e *Executor) Stop() {
	e.mu.Lock()
	prev := e.endLocked(e.clock.Now(), OutcomeStopped, nil)
	e.mu.Unlock()

	waitDriver(prev)
}

// Tick advances the current run by one update. It returns an *AbortError if
// a node failed; the run is already over by then. Tick on an IDLE executor
// does nothing.
func (e *Executor) Tick() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil {
		return nil
	}
	return e.tickLocked(e.clock.Now())
}

// Running reports whether a run is in progress.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil
}

// Current describes the run in progress.
func (e *Executor) Current() (RunInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil {
		return RunInfo{}, false
	}
	return RunInfo{
		RunID:     e.cur.id,
		Routine:   e.cur.routine,
		StartedAt: e.cur.started,
		Ticks:     e.cur.ticks,
	}, true
}

// Last returns the result of the most recently finished run.
func (e *Executor) Last() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last == nil {
		return Result{}, false
	}
	return *e.last, true
}

// Wait blocks until the current run ends and returns its result. With no
// run in progress it returns the last result immediately, or a zero Result.
func (e *Executor) Wait(ctx context.Context) (Result, error) {
	e.mu.Lock()
	r := e.cur
	if r == nil {
		var res Result
		if e.last != nil {
			res = *e.last
		}
		e.mu.Unlock()
		return res, nil
	}
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-r.done:
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return r.result, nil
}

// AsLoopClient adapts the executor for registration in a looper ahead of
// the subsystems (merged drive). Aborts are reported by the executor, so
// the client itself never faults.
func (e *Executor) AsLoopClient() looper.LoopClient {
	return loopClient{e: e}
}

type loopClient struct {
	e *Executor
}

func (loopClient) OnStart(time.Time) error { return nil }
func (loopClient) OnStop(time.Time) error  { return nil }

func (c loopClient) OnLoop(now time.Time) error {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()

	if c.e.cur == nil {
		return nil
	}
	_ = c.e.tickLocked(now)
	return nil
}

func (e *Executor) drive(r *run) {
	defer close(r.driverCh)

	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		if e.cur != r {
			e.mu.Unlock()
			return
		}
		_ = e.tickLocked(e.clock.Now())
		over := e.cur != r
		e.mu.Unlock()
		if over {
			return
		}
	}
}

func (e *Executor) tickLocked(now time.Time) error {
	r := e.cur
	r.ticks++

	if err := r.root.Update(now); err != nil {
		return e.abortLocked(now, err)
	}
	if r.root.IsFinished() {
		e.endLocked(now, OutcomeCompleted, nil)
	}
	return nil
}

// abortLocked cancels the whole tree after a node error and ends the run.
func (e *Executor) abortLocked(now time.Time, cause error) *AbortError {
	r := e.cur
	abort := &AbortError{RunID: r.id, Routine: r.routine, Err: cause}
	if ne, ok := action.AsNodeError(cause); ok {
		abort.Node = ne.Path
	}

	e.endLocked(now, OutcomeAborted, abort)
	return abort
}

// endLocked finishes the current run, if any, and returns it so the caller
// can wait for its drive goroutine after releasing the lock.
func (e *Executor) endLocked(now time.Time, outcome Outcome, abort *AbortError) *run {
	r := e.cur
	if r == nil {
		return nil
	}

	var cleanupErr error
	if r.root.State() == action.Running {
		cleanupErr = r.root.Cancel(now)
	}

	res := Result{
		RunID:     r.id,
		Routine:   r.routine,
		Outcome:   outcome,
		StartedAt: r.started,
		EndedAt:   now,
		Ticks:     r.ticks,
	}
	ev := telemetry.Event{
		Kind:      telemetry.KindRoutineFinished,
		Timestamp: now,
		Source:    Source,
		RunID:     r.id,
		Routine:   r.routine,
		Outcome:   string(outcome),
	}

	switch {
	case abort != nil:
		res.Err = abort
		if cleanupErr != nil {
			e.logger.Error("routine cleanup failed during abort",
				"run_id", r.id,
				"routine", r.routine,
				"error", cleanupErr,
			)
		}
		ev.Kind = telemetry.KindRoutineAborted
		ev.Node = abort.Node
		ev.Err = abort.Err.Error()
		e.logger.Error("routine aborted",
			"run_id", r.id,
			"routine", r.routine,
			"node", abort.Node,
			"tick", r.ticks,
			"error", abort.Err,
		)
	case cleanupErr != nil:
		res.Err = cleanupErr
		ev.Err = cleanupErr.Error()
		e.logger.Error("routine cleanup failed",
			"run_id", r.id,
			"routine", r.routine,
			"outcome", string(outcome),
			"error", cleanupErr,
		)
	default:
		e.logger.Info("routine finished",
			"run_id", r.id,
			"routine", r.routine,
			"outcome", string(outcome),
			"ticks", r.ticks,
		)
	}
	e.sink.Emit(ev)

	r.result = res
	e.last = &res
	e.cur = nil
	close(r.done)
	r.halt()
	return r
}

func waitDriver(r *run) {
	if r == nil || r.driverCh == nil {
		return
	}
	<-r.driverCh
}

func (e *Executor) observer(r *run) action.Observer {
	return func(ev action.NodeEvent) {
		kind := telemetry.KindNodeStarted
		switch ev.Type {
		case action.NodeFinished:
			kind = telemetry.KindNodeFinished
		case action.NodeCancelled:
			kind = telemetry.KindNodeCancelled
		}
		e.sink.Emit(telemetry.Event{
			Kind:      kind,
			Timestamp: ev.At,
			Source:    Source,
			RunID:     r.id,
			Routine:   r.routine,
			Node:      ev.Path,
			Message:   string(ev.Kind),
		})
	}
}

package robot

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/robotcore/internal/automode"
	"github.com/roach88/robotcore/internal/looper"
	"github.com/roach88/robotcore/internal/routine"
	"github.com/roach88/robotcore/internal/subsystem"
	"github.com/roach88/robotcore/internal/telemetry"
)

// Source is the telemetry source name of mode transitions.
const Source = "system"

// Mode is the robot's operating mode.
type Mode string

const (
	ModeNone       Mode = ""
	ModeDisabled   Mode = "disabled"
	ModeAutonomous Mode = "autonomous"
	ModeTeleop     Mode = "teleop"
	ModeTest       Mode = "test"
)

// Looper and client names.
const (
	EnabledLooper  = "enabled"
	DisabledLooper = "disabled"
	ExecutorClient = "executor"
	TeleopClient   = "teleop"
)

// ErrManualDedicated rejects manual drive combined with a dedicated executor
// goroutine, which would tick on wall time.
var ErrManualDedicated = errors.New("manual drive requires the merged executor")

// System is the process-wide context constructed once at startup. It owns
// the subsystem registry, the enabled and disabled loopers, the routine
// executor and the auto mode selector, and sequences them through mode
// transitions.
//
// Thread-safety model:
//   - transitions (DisabledInit, AutonomousInit, TeleopInit, TestInit,
//     Close) are serialized with each other
//   - none of them may be called from inside a looper client or action
type System struct {
	registry *subsystem.Registry
	enabled  *looper.Looper
	disabled *looper.Looper
	executor *routine.Executor
	selector *automode.Selector

	clock  looper.Clock
	sink   telemetry.Sink
	logger *slog.Logger
	manual bool

	mu     sync.Mutex
	closed bool
	mode   atomic.Value // Mode
}

type config struct {
	clock        looper.Clock
	sink         telemetry.Sink
	logger       *slog.Logger
	period       time.Duration
	execPeriod   time.Duration
	driveMode    routine.DriveMode
	runIDs       routine.RunIDGenerator
	manual       bool
	overrunLog   bool
	teleop       looper.LoopClient
	selectorOpts []automode.Option
}

// Option configures a System.
type Option func(*config)

// WithClock sets the clock shared by loopers, executor and selector.
func WithClock(c looper.Clock) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithSink sets the telemetry sink shared by every component.
func WithSink(s telemetry.Sink) Option {
	return func(cfg *config) {
		if s != nil {
			cfg.sink = s
		}
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(lg *slog.Logger) Option {
	return func(cfg *config) {
		if lg != nil {
			cfg.logger = lg
		}
	}
}

// WithPeriod sets the looper period.
func WithPeriod(d time.Duration) Option {
	return func(cfg *config) { cfg.period = d }
}

// WithExecutorPeriod sets the dedicated executor's drive period. Ignored in
// merged mode, where the enabled looper sets the pace.
func WithExecutorPeriod(d time.Duration) Option {
	return func(cfg *config) { cfg.execPeriod = d }
}

// WithDriveMode selects how routines are ticked. Default: routine.DriveMerged.
func WithDriveMode(m routine.DriveMode) Option {
	return func(cfg *config) {
		if m != "" {
			cfg.driveMode = m
		}
	}
}

// WithRunIDs sets the run ID generator.
func WithRunIDs(g routine.RunIDGenerator) Option {
	return func(cfg *config) {
		if g != nil {
			cfg.runIDs = g
		}
	}
}

// WithManualDrive creates both loopers in manual drive; the owner calls Tick.
func WithManualDrive() Option {
	return func(cfg *config) { cfg.manual = true }
}

// WithOverrunLog controls warn-level overrun logging in both loopers.
func WithOverrunLog(enabled bool) Option {
	return func(cfg *config) { cfg.overrunLog = enabled }
}

// WithTeleop registers a driver-control client in the enabled looper. It is
// ticked only while the robot is in teleop mode.
func WithTeleop(c looper.LoopClient) Option {
	return func(cfg *config) { cfg.teleop = c }
}

// WithSelectorOptions passes extra options to the auto mode selector.
func WithSelectorOptions(opts ...automode.Option) Option {
	return func(cfg *config) { cfg.selectorOpts = append(cfg.selectorOpts, opts...) }
}

// New wires a System around reg. In the enabled looper the executor (merged
// mode) comes first, then the teleop client, then every subsystem, so
// routine and driver updates land before that tick's write phase. The
// disabled looper holds read-only subsystem clients.
func New(reg *subsystem.Registry, opts ...Option) (*System, error) {
	if reg == nil {
		return nil, fmt.Errorf("new system: nil registry")
	}
	cfg := config{
		clock:      looper.SystemClock{},
		sink:       telemetry.Discard(),
		logger:     slog.Default(),
		period:     looper.DefaultPeriod,
		driveMode:  routine.DriveMerged,
		runIDs:     routine.UUIDv7Generator{},
		overrunLog: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.manual && cfg.driveMode == routine.DriveDedicated {
		return nil, fmt.Errorf("new system: %w", ErrManualDedicated)
	}
	execPeriod := cfg.execPeriod
	if execPeriod <= 0 {
		execPeriod = cfg.period
	}

	looperOpts := []looper.Option{
		looper.WithPeriod(cfg.period),
		looper.WithClock(cfg.clock),
		looper.WithSink(cfg.sink),
		looper.WithLogger(cfg.logger),
		looper.WithOverrunLog(cfg.overrunLog),
	}
	if cfg.manual {
		looperOpts = append(looperOpts, looper.WithManualDrive())
	}

	s := &System{
		registry: reg,
		enabled:  looper.New(EnabledLooper, looperOpts...),
		disabled: looper.New(DisabledLooper, looperOpts...),
		executor: routine.NewExecutor(
			routine.WithClock(cfg.clock),
			routine.WithPeriod(execPeriod),
			routine.WithSink(cfg.sink),
			routine.WithLogger(cfg.logger),
			routine.WithRunIDs(cfg.runIDs),
			routine.WithDriveMode(cfg.driveMode),
		),
		selector: automode.NewSelector(append([]automode.Option{
			automode.WithClock(cfg.clock),
			automode.WithSink(cfg.sink),
			automode.WithLogger(cfg.logger),
		}, cfg.selectorOpts...)...),
		clock:  cfg.clock,
		sink:   cfg.sink,
		logger: cfg.logger,
		manual: cfg.manual,
	}
	s.mode.Store(ModeNone)

	if cfg.driveMode == routine.DriveMerged {
		if err := s.enabled.Register(ExecutorClient, s.executor.AsLoopClient()); err != nil {
			return nil, fmt.Errorf("new system: %w", err)
		}
	}
	if cfg.teleop != nil {
		if err := s.enabled.Register(TeleopClient, &gated{client: cfg.teleop, sys: s, mode: ModeTeleop}); err != nil {
			return nil, fmt.Errorf("new system: %w", err)
		}
	}
	if err := reg.RegisterEnabledLoops(s.enabled); err != nil {
		return nil, fmt.Errorf("new system: register enabled loops: %w", err)
	}
	if err := reg.RegisterDisabledLoops(s.disabled); err != nil {
		return nil, fmt.Errorf("new system: register disabled loops: %w", err)
	}

	s.logger.Info("robot initialized",
		"subsystems", reg.Names(),
		"drive_mode", string(cfg.driveMode),
		"period", cfg.period,
	)
	return s, nil
}

// Registry returns the subsystem registry.
func (s *System) Registry() *subsystem.Registry { return s.registry }

// Executor returns the routine executor.
func (s *System) Executor() *routine.Executor { return s.executor }

// Selector returns the auto mode selector.
func (s *System) Selector() *automode.Selector { return s.selector }

// Enabled returns the looper that runs while the robot is enabled.
func (s *System) Enabled() *looper.Looper { return s.enabled }

// Disabled returns the read-only looper that runs while disabled.
func (s *System) Disabled() *looper.Looper { return s.disabled }

// Mode returns the current operating mode.
func (s *System) Mode() Mode { return s.mode.Load().(Mode) }

// DisabledInit stops any routine and the enabled looper, starts the
// disabled looper, and rebuilds the selected auto routine from scratch.
func (s *System) DisabledInit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.executor.Stop()
	s.enabled.Stop()
	s.disabled.Start()

	s.selector.Reset()
	s.selector.Update(false)
	s.transition(ModeDisabled, "")
	return nil
}

// DisabledPeriodic refreshes the selection while disabled; a changed desired
// mode is rebuilt here, off the hot path. force rebuilds regardless, for
// inputs the selector cannot see (alliance color on a field).
func (s *System) DisabledPeriodic(force bool) bool {
	if s.Mode() != ModeDisabled {
		return false
	}
	return s.selector.Update(force)
}

// AutonomousInit stops the disabled looper, starts the enabled one, and
// starts the selected routine. It returns the run ID, or "" when no valid
// routine is selected; that is logged, not an error, and the robot simply
// idles. A routine that fails while starting returns its *routine.AbortError.
func (s *System) AutonomousInit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	s.disabled.Stop()
	s.selector.Update(false)
	root, mode, ok := s.selector.Routine()
	s.transition(ModeAutonomous, mode)
	s.enabled.Start()

	if !ok {
		s.logger.Warn("no auto routine to run", "mode", mode, "error", s.selector.Err())
		return "", nil
	}
	return s.executor.Start(root)
}

// TeleopInit ends any autonomous routine and runs the enabled looper with
// the teleop client active.
func (s *System) TeleopInit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.executor.Stop()
	s.disabled.Stop()
	s.transition(ModeTeleop, "")
	s.enabled.Start()
	return nil
}

// TestInit stops everything; test mode drives nothing on its own.
func (s *System) TestInit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.executor.Stop()
	s.disabled.Stop()
	s.enabled.Stop()
	s.transition(ModeTest, "")
	return nil
}

// Close stops the executor and both loopers. Safe to call more than once.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.executor.Stop()
	s.enabled.Stop()
	s.disabled.Stop()
	s.closed = true
	s.transition(ModeNone, "")
	return nil
}

// Tick runs one cycle of whichever looper is RUNNING. Manual drive only.
func (s *System) Tick() error {
	if !s.manual {
		return looper.ErrNotManual
	}
	switch {
	case s.enabled.Running():
		return s.enabled.Tick()
	case s.disabled.Running():
		return s.disabled.Tick()
	default:
		return looper.ErrNotRunning
	}
}

// Status is a point-in-time view for dashboards.
type Status struct {
	Mode       Mode
	Auto       automode.Status
	Run        routine.RunInfo
	Running    bool
	Looper     looper.Stats
	Subsystems []subsystem.Status
}

// Status returns the system state. Looper stats are the enabled looper's.
func (s *System) Status() Status {
	run, running := s.executor.Current()
	return Status{
		Mode:       s.Mode(),
		Auto:       s.selector.Status(),
		Run:        run,
		Running:    running,
		Looper:     s.enabled.Stats(),
		Subsystems: s.registry.Status(),
	}
}

func (s *System) transition(to Mode, routineName string) {
	from := s.Mode()
	s.mode.Store(to)
	s.logger.Info("mode changed", "from", string(from), "to", string(to), "routine", routineName)
	s.sink.Emit(telemetry.Event{
		Kind:      telemetry.KindModeChanged,
		Timestamp: s.clock.Now(),
		Source:    Source,
		Mode:      string(to),
		Routine:   routineName,
		Message:   fmt.Sprintf("%s -> %s", modeLabel(from), modeLabel(to)),
	})
}

func modeLabel(m Mode) string {
	if m == ModeNone {
		return "none"
	}
	return string(m)
}

// ErrClosed rejects transitions after Close.
var ErrClosed = errors.New("system closed")

// gated forwards to client only while the system is in mode.
type gated struct {
	client looper.LoopClient
	sys    *System
	mode   Mode
}

func (g *gated) OnStart(now time.Time) error { return g.client.OnStart(now) }
func (g *gated) OnStop(now time.Time) error  { return g.client.OnStop(now) }

func (g *gated) OnLoop(now time.Time) error {
	if g.sys.Mode() != g.mode {
		return nil
	}
	return g.client.OnLoop(now)
}

package automode

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/robotcore/internal/action"
	"github.com/roach88/robotcore/internal/compiler"
	"github.com/roach88/robotcore/internal/ir"
	"github.com/roach88/robotcore/internal/looper"
	"github.com/roach88/robotcore/internal/telemetry"
)

// DoNothing is the mode selected when nothing else is. It is always
// registered and builds an empty routine.
const DoNothing = "do_nothing"

// Source is the telemetry source name of selector events.
const Source = "auto_selector"

// ErrDuplicateMode rejects a second factory under an existing name.
var ErrDuplicateMode = errors.New("auto mode already registered")

// Factory builds a fresh routine tree. It is called only when the selection
// changes or a rebuild is forced, never on the hot path.
type Factory func() (*action.Action, error)

// Selector holds the catalog of autonomous routines and the currently built
// one. The desired mode may be changed from any goroutine (a dashboard
// chooser); Update rebuilds only when it differs from the cached selection.
type Selector struct {
	clock  looper.Clock
	sink   telemetry.Sink
	logger *slog.Logger

	mu        sync.Mutex
	factories map[string]Factory
	order     []string
	desired   string
	cached    string // mode the built routine belongs to; "" after Reset
	routine   *action.Action
	buildErr  error
}

// Option configures a Selector.
type Option func(*Selector)

// WithClock sets the clock used for event timestamps.
func WithClock(c looper.Clock) Option {
	return func(s *Selector) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSink sets the telemetry sink.
func WithSink(sink telemetry.Sink) Option {
	return func(s *Selector) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(s *Selector) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// NewSelector creates a selector whose catalog holds only DoNothing.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{
		clock:     looper.SystemClock{},
		sink:      telemetry.Discard(),
		logger:    slog.Default(),
		factories: make(map[string]Factory),
		desired:   DoNothing,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.factories[DoNothing] = func() (*action.Action, error) {
		return action.Series().Named(DoNothing), nil
	}
	s.order = append(s.order, DoNothing)
	return s
}

// Register adds a named factory to the catalog.
func (s *Selector) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register auto mode %q: empty name or nil factory", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.factories[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateMode)
	}
	s.factories[name] = f
	s.order = append(s.order, name)
	return nil
}

// RegisterRoutines adds a factory per compiled routine. Each build resolves
// the routine against b afresh, so every run gets its own tree.
func (s *Selector) RegisterRoutines(routines []ir.Routine, b *compiler.Bindings) error {
	for _, r := range routines {
		if r.Name == DoNothing {
			continue
		}
		if err := s.Register(r.Name, func() (*action.Action, error) {
			return compiler.Build(r, b)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Modes returns the catalog in registration order, DoNothing first.
func (s *Selector) Modes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// SetDesired records the wanted mode. An empty name means DoNothing. The
// change takes effect at the next Update.
func (s *Selector) SetDesired(name string) {
	if name == "" {
		name = DoNothing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desired = name
}

// Desired returns the wanted mode.
func (s *Selector) Desired() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired
}

// Selected returns the mode the cached routine was built for, or "" when
// nothing has been built since the last Reset.
func (s *Selector) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached
}

// Update rebuilds the cached routine when the desired mode differs from the
// cached one, or unconditionally when force is set. It reports whether a
// rebuild happened. An unknown mode or a failing factory leaves no routine
// cached and is logged, not returned: selection must never stop the robot.
func (s *Selector) Update(force bool) bool {
	s.mu.Lock()
	desired := s.desired
	if desired == s.cached && !force {
		s.mu.Unlock()
		return false
	}
	factory, known := s.factories[desired]
	s.mu.Unlock()

	var (
		root *action.Action
		err  error
	)
	if known {
		root, err = factory()
		if err == nil && root == nil {
			err = errors.New("factory returned no routine")
		}
	} else {
		err = fmt.Errorf("unknown auto mode %q", desired)
	}

	s.mu.Lock()
	s.cached = desired
	s.routine = root
	s.buildErr = err
	if err != nil {
		s.routine = nil
	}
	s.mu.Unlock()

	ev := telemetry.Event{
		Kind:      telemetry.KindAutoSelected,
		Timestamp: s.clock.Now(),
		Source:    Source,
		Routine:   desired,
		Message:   "auto selection changed",
	}
	if err != nil {
		s.logger.Error("no valid auto mode", "mode", desired, "error", err)
		ev.Err = err.Error()
	} else {
		s.logger.Info("auto selection changed", "mode", desired, "forced", force)
	}
	s.sink.Emit(ev)
	return true
}

// Routine returns the cached routine and the mode it was built for. ok is
// false when nothing valid is cached.
func (s *Selector) Routine() (root *action.Action, mode string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routine == nil {
		return nil, s.cached, false
	}
	return s.routine, s.cached, true
}

// Err returns the error from the last build, if any.
func (s *Selector) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildErr
}

// Reset drops the cached routine so the next Update rebuilds even if the
// desired mode has not changed. The desired mode is kept.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routine = nil
	s.cached = ""
	s.buildErr = nil
}

// Status is a point-in-time view for dashboards.
type Status struct {
	Desired  string
	Selected string
	Ready    bool
	Err      string
}

// Status returns the selector state.
func (s *Selector) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Desired:  s.desired,
		Selected: s.cached,
		Ready:    s.routine != nil,
	}
	if s.buildErr != nil {
		st.Err = s.buildErr.Error()
	}
	return st
}

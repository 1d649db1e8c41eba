package action

import (
	"errors"
	"fmt"
	"time"
)

// State is the observable lifecycle state of a node.
type State int

const (
	Pending State = iota
	Running
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind names a node variant.
type Kind string

const (
	KindSeries    Kind = "series"
	KindParallel  Kind = "parallel"
	KindRace      Kind = "race"
	KindWait      Kind = "wait"
	KindWaitUntil Kind = "wait_until"
	KindRunOnce   Kind = "run_once"
)

// behavior is implemented by the node variants in this package only.
type behavior interface {
	start(now time.Time) error
	update(now time.Time) error
	finished() bool
	// cancel forcibly ends any children that are still RUNNING.
	cancel(now time.Time) error
	reset()
	children() []*Action
}

// Action is a node in a routine tree.
type Action struct {
	name      string
	kind      Kind
	path      string
	state     State
	b         behavior
	onCleanup func() error
	observer  Observer
}

// Option configures a node at construction.
type Option func(*Action)

// Named overrides the node's default name (its kind).
func Named(name string) Option {
	return func(a *Action) {
		if name != "" {
			a.name = name
		}
	}
}

// OnCleanup registers fn to run when the node leaves RUNNING, whether it
// finished or was cancelled. It runs exactly once per run.
func OnCleanup(fn func() error) Option {
	return func(a *Action) {
		a.onCleanup = fn
	}
}

func newAction(kind Kind, b behavior, opts []Option) *Action {
	a := &Action{name: string(kind), kind: kind, b: b}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Named sets the node name and returns the node, for use on combinators.
func (a *Action) Named(name string) *Action {
	if name != "" {
		a.name = name
	}
	return a
}

// Name returns the node name.
func (a *Action) Name() string { return a.name }

// Kind returns the node variant.
func (a *Action) Kind() Kind { return a.kind }

// State returns the node state.
func (a *Action) State() State { return a.state }

// Path returns the node identity within its tree, e.g.
// "two_note/2:parallel/1:series/0:wait". Before the root is started the
// path is just the node name.
func (a *Action) Path() string {
	if a.path == "" {
		return a.name
	}
	return a.path
}

// Children returns the direct children of a combinator, nil for leaves.
func (a *Action) Children() []*Action {
	kids := a.b.children()
	if len(kids) == 0 {
		return nil
	}
	out := make([]*Action, len(kids))
	copy(out, kids)
	return out
}

// Walk calls fn for a and every descendant, depth-first in child order.
func (a *Action) Walk(fn func(*Action)) {
	fn(a)
	for _, c := range a.b.children() {
		c.Walk(fn)
	}
}

// Observe attaches fn to a and every descendant. Pass nil to detach.
func (a *Action) Observe(fn Observer) *Action {
	a.Walk(func(n *Action) { n.observer = fn })
	return a
}

func (a *Action) attach(path string) {
	a.path = path
	for i, c := range a.b.children() {
		c.attach(fmt.Sprintf("%s/%d:%s", path, i, c.name))
	}
}

// Start moves a PENDING node to RUNNING. Calls on a node that is already
// RUNNING or DONE are ignored. A node that is finished at start (an empty
// combinator) completes before Start returns.
func (a *Action) Start(now time.Time) error {
	if a.state != Pending {
		return nil
	}
	if a.path == "" {
		a.attach(a.name)
	}
	a.state = Running
	a.notify(NodeStarted, now)

	if err := a.guard("start", func() error { return a.b.start(now) }); err != nil {
		return err
	}
	if a.b.finished() {
		return a.complete(now)
	}
	return nil
}

// Update advances a RUNNING node by one tick. It is a no-op otherwise.
func (a *Action) Update(now time.Time) error {
	if a.state != Running {
		return nil
	}
	if err := a.guard("update", func() error { return a.b.update(now) }); err != nil {
		return err
	}
	if a.b.finished() {
		return a.complete(now)
	}
	return nil
}

// IsFinished reports whether the node is DONE.
func (a *Action) IsFinished() bool {
	return a.state == Done
}

// Cancel forcibly ends a RUNNING node and every RUNNING descendant, running
// each one's cleanup. PENDING and DONE nodes are left untouched.
//
// Cleanup continues past failures; the returned error joins every cleanup
// error in the subtree.
func (a *Action) Cancel(now time.Time) error {
	if a.state != Running {
		return nil
	}
	err := a.cleanup(now)
	a.notify(NodeCancelled, now)
	return err
}

// Reset returns a finished (or never started) tree to PENDING so it can run
// again. It refuses trees with a RUNNING node.
func (a *Action) Reset() error {
	if a.state == Running {
		return &NodeError{Path: a.Path(), Kind: a.kind, Op: "reset", Err: ErrResetWhileRunning}
	}
	for _, c := range a.b.children() {
		if err := c.Reset(); err != nil {
			return err
		}
	}
	a.b.reset()
	a.state = Pending
	return nil
}

func (a *Action) complete(now time.Time) error {
	err := a.cleanup(now)
	a.notify(NodeFinished, now)
	return err
}

// cleanup is the single exit from RUNNING.
func (a *Action) cleanup(now time.Time) error {
	a.state = Done

	var errs []error
	if err := a.b.cancel(now); err != nil {
		errs = append(errs, err)
	}
	if a.onCleanup != nil {
		if err := a.guard("cleanup", a.onCleanup); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

// guard runs fn, converting panics and plain errors into *NodeError. Errors
// that already carry a node identity (from a descendant) pass through.
func (a *Action) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NodeError{Path: a.Path(), Kind: a.kind, Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := fn(); err != nil {
		var ne *NodeError
		if errors.As(err, &ne) {
			return err
		}
		return &NodeError{Path: a.Path(), Kind: a.kind, Op: op, Err: err}
	}
	return nil
}

func (a *Action) notify(t NodeEventType, now time.Time) {
	if a.observer == nil {
		return
	}
	a.observer(NodeEvent{Type: t, Path: a.Path(), Kind: a.kind, At: now})
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

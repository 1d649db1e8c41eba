package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/robotcore/internal/action"
	"github.com/roach88/robotcore/internal/ir"
)

// Setter binds a run step's args and returns the body executed on the
// step's first update. The returned function typically writes a subsystem
// demand.
type Setter func(args ir.Object) (func() error, error)

// Predicate binds a wait_until step's args and returns the condition polled
// on every update. It should read only a sensor snapshot.
type Predicate func(args ir.Object) (func() bool, error)

// Bindings is the table of setters and predicates a routine may name. It is
// the only path by which a compiled routine reaches hardware.
type Bindings struct {
	Setters    map[string]Setter
	Predicates map[string]Predicate
}

// NewBindings returns an empty table.
func NewBindings() *Bindings {
	return &Bindings{
		Setters:    make(map[string]Setter),
		Predicates: make(map[string]Predicate),
	}
}

// Setter registers a setter under name, replacing any previous one.
func (b *Bindings) Setter(name string, fn Setter) *Bindings {
	b.Setters[name] = fn
	return b
}

// Predicate registers a predicate under name, replacing any previous one.
func (b *Bindings) Predicate(name string, fn Predicate) *Bindings {
	b.Predicates[name] = fn
	return b
}

// Merge copies every entry of other into b. Entries already in b win.
func (b *Bindings) Merge(other *Bindings) *Bindings {
	if other == nil {
		return b
	}
	for name, fn := range other.Setters {
		if _, ok := b.Setters[name]; !ok {
			b.Setters[name] = fn
		}
	}
	for name, fn := range other.Predicates {
		if _, ok := b.Predicates[name]; !ok {
			b.Predicates[name] = fn
		}
	}
	return b
}

// Names returns the sorted setter and predicate names.
func (b *Bindings) Names() (setters, predicates []string) {
	for name := range b.Setters {
		setters = append(setters, name)
	}
	for name := range b.Predicates {
		predicates = append(predicates, name)
	}
	slices.Sort(setters)
	slices.Sort(predicates)
	return setters, predicates
}

// BindError reports a step whose binding is unknown or rejected its args.
type BindError struct {
	Path    string // step path, e.g. "two_middle/2:race/0:drive.past_x"
	Binding string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s (%s): %v", e.Path, e.Binding, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Build turns a linked routine into a fresh action tree. Every run step
// resolves to a Setter and every wait_until to a Predicate; unresolved
// names, rejected args and leftover call steps are errors. Building never
// touches hardware: setter bodies run only when the tree is driven.
func Build(r ir.Routine, b *Bindings) (*action.Action, error) {
	if err := r.Root.Validate(); err != nil {
		return nil, fmt.Errorf("routine %s: %w", r.Name, err)
	}
	if b == nil {
		b = NewBindings()
	}
	root := r.Root
	if root.Name == "" {
		root.Name = r.Name
	}
	return buildStep(root, root.Name, b)
}

// stepName is the node name used in action paths.
func stepName(s ir.Step) string {
	if s.Name != "" {
		return s.Name
	}
	if s.Binding != "" {
		return s.Binding
	}
	return string(s.Kind)
}

func buildStep(s ir.Step, path string, b *Bindings) (*action.Action, error) {
	name := stepName(s)
	switch s.Kind {
	case ir.StepSeries, ir.StepParallel, ir.StepRace:
		kids := make([]*action.Action, 0, len(s.Children))
		for i, c := range s.Children {
			kid, err := buildStep(c, fmt.Sprintf("%s/%d:%s", path, i, stepName(c)), b)
			if err != nil {
				return nil, err
			}
			kids = append(kids, kid)
		}
		switch s.Kind {
		case ir.StepSeries:
			return action.Series(kids...).Named(name), nil
		case ir.StepParallel:
			return action.Parallel(kids...).Named(name), nil
		default:
			return action.Race(kids...).Named(name), nil
		}

	case ir.StepWait:
		return action.Wait(s.Duration, action.Named(name)), nil

	case ir.StepRun:
		setter, ok := b.Setters[s.Binding]
		if !ok {
			return nil, &BindError{Path: path, Binding: s.Binding, Err: fmt.Errorf("unknown setter")}
		}
		body, err := setter(s.Args)
		if err != nil {
			return nil, &BindError{Path: path, Binding: s.Binding, Err: err}
		}
		return action.RunOnce(body, action.Named(name)), nil

	case ir.StepWaitUntil:
		pred, ok := b.Predicates[s.Binding]
		if !ok {
			return nil, &BindError{Path: path, Binding: s.Binding, Err: fmt.Errorf("unknown predicate")}
		}
		cond, err := pred(s.Args)
		if err != nil {
			return nil, &BindError{Path: path, Binding: s.Binding, Err: err}
		}
		return action.WaitUntil(cond, action.Named(name)), nil

	case ir.StepCall:
		return nil, &BindError{Path: path, Binding: s.Binding, Err: fmt.Errorf("unresolved call; link routines before building")}

	default:
		return nil, fmt.Errorf("%s: unknown step kind %q", path, s.Kind)
	}
}

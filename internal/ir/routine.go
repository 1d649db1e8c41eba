package ir

import (
	"fmt"
	"time"
)

// StepKind is the kind of a routine step. The set is closed and mirrors the
// action package's node kinds.
type StepKind string

const (
	StepSeries    StepKind = "series"
	StepParallel  StepKind = "parallel"
	StepRace      StepKind = "race"
	StepWait      StepKind = "wait"
	StepWaitUntil StepKind = "wait_until"
	StepRun       StepKind = "run"
	// StepCall inlines another routine by name. Calls are resolved by the
	// compiler's linker and never reach an action tree.
	StepCall StepKind = "call"
)

// IsCombinator reports whether steps of this kind have children.
func (k StepKind) IsCombinator() bool {
	return k == StepSeries || k == StepParallel || k == StepRace
}

// Routine is a compiled routine definition.
type Routine struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Root        Step   `json:"root"`
}

// Step is one node of a routine definition.
//
//   - series, parallel, race: Children
//   - wait: Duration
//   - run, wait_until: Binding names a setter or predicate; Args are passed to it
//   - call: Binding names the routine to inline
type Step struct {
	Kind     StepKind      `json:"kind"`
	Name     string        `json:"name,omitempty"`
	Binding  string        `json:"binding,omitempty"`
	Args     Object        `json:"args,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Children []Step        `json:"children,omitempty"`
}

// Validate checks the structural rules a step tree must satisfy.
func (s Step) Validate() error {
	return s.validate("root")
}

func (s Step) validate(path string) error {
	switch s.Kind {
	case StepSeries, StepParallel, StepRace:
		if s.Binding != "" {
			return fmt.Errorf("%s: %s step cannot name a binding", path, s.Kind)
		}
		for i, c := range s.Children {
			if err := c.validate(fmt.Sprintf("%s/%d", path, i)); err != nil {
				return err
			}
		}
	case StepWait:
		if s.Duration < 0 {
			return fmt.Errorf("%s: negative wait %s", path, s.Duration)
		}
		if len(s.Children) > 0 {
			return fmt.Errorf("%s: wait step cannot have children", path)
		}
	case StepRun, StepWaitUntil, StepCall:
		if s.Binding == "" {
			return fmt.Errorf("%s: %s step requires a binding", path, s.Kind)
		}
		if len(s.Children) > 0 {
			return fmt.Errorf("%s: %s step cannot have children", path, s.Kind)
		}
	default:
		return fmt.Errorf("%s: unknown step kind %q", path, s.Kind)
	}
	return nil
}

// Walk calls fn for s and every descendant, depth-first.
func (s Step) Walk(fn func(Step)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// Bindings returns the distinct setter and predicate names used in the tree,
// in first-use order. Call targets are not included.
func (s Step) Bindings() []string {
	seen := map[string]bool{}
	var out []string
	s.Walk(func(st Step) {
		if st.Kind != StepCall && st.Binding != "" && !seen[st.Binding] {
			seen[st.Binding] = true
			out = append(out, st.Binding)
		}
	})
	return out
}

// Value returns the step as an Object for canonical marshaling.
func (s Step) Value() Object {
	obj := Object{"kind": String(s.Kind)}
	if s.Name != "" {
		obj["name"] = String(s.Name)
	}
	if s.Binding != "" {
		obj["binding"] = String(s.Binding)
	}
	if len(s.Args) > 0 {
		obj["args"] = s.Args
	}
	if s.Kind == StepWait {
		obj["duration_ns"] = Int(s.Duration)
	}
	if len(s.Children) > 0 {
		kids := make(List, len(s.Children))
		for i, c := range s.Children {
			kids[i] = c.Value()
		}
		obj["children"] = kids
	}
	return obj
}

// Value returns the routine as an Object for canonical marshaling.
func (r Routine) Value() Object {
	obj := Object{
		"name": String(r.Name),
		"root": r.Root.Value(),
	}
	if r.Description != "" {
		obj["description"] = String(r.Description)
	}
	return obj
}

// Calls returns the distinct routine names referenced by call steps.
func (s Step) Calls() []string {
	seen := map[string]bool{}
	var out []string
	s.Walk(func(st Step) {
		if st.Kind == StepCall && !seen[st.Binding] {
			seen[st.Binding] = true
			out = append(out, st.Binding)
		}
	})
	return out
}

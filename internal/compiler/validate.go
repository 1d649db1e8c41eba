package compiler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/robotcore/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrRoutineName       = "E101" // routine name missing or malformed
	ErrInvalidStep       = "E102" // structural step rule violated
	ErrUnknownSetter     = "E103" // run step names no setter
	ErrUnknownPredicate  = "E104" // wait_until step names no predicate
	ErrBadArgs           = "E105" // binding rejected the step's args
	ErrUnresolvedCall    = "E106" // call step names no routine
	ErrCallCycle         = "E107" // routines call each other in a loop
	ErrInvalidStepName   = "E108" // step name cannot appear in a node path
	ErrDuplicateStepName = "E109" // sibling steps share a name
)

// ValidationError represents a routine validation error.
type ValidationError struct {
	Routine string `json:"routine"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Routine != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Routine, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// routineNamePattern matches CUE identifiers usable as routine names.
var routineNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks a set of routines against the structural rules and, when
// b is non-nil, against the binding table. It reports every problem it finds
// rather than stopping at the first.
func Validate(routines []ir.Routine, b *Bindings) []ValidationError {
	var errs []ValidationError
	known := make(map[string]bool, len(routines))
	for _, r := range routines {
		known[r.Name] = true
	}

	for _, r := range routines {
		errs = append(errs, validateRoutine(r, b, known)...)
	}
	for _, cycle := range AnalyzeCalls(routines) {
		errs = append(errs, ValidationError{
			Routine: cycle.Path[0],
			Field:   "call",
			Message: cycle.Error(),
			Code:    ErrCallCycle,
		})
	}
	return errs
}

func validateRoutine(r ir.Routine, b *Bindings, known map[string]bool) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Routine: r.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if !routineNamePattern.MatchString(r.Name) {
		add("name", ErrRoutineName, "routine name %q must be lower_snake_case", r.Name)
	}
	if err := r.Root.Validate(); err != nil {
		add("steps", ErrInvalidStep, "%v", err)
		return errs
	}

	var walk func(s ir.Step, field string)
	walk = func(s ir.Step, field string) {
		if strings.Contains(s.Name, "/") {
			add(field+".name", ErrInvalidStepName, "step name %q must not contain '/'", s.Name)
		}
		switch s.Kind {
		case ir.StepRun:
			if b != nil {
				if setter, ok := b.Setters[s.Binding]; !ok {
					add(field+".run", ErrUnknownSetter, "unknown setter %q", s.Binding)
				} else if _, err := setter(s.Args); err != nil {
					add(field+".args", ErrBadArgs, "%s: %v", s.Binding, err)
				}
			}
		case ir.StepWaitUntil:
			if b != nil {
				if pred, ok := b.Predicates[s.Binding]; !ok {
					add(field+".wait_until", ErrUnknownPredicate, "unknown predicate %q", s.Binding)
				} else if _, err := pred(s.Args); err != nil {
					add(field+".args", ErrBadArgs, "%s: %v", s.Binding, err)
				}
			}
		case ir.StepCall:
			if !known[s.Binding] {
				add(field+".call", ErrUnresolvedCall, "unknown routine %q", s.Binding)
			}
		}

		list := field + "." + string(s.Kind)
		if field == "" {
			list = "steps"
		}
		seen := make(map[string]bool)
		for i, c := range s.Children {
			child := fmt.Sprintf("%s[%d]", list, i)
			if c.Name != "" {
				if seen[c.Name] {
					add(child+".name", ErrDuplicateStepName, "duplicate step name %q", c.Name)
				}
				seen[c.Name] = true
			}
			walk(c, child)
		}
	}
	walk(r.Root, "")
	return errs
}

// AsError joins validation errors into a single error, or nil when there are
// none.
func AsError(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

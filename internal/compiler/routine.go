package compiler

import (
	"fmt"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/robotcore/internal/ir"
)

// stepKeys are the fields that select a step kind. A step names exactly one.
var stepKeys = []ir.StepKind{
	ir.StepRun,
	ir.StepWait,
	ir.StepWaitUntil,
	ir.StepSeries,
	ir.StepParallel,
	ir.StepRace,
	ir.StepCall,
}

// CompileRoutines compiles every routine under the top-level "routine" field
// of v. Routines are returned sorted by name. A value without a "routine"
// field yields no routines.
func CompileRoutines(v cue.Value) ([]ir.Routine, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	routinesVal := v.LookupPath(cue.ParsePath("routine"))
	if !routinesVal.Exists() {
		return nil, nil
	}

	iter, err := routinesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.Routine
	for iter.Next() {
		r, err := CompileRoutine(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b ir.Routine) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out, nil
}

// CompileRoutine parses a CUE value into a Routine. The value is the routine
// struct itself; its label is the routine name:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`routine: two_middle: { steps: [...] }`)
//	r, err := CompileRoutine(v.LookupPath(cue.ParsePath("routine.two_middle")))
//
// The top-level steps become the children of a series named after the
// routine.
func CompileRoutine(v cue.Value) (*ir.Routine, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	r := &ir.Routine{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		r.Name = labels[len(labels)-1].String()
	}
	if r.Name == "" {
		return nil, &CompileError{Field: "routine", Message: "routine must be declared under a name", Pos: v.Pos()}
	}

	if err := checkFields(v, "description", "steps"); err != nil {
		return nil, err
	}

	if descVal := v.LookupPath(cue.ParsePath("description")); descVal.Exists() {
		desc, err := descVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		r.Description = desc
	}

	stepsVal := v.LookupPath(cue.ParsePath("steps"))
	if !stepsVal.Exists() {
		return nil, &CompileError{
			Field:   r.Name + ".steps",
			Message: "steps is required (use an empty list for a routine that does nothing)",
			Pos:     v.Pos(),
		}
	}
	children, err := compileSteps(stepsVal, r.Name+".steps")
	if err != nil {
		return nil, err
	}
	r.Root = ir.Step{Kind: ir.StepSeries, Name: r.Name, Children: children}
	return r, nil
}

func compileSteps(v cue.Value, field string) ([]ir.Step, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of steps", Pos: v.Pos()}
	}
	var steps []ir.Step
	for i := 0; iter.Next(); i++ {
		step, err := compileStep(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func compileStep(v cue.Value, field string) (ir.Step, error) {
	var step ir.Step
	if v.Kind() != cue.StructKind {
		return step, &CompileError{Field: field, Message: "step must be a struct", Pos: v.Pos()}
	}

	allowed := []string{"name", "args"}
	for _, k := range stepKeys {
		allowed = append(allowed, string(k))
	}
	if err := checkFields(v, allowed...); err != nil {
		return step, err
	}

	var kindVal cue.Value
	for _, k := range stepKeys {
		kv := v.LookupPath(cue.ParsePath(string(k)))
		if !kv.Exists() {
			continue
		}
		if step.Kind != "" {
			return step, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("step names both %q and %q", step.Kind, k),
				Pos:     kv.Pos(),
			}
		}
		step.Kind = k
		kindVal = kv
	}
	if step.Kind == "" {
		return step, &CompileError{
			Field:   field,
			Message: "step must name one of run, wait, wait_until, series, parallel, race, call",
			Pos:     v.Pos(),
		}
	}

	if nameVal := v.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return step, formatCUEError(err)
		}
		step.Name = name
	}

	switch step.Kind {
	case ir.StepSeries, ir.StepParallel, ir.StepRace:
		children, err := compileSteps(kindVal, field+"."+string(step.Kind))
		if err != nil {
			return step, err
		}
		step.Children = children
	case ir.StepWait:
		d, err := parseDuration(kindVal, field+".wait")
		if err != nil {
			return step, err
		}
		step.Duration = d
	case ir.StepRun, ir.StepWaitUntil, ir.StepCall:
		binding, err := kindVal.String()
		if err != nil {
			return step, &CompileError{
				Field:   field + "." + string(step.Kind),
				Message: "must be a string naming a binding",
				Pos:     kindVal.Pos(),
			}
		}
		if binding == "" {
			return step, &CompileError{Field: field + "." + string(step.Kind), Message: "binding name is empty", Pos: kindVal.Pos()}
		}
		step.Binding = binding
	}

	if argsVal := v.LookupPath(cue.ParsePath("args")); argsVal.Exists() {
		if step.Kind != ir.StepRun && step.Kind != ir.StepWaitUntil {
			return step, &CompileError{
				Field:   field + ".args",
				Message: fmt.Sprintf("%s steps take no args", step.Kind),
				Pos:     argsVal.Pos(),
			}
		}
		val, err := toValue(argsVal, field+".args")
		if err != nil {
			return step, err
		}
		obj, ok := val.(ir.Object)
		if !ok {
			return step, &CompileError{Field: field + ".args", Message: "args must be a struct", Pos: argsVal.Pos()}
		}
		step.Args = obj
	}

	return step, nil
}

// parseDuration accepts a Go duration string ("750ms", "1.5s") or an
// integer number of milliseconds.
func parseDuration(v cue.Value, field string) (time.Duration, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, &CompileError{Field: field, Message: fmt.Sprintf("invalid duration %q", s), Pos: v.Pos()}
		}
		if d < 0 {
			return 0, &CompileError{Field: field, Message: "wait must not be negative", Pos: v.Pos()}
		}
		return d, nil
	case cue.IntKind:
		ms, err := v.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		if ms < 0 {
			return 0, &CompileError{Field: field, Message: "wait must not be negative", Pos: v.Pos()}
		}
		return time.Duration(ms) * time.Millisecond, nil
	default:
		return 0, &CompileError{
			Field:   field,
			Message: "wait must be a duration string or integer milliseconds",
			Pos:     v.Pos(),
		}
	}
}

// toValue converts a concrete CUE value into an argument value.
func toValue(v cue.Value, field string) (ir.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "integer out of range", Pos: v.Pos()}
		}
		return ir.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "number out of range", Pos: v.Pos()}
		}
		val, err := ir.FromGo(f)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return val, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := ir.Object{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			elem, err := toValue(iter.Value(), field+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil
	case cue.NullKind:
		return nil, &CompileError{Field: field, Message: "null is not a valid argument", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: field, Message: "argument must be concrete", Pos: v.Pos()}
	}
}

// checkFields rejects regular fields outside allowed.
func checkFields(v cue.Value, allowed ...string) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !slices.Contains(allowed, label) {
			return &CompileError{
				Field:   label,
				Message: fmt.Sprintf("unknown field (allowed: %v)", allowed),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

// CompileError represents an error during CUE compilation.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info wins.
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

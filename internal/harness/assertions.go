package harness

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // context; only routine and node events are printed
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nRoutine trace:\n")
		for _, ev := range e.Trace {
			if ev.Node == "" && !strings.HasPrefix(ev.Kind, "routine_") {
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %6dms %-16s %s\n", ev.Seq, ev.TMs, ev.Kind, ev.Node)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertOutcome:
		return assertOutcome(result, a)
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertFinalDemand:
		return assertFinal(result, a, func(s SubsystemState) map[string]any { return s.Demand })
	case AssertFinalInputs:
		return assertFinal(result, a, func(s SubsystemState) map[string]any { return s.Inputs })
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertOutcome(result *Result, a Assertion) error {
	if result.Outcome == a.Outcome {
		return nil
	}
	actual := result.Outcome
	if actual == "" {
		actual = "no finished run"
	}
	return &AssertionError{Type: AssertOutcome, Expected: a.Outcome, Actual: actual, Trace: result.Trace}
}

// matches reports whether ev satisfies the non-empty selectors of a.
func matches(ev TraceEvent, a Assertion) bool {
	if a.Kind != "" && ev.Kind != a.Kind {
		return false
	}
	if a.Node != "" && ev.Node != a.Node {
		return false
	}
	if a.Client != "" && ev.Client != a.Client {
		return false
	}
	return true
}

func describe(a Assertion) string {
	var parts []string
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Node != "" {
		parts = append(parts, "node="+a.Node)
	}
	if a.Client != "" {
		parts = append(parts, "client="+a.Client)
	}
	return strings.Join(parts, " ")
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "event with " + describe(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the nodes first appear in the given order
// among events of the selected kind. Other events may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	kind := a.Kind
	if kind == "" {
		kind = "node_started"
	}

	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Kind != kind {
			continue
		}
		if _, seen := positions[ev.Node]; !seen {
			positions[ev.Node] = i + 1
		}
	}

	for _, node := range a.Nodes {
		if positions[node] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%s for all of %v", kind, a.Nodes),
				Actual:   "missing node: " + node,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Nodes); i++ {
		prev, curr := a.Nodes[i-1], a.Nodes[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%s in order: %v", kind, a.Nodes),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events with %s", a.Count, describe(a)),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinal(result *Result, a Assertion, pick func(SubsystemState) map[string]any) error {
	state, ok := result.Final[a.Subsystem]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "subsystem " + a.Subsystem, Actual: "no such subsystem"}
	}
	got := pick(state)
	tol := a.Tolerance
	if tol == 0 {
		tol = 1e-6
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		want := a.Expect[k]
		have, ok := got[k]
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.Subsystem, k, want),
				Actual:   fmt.Sprintf("no field %q (have %v)", k, fieldNames(got)),
			}
		}
		if !valueEqual(have, want, tol) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v (±%g)", a.Subsystem, k, want, tol),
				Actual:   fmt.Sprintf("%v", have),
			}
		}
	}
	return nil
}

func fieldNames(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func valueEqual(have, want any, tol float64) bool {
	hf, hok := toFloat(have)
	wf, wok := toFloat(want)
	if hok && wok {
		return math.Abs(hf-wf) <= tol
	}
	return fmt.Sprint(have) == fmt.Sprint(want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

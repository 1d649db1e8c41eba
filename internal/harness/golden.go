package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/robotcore/internal/ir"
)

// TraceSnapshot is the part of a result compared against golden files.
type TraceSnapshot struct {
	Scenario string
	Routine  string
	Outcome  string
	Ticks    int
	Trace    []TraceEvent
}

// Snapshot keeps the scenario's trace kinds and drops per-session fields
// (seq numbers, sources) so snapshots survive unrelated event changes.
func Snapshot(scenario *Scenario, result *Result) TraceSnapshot {
	keep := scenario.traceKinds()
	snap := TraceSnapshot{
		Scenario: scenario.Name,
		Routine:  scenario.Routine,
		Outcome:  result.Outcome,
		Ticks:    result.Ticks,
		Trace:    []TraceEvent{},
	}
	for _, ev := range result.Trace {
		if keep[ev.Kind] {
			snap.Trace = append(snap.Trace, ev)
		}
	}
	return snap
}

// Canonical renders the snapshot as canonical JSON lines: a header object
// followed by one line per trace event.
func (s TraceSnapshot) Canonical() ([]byte, error) {
	header := ir.Object{
		"scenario": ir.String(s.Scenario),
		"routine":  ir.String(s.Routine),
		"ticks":    ir.Int(int64(s.Ticks)),
		"events":   ir.Int(int64(len(s.Trace))),
	}
	if s.Outcome != "" {
		header["outcome"] = ir.String(s.Outcome)
	}

	var buf bytes.Buffer
	line, err := ir.MarshalCanonical(header)
	if err != nil {
		return nil, err
	}
	buf.Write(line)
	buf.WriteByte('\n')

	for i, ev := range s.Trace {
		line, err := ir.MarshalCanonical(snapshotEvent(ev))
		if err != nil {
			return nil, fmt.Errorf("trace[%d]: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func snapshotEvent(ev TraceEvent) ir.Object {
	obj := ir.Object{
		"kind": ir.String(ev.Kind),
		"t_ms": ir.Int(ev.TMs),
	}
	put := func(key, val string) {
		if val != "" {
			obj[key] = ir.String(val)
		}
	}
	put("client", ev.Client)
	put("phase", ev.Phase)
	put("mode", ev.Mode)
	put("run_id", ev.RunID)
	put("routine", ev.Routine)
	put("node", ev.Node)
	put("node_kind", ev.NodeKind)
	put("outcome", ev.Outcome)
	put("error", ev.Error)
	if ev.Tick != 0 {
		obj["tick"] = ir.Int(int64(ev.Tick))
	}
	return obj
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result).Canonical()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}

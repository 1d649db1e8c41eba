package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/robotcore/internal/telemetry"
)

// DefaultMaxTicks bounds a scenario whose routine never finishes.
const DefaultMaxTicks = 1000

// Scenario runs one autonomous routine against the simulated robot in
// lock-step and checks the resulting trace and final state.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Routines is the directory of CUE routine definitions, relative to the
	// scenario file.
	Routines string `yaml:"routines"`

	// Routine is the auto mode to select.
	Routine string `yaml:"routine"`

	// Period is the tick period. Default 20ms.
	Period time.Duration `yaml:"period,omitempty"`

	// MaxTicks fails the scenario if the routine is still running after
	// this many ticks. Default DefaultMaxTicks.
	MaxTicks int `yaml:"max_ticks,omitempty"`

	// StopAtTick stops the routine just before the given tick (1-based).
	StopAtTick int `yaml:"stop_at_tick,omitempty"`

	Faults []Fault `yaml:"faults,omitempty"`

	// TraceKinds selects the events kept in the golden snapshot. Default:
	// routine and node events.
	TraceKinds []string `yaml:"trace_kinds,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// Fault changes a simulated driver just before the given tick (1-based).
type Fault struct {
	Tick        int    `yaml:"tick"`
	Subsystem   string `yaml:"subsystem"`
	FailReads   string `yaml:"fail_reads,omitempty"`
	FailApplies string `yaml:"fail_applies,omitempty"`
	Panic       string `yaml:"panic,omitempty"`
	Clear       bool   `yaml:"clear,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Outcome is the expected run outcome (outcome).
	Outcome string `yaml:"outcome,omitempty"`

	// Kind, Node and Client select trace events (trace_contains,
	// trace_count, trace_order). Empty fields match anything.
	Kind   string `yaml:"kind,omitempty"`
	Node   string `yaml:"node,omitempty"`
	Client string `yaml:"client,omitempty"`

	// Count is the exact number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Nodes lists node paths that must appear in this order among events
	// of Kind, node_started by default (trace_order).
	Nodes []string `yaml:"nodes,omitempty"`

	// Subsystem and Expect check final state (final_demand, final_inputs).
	// Numbers match within Tolerance, default 1e-6.
	Subsystem string         `yaml:"subsystem,omitempty"`
	Expect    map[string]any `yaml:"expect,omitempty"`
	Tolerance float64        `yaml:"tolerance,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome       = "outcome"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalDemand   = "final_demand"
	AssertFinalInputs   = "final_inputs"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected (catches typos like "assertion:" vs "assertions:"), and the
// routines directory is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Routines != "" && !filepath.IsAbs(scenario.Routines) {
		scenario.Routines = filepath.Join(filepath.Dir(path), scenario.Routines)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Routines == "" {
		return fmt.Errorf("routines directory is required")
	}
	if info, err := os.Stat(s.Routines); err != nil || !info.IsDir() {
		return fmt.Errorf("routines directory not found: %s", s.Routines)
	}
	if s.Routine == "" {
		return fmt.Errorf("routine is required")
	}
	if s.Period < 0 {
		return fmt.Errorf("period must be positive")
	}
	if s.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, f := range s.Faults {
		if f.Tick < 1 {
			return fmt.Errorf("faults[%d]: tick must be >= 1", i)
		}
		if f.Subsystem == "" {
			return fmt.Errorf("faults[%d]: subsystem is required", i)
		}
		if !f.Clear && f.FailReads == "" && f.FailApplies == "" && f.Panic == "" {
			return fmt.Errorf("faults[%d]: one of fail_reads, fail_applies, panic or clear is required", i)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOutcome:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for outcome", index)
		}
	case AssertTraceContains:
		if a.Kind == "" && a.Node == "" && a.Client == "" {
			return fmt.Errorf("assertions[%d]: kind, node or client is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Nodes) == 0 {
			return fmt.Errorf("assertions[%d]: nodes list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalDemand, AssertFinalInputs:
		if a.Subsystem == "" {
			return fmt.Errorf("assertions[%d]: subsystem is required for %s", index, a.Type)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// traceKinds returns the kinds kept in golden snapshots.
func (s *Scenario) traceKinds() map[string]bool {
	kinds := s.TraceKinds
	if len(kinds) == 0 {
		kinds = []string{
			string(telemetry.KindRoutineStarted),
			string(telemetry.KindRoutineFinished),
			string(telemetry.KindRoutineAborted),
			string(telemetry.KindNodeStarted),
			string(telemetry.KindNodeFinished),
			string(telemetry.KindNodeCancelled),
		}
	}
	out := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		out[k] = true
	}
	return out
}

package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/roach88/robotcore/internal/compiler"
	"github.com/roach88/robotcore/internal/ir"
	"github.com/roach88/robotcore/internal/looper"
	"github.com/roach88/robotcore/internal/robot"
	"github.com/roach88/robotcore/internal/routine"
	"github.com/roach88/robotcore/internal/sim"
	"github.com/roach88/robotcore/internal/store"
	"github.com/roach88/robotcore/internal/subsystem"
	"github.com/roach88/robotcore/internal/telemetry"
	"github.com/roach88/robotcore/internal/testutil"
)

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh simulated robot, a manual clock starting at
// testutil.Epoch, sequential run IDs and an in-memory event store, so the
// same scenario always yields the same trace.
//
// Execution flow:
//  1. Load, link and validate the routines against the simulated bindings
//  2. Build the System in manual drive, select the routine, enter disabled
//  3. Enter autonomous and tick until the routine ends or MaxTicks
//  4. Stop everything, read the trace back from the store
//  5. Check trace properties and evaluate assertions
//
// An error is returned only when the scenario cannot be executed at all;
// failed assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	period := scenario.Period
	if period <= 0 {
		period = looper.DefaultPeriod
	}
	maxTicks := scenario.MaxTicks
	if maxTicks == 0 {
		maxTicks = DefaultMaxTicks
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	routines, err := compiler.LoadRoutines(scenario.Routines)
	if err != nil {
		return nil, fmt.Errorf("load routines: %w", err)
	}
	bot := sim.New(period)
	bindings := bot.Bindings()
	if errs := compiler.Validate(routines, bindings); len(errs) > 0 {
		return nil, fmt.Errorf("validate routines: %w", compiler.AsError(errs))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	sink := store.NewSink(st, store.WithQueueSize(1<<16), store.WithLogger(logger))

	clock := testutil.NewManualClock(time.Time{})
	start := clock.Now()

	reg := subsystem.NewRegistry()
	if err := reg.Add(bot.Members()...); err != nil {
		sink.Close()
		return nil, err
	}
	sys, err := robot.New(reg,
		robot.WithClock(clock),
		robot.WithSink(telemetry.NewSequenced(sink, nil)),
		robot.WithLogger(logger),
		robot.WithPeriod(period),
		robot.WithManualDrive(),
		robot.WithRunIDs(testutil.NewSequentialRunIDs("run")),
	)
	if err != nil {
		sink.Close()
		return nil, err
	}

	result := NewResult()
	if err := drive(scenario, sys, bot, bindings, routines, clock, period, maxTicks, result); err != nil {
		sys.Close()
		sink.Close()
		return nil, err
	}
	for _, s := range reg.Status() {
		result.Final[s.Name] = SubsystemState{Inputs: fields(s.Inputs), Demand: fields(s.Demand)}
	}
	if last, ok := sys.Executor().Last(); ok {
		result.Outcome = string(last.Outcome)
	}

	sys.Close()
	sink.Close()
	if stats := sink.Stats(); stats.Dropped > 0 || stats.Failed > 0 {
		return nil, fmt.Errorf("event store lost events: %d dropped, %d failed", stats.Dropped, stats.Failed)
	}

	evs, err := st.ReadEvents(context.Background(), store.Filter{})
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		result.Trace = append(result.Trace, traceEvent(ev, start))
	}

	for _, msg := range CheckTrace(result.Trace) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func drive(
	scenario *Scenario,
	sys *robot.System,
	bot *sim.Robot,
	bindings *compiler.Bindings,
	routines []ir.Routine,
	clock *testutil.ManualClock,
	period time.Duration,
	maxTicks int,
	result *Result,
) error {
	if err := sys.Selector().RegisterRoutines(routines, bindings); err != nil {
		return err
	}
	sys.Selector().SetDesired(scenario.Routine)
	if err := sys.DisabledInit(); err != nil {
		return err
	}

	runID, err := sys.AutonomousInit()
	result.RunID = runID
	if runID == "" {
		msg := fmt.Sprintf("no routine started for %q", scenario.Routine)
		if selErr := sys.Selector().Err(); selErr != nil {
			msg += ": " + selErr.Error()
		}
		result.AddError(msg)
		return nil
	}
	if err != nil && !routine.IsAbort(err) {
		return err
	}

	for result.Ticks < maxTicks && sys.Executor().Running() {
		tick := result.Ticks + 1
		if err := applyFaults(bot, scenario.Faults, tick); err != nil {
			return err
		}
		if scenario.StopAtTick == tick {
			sys.Executor().Stop()
			break
		}
		if err := sys.Tick(); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		clock.Advance(period)
		result.Ticks = tick
	}
	if sys.Executor().Running() {
		result.AddError(fmt.Sprintf("routine %q still running after %d ticks", scenario.Routine, result.Ticks))
		sys.Executor().Stop()
	}
	return nil
}

func applyFaults(bot *sim.Robot, faults []Fault, tick int) error {
	for _, f := range faults {
		if f.Tick != tick {
			continue
		}
		drv, ok := bot.Driver(f.Subsystem)
		if !ok {
			return fmt.Errorf("fault at tick %d: unknown subsystem %q", tick, f.Subsystem)
		}
		if f.Clear {
			drv.ClearFaults()
		}
		if f.FailReads != "" {
			drv.FailReads(errors.New(f.FailReads))
		}
		if f.FailApplies != "" {
			drv.FailApplies(errors.New(f.FailApplies))
		}
		if f.Panic != "" {
			drv.PanicOnApply(f.Panic)
		}
	}
	return nil
}

// fields flattens a struct into a map keyed by snake_case field name.
func fields(v any) map[string]any {
	out := make(map[string]any)
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return out
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		out[snake(f.Name)] = rv.Field(i).Interface()
	}
	return out
}

// snake converts a Go field name: VX → vx, HoldHeading → hold_heading.
func snake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/robotcore/internal/compiler"
	"github.com/roach88/robotcore/internal/config"
	"github.com/roach88/robotcore/internal/ir"
	"github.com/roach88/robotcore/internal/robot"
	"github.com/roach88/robotcore/internal/routine"
	"github.com/roach88/robotcore/internal/sim"
	"github.com/roach88/robotcore/internal/store"
	"github.com/roach88/robotcore/internal/subsystem"
	"github.com/roach88/robotcore/internal/telemetry"
)

// DefaultRunTimeout bounds an autonomous run started from the CLI.
const DefaultRunTimeout = 15 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Routine  string
	Database string
	Timeout  time.Duration

	// RunIDs overrides the run ID generator (for testing). Default:
	// routine.UUIDv7Generator.
	RunIDs routine.RunIDGenerator
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID    string  `json:"run_id"`
	Routine  string  `json:"routine"`
	Hash     string  `json:"routine_hash"`
	Outcome  string  `json:"outcome"`
	Ticks    uint64  `json:"ticks"`
	Millis   int64   `json:"duration_ms"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Heading  float64 `json:"heading"`
	Error    string  `json:"error,omitempty"`
	Database string  `json:"database,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [routines-dir]",
		Short: "Run an autonomous routine on the simulated robot",
		Long: `Run one autonomous routine in real time against the simulated robot.

The robot enters disabled mode, selects the routine, then enters autonomous
mode and runs until the routine ends, --timeout elapses or Ctrl-C. Telemetry
is logged to stderr and, with --db or telemetry.database, written to a
SQLite event log that "robotcore trace" and "robotcore runs" can read.

Examples:
  robotcore run --routine two_middle
  robotcore run ./routines --routine two_stage_side --db ./telemetry.db
  robotcore run --routine score_preload --timeout 5s --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutine(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Routine, "routine", "", "routine to run (default: routines.default)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite event log (default: telemetry.database)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", DefaultRunTimeout, "stop the routine after this long")

	return cmd
}

func runRoutine(opts *RunOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.newLogger(cmd.ErrOrStderr(), cfg)

	name := opts.Routine
	if name == "" {
		name = cfg.Routines.Default
	}
	if name == "" {
		return NewExitError(ExitCommandError, "no routine given: use --routine or set routines.default")
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Telemetry.Database
	}

	dir := routinesDir(args, cfg)
	loaded, err := LoadRoutines(dir)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load routines", err)
	}
	bot := sim.New(cfg.Looper.Period)
	bindings := bot.Bindings()
	if errs := compiler.Validate(loaded.Routines, bindings); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	var sinks telemetry.Fanout
	sinks = append(sinks, telemetry.NewLogSink(logger))
	seq := telemetry.NewSequencerAt(0)

	var dbSink *store.Sink
	if dbPath != "" {
		logger.Info("opening event store", "path", dbPath)
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open event store", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing event store", "error", closeErr)
			}
		}()
		last, err := st.LastSeq(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read event store", err)
		}
		seq = telemetry.NewSequencerAt(last)
		dbSink = store.NewSink(st, store.WithQueueSize(cfg.Telemetry.QueueSize), store.WithLogger(logger))
		sinks = append(sinks, dbSink)
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = routine.UUIDv7Generator{}
	}

	reg := subsystem.NewRegistry()
	if err := reg.Add(bot.Members()...); err != nil {
		return WrapExitError(ExitCommandError, "failed to register subsystems", err)
	}
	sys, err := robot.New(reg, systemOptions(cfg, logger, telemetry.NewSequenced(sinks, seq), runIDs)...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build robot", err)
	}

	report, runErr := driveAutonomous(ctx, sys, loaded, bindings, name, opts.Timeout, logger)
	if closeErr := sys.Close(); closeErr != nil {
		logger.Error("error stopping robot", "error", closeErr)
	}
	if dbSink != nil {
		_ = dbSink.Close()
		if stats := dbSink.Stats(); stats.Dropped > 0 || stats.Failed > 0 {
			logger.Warn("event store lost events", "dropped", stats.Dropped, "failed", stats.Failed)
		}
		report.Database = dbPath
	}
	if runErr != nil {
		return runErr
	}

	pose := bot.DriveDriver.Pose()
	report.X, report.Y, report.Heading = pose.X, pose.Y, pose.Heading

	if formatter.JSON() {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		printRunReport(formatter, report)
	}
	if report.Outcome == string(routine.OutcomeAborted) {
		return NewExitError(ExitFailure, fmt.Sprintf("routine %s aborted: %s", report.Routine, report.Error))
	}
	return nil
}

func systemOptions(cfg *config.Config, logger *slog.Logger, sink telemetry.Sink, ids routine.RunIDGenerator) []robot.Option {
	return []robot.Option{
		robot.WithLogger(logger),
		robot.WithSink(sink),
		robot.WithPeriod(cfg.Looper.Period),
		robot.WithOverrunLog(cfg.Looper.OverrunLog),
		robot.WithExecutorPeriod(cfg.Executor.Period),
		robot.WithDriveMode(routine.DriveMode(cfg.Executor.Mode)),
		robot.WithRunIDs(ids),
	}
}

// driveAutonomous runs the routine to completion, timeout or signal.
func driveAutonomous(
	parent context.Context,
	sys *robot.System,
	loaded *LoadResult,
	bindings *compiler.Bindings,
	name string,
	timeout time.Duration,
	logger *slog.Logger,
) (RunReport, error) {
	report := RunReport{Routine: name}
	for _, r := range loaded.Routines {
		if r.Name == name {
			report.Hash, _ = ir.RoutineHash(r)
			break
		}
	}

	if err := sys.Selector().RegisterRoutines(loaded.Routines, bindings); err != nil {
		return report, WrapExitError(ExitCommandError, "failed to register routines", err)
	}
	sys.Selector().SetDesired(name)
	if err := sys.DisabledInit(); err != nil {
		return report, WrapExitError(ExitCommandError, "failed to enter disabled mode", err)
	}

	runID, err := sys.AutonomousInit()
	if runID == "" {
		msg := fmt.Sprintf("routine %q did not start", name)
		if selErr := sys.Selector().Err(); selErr != nil {
			return report, WrapExitError(ExitFailure, msg, selErr)
		}
		if err != nil {
			return report, WrapExitError(ExitFailure, msg, err)
		}
		return report, NewExitError(ExitFailure, msg)
	}
	report.RunID = runID

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping routine", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var res routine.Result
	if err == nil {
		res, err = sys.Executor().Wait(ctx)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		logger.Warn("stopping routine", "run_id", runID, "reason", err)
		sys.Executor().Stop()
		err = nil
	}
	if err != nil && !routine.IsAbort(err) {
		return report, WrapExitError(ExitFailure, "routine failed", err)
	}
	if last, ok := sys.Executor().Last(); ok && last.RunID == runID {
		res = last
	}

	report.Outcome = string(res.Outcome)
	report.Ticks = res.Ticks
	report.Millis = res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	return report, nil
}

func printRunReport(f *OutputFormatter, r RunReport) {
	mark := "✓"
	if r.Outcome != string(routine.OutcomeCompleted) {
		mark = "✗"
	}
	fmt.Fprintf(f.Writer, "%s %s %s in %dms (%d ticks)\n", mark, r.Routine, r.Outcome, r.Millis, r.Ticks)
	fmt.Fprintf(f.Writer, "  run:  %s\n", r.RunID)
	if r.Hash != "" {
		fmt.Fprintf(f.Writer, "  hash: %s\n", r.Hash[:12])
	}
	fmt.Fprintf(f.Writer, "  pose: x=%.2f y=%.2f heading=%.1f\n", r.X, r.Y, r.Heading)
	if r.Error != "" {
		fmt.Fprintf(f.Writer, "  error: %s\n", r.Error)
	}
	if r.Database != "" {
		fmt.Fprintf(f.Writer, "  events: %s\n", r.Database)
	}
}

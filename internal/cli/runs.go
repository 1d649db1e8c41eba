package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/robotcore/internal/store"
	"github.com/roach88/robotcore/internal/telemetry"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// RunRow is one run in the runs listing.
type RunRow struct {
	RunID    string `json:"run_id"`
	Routine  string `json:"routine"`
	Outcome  string `json:"outcome"` // "running" when no terminal event was logged
	Node     string `json:"node,omitempty"`
	Started  string `json:"started,omitempty"`
	Millis   int64  `json:"duration_ms"`
	FirstSeq int64  `json:"first_seq"`
	LastSeq  int64  `json:"last_seq"`
	Events   int    `json:"events"`
}

// NodeSpan is one node's lifetime within a run.
type NodeSpan struct {
	Node    string `json:"node"`
	Kind    string `json:"kind"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	End     string `json:"end"` // "finished", "cancelled" or "running"
}

// RunDetail is the runs output for a single run.
type RunDetail struct {
	RunRow
	Nodes []NodeSpan `json:"nodes"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List routine runs in the telemetry log",
		Long: `List the routine runs recorded in a SQLite telemetry log, or replay one
run's node events as a timeline of node lifetimes.

Exit codes:
  0 - Success
  1 - The requested run ended aborted
  2 - Command error (database not found, unknown run, etc.)

Examples:
  robotcore runs --db ./telemetry.db
  robotcore runs --db ./telemetry.db 0190b6c2-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(opts, args[0], cmd)
			}
			return runListRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite telemetry log (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runListRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(context.Background())
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	rows := make([]RunRow, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, toRunRow(r))
	}

	if formatter.JSON() {
		return formatter.Success(rows)
	}
	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-36s  %-24s %-10s %6dms  %d events\n", r.RunID, r.Routine, r.Outcome, r.Millis, r.Events)
	}
	return nil
}

func runShowRun(opts *RunsOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)
	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	var summary *store.RunSummary
	for i := range runs {
		if runs[i].RunID == runID {
			summary = &runs[i]
			break
		}
	}
	if summary == nil {
		_ = formatter.Error(ErrCodeNotFound, "run not found: "+runID, nil)
		return NewExitError(ExitCommandError, "run not found: "+runID)
	}

	events, err := st.ReplayRun(ctx, runID)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to replay run", err)
	}
	detail := RunDetail{RunRow: toRunRow(*summary), Nodes: nodeSpans(events, summary.StartedAt)}

	if formatter.JSON() {
		if err := formatter.Success(detail); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %s %s in %dms\n", detail.RunID, detail.Routine, detail.Outcome, detail.Millis)
		if detail.Node != "" {
			fmt.Fprintf(w, "  failed at %s\n", detail.Node)
		}
		for _, n := range detail.Nodes {
			depth := strings.Count(n.Node, "/")
			fmt.Fprintf(w, "  %6d → %6dms  %s%s (%s, %s)\n",
				n.StartMs, n.EndMs, strings.Repeat("  ", depth), lastSegment(n.Node), n.Kind, n.End)
		}
	}

	if summary.Outcome == "aborted" {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s aborted", runID))
	}
	return nil
}

func toRunRow(r store.RunSummary) RunRow {
	row := RunRow{
		RunID:    r.RunID,
		Routine:  r.Routine,
		Outcome:  r.Outcome,
		Node:     r.Node,
		FirstSeq: r.FirstSeq,
		LastSeq:  r.LastSeq,
		Events:   r.Events,
	}
	if !r.Finished() {
		row.Outcome = "running"
	}
	if !r.StartedAt.IsZero() {
		row.Started = r.StartedAt.Format(time.RFC3339Nano)
		if !r.EndedAt.IsZero() {
			row.Millis = r.EndedAt.Sub(r.StartedAt).Milliseconds()
		}
	}
	return row
}

// nodeSpans pairs each node_started with the node's finished or cancelled
// event. Nodes are listed in start order.
func nodeSpans(events []telemetry.Event, start time.Time) []NodeSpan {
	var spans []NodeSpan
	open := make(map[string]int)
	ms := func(t time.Time) int64 {
		if t.IsZero() || start.IsZero() {
			return 0
		}
		return t.Sub(start).Milliseconds()
	}
	for _, ev := range events {
		switch ev.Kind {
		case telemetry.KindNodeStarted:
			open[ev.Node] = len(spans)
			spans = append(spans, NodeSpan{Node: ev.Node, Kind: ev.Message, StartMs: ms(ev.Timestamp), End: "running"})
		case telemetry.KindNodeFinished, telemetry.KindNodeCancelled:
			i, ok := open[ev.Node]
			if !ok {
				continue
			}
			delete(open, ev.Node)
			spans[i].EndMs = ms(ev.Timestamp)
			spans[i].End = "finished"
			if ev.Kind == telemetry.KindNodeCancelled {
				spans[i].End = "cancelled"
			}
		}
	}
	if spans == nil {
		spans = []NodeSpan{}
	}
	return spans
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

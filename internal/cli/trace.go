package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/robotcore/internal/store"
	"github.com/roach88/robotcore/internal/telemetry"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Kinds    []string
	AfterSeq int64
	Limit    int
}

// TraceEvent is one stored event as the trace command prints it.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	Time    string `json:"time,omitempty"`
	Source  string `json:"source,omitempty"`
	Client  string `json:"client,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Tick    uint64 `json:"tick,omitempty"`
	Mode    string `json:"mode,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Routine string `json:"routine,omitempty"`
	Node    string `json:"node,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Faults      int            `json:"faults"`
	Overruns    int            `json:"overruns"`
	ByKind      map[string]int `json:"by_kind"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string       `json:"run_id,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print events from the telemetry log",
		Long: `Print events from a SQLite telemetry log written by "robotcore run".

Events are shown in sequence order. Narrow them to one run, to some event
kinds, or to events after a sequence number (to follow a growing log).

Examples:
  robotcore trace --db ./telemetry.db
  robotcore trace --db ./telemetry.db --run 0190b6c2-...
  robotcore trace --db ./telemetry.db --kind client_fault,tick_overrun
  robotcore trace --db ./telemetry.db --after 1200 --limit 50 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite telemetry log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only events of this run")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only events of these kinds")
	cmd.Flags().Int64Var(&opts.AfterSeq, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum events to print (0 = all)")

	return cmd
}

// openExisting opens a telemetry log that must already exist; store.Open
// would otherwise create an empty one.
func openExisting(f *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		_ = f.Error(ErrCodeNotFound, "telemetry log not found: "+path, nil)
		return nil, WrapExitError(ExitCommandError, "telemetry log not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		_ = f.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open telemetry log", err)
	}
	return st, nil
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	kinds, err := parseKinds(opts.Kinds)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}

	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.ReadEvents(ctx, store.Filter{
		RunID:    opts.RunID,
		Kinds:    kinds,
		AfterSeq: opts.AfterSeq,
		Limit:    opts.Limit,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		RunID:    opts.RunID,
		Timeline: make([]TraceEvent, 0, len(events)),
		Stats:    TraceStats{ByKind: make(map[string]int)},
	}
	for _, ev := range events {
		result.Timeline = append(result.Timeline, toTraceEvent(ev))
		result.Stats.TotalEvents++
		result.Stats.ByKind[string(ev.Kind)]++
		switch ev.Kind {
		case telemetry.KindClientFault:
			result.Stats.Faults++
		case telemetry.KindTickOverrun:
			result.Stats.Overruns++
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "[%6d] %s %-16s %s\n", ev.Seq, ev.Time, ev.Kind, describeEvent(ev))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d events, %d faults, %d overruns\n", result.Stats.TotalEvents, result.Stats.Faults, result.Stats.Overruns)
	return nil
}

var knownKinds = []telemetry.Kind{
	telemetry.KindLooperStarted,
	telemetry.KindLooperStopped,
	telemetry.KindTickOverrun,
	telemetry.KindClientFault,
	telemetry.KindRoutineStarted,
	telemetry.KindRoutineFinished,
	telemetry.KindRoutineAborted,
	telemetry.KindNodeStarted,
	telemetry.KindNodeFinished,
	telemetry.KindNodeCancelled,
	telemetry.KindModeChanged,
	telemetry.KindAutoSelected,
}

func parseKinds(in []string) ([]telemetry.Kind, error) {
	var out []telemetry.Kind
	for _, s := range in {
		k := telemetry.Kind(strings.TrimSpace(s))
		found := false
		for _, known := range knownKinds {
			if k == known {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown event kind %q", s)
		}
		out = append(out, k)
	}
	return out, nil
}

func toTraceEvent(ev telemetry.Event) TraceEvent {
	te := TraceEvent{
		Seq:     ev.Seq,
		Kind:    string(ev.Kind),
		Source:  ev.Source,
		Client:  ev.Client,
		Phase:   ev.Phase,
		Tick:    ev.Tick,
		Mode:    ev.Mode,
		RunID:   ev.RunID,
		Routine: ev.Routine,
		Node:    ev.Node,
		Outcome: ev.Outcome,
		Message: ev.Message,
		Error:   ev.Err,
	}
	if !ev.Timestamp.IsZero() {
		te.Time = ev.Timestamp.Format(time.RFC3339Nano)
	}
	return te
}

// describeEvent renders the fields that matter for each kind on one line.
func describeEvent(ev TraceEvent) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	switch telemetry.Kind(ev.Kind) {
	case telemetry.KindNodeStarted, telemetry.KindNodeFinished, telemetry.KindNodeCancelled:
		add("node", ev.Node)
		add("kind", ev.Message)
	case telemetry.KindClientFault:
		add("looper", ev.Source)
		add("client", ev.Client)
		add("phase", ev.Phase)
		add("tick", fmt.Sprint(ev.Tick))
	default:
		add("source", ev.Source)
		add("mode", ev.Mode)
		add("routine", ev.Routine)
		add("run", ev.RunID)
		add("outcome", ev.Outcome)
		add("node", ev.Node)
		add("msg", ev.Message)
	}
	add("error", ev.Error)
	return strings.Join(parts, " ")
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/robotcore/internal/ir"
)

// RoutinesOptions holds flags for the routines command.
type RoutinesOptions struct {
	*RootOptions
	Tree bool
}

// RoutineInfo describes one compiled routine.
type RoutineInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Nodes       int      `json:"nodes"`
	Hash        string   `json:"hash"`
	Root        *ir.Step `json:"root,omitempty"`
	Bindings    []string `json:"bindings"`
}

// RoutinesResult is the routines command output.
type RoutinesResult struct {
	Dir       string        `json:"dir"`
	Files     int           `json:"files"`
	IRVersion string        `json:"ir_version"`
	Routines  []RoutineInfo `json:"routines"`
}

// NewRoutinesCommand creates the routines command.
func NewRoutinesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RoutinesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "routines [routines-dir]",
		Short: "List compiled routines",
		Long: `Compile and link the CUE routines in a directory and list them.

Call steps are inlined, so --tree shows the node paths the executor will
report in telemetry.

Examples:
  robotcore routines
  robotcore routines ./routines --tree
  robotcore routines --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoutines(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Tree, "tree", false, "print each routine's node tree")

	return cmd
}

func runRoutines(opts *RoutinesOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	dir := routinesDir(args, cfg)

	loaded, err := LoadRoutines(dir)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load routines", err)
	}
	formatter.VerboseLog("Loaded %d routine(s) from %d file(s) in %s", len(loaded.Routines), loaded.FileCount, dir)

	result := RoutinesResult{Dir: dir, Files: loaded.FileCount, IRVersion: ir.IRVersion, Routines: []RoutineInfo{}}
	for _, r := range loaded.Routines {
		hash, err := ir.RoutineHash(r)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to hash routine "+r.Name, err)
		}
		info := RoutineInfo{
			Name:        r.Name,
			Description: r.Description,
			Nodes:       countNodes(r.Root),
			Hash:        hash,
			Bindings:    bindingsOf(r.Root),
		}
		if opts.Tree || formatter.JSON() {
			root := r.Root
			info.Root = &root
		}
		result.Routines = append(result.Routines, info)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if len(result.Routines) == 0 {
		fmt.Fprintf(w, "No routines in %s\n", dir)
		return nil
	}
	for _, info := range result.Routines {
		fmt.Fprintf(w, "%-28s %s %3d nodes", info.Name, info.Hash[:12], info.Nodes)
		if info.Description != "" {
			fmt.Fprintf(w, "  %s", info.Description)
		}
		fmt.Fprintln(w)
		if opts.Tree {
			printTree(w, *info.Root, info.Root.Name, "  ")
			fmt.Fprintln(w)
		}
	}
	return nil
}

func countNodes(s ir.Step) int {
	n := 1
	for _, c := range s.Children {
		n += countNodes(c)
	}
	return n
}

// bindingsOf returns the distinct setters and predicates a routine uses, in
// first-use order.
func bindingsOf(s ir.Step) []string {
	seen := make(map[string]bool)
	out := []string{}
	var walk func(ir.Step)
	walk = func(s ir.Step) {
		if (s.Kind == ir.StepRun || s.Kind == ir.StepWaitUntil) && !seen[s.Binding] {
			seen[s.Binding] = true
			out = append(out, s.Binding)
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(s)
	return out
}

// printTree writes one line per node: its path and a short description.
func printTree(w io.Writer, s ir.Step, path, indent string) {
	fmt.Fprintf(w, "%s%s  (%s)\n", indent, path, describeStep(s))
	for i, c := range s.Children {
		name := c.Name
		if name == "" {
			name = c.Binding
		}
		if name == "" {
			name = string(c.Kind)
		}
		printTree(w, c, fmt.Sprintf("%s/%d:%s", path, i, name), indent+"  ")
	}
}

func describeStep(s ir.Step) string {
	switch s.Kind {
	case ir.StepWait:
		return "wait " + s.Duration.String()
	case ir.StepRun, ir.StepWaitUntil:
		if len(s.Args) == 0 {
			return string(s.Kind) + " " + s.Binding
		}
		parts := make([]string, 0, len(s.Args))
		for _, k := range s.Args.SortedKeys() {
			parts = append(parts, fmt.Sprintf("%s=%v", k, s.Args[k]))
		}
		return fmt.Sprintf("%s %s {%s}", s.Kind, s.Binding, strings.Join(parts, ", "))
	default:
		return string(s.Kind)
	}
}

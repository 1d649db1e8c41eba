package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/robotcore/internal/compiler"
	"github.com/roach88/robotcore/internal/sim"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Structural bool // skip binding checks
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Routines int                        `json:"routines"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [routines-dir]",
		Short: "Check routines without running them",
		Long: `Check CUE routines for structural problems and, unless --structural is
set, resolve every run and wait_until step against the simulated robot's
bindings, including argument checks.

Every problem is reported, not just the first.

Exit codes:
  0 - All routines valid
  1 - Validation errors found
  2 - Command error (missing directory, CUE syntax error, etc.)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Structural, "structural", false, "skip binding and argument checks")

	return cmd
}

func runValidate(opts *ValidateOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	dir := routinesDir(args, cfg)

	src, err := compiler.LoadDir(dir)
	if err != nil {
		le := convertLoadError(err)
		_ = formatter.Error(le.Code, le.Message, nil)
		return NewExitError(ExitCommandError, le.Error())
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(src.Files), dir)

	routines, err := compiler.CompileRoutines(src.Value)
	if err != nil {
		le := convertCompileError(err)
		return outputValidationErrors(formatter, []compiler.ValidationError{{
			Field:   "compile",
			Message: le.Error(),
			Code:    le.Code,
		}})
	}

	var bindings *compiler.Bindings
	if !opts.Structural {
		bindings = sim.New(cfg.Looper.Period).Bindings()
	}
	for _, r := range routines {
		formatter.VerboseLog("Validating routine: %s", r.Name)
	}

	// Validate resolves call steps itself, so it runs on unlinked routines
	// and reports unresolved calls and cycles alongside everything else.
	errs := compiler.Validate(routines, bindings)
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Routines: len(routines)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d routine(s) valid\n", len(routines))
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		if err := formatter.Fail(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Routine != "" {
			fmt.Fprintf(formatter.Writer, "%s\n", e.Routine)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return exitErr
}

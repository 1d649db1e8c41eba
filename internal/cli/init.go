package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/robotcore/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a robotcore.toml template",
		Long: `Write a commented robotcore.toml with the default settings to dir
(default: the working directory). An existing file is never overwritten.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				_ = formatter.Error(ErrCodeNotFound, "directory not found: "+dir, nil)
				return NewExitError(ExitCommandError, "directory not found: "+dir)
			}
			path, err := config.InitFile(dir)
			if err != nil {
				_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to write config", err)
			}
			if formatter.JSON() {
				return formatter.Success(map[string]string{"path": path})
			}
			fmt.Fprintf(formatter.Writer, "✓ Wrote %s\n", path)
			return nil
		},
	}
}

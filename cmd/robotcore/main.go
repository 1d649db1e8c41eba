// Command robotcore runs, checks and inspects autonomous routines on the
// simulated robot.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/robotcore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

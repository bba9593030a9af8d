// Package main provides the strata CLI entrypoint.
//
// Usage:
//
//	strata <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: usage or unexpected error
//   - 2: resolution failure (unknown board, unresolvable constraint,
//     overlay conflict, bad spec)
//   - 3: execution failure
//   - 4: workspace lock contention
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/cmd"
	"github.com/pithecene-io/strata/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "strata",
		Usage:          "Bootstrap and reconcile embedded RTOS workspaces",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.SetupCommand(),
			cmd.StatusCommand(),
			cmd.CleanCommand(),
			cmd.VersionsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder
		// errors. This branch handles unexpected errors that weren't
		// wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() so resolution,
// execution, and lock failures stay distinguishable to callers.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

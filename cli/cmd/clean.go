package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/runtime"
	"github.com/pithecene-io/strata/types"
)

// CleanCommand returns the clean command: remove all managed slots and
// the workspace state record. Unmanaged files are untouched.
func CleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Remove all managed slots from the workspace",
		Flags: []cli.Flag{
			WorkspaceFlag,
			StoreFlag,
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the run summary",
			},
		},
		Action: cleanAction,
	}
}

func cleanAction(c *cli.Context) error {
	root, err := workspaceRoot(c)
	if err != nil {
		return err
	}

	st, err := openStore(c)
	if err != nil {
		return cli.Exit(err.Error(), exitExecFailure)
	}

	exec := &runtime.Executor{
		Store:  st,
		Logger: log.NewLogger(root, uuid.NewString()),
	}

	report, execErr := exec.Clean(c.Context, root)
	if execErr != nil {
		if errors.Is(execErr, types.ErrWorkspaceBusy) {
			return cli.Exit(execErr.Error(), exitLocked)
		}
		return cli.Exit(execErr.Error(), exitExecFailure)
	}

	if !c.Bool("quiet") {
		fmt.Printf("removed %d slot(s) from %s\n", len(report.Completed), root)
	}
	return nil
}

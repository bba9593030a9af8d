package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/adapter"
	"github.com/pithecene-io/strata/adapter/webhook"
	"github.com/pithecene-io/strata/fetch"
	"github.com/pithecene-io/strata/inspect"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/plan"
	"github.com/pithecene-io/strata/resolve"
	"github.com/pithecene-io/strata/runtime"
	"github.com/pithecene-io/strata/types"
)

// SetupCommand returns the setup command: resolve, plan, and execute.
// This is the only command besides clean that mutates the workspace.
func SetupCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Reconcile the workspace to match the project spec",
		Flags: append(CommonFlags(),
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "Re-verify stored artifacts even for matching slots",
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "Worker pool width for independent slots",
				Value: runtime.DefaultParallel,
			},
			&cli.DurationFlag{
				Name:  "fetch-timeout",
				Usage: "Per-attempt fetch timeout",
				Value: fetch.DefaultTimeout,
			},
			&cli.IntFlag{
				Name:  "fetch-retries",
				Usage: "Retry attempts for failed fetches",
				Value: runtime.DefaultRetryPolicy.MaxAttempts - 1,
			},
			&cli.StringFlag{
				Name:  "report-url",
				Usage: "POST a reconciliation report to this URL after the run",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the run summary",
			},
		),
		Action: setupAction,
	}
}

func setupAction(c *cli.Context) error {
	root, err := workspaceRoot(c)
	if err != nil {
		return err
	}

	// Interrupt cancels between actions, never mid-action.
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	spec, err := loadSpec(c, root)
	if err != nil {
		return cli.Exit(err.Error(), exitResolveFailure)
	}
	reg, err := loadRegistry(ctx, c, root)
	if err != nil {
		return cli.Exit(err.Error(), exitResolveFailure)
	}

	desired, err := resolve.New(reg).Resolve(spec)
	if err != nil {
		return cli.Exit(err.Error(), exitResolveFailure)
	}

	logger := log.NewLogger(root, uuid.NewString())
	actual := inspect.Inspect(root, logger)
	p := plan.Build(desired, actual, plan.Options{ForceVerify: c.Bool("verify")})

	if p.Empty() {
		if !c.Bool("quiet") {
			fmt.Println("workspace up to date; nothing to do")
		}
		return nil
	}

	st, err := openStore(c)
	if err != nil {
		return cli.Exit(err.Error(), exitExecFailure)
	}

	exec := &runtime.Executor{
		Store:    st,
		Fetcher:  &fetch.HTTPFetcher{Timeout: c.Duration("fetch-timeout")},
		Logger:   logger,
		Parallel: c.Int("parallel"),
		Retry: runtime.RetryPolicy{
			MaxAttempts: 1 + c.Int("fetch-retries"),
			BaseDelay:   runtime.DefaultRetryPolicy.BaseDelay,
		},
	}

	report, execErr := exec.Apply(ctx, root, desired, p)

	if report != nil {
		if !c.Bool("quiet") {
			printRunSummary(root, spec, p, report)
		}
		publishReport(ctx, c, root, spec, report)
	}

	if execErr != nil {
		if errors.Is(execErr, types.ErrWorkspaceBusy) {
			return cli.Exit(execErr.Error(), exitLocked)
		}
		return cli.Exit(execErr.Error(), exitExecFailure)
	}
	return nil
}

func printRunSummary(root string, spec types.ProjectSpec, p *types.Plan, report *runtime.Report) {
	fmt.Printf("\n=== Reconciliation ===\n")
	fmt.Printf("Workspace:  %s\n", root)
	fmt.Printf("Board:      %s\n", spec.Board)
	fmt.Printf("Toolchain:  %s\n", spec.Toolchain)
	fmt.Printf("Planned:    %d\n", p.Len())
	fmt.Printf("Completed:  %d\n", len(report.Completed))
	if len(report.Failed) > 0 {
		fmt.Printf("Failed:     %d\n", len(report.Failed))
		for _, f := range report.Failed {
			fmt.Printf("  - %s: %s\n", f.Action, f.Error)
		}
	}
	if len(report.Pending) > 0 {
		fmt.Printf("Pending:    %d (rerun setup to resume)\n", len(report.Pending))
	}
	fmt.Printf("Duration:   %s\n", report.Duration.Round(time.Millisecond))

	for _, slot := range report.State.SortedSlots() {
		fmt.Printf("  %-24s %s\n", slot, report.State.Slots[slot].Ref)
	}
}

// publishReport POSTs the run report when --report-url is set.
// Publishing failures are warnings; they never change the exit code.
func publishReport(ctx context.Context, c *cli.Context, root string, spec types.ProjectSpec, report *runtime.Report) {
	url := c.String("report-url")
	if url == "" {
		return
	}

	pub, err := webhook.New(webhook.Config{URL: url})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: report publisher: %v\n", err)
		return
	}
	defer func() { _ = pub.Close() }()

	outcome := "success"
	switch {
	case len(report.Failed) > 0:
		outcome = "failed"
	case len(report.Pending) > 0:
		outcome = "partial"
	}

	event := &adapter.ReconcileEvent{
		EventType:  "workspace_reconciled",
		Workspace:  root,
		Board:      spec.Board,
		Toolchain:  spec.Toolchain,
		Outcome:    outcome,
		Planned:    len(report.Completed) + len(report.Failed) + len(report.Pending),
		Completed:  len(report.Completed),
		Failed:     len(report.Failed),
		Pending:    len(report.Pending),
		DurationMs: report.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := pub.Publish(ctx, event); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: report publish failed: %v\n", err)
	}
}

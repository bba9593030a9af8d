package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/inspect"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/resolve"
	"github.com/pithecene-io/strata/types"
)

// SlotStatus is one row of the status diff.
type SlotStatus struct {
	Slot    string `json:"slot"`
	Desired string `json:"desired"`
	Actual  string `json:"actual"`
	// Status is match, drift, missing, stale, or unverified.
	Status string `json:"status"`
}

// StatusCommand returns the status command: show the desired-vs-actual
// diff without mutating anything.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show desired vs actual workspace state (read-only)",
		Flags:  CommonFlags(),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	root, err := workspaceRoot(c)
	if err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	spec, err := loadSpec(c, root)
	if err != nil {
		return cli.Exit(err.Error(), exitResolveFailure)
	}
	reg, err := loadRegistry(c.Context, c, root)
	if err != nil {
		return cli.Exit(err.Error(), exitResolveFailure)
	}
	desired, err := resolve.New(reg).Resolve(spec)
	if err != nil {
		return cli.Exit(err.Error(), exitResolveFailure)
	}

	actual := inspect.Inspect(root, log.Nop())
	return r.Render(diffRows(desired, actual))
}

// diffRows builds one row per slot in the union of desired and actual.
func diffRows(desired *types.ResolvedGraph, actual *types.WorkspaceState) []SlotStatus {
	var rows []SlotStatus

	for _, slot := range desired.SortedSlots() {
		want := desired.Slots[slot]
		row := SlotStatus{Slot: string(slot), Desired: want.String()}

		have, present := actual.Slots[slot]
		switch {
		case actual.Unverified:
			// Unknown, never matching: a scan result is not trusted.
			if present {
				row.Actual = have.Ref.String()
			}
			row.Status = "unverified"
		case !present:
			row.Status = "missing"
		case have.Ref.Equal(want):
			row.Actual = have.Ref.String()
			row.Status = "match"
			if ops := desired.Ops[slot]; len(ops) > 0 && have.AppliedEffectHash != resolve.OpsHash(ops) {
				row.Status = "drift"
			}
		default:
			row.Actual = have.Ref.String()
			row.Status = "drift"
		}
		rows = append(rows, row)
	}

	for _, slot := range actual.SortedSlots() {
		if _, wanted := desired.Slots[slot]; wanted {
			continue
		}
		rows = append(rows, SlotStatus{
			Slot:   string(slot),
			Actual: actual.Slots[slot].Ref.String(),
			Status: "stale",
		})
	}
	return rows
}

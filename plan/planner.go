// Package plan implements the reconciliation planner: it diffs a desired
// graph against the actual workspace state and produces an ordered plan.
//
// Planning is pure, like resolution. The plan's ordering rule is
// fail-safe: within a slot's lifecycle every Fetch precedes the Unlink
// of the old artifact, so a failed fetch never leaves a previously
// working slot removed. Actions on distinct slots carry no mutual
// ordering and may be parallelized by the executor.
package plan

import (
	"github.com/pithecene-io/strata/resolve"
	"github.com/pithecene-io/strata/types"
)

// Options tunes plan construction.
type Options struct {
	// ForceVerify plans a Fetch and Verify even for slots whose checksum
	// already matches the desired ref. The fetch is a no-op on an intact
	// store entry and repairs an evicted one, so a forced verify pass
	// self-heals store corruption.
	ForceVerify bool
}

// Build diffs desired against actual and returns the minimal ordered
// plan. An Unverified actual state matches nothing: every desired slot
// gets its full lifecycle replanned (each action is idempotent, so
// intact slots cost only a verify-and-skip at execution time).
func Build(desired *types.ResolvedGraph, actual *types.WorkspaceState, opts Options) *types.Plan {
	p := &types.Plan{}

	for _, slot := range desired.SortedSlots() {
		want := desired.Slots[slot]
		have, present := actual.Slots[slot]

		if matches(slot, want, desired, have, present, actual.Unverified) {
			if opts.ForceVerify {
				p.Actions = append(p.Actions,
					types.Action{Kind: types.ActionFetch, Slot: slot, Ref: want},
					types.Action{Kind: types.ActionVerify, Slot: slot, Ref: want},
				)
			}
			continue
		}

		// Full lifecycle: Fetch → Verify → Unlink-old → Link-new → Patch.
		p.Actions = append(p.Actions,
			types.Action{Kind: types.ActionFetch, Slot: slot, Ref: want},
			types.Action{Kind: types.ActionVerify, Slot: slot, Ref: want},
		)
		if present && !have.Ref.Zero() && !have.Ref.Equal(want) {
			p.Actions = append(p.Actions, types.Action{
				Kind: types.ActionUnlink, Slot: slot, Ref: have.Ref,
			})
		}
		p.Actions = append(p.Actions, types.Action{
			Kind: types.ActionLink, Slot: slot, Ref: want,
		})
		for i := range desired.Ops[slot] {
			op := desired.Ops[slot][i]
			p.Actions = append(p.Actions, types.Action{
				Kind: types.ActionPatch, Slot: slot, Ref: want, Op: &op,
			})
		}
	}

	// Slots the desired graph no longer needs get cleaned up.
	for _, slot := range actual.SortedSlots() {
		if _, wanted := desired.Slots[slot]; wanted {
			continue
		}
		p.Actions = append(p.Actions, types.Action{
			Kind: types.ActionUnlink, Slot: slot, Ref: actual.Slots[slot].Ref,
		})
	}

	return p
}

// matches reports whether a slot's actual contents already satisfy the
// desired ref. Checksum is the sole identity criterion for the artifact;
// slots carrying filesystem operations additionally compare the applied
// effect hash, so an identically re-declared op set is a no-op.
func matches(slot types.Slot, want types.ArtifactRef, desired *types.ResolvedGraph, have types.SlotState, present, unverified bool) bool {
	if !present || unverified {
		return false
	}
	if !have.Ref.Equal(want) {
		return false
	}
	if ops := desired.Ops[slot]; len(ops) > 0 {
		return have.AppliedEffectHash == resolve.OpsHash(ops)
	}
	return true
}

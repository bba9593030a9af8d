// Package resolve implements the config resolver: ProjectSpec in,
// ResolvedGraph out.
//
// Resolution is pure. The same spec against the same registry snapshot
// always yields the same graph, byte for byte, which is what makes
// workspaces reproducible across machines. No filesystem mutation
// happens here.
package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pithecene-io/strata/registry"
	"github.com/pithecene-io/strata/types"
)

// Resolver turns a ProjectSpec into a ResolvedGraph against a registry
// snapshot.
type Resolver struct {
	Registry *registry.Registry
}

// New creates a resolver over a registry snapshot.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{Registry: reg}
}

// Resolve computes the desired graph for the spec.
//
// Errors: ErrUnknownBoard when the board has no registered support
// package, ErrUnresolvableConstraint when no known artifact satisfies
// the toolchain constraint (or an overlay name is unregistered), and
// ErrOverlayConflict when two overlays declare different effects on the
// same path.
func (r *Resolver) Resolve(spec types.ProjectSpec) (*types.ResolvedGraph, error) {
	graph := &types.ResolvedGraph{
		Slots: make(map[types.Slot]types.ArtifactRef),
		Ops:   make(map[types.Slot][]types.FSOp),
	}

	toolchain, err := r.resolveToolchain(spec.Toolchain)
	if err != nil {
		return nil, err
	}
	graph.Slots[types.SlotToolchain] = toolchain

	board, err := r.resolveBoard(spec.Board)
	if err != nil {
		return nil, err
	}
	boardSlot := types.BoardSupportSlot(spec.Board)
	graph.Slots[boardSlot] = board
	graph.Ops[boardSlot] = []types.FSOp{boardRegistration(spec.Board)}

	if err := r.resolveOverlays(spec.Overlays, graph); err != nil {
		return nil, err
	}

	graph.OverlayHash = overlaySetHash(spec.Overlays, graph)
	return graph, nil
}

// resolveToolchain picks the highest toolchain release satisfying the
// constraint. Ties on exact version break to the lexicographically
// greatest checksum so resolution stays deterministic even with
// duplicate version strings in the registry.
func (r *Resolver) resolveToolchain(constraint string) (types.ArtifactRef, error) {
	c, err := types.ParseConstraint(constraint)
	if err != nil {
		return types.ArtifactRef{}, types.NewError(
			types.ErrUnresolvableConstraint, "resolve", "toolchain", err)
	}

	var (
		best        types.ArtifactRef
		bestVersion types.ToolchainVersion
		found       bool
	)
	for _, ref := range r.Registry.Toolchains() {
		v, err := types.ParseToolchainVersion(ref.Version)
		if err != nil {
			continue
		}
		if !c.Satisfies(v) {
			continue
		}
		if !found || better(v, ref, bestVersion, best) {
			best, bestVersion, found = ref, v, true
		}
	}
	if !found {
		return types.ArtifactRef{}, types.NewError(
			types.ErrUnresolvableConstraint, "resolve", "toolchain",
			fmt.Errorf("no toolchain satisfies %q", constraint))
	}
	return best, nil
}

// resolveBoard picks the highest-versioned support package for a board.
func (r *Resolver) resolveBoard(board string) (types.ArtifactRef, error) {
	if board == "" {
		return types.ArtifactRef{}, types.NewError(
			types.ErrUnknownBoard, "resolve", "board", fmt.Errorf("board not set"))
	}
	refs, ok := r.Registry.BoardSupport(board)
	if !ok || len(refs) == 0 {
		return types.ArtifactRef{}, types.NewError(
			types.ErrUnknownBoard, "resolve", "board",
			fmt.Errorf("no support package registered for %q", board))
	}

	var (
		best        types.ArtifactRef
		bestVersion types.ToolchainVersion
		found       bool
	)
	for _, ref := range refs {
		v, err := types.ParseToolchainVersion(ref.Version)
		if err != nil {
			continue
		}
		if !found || better(v, ref, bestVersion, best) {
			best, bestVersion, found = ref, v, true
		}
	}
	if !found {
		// Registered but every candidate has an unparseable version.
		return types.ArtifactRef{}, types.NewError(
			types.ErrUnknownBoard, "resolve", "board",
			fmt.Errorf("no usable support package for %q", board))
	}
	return best, nil
}

// boardRegistration is the filesystem operation that wires a board into
// the workspace Kconfig tree. Every board slot carries exactly this op.
func boardRegistration(board string) types.FSOp {
	return types.FSOp{Kind: types.FSOpKconfig, Path: "Kconfig", Target: board}
}

// resolveOverlays applies overlays in declared order and rejects
// conflicting filesystem operations on the same path.
//
// Re-declaring an identical effect on a path is allowed: the planner
// treats it as a no-op, so the resolver must not reject it.
func (r *Resolver) resolveOverlays(names []string, graph *types.ResolvedGraph) error {
	type claim struct {
		overlay string
		effect  string
	}
	claims := make(map[string]claim)

	for _, name := range names {
		ov, ok := r.Registry.Overlay(name)
		if !ok {
			return types.NewError(
				types.ErrUnresolvableConstraint, "resolve", "overlays",
				fmt.Errorf("no overlay registered as %q", name))
		}

		for _, op := range ov.Ops {
			effect := EffectHash(op)
			if prev, taken := claims[op.Path]; taken && prev.effect != effect {
				return types.NewError(
					types.ErrOverlayConflict, "resolve", "overlays",
					fmt.Errorf("%q and %q both declare %s", prev.overlay, name, op.Path))
			}
			claims[op.Path] = claim{overlay: name, effect: effect}
		}

		slot := types.OverlaySlot(name)
		graph.Slots[slot] = ov.Artifact
		graph.Ops[slot] = append([]types.FSOp(nil), ov.Ops...)
	}
	return nil
}

// better reports whether candidate (v, ref) beats the current best.
func better(v types.ToolchainVersion, ref types.ArtifactRef, bestV types.ToolchainVersion, best types.ArtifactRef) bool {
	switch v.Compare(bestV) {
	case 1:
		return true
	case 0:
		// Exact version tie: lexicographically greatest checksum wins.
		return ref.Checksum > best.Checksum
	default:
		return false
	}
}

// EffectHash returns the content hash of a single operation's effect.
// Canonical JSON keeps the hash independent of in-memory ordering.
func EffectHash(op types.FSOp) string {
	encoded, _ := json.Marshal(op)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// OpsHash returns the content hash over a slot's ordered operations.
// Identical operation lists hash identically.
func OpsHash(ops []types.FSOp) string {
	encoded, _ := json.Marshal(ops)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// overlaySetHash hashes all overlay operations in declared order.
func overlaySetHash(names []string, graph *types.ResolvedGraph) string {
	h := sha256.New()
	for _, name := range names {
		slot := types.OverlaySlot(name)
		encoded, _ := json.Marshal(struct {
			Name string       `json:"name"`
			Ops  []types.FSOp `json:"ops"`
		}{Name: name, Ops: graph.Ops[slot]})
		h.Write(encoded)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Package types defines the shared data model for strata.
//
// Everything here is plain data: refs, specs, graphs, states, and plans.
// Behavior lives in the packages that produce or consume these values
// (resolve, inspect, plan, runtime).
package types

import (
	"fmt"
	"strings"
	"time"
)

// Slot names a role within a workspace occupied by exactly one artifact
// at a time, e.g. "toolchain" or "board-support:esp32".
type Slot string

// SlotToolchain is the slot holding the cross-compilation toolchain.
const SlotToolchain Slot = "toolchain"

// BoardSupportSlot returns the slot for a board's support package.
func BoardSupportSlot(board string) Slot {
	return Slot("board-support:" + board)
}

// OverlaySlot returns the slot for a named overlay.
func OverlaySlot(name string) Slot {
	return Slot("overlay:" + name)
}

// IsOverlay reports whether the slot holds an overlay.
func (s Slot) IsOverlay() bool {
	return strings.HasPrefix(string(s), "overlay:")
}

// Path returns the slot's workspace-relative install path.
func (s Slot) Path() string {
	switch {
	case s == SlotToolchain:
		return "toolchain"
	case strings.HasPrefix(string(s), "board-support:"):
		return "boards/" + strings.TrimPrefix(string(s), "board-support:")
	case s.IsOverlay():
		return "overlays/" + strings.TrimPrefix(string(s), "overlay:")
	default:
		return string(s)
	}
}

// ArtifactRef uniquely identifies a toolchain/SDK/board-support package.
// Immutable once resolved.
//
// The checksum is authoritative: two refs are equal iff their checksums
// match, regardless of declared version string. Version is advisory.
type ArtifactRef struct {
	Name      string `yaml:"name" json:"name" msgpack:"name"`
	Version   string `yaml:"version" json:"version" msgpack:"version"`
	Checksum  string `yaml:"checksum" json:"checksum" msgpack:"checksum"`
	SourceURL string `yaml:"url" json:"url" msgpack:"url"`
}

// Equal reports whether two refs identify the same bytes.
// Checksum equality is the sole criterion.
func (r ArtifactRef) Equal(other ArtifactRef) bool {
	return r.Checksum == other.Checksum
}

// Zero reports whether the ref is the zero value.
func (r ArtifactRef) Zero() bool {
	return r.Checksum == ""
}

func (r ArtifactRef) String() string {
	cs := r.Checksum
	if len(cs) > 12 {
		cs = cs[:12]
	}
	return fmt.Sprintf("%s@%s (%s)", r.Name, r.Version, cs)
}

// ProjectSpec is the declared project configuration. Owned by the calling
// project; read-only input to resolution.
type ProjectSpec struct {
	// Board is the target board identifier (e.g. "esp32").
	Board string `yaml:"board"`
	// Toolchain is an exact version or a range constraint
	// (e.g. "12.3.0" or ">=10.0,<11.0").
	Toolchain string `yaml:"toolchain"`
	// Overlays are applied in declared order.
	Overlays []string `yaml:"overlays"`
}

// FSOpKind enumerates filesystem operations an overlay or slot can declare.
type FSOpKind string

// Filesystem operation kinds.
const (
	FSOpSymlink FSOpKind = "symlink"
	FSOpCopy    FSOpKind = "copy"
	FSOpPatch   FSOpKind = "patch"
	// FSOpKconfig registers a board in the workspace Kconfig tree.
	FSOpKconfig FSOpKind = "kconfig"
)

// FSOp is a single filesystem operation required to realize an artifact
// in a workspace. Path is workspace-relative; Target is interpreted per
// kind (symlink destination, copy source within the artifact, patch
// content checksum, or board name for kconfig registration).
type FSOp struct {
	Kind   FSOpKind `yaml:"kind" json:"kind" msgpack:"kind"`
	Path   string   `yaml:"path" json:"path" msgpack:"path"`
	Target string   `yaml:"target" json:"target" msgpack:"target"`
}

// ResolvedGraph is the desired workspace state produced by resolution:
// a slot → ref assignment plus the ordered filesystem operations per slot.
// Produced fresh on every resolution; never mutated in place.
type ResolvedGraph struct {
	// Slots maps each required slot to its resolved artifact.
	Slots map[Slot]ArtifactRef
	// Ops holds the ordered filesystem operations per slot.
	Ops map[Slot][]FSOp
	// OverlayHash is the content hash over all overlay operations in
	// declared order. Identical overlay sets hash identically.
	OverlayHash string
}

// SortedSlots returns the graph's slots in deterministic order.
func (g *ResolvedGraph) SortedSlots() []Slot {
	slots := make([]Slot, 0, len(g.Slots))
	for s := range g.Slots {
		slots = append(slots, s)
	}
	// Insertion sort; slot counts are small.
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && slots[j] < slots[j-1]; j-- {
			slots[j], slots[j-1] = slots[j-1], slots[j]
		}
	}
	return slots
}

// StateFormatVersion is the .state record format version. Bump on any
// incompatible change; readers treat unknown versions as corrupt.
const StateFormatVersion = 1

// SlotState records what actually occupies one workspace slot.
type SlotState struct {
	Ref ArtifactRef `msgpack:"ref" json:"ref"`
	// AppliedEffectHash is the hash over the slot's realized filesystem
	// operations; empty for slots that carry none.
	AppliedEffectHash string `msgpack:"effect_hash" json:"effect_hash"`
	// AppliedOps are the filesystem operations realized for this slot,
	// recorded so a later unlink can remove their outputs.
	AppliedOps []FSOp    `msgpack:"applied_ops" json:"applied_ops,omitempty"`
	Timestamp  time.Time `msgpack:"timestamp" json:"timestamp"`
}

// WorkspaceState is the persisted record of a workspace's installed slots.
// Lives at <workspace>/.state; created on first setup, rewritten after every
// successful reconciliation, deleted on explicit teardown.
type WorkspaceState struct {
	FormatVersion int                `msgpack:"format_version" json:"format_version"`
	Slots         map[Slot]SlotState `msgpack:"slots" json:"slots"`
	// Unverified marks a state reconstructed by filesystem scan rather
	// than read from a valid record. An unverified state must never be
	// trusted as "matching" by the planner.
	Unverified bool `msgpack:"-" json:"unverified"`
}

// NewWorkspaceState returns an empty verified state at the current format.
func NewWorkspaceState() *WorkspaceState {
	return &WorkspaceState{
		FormatVersion: StateFormatVersion,
		Slots:         make(map[Slot]SlotState),
	}
}

// SortedSlots returns the state's slots in deterministic order.
func (s *WorkspaceState) SortedSlots() []Slot {
	slots := make([]Slot, 0, len(s.Slots))
	for slot := range s.Slots {
		slots = append(slots, slot)
	}
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && slots[j] < slots[j-1]; j-- {
			slots[j], slots[j-1] = slots[j-1], slots[j]
		}
	}
	return slots
}

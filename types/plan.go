package types

import "fmt"

// ActionKind enumerates plan actions.
type ActionKind string

// Plan action kinds. Within one slot's lifecycle the relative order is
// Fetch → Verify → Unlink-old → Link-new → Patch. Actions on distinct
// slots carry no ordering constraint and may run concurrently.
const (
	ActionFetch  ActionKind = "fetch"
	ActionVerify ActionKind = "verify"
	ActionUnlink ActionKind = "unlink"
	ActionLink   ActionKind = "link"
	ActionPatch  ActionKind = "patch"
)

// Action is one idempotent, independently retryable step of a plan.
type Action struct {
	Kind ActionKind `json:"kind"`
	Slot Slot       `json:"slot"`
	// Ref is the artifact the action operates on. For Unlink this is the
	// currently installed ref; for Fetch/Verify/Link the desired one.
	Ref ArtifactRef `json:"ref"`
	// Op is set for Patch actions only.
	Op *FSOp `json:"op,omitempty"`
}

func (a Action) String() string {
	return fmt.Sprintf("%s %s %s", a.Kind, a.Slot, a.Ref)
}

// Plan is an ordered sequence of actions bringing a workspace from its
// actual state to the desired state. Transient; discarded after execution.
type Plan struct {
	Actions []Action `json:"actions"`
}

// Empty reports whether the plan requires no work.
func (p *Plan) Empty() bool {
	return len(p.Actions) == 0
}

// Len returns the number of actions in the plan.
func (p *Plan) Len() int {
	return len(p.Actions)
}

// SlotActions groups actions by slot, preserving per-slot order.
// Slot keys iterate via SortedSlots-style ordering at the call site.
func (p *Plan) SlotActions() map[Slot][]Action {
	grouped := make(map[Slot][]Action)
	for _, a := range p.Actions {
		grouped[a.Slot] = append(grouped[a.Slot], a)
	}
	return grouped
}

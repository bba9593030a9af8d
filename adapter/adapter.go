// Package adapter defines the notification boundary for reconciliation
// reports.
//
// Adapters publish a summary of each executor run to downstream systems
// (CI dashboards, fleet provisioning trackers). The CLI owns adapter
// lifecycle; users provide configuration only.
package adapter

import "context"

// ReconcileEvent is the payload published when a reconciliation run
// finishes.
type ReconcileEvent struct {
	EventType string `json:"event_type"` // always "workspace_reconciled"
	Workspace string `json:"workspace"`
	Board     string `json:"board"`
	Toolchain string `json:"toolchain"`
	// Outcome is "success", "partial", or "failed".
	Outcome    string `json:"outcome"`
	Planned    int    `json:"planned"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Pending    int    `json:"pending"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"` // ISO 8601
}

// Adapter publishes reconciliation events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a reconciliation event downstream.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ReconcileEvent) error

	// Close releases adapter resources.
	Close() error
}

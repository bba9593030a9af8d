// Package inspect implements the state inspector: it reconstructs what a
// workspace actually contains.
//
// The happy path reads the persisted .state record. If that record is
// absent or unreadable (corrupt, truncated, wrong format version) the
// inspector degrades to a best-effort scan of slot marker files and
// flags the result Unverified. An Unverified state forces the planner to
// treat every slot as unknown, never matching, so a tampered or
// half-written workspace is re-verified instead of trusted.
package inspect

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/types"
)

// StateFileName is the persisted workspace state record.
const StateFileName = ".state"

// markerDir holds per-slot marker files for the degraded scan path.
const markerDir = ".strata/slots"

// Inspect reconstructs the actual state of a workspace. It never fails:
// a corrupt or missing record degrades to an Unverified scan.
func Inspect(root string, logger *log.Logger) *types.WorkspaceState {
	state, err := LoadState(root)
	if err == nil {
		return state
	}

	if !os.IsNotExist(err) {
		logger.Warn("workspace state unreadable, degrading to scan", map[string]any{
			"error": err.Error(),
		})
	}
	return Scan(root)
}

// LoadState reads and validates the persisted .state record.
// Returns a classified ErrStateCorrupt for anything but a clean read;
// a missing record surfaces the underlying os.IsNotExist error.
func LoadState(root string) (*types.WorkspaceState, error) {
	data, err := os.ReadFile(filepath.Join(root, StateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, types.NewError(types.ErrStateCorrupt, "inspect", StateFileName, err)
	}

	var state types.WorkspaceState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, types.NewError(types.ErrStateCorrupt, "inspect", StateFileName, err)
	}
	if state.FormatVersion != types.StateFormatVersion {
		return nil, types.NewError(types.ErrStateCorrupt, "inspect", StateFileName,
			fmt.Errorf("format version %d, want %d", state.FormatVersion, types.StateFormatVersion))
	}
	if state.Slots == nil {
		state.Slots = make(map[types.Slot]types.SlotState)
	}
	return &state, nil
}

// SaveState atomically rewrites the .state record.
func SaveState(root string, state *types.WorkspaceState) error {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode workspace state: %w", err)
	}

	tmp, err := os.CreateTemp(root, ".state-*")
	if err != nil {
		return fmt.Errorf("write workspace state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		iox.DiscardClose(tmp)
		_ = os.Remove(tmpName)
		return fmt.Errorf("write workspace state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		iox.DiscardClose(tmp)
		_ = os.Remove(tmpName)
		return fmt.Errorf("write workspace state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write workspace state: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(root, StateFileName)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write workspace state: %w", err)
	}
	return nil
}

// DeleteState removes the .state record. Missing is not an error.
func DeleteState(root string) error {
	err := os.Remove(filepath.Join(root, StateFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Scan infers installed slots from marker files. The result is always
// Unverified; a scan can say what seems installed, never that it is
// intact.
func Scan(root string) *types.WorkspaceState {
	state := types.NewWorkspaceState()
	state.Unverified = true

	entries, err := os.ReadDir(filepath.Join(root, markerDir))
	if err != nil {
		return state
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		slotName, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, markerDir, entry.Name()))
		if err != nil {
			continue
		}
		var slotState types.SlotState
		if err := msgpack.Unmarshal(data, &slotState); err != nil {
			// Unparseable marker: note the slot exists, ref unknown.
			state.Slots[types.Slot(slotName)] = types.SlotState{}
			continue
		}
		state.Slots[types.Slot(slotName)] = slotState
	}
	return state
}

// WriteMarker records a slot marker for the degraded scan path.
func WriteMarker(root string, slot types.Slot, slotState types.SlotState) error {
	dir := filepath.Join(root, markerDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write slot marker %s: %w", slot, err)
	}
	data, err := msgpack.Marshal(slotState)
	if err != nil {
		return fmt.Errorf("write slot marker %s: %w", slot, err)
	}
	path := filepath.Join(dir, url.PathEscape(string(slot)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write slot marker %s: %w", slot, err)
	}
	return nil
}

// ReadMarker returns the recorded marker for a slot, or false when the
// marker is absent or unreadable.
func ReadMarker(root string, slot types.Slot) (types.SlotState, bool) {
	path := filepath.Join(root, markerDir, url.PathEscape(string(slot)))
	data, err := os.ReadFile(path)
	if err != nil {
		return types.SlotState{}, false
	}
	var slotState types.SlotState
	if err := msgpack.Unmarshal(data, &slotState); err != nil {
		return types.SlotState{}, false
	}
	return slotState, true
}

// RemoveMarker deletes a slot marker. Missing is not an error.
func RemoveMarker(root string, slot types.Slot) error {
	path := filepath.Join(root, markerDir, url.PathEscape(string(slot)))
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

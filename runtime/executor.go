// Package runtime implements the strata executor: it applies a plan
// against a workspace under the advisory lock.
//
// Execution is resumable by construction. Every action is idempotent,
// completed work is left in place on failure, and the report lists
// completed versus pending actions so a rerun (which replans against
// on-disk state) naturally skips already-satisfied slots.
package runtime

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pithecene-io/strata/fetch"
	"github.com/pithecene-io/strata/inspect"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/kconfig"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/plan"
	"github.com/pithecene-io/strata/resolve"
	"github.com/pithecene-io/strata/store"
	"github.com/pithecene-io/strata/types"
)

// DefaultParallel is the default worker pool width for slot-independent
// actions.
const DefaultParallel = 4

// Executor applies plans to a workspace.
type Executor struct {
	Store   *store.Store
	Fetcher fetch.Fetcher
	Logger  *log.Logger
	// Retry bounds artifact-acquisition retries; zero value uses
	// DefaultRetryPolicy.
	Retry RetryPolicy
	// Parallel is the worker pool width; values below 1 use
	// DefaultParallel.
	Parallel int
}

// FailedAction pairs an action with the error that stopped it.
type FailedAction struct {
	Action types.Action `json:"action"`
	Err    error        `json:"-"`
	// Error is the message form, for report serialization.
	Error string `json:"error"`
}

// Report describes one executor run: what completed, what failed, and
// what never started. Partial progress is itself a valid, resumable
// state.
type Report struct {
	Completed []types.Action `json:"completed"`
	Failed    []FailedAction `json:"failed,omitempty"`
	Pending   []types.Action `json:"pending,omitempty"`
	// State is the workspace state after the run, as persisted.
	State    *types.WorkspaceState `json:"state"`
	Duration time.Duration         `json:"duration"`
}

// Succeeded reports whether every action completed.
func (r *Report) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.Pending) == 0
}

// Apply executes the plan against the workspace rooted at root.
//
// The workspace lock is held for the duration. On an action's failure
// the executor stops scheduling further work, leaves completed actions
// in place, persists the state reflecting them, and returns the report
// alongside the first failure.
func (e *Executor) Apply(ctx context.Context, root string, desired *types.ResolvedGraph, p *types.Plan) (*Report, error) {
	start := time.Now()

	lock, err := AcquireLock(root)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardErr(lock.Release)

	run := &applyRun{
		exec:    e,
		root:    root,
		desired: desired,
		state:   loadOrFreshState(root),
		logger:  e.Logger,
	}
	if run.logger == nil {
		run.logger = log.Nop()
	}

	run.execute(ctx, p)

	if err := inspect.SaveState(root, run.state); err != nil {
		run.logger.Error("failed to persist workspace state", map[string]any{
			"error": err.Error(),
		})
		if run.firstErr == nil {
			run.firstErr = err
		}
	}

	report := &Report{
		Completed: run.completed,
		Failed:    run.failed,
		Pending:   run.pending,
		State:     run.state,
		Duration:  time.Since(start),
	}
	return report, run.firstErr
}

// Clean removes every managed slot from the workspace and deletes the
// state record. Implemented as reconciliation toward an empty graph so
// it shares the lock, ordering, and reporting of a normal run.
func (e *Executor) Clean(ctx context.Context, root string) (*Report, error) {
	logger := e.Logger
	if logger == nil {
		logger = log.Nop()
	}
	actual := inspect.Inspect(root, logger)
	empty := &types.ResolvedGraph{
		Slots: map[types.Slot]types.ArtifactRef{},
		Ops:   map[types.Slot][]types.FSOp{},
	}
	p := plan.Build(empty, actual, plan.Options{})

	report, err := e.Apply(ctx, root, empty, p)
	if err != nil {
		return report, err
	}
	if err := inspect.DeleteState(root); err != nil {
		return report, fmt.Errorf("remove workspace state: %w", err)
	}
	return report, nil
}

// loadOrFreshState returns the persisted state, or a fresh one when the
// record is absent or unreadable. The executor rebuilds entries as slots
// complete, so starting fresh under corruption is safe.
func loadOrFreshState(root string) *types.WorkspaceState {
	state, err := inspect.LoadState(root)
	if err != nil {
		return types.NewWorkspaceState()
	}
	return state
}

// applyRun is the mutable state of one Apply invocation.
type applyRun struct {
	exec    *Executor
	root    string
	desired *types.ResolvedGraph
	logger  *log.Logger

	mu        sync.Mutex
	state     *types.WorkspaceState
	completed []types.Action
	failed    []FailedAction
	pending   []types.Action
	firstErr  error
	stopped   bool
}

// execute drives the slot-keyed worker pool. Slots touch disjoint
// filesystem subtrees, so distinct slots run concurrently; actions
// within one slot run in plan order on a single worker.
func (r *applyRun) execute(ctx context.Context, p *types.Plan) {
	grouped := p.SlotActions()

	// Slot feed order follows first appearance in the plan.
	slots := make([]types.Slot, 0, len(grouped))
	seen := make(map[types.Slot]bool, len(grouped))
	for _, a := range p.Actions {
		if !seen[a.Slot] {
			seen[a.Slot] = true
			slots = append(slots, a.Slot)
		}
	}

	parallel := r.exec.Parallel
	if parallel < 1 {
		parallel = DefaultParallel
	}
	if parallel > len(slots) {
		parallel = len(slots)
	}

	queue := make(chan types.Slot, len(slots))
	for _, s := range slots {
		queue <- s
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slot := range queue {
				if r.isStopped() {
					r.markPending(grouped[slot])
					continue
				}
				r.runSlot(ctx, slot, grouped[slot])
			}
		}()
	}
	wg.Wait()
}

// runSlot executes one slot's lifecycle in order. Cancellation and the
// stop flag are observed between actions, never mid-action.
func (r *applyRun) runSlot(ctx context.Context, slot types.Slot, actions []types.Action) {
	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			r.fail(action, err)
			r.markPending(actions[i+1:])
			return
		}
		if r.isStopped() {
			r.markPending(actions[i:])
			return
		}

		if err := r.apply(ctx, action); err != nil {
			r.logger.Error("action failed", map[string]any{
				"action": action.String(),
				"error":  err.Error(),
			})
			r.fail(action, err)
			r.markPending(actions[i+1:])
			return
		}

		r.logger.Debug("action complete", map[string]any{"action": action.String()})
		r.markCompleted(action)
	}
	r.finalizeSlot(slot)
}

// apply dispatches a single action. Each branch is idempotent.
func (r *applyRun) apply(ctx context.Context, a types.Action) error {
	switch a.Kind {
	case types.ActionFetch:
		return r.applyFetch(ctx, a)
	case types.ActionVerify:
		return r.applyVerify(a)
	case types.ActionUnlink:
		return r.applyUnlink(a)
	case types.ActionLink:
		return r.applyLink(a)
	case types.ActionPatch:
		return r.applyPatch(a)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// applyFetch ensures the artifact is present and intact in the store.
// An already-present verified artifact is a no-op; acquisition failures
// retry under the policy.
func (r *applyRun) applyFetch(ctx context.Context, a types.Action) error {
	if _, ok := r.exec.Store.Get(a.Ref); ok && r.exec.Store.Verify(a.Ref) {
		return nil
	}

	policy := r.exec.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy
	}
	return policy.Do(ctx, func() error {
		body, err := r.exec.Fetcher.Fetch(ctx, a.Ref.SourceURL, a.Ref.Checksum)
		if err != nil {
			return err
		}
		_, err = r.exec.Store.Put(a.Ref, bytes.NewReader(body))
		return err
	})
}

func (r *applyRun) applyVerify(a types.Action) error {
	if !r.exec.Store.Verify(a.Ref) {
		return types.NewError(types.ErrChecksumMismatch, "verify", a.Ref.Name,
			fmt.Errorf("artifact absent or corrupt in store"))
	}
	return nil
}

// applyUnlink removes the slot's link, any filesystem operations it
// applied, its marker, and its state entry. Missing targets are no-ops.
func (r *applyRun) applyUnlink(a types.Action) error {
	r.mu.Lock()
	prior, present := r.state.Slots[a.Slot]
	r.mu.Unlock()
	if !present {
		// Unreadable state record: the slot marker still knows which
		// filesystem operations were applied.
		prior, present = inspect.ReadMarker(r.root, a.Slot)
	}

	if present {
		for _, op := range prior.AppliedOps {
			if op.Kind == types.FSOpKconfig {
				if err := kconfig.Unregister(filepath.Join(r.root, op.Path), op.Target); err != nil {
					return fmt.Errorf("unlink %s: %w", a.Slot, err)
				}
				continue
			}
			removeIfExists(filepath.Join(r.root, op.Path))
		}
	}
	linkPath := filepath.Join(r.root, a.Slot.Path())
	removeIfExists(linkPath)

	if err := inspect.RemoveMarker(r.root, a.Slot); err != nil {
		return fmt.Errorf("unlink %s: %w", a.Slot, err)
	}

	r.mu.Lock()
	delete(r.state.Slots, a.Slot)
	r.mu.Unlock()
	return nil
}

// applyLink points the slot path at the stored artifact. Re-running on
// an already-correct symlink is a no-op.
func (r *applyRun) applyLink(a types.Action) error {
	target, ok := r.exec.Store.Get(a.Ref)
	if !ok {
		return types.NewError(types.ErrChecksumMismatch, "link", a.Ref.Name,
			fmt.Errorf("artifact not in store"))
	}

	linkPath := filepath.Join(r.root, a.Slot.Path())
	if current, err := os.Readlink(linkPath); err == nil {
		if current == target {
			r.recordLink(a)
			return nil
		}
		removeIfExists(linkPath)
	} else if _, serr := os.Lstat(linkPath); serr == nil {
		// Exists but is not a symlink; replace it.
		removeIfExists(linkPath)
	}

	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return fmt.Errorf("link %s: %w", a.Slot, err)
	}
	if err := os.Symlink(target, linkPath); err != nil {
		return fmt.Errorf("link %s: %w", a.Slot, err)
	}
	r.recordLink(a)
	return nil
}

// recordLink provisionally records the slot; the effect hash is
// finalized when the slot's remaining actions complete.
func (r *applyRun) recordLink(a types.Action) {
	r.mu.Lock()
	r.state.Slots[a.Slot] = types.SlotState{
		Ref:       a.Ref,
		Timestamp: time.Now().UTC(),
	}
	r.mu.Unlock()
}

// applyPatch realizes one slot filesystem operation.
//
// Semantics per kind (Target resolves against the workspace root when
// relative, so ops typically reference linked slot content):
//   - symlink: Path becomes a symlink to Target
//   - copy:    Target's bytes are copied to Path
//   - patch:   Target's bytes are staged at Path for the build tool;
//     mechanically identical to copy, kept distinct so downstream
//     tooling can treat .patch staging specially
//   - kconfig: the board named by Target is registered in the Kconfig
//     tree at Path
func (r *applyRun) applyPatch(a types.Action) error {
	if a.Op == nil {
		return fmt.Errorf("patch %s: missing operation", a.Slot)
	}
	op := *a.Op
	dest := filepath.Join(r.root, op.Path)
	target := op.Target
	if !filepath.IsAbs(target) {
		target = filepath.Join(r.root, target)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("patch %s %s: %w", a.Slot, op.Path, err)
	}

	switch op.Kind {
	case types.FSOpKconfig:
		if err := kconfig.Register(dest, op.Target); err != nil {
			return fmt.Errorf("patch %s %s: %w", a.Slot, op.Path, err)
		}

	case types.FSOpSymlink:
		if current, err := os.Readlink(dest); err == nil && current == target {
			break
		}
		removeIfExists(dest)
		if err := os.Symlink(target, dest); err != nil {
			return fmt.Errorf("patch %s %s: %w", a.Slot, op.Path, err)
		}

	case types.FSOpCopy, types.FSOpPatch:
		same, err := sameContent(target, dest)
		if err != nil {
			return fmt.Errorf("patch %s %s: %w", a.Slot, op.Path, err)
		}
		if same {
			break
		}
		if err := copyFile(target, dest); err != nil {
			return fmt.Errorf("patch %s %s: %w", a.Slot, op.Path, err)
		}

	default:
		return fmt.Errorf("patch %s %s: unknown op kind %q", a.Slot, op.Path, op.Kind)
	}

	r.mu.Lock()
	if slotState, ok := r.state.Slots[a.Slot]; ok {
		slotState.AppliedOps = append(slotState.AppliedOps, op)
		r.state.Slots[a.Slot] = slotState
	}
	r.mu.Unlock()
	return nil
}

// finalizeSlot stamps the slot's effect hash and writes the slot
// marker once the slot's full lifecycle has completed.
func (r *applyRun) finalizeSlot(slot types.Slot) {
	r.mu.Lock()
	slotState, ok := r.state.Slots[slot]
	if ok {
		if ops := r.desired.Ops[slot]; len(ops) > 0 {
			slotState.AppliedEffectHash = resolve.OpsHash(ops)
		}
		r.state.Slots[slot] = slotState
	}
	r.mu.Unlock()

	if !ok {
		// Slot ended removed (unlink lifecycle); nothing to mark.
		return
	}
	if err := inspect.WriteMarker(r.root, slot, slotState); err != nil {
		r.logger.Warn("failed to write slot marker", map[string]any{
			"slot":  string(slot),
			"error": err.Error(),
		})
	}
}

func (r *applyRun) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *applyRun) markCompleted(a types.Action) {
	r.mu.Lock()
	r.completed = append(r.completed, a)
	r.mu.Unlock()
}

func (r *applyRun) markPending(actions []types.Action) {
	if len(actions) == 0 {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, actions...)
	r.mu.Unlock()
}

func (r *applyRun) fail(a types.Action, err error) {
	r.mu.Lock()
	r.failed = append(r.failed, FailedAction{Action: a, Err: err, Error: err.Error()})
	if r.firstErr == nil {
		r.firstErr = err
	}
	r.stopped = true
	r.mu.Unlock()
}

// removeIfExists removes a file or symlink, ignoring absence.
func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		// Directories from earlier layouts: best-effort recursive remove.
		_ = os.RemoveAll(path)
	}
}

// sameContent reports whether dest exists with the same sha256 digest as
// src.
func sameContent(src, dest string) (bool, error) {
	destSum, err := fileChecksum(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	srcSum, err := fileChecksum(src)
	if err != nil {
		return false, err
	}
	return destSum == srcSum, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer iox.DiscardClose(f)
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(in)

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".patch-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		iox.DiscardClose(tmp)
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

package runtime

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pithecene-io/strata/types"
)

// LockFileName is the workspace-level advisory lock file.
const LockFileName = ".strata-lock"

// Lock is a held workspace advisory lock. It exists for the duration of
// an executor run; a second invocation on the same workspace fails fast
// with ErrWorkspaceBusy rather than interleaving filesystem mutations.
type Lock struct {
	path  string
	owner string
}

// AcquireLock takes the workspace lock, creating the workspace root if
// it does not exist yet. O_EXCL creation makes acquisition atomic; the
// lock file records owner token and pid for diagnostics.
func AcquireLock(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root %s: %w", root, err)
	}

	path := filepath.Join(root, LockFileName)
	owner := uuid.NewString()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, types.NewError(types.ErrWorkspaceBusy, "lock", path,
				fmt.Errorf("another invocation holds the workspace lock"))
		}
		return nil, fmt.Errorf("acquire workspace lock %s: %w", path, err)
	}

	_, werr := fmt.Fprintf(f, "owner=%s pid=%d\n", owner, os.Getpid())
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		if werr != nil {
			return nil, fmt.Errorf("acquire workspace lock %s: %w", path, werr)
		}
		return nil, fmt.Errorf("acquire workspace lock %s: %w", path, cerr)
	}

	return &Lock{path: path, owner: owner}, nil
}

// Release removes the lock file. Safe to call once.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release workspace lock %s: %w", l.path, err)
	}
	return nil
}

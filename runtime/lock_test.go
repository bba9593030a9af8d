package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/strata/types"
)

func TestAcquireLock(t *testing.T) {
	root := t.TempDir()

	lock, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, LockFileName))
	if err != nil {
		t.Fatalf("lock file unreadable: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file should record owner and pid")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}
}

func TestAcquireLock_CreatesWorkspaceRoot(t *testing.T) {
	// A fresh setup points at a workspace directory that does not exist
	// yet; acquisition must bootstrap it rather than fail.
	root := filepath.Join(t.TempDir(), "fw", "workspace")

	lock, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("AcquireLock on missing root: %v", err)
	}
	defer func() { _ = lock.Release() }()

	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("workspace root: %v", err)
	}
	if !info.IsDir() {
		t.Error("workspace root should be a directory")
	}
}

func TestAcquireLock_Busy(t *testing.T) {
	root := t.TempDir()

	first, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer func() { _ = first.Release() }()

	_, err = AcquireLock(root)
	if !errors.Is(err, types.ErrWorkspaceBusy) {
		t.Errorf("second acquisition err = %v, want ErrWorkspaceBusy", err)
	}
}

func TestAcquireLock_ReacquireAfterRelease(t *testing.T) {
	root := t.TempDir()

	first, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := AcquireLock(root)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	_ = second.Release()
}

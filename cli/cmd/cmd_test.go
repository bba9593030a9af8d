package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/inspect"
	"github.com/pithecene-io/strata/store"
	"github.com/pithecene-io/strata/types"
)

// testApp mirrors the production command wiring, with exit handling
// suppressed so cli.Exit errors return to the test instead of killing
// the process.
func testApp() *cli.App {
	return &cli.App{
		Name:           "strata",
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			SetupCommand(),
			StatusCommand(),
			CleanCommand(),
			VersionsCommand(),
			VersionCommand("test"),
		},
	}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitOK
	}
	var coder cli.ExitCoder
	if !errors.As(err, &coder) {
		t.Fatalf("error carries no exit code: %v", err)
	}
	return coder.ExitCode()
}

// env is a workspace + artifact server + registry under test.
type env struct {
	workspace string
	storeRoot string
	server    *httptest.Server

	toolchainSum string
	boardSum     string
	overlaySum   string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	artifacts := map[string][]byte{
		"/xtensa-gcc-12.3.0.tar.gz":   []byte("toolchain blob"),
		"/esp32-support-1.2.0.tar.gz": []byte("board support blob"),
		"/wifi-overlay-2.0.0.tar.gz":  []byte("CONFIG_WIFI=y\n"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := artifacts[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	e := &env{
		workspace:    t.TempDir(),
		storeRoot:    t.TempDir(),
		server:       srv,
		toolchainSum: store.Checksum(artifacts["/xtensa-gcc-12.3.0.tar.gz"]),
		boardSum:     store.Checksum(artifacts["/esp32-support-1.2.0.tar.gz"]),
		overlaySum:   store.Checksum(artifacts["/wifi-overlay-2.0.0.tar.gz"]),
	}
	e.writeRegistry(t, e.toolchainSum)
	e.writeSpec(t, `
board: esp32
toolchain: "12.3.0"
overlays:
  - wifi
`)
	return e
}

func (e *env) writeRegistry(t *testing.T, toolchainSum string) {
	t.Helper()
	index := fmt.Sprintf(`
toolchains:
  - name: xtensa-gcc
    version: "12.3.0"
    checksum: %s
    url: %s/xtensa-gcc-12.3.0.tar.gz
boards:
  esp32:
    - name: esp32-support
      version: "1.2.0"
      checksum: %s
      url: %s/esp32-support-1.2.0.tar.gz
overlays:
  wifi:
    artifact:
      name: wifi-overlay
      version: "2.0.0"
      checksum: %s
      url: %s/wifi-overlay-2.0.0.tar.gz
    ops:
      - kind: copy
        path: configs/wifi.conf
        target: overlays/wifi
`, toolchainSum, e.server.URL, e.boardSum, e.server.URL, e.overlaySum, e.server.URL)
	if err := os.WriteFile(filepath.Join(e.workspace, "registry.yaml"), []byte(index), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *env) writeSpec(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.workspace, "strata.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *env) run(t *testing.T, args ...string) error {
	t.Helper()
	argv := append([]string{"strata", args[0]},
		append([]string{"-w", e.workspace, "--store", e.storeRoot}, args[1:]...)...)
	return testApp().RunContext(context.Background(), argv)
}

func TestSetup_EndToEnd(t *testing.T) {
	e := newEnv(t)

	if err := e.run(t, "setup", "--quiet", "--fetch-retries", "0"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	state, err := inspect.LoadState(e.workspace)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(state.Slots) != 3 {
		t.Errorf("state slots = %d, want 3", len(state.Slots))
	}
	if got := state.Slots[types.SlotToolchain].Ref.Checksum; got != e.toolchainSum {
		t.Errorf("toolchain checksum = %s", got)
	}
	if _, err := os.Readlink(filepath.Join(e.workspace, "toolchain")); err != nil {
		t.Errorf("toolchain link: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.workspace, "configs/wifi.conf")); err != nil {
		t.Errorf("overlay output: %v", err)
	}
	tree, err := os.ReadFile(filepath.Join(e.workspace, "Kconfig"))
	if err != nil {
		t.Fatalf("Kconfig tree: %v", err)
	}
	if !strings.Contains(string(tree), `source "boards/esp32/Kconfig"`) {
		t.Errorf("board not registered in Kconfig tree:\n%s", tree)
	}

	// Second run finds nothing to do and exits clean.
	if err := e.run(t, "setup", "--quiet"); err != nil {
		t.Errorf("second setup: %v", err)
	}
}

func TestSetup_UnknownBoardExitCode(t *testing.T) {
	e := newEnv(t)
	e.writeSpec(t, "board: stm32f4\ntoolchain: \"12.3.0\"\n")

	err := e.run(t, "setup", "--quiet")
	if code := exitCode(t, err); code != exitResolveFailure {
		t.Errorf("exit code = %d, want %d", code, exitResolveFailure)
	}
}

func TestSetup_UnknownSpecFieldExitCode(t *testing.T) {
	e := newEnv(t)
	e.writeSpec(t, "board: esp32\ntoolchain: \"12.3.0\"\ntolchain: oops\n")

	err := e.run(t, "setup", "--quiet")
	if code := exitCode(t, err); code != exitResolveFailure {
		t.Errorf("exit code = %d, want %d", code, exitResolveFailure)
	}
}

func TestSetup_ChecksumMismatchExitCode(t *testing.T) {
	e := newEnv(t)
	// Registry declares a checksum the server's bytes cannot satisfy.
	e.writeRegistry(t, store.Checksum([]byte("different bytes")))

	err := e.run(t, "setup", "--quiet", "--fetch-retries", "0")
	if code := exitCode(t, err); code != exitExecFailure {
		t.Errorf("exit code = %d, want %d", code, exitExecFailure)
	}

	// The failed run must not have installed the toolchain.
	if _, err := os.Lstat(filepath.Join(e.workspace, "toolchain")); !os.IsNotExist(err) {
		t.Error("toolchain link should not exist after failed fetch")
	}
}

func TestSetup_LockContentionExitCode(t *testing.T) {
	e := newEnv(t)
	lockPath := filepath.Join(e.workspace, ".strata-lock")
	if err := os.WriteFile(lockPath, []byte("owner=other pid=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := e.run(t, "setup", "--quiet")
	if code := exitCode(t, err); code != exitLocked {
		t.Errorf("exit code = %d, want %d", code, exitLocked)
	}
}

func TestStatus_ReadOnly(t *testing.T) {
	e := newEnv(t)

	if err := e.run(t, "status", "--format", "json"); err != nil {
		t.Fatalf("status: %v", err)
	}
	// A read-only status run must not create state or locks.
	if _, err := inspect.LoadState(e.workspace); !os.IsNotExist(err) {
		t.Errorf("status created state: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.workspace, ".strata-lock")); !os.IsNotExist(err) {
		t.Error("status left a lock behind")
	}
}

func TestClean_RemovesManagedSlots(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "setup", "--quiet", "--fetch-retries", "0"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// An unmanaged file sits next to managed content.
	keep := filepath.Join(e.workspace, "notes.txt")
	if err := os.WriteFile(keep, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := e.run(t, "clean", "--quiet"); err != nil {
		t.Fatalf("clean: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(e.workspace, "toolchain")); !os.IsNotExist(err) {
		t.Error("toolchain link survived clean")
	}
	if _, err := inspect.LoadState(e.workspace); !os.IsNotExist(err) {
		t.Error("state record survived clean")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("unmanaged file removed by clean: %v", err)
	}
	if tree, err := os.ReadFile(filepath.Join(e.workspace, "Kconfig")); err == nil {
		if strings.Contains(string(tree), "ARCH_BOARD_ESP32") {
			t.Error("board still registered in Kconfig tree after clean")
		}
	}
}

func TestVersions_Registry(t *testing.T) {
	e := newEnv(t)
	if err := e.run(t, "versions", "--format", "json"); err != nil {
		t.Errorf("versions: %v", err)
	}
}

func TestVersion(t *testing.T) {
	if err := testApp().RunContext(context.Background(),
		[]string{"strata", "version", "--format", "json"}); err != nil {
		t.Errorf("version: %v", err)
	}
}

package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/strata/types"
)

const sampleIndex = `
toolchains:
  - name: xtensa-gcc
    version: "10.2.0"
    checksum: aaa1
    url: https://artifacts.example.com/xtensa-gcc-10.2.0.tar.gz
  - name: xtensa-gcc
    version: "12.3.0"
    checksum: bbb2
    url: https://artifacts.example.com/xtensa-gcc-12.3.0.tar.gz
  - name: xtensa-gcc
    version: "12.4.0-RC1"
    checksum: ccc3
    url: https://artifacts.example.com/xtensa-gcc-12.4.0-RC1.tar.gz
boards:
  esp32:
    - name: esp32-support
      version: "1.2.0"
      checksum: ddd4
      url: https://artifacts.example.com/esp32-support-1.2.0.tar.gz
overlays:
  wifi:
    artifact:
      name: wifi-overlay
      version: "2.0.0"
      checksum: eee5
      url: https://artifacts.example.com/wifi-overlay-2.0.0.tar.gz
    ops:
      - kind: copy
        path: configs/wifi.conf
        target: overlays/wifi
`

func TestDecode(t *testing.T) {
	reg, err := Decode([]byte(sampleIndex))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got := len(reg.Toolchains()); got != 3 {
		t.Errorf("toolchains = %d, want 3", got)
	}

	refs, ok := reg.BoardSupport("esp32")
	if !ok || len(refs) != 1 {
		t.Fatalf("BoardSupport(esp32) = (%v, %v)", refs, ok)
	}
	if refs[0].Checksum != "ddd4" {
		t.Errorf("board ref = %v", refs[0])
	}
	if _, ok := reg.BoardSupport("stm32f4"); ok {
		t.Error("unregistered board should report absent")
	}

	ov, ok := reg.Overlay("wifi")
	if !ok {
		t.Fatal("overlay wifi missing")
	}
	if ov.Name != "wifi" || ov.Artifact.Checksum != "eee5" {
		t.Errorf("overlay = %+v", ov)
	}
	if len(ov.Ops) != 1 || ov.Ops[0].Kind != types.FSOpCopy {
		t.Errorf("overlay ops = %v", ov.Ops)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte("toolchains: [unclosed")); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestRegistry_ToolchainVersions(t *testing.T) {
	reg, err := Decode([]byte(sampleIndex))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	versions := reg.ToolchainVersions()
	if len(versions) != 3 {
		t.Fatalf("versions = %v", versions)
	}
	// Newest first; the RC of 12.4.0 sorts above 12.3.0.
	want := []string{"12.4.0-RC1", "12.3.0", "10.2.0"}
	for i, w := range want {
		if versions[i].String() != w {
			t.Errorf("versions[%d] = %s, want %s", i, versions[i], w)
		}
	}
}

func TestRegistry_Immutable(t *testing.T) {
	reg, err := Decode([]byte(sampleIndex))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// Mutating a returned slice must not leak into the snapshot.
	tcs := reg.Toolchains()
	tcs[0].Checksum = "mutated"
	if reg.Toolchains()[0].Checksum == "mutated" {
		t.Error("Toolchains must return a copy")
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	if err := os.WriteFile(path, []byte(sampleIndex), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg.Toolchains()) != 3 {
		t.Errorf("toolchains = %d", len(reg.Toolchains()))
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "nope.yaml")}.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not-found message", err)
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecene-io/strata/types"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultSpecFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSpec(t *testing.T) {
	path := writeSpec(t, `
board: esp32
toolchain: ">=10.0,<13.0"
overlays:
  - wifi
  - bt
`)
	spec, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("LoadSpec: %v", err)
	}
	if spec.Board != "esp32" || spec.Toolchain != ">=10.0,<13.0" {
		t.Errorf("spec = %+v", spec)
	}
	if len(spec.Overlays) != 2 || spec.Overlays[0] != "wifi" {
		t.Errorf("overlays = %v", spec.Overlays)
	}
}

func TestLoadSpec_UnknownFieldRejected(t *testing.T) {
	path := writeSpec(t, `
board: esp32
toolchain: "12.3.0"
toolchian_version: "oops"
`)
	_, err := LoadSpec(path)
	if !errors.Is(err, types.ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}
}

func TestLoadSpec_Missing(t *testing.T) {
	_, err := LoadSpec(filepath.Join(t.TempDir(), DefaultSpecFile))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadSpec_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing board", "toolchain: \"12.3.0\"\n", "board is required"},
		{"missing toolchain", "board: esp32\n", "toolchain is required"},
		{
			"duplicate overlay",
			"board: esp32\ntoolchain: \"12.3.0\"\noverlays: [wifi, wifi]\n",
			"declared twice",
		},
		{
			"empty overlay name",
			"board: esp32\ntoolchain: \"12.3.0\"\noverlays: [\"\"]\n",
			"non-empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSpec(writeSpec(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSpec_ExpandsEnv(t *testing.T) {
	t.Setenv("STRATA_TEST_BOARD", "esp32")
	path := writeSpec(t, `
board: ${STRATA_TEST_BOARD}
toolchain: "${STRATA_TEST_TOOLCHAIN:-12.3.0}"
`)
	spec, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("LoadSpec: %v", err)
	}
	if spec.Board != "esp32" {
		t.Errorf("board = %q", spec.Board)
	}
	if spec.Toolchain != "12.3.0" {
		t.Errorf("toolchain = %q, want default applied", spec.Toolchain)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("STRATA_TEST_SET", "value")
	t.Setenv("STRATA_TEST_EMPTY", "")
	os.Unsetenv("STRATA_TEST_UNSET")

	tests := []struct {
		input string
		want  string
	}{
		{"${STRATA_TEST_SET}", "value"},
		{"${STRATA_TEST_UNSET}", ""},
		{"${STRATA_TEST_UNSET:-fallback}", "fallback"},
		{"${STRATA_TEST_EMPTY:-fallback}", "fallback"},
		{"${STRATA_TEST_SET:-fallback}", "value"},
		{"plain text", "plain text"},
		{"$NOT_EXPANDED", "$NOT_EXPANDED"},
		{"a ${STRATA_TEST_SET} b", "a value b"},
	}
	for _, tt := range tests {
		if got := expandEnv(tt.input); got != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

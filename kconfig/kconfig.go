// Package kconfig maintains board registrations inside a workspace
// Kconfig tree.
//
// A registered board contributes two fragments to the top-level Kconfig
// file: a default line under the ARCH_BOARD config guarded by the
// board's symbol, and an if/source/endif block pulling in the board's
// own Kconfig. Both are inserted at fixed anchor comments so repeated
// registration and removal leave the rest of the file untouched.
package kconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultAnchor = `comment "Common Board Options"`
	sourceAnchor  = `comment "Board-Common Options"`
)

// scaffold is the minimal Kconfig tree written into workspaces that do
// not have one yet. It carries only the anchors the registration
// fragments hang off.
const scaffold = `config ARCH_BOARD
	string

comment "Common Board Options"

comment "Board-Specific Options"

comment "Board-Common Options"
`

// BoardSymbol returns the Kconfig symbol for a board name:
// esp32-devkit becomes ARCH_BOARD_ESP32_DEVKIT.
func BoardSymbol(board string) string {
	return "ARCH_BOARD_" + strings.ToUpper(strings.ReplaceAll(board, "-", "_"))
}

// Register inserts a board's fragments into the Kconfig file at path,
// creating a scaffolded file when none exists. Registering an already
// registered board is a no-op.
func Register(path, board string) error {
	lines, err := readTree(path)
	if err != nil {
		return err
	}

	symbol := BoardSymbol(board)
	if registered(lines, symbol) {
		return nil
	}

	lines, err = insertBefore(lines, defaultAnchor, defaultLine(board, symbol))
	if err != nil {
		return fmt.Errorf("register %s: %w", board, err)
	}
	lines, err = insertBefore(lines, sourceAnchor,
		"if "+symbol,
		fmt.Sprintf("source \"boards/%s/Kconfig\"", board),
		"endif",
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", board, err)
	}
	return writeTree(path, lines)
}

// Unregister removes a board's fragments from the Kconfig file at path.
// A missing file or an unregistered board is a no-op.
func Unregister(path, board string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("unregister %s: %w", board, err)
	}

	symbol := BoardSymbol(board)
	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	skipBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if skipBlock {
			if trimmed == "endif" {
				skipBlock = false
			}
			continue
		}
		if trimmed == "if "+symbol {
			skipBlock = true
			continue
		}
		if strings.HasPrefix(trimmed, "default ") && strings.HasSuffix(trimmed, "if "+symbol) {
			continue
		}
		kept = append(kept, line)
	}
	return writeTree(path, kept)
}

// defaultLine formats the ARCH_BOARD default entry. The guard is padded
// out to a fixed column so registrations line up in the file.
func defaultLine(board, symbol string) string {
	entry := fmt.Sprintf("\tdefault %q", board)
	pad := 37 - len(entry)
	if pad < 1 {
		pad = 1
	}
	return entry + strings.Repeat(" ", pad) + "if " + symbol
}

func registered(lines []string, symbol string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) == "if "+symbol {
			return true
		}
	}
	return false
}

// insertBefore places the fragment above the anchor line, keeping one
// blank line between the fragment and the preceding content.
func insertBefore(lines []string, anchor string, fragment ...string) ([]string, error) {
	at := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == anchor {
			at = i
			break
		}
	}
	if at < 0 {
		return nil, fmt.Errorf("anchor %s not found", anchor)
	}
	if at > 0 && strings.TrimSpace(lines[at-1]) == "" {
		at--
	}

	out := make([]string, 0, len(lines)+len(fragment))
	out = append(out, lines[:at]...)
	out = append(out, fragment...)
	out = append(out, lines[at:]...)
	return out, nil
}

func readTree(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data = []byte(scaffold)
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return strings.Split(string(data), "\n"), nil
}

// writeTree replaces the file atomically so a crash mid-write never
// leaves a truncated tree behind.
func writeTree(path string, lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".kconfig-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strings.Join(lines, "\n")); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

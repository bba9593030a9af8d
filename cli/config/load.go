// Package config handles project spec file loading for strata.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/strata/types"
)

// DefaultSpecFile is the project spec filename looked up at the project
// root.
const DefaultSpecFile = "strata.yaml"

// LoadSpec reads a project spec file, expands environment variables, and
// unmarshals into a ProjectSpec.
//
// Decoding is strict: fields this version does not recognize are
// rejected with ErrUnknownField rather than silently ignored, so typos
// surface before they cause silent misconfiguration.
func LoadSpec(path string) (types.ProjectSpec, error) {
	var spec types.ProjectSpec

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return spec, fmt.Errorf("project spec not found: %s", path)
		}
		return spec, fmt.Errorf("cannot read project spec %q: %w", path, err)
	}

	expanded := expandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			return spec, types.NewError(types.ErrUnknownField, "load spec", path, err)
		}
		return spec, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	if err := validateSpec(spec); err != nil {
		return spec, fmt.Errorf("invalid project spec %s: %w", path, err)
	}
	return spec, nil
}

// envRef matches ${VAR} and ${VAR:-default}. Bare $VAR is left alone so
// spec values can carry literal dollar signs.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// expandEnv substitutes environment references in spec text. An unset or
// empty variable falls back to its :- default when one is declared, and
// to the empty string otherwise; a spec that needed the value fails at
// validation instead.
func expandEnv(in string) string {
	return envRef.ReplaceAllStringFunc(in, func(m string) string {
		name, def, hasDef := strings.Cut(m[2:len(m)-1], ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDef {
			return def
		}
		return ""
	})
}

func validateSpec(spec types.ProjectSpec) error {
	if spec.Board == "" {
		return fmt.Errorf("board is required")
	}
	if spec.Toolchain == "" {
		return fmt.Errorf("toolchain is required")
	}
	seen := make(map[string]bool, len(spec.Overlays))
	for _, name := range spec.Overlays {
		if name == "" {
			return fmt.Errorf("overlay names must be non-empty")
		}
		if seen[name] {
			return fmt.Errorf("overlay %q declared twice", name)
		}
		seen[name] = true
	}
	return nil
}

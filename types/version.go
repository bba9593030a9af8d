package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is the canonical strata version, shared by the CLI and the
// persisted state format notes.
const Version = "0.3.0"

// Toolchain versions follow MAJOR.MINOR[.PATCH][-RCn], mirroring upstream
// RTOS release tags (e.g. "12.3.0", "12.4.0-RC1"). A missing patch
// component is zero.
var toolchainVersionPattern = regexp.MustCompile(
	`^(\d+)\.(\d+)(?:\.(\d+))?(?:-RC(\d+))?$`,
)

// ToolchainVersion is a parsed toolchain/SDK version.
type ToolchainVersion struct {
	Major, Minor, Patch int
	// RC is the release-candidate number, or -1 for a final release.
	RC int
}

// ParseToolchainVersion parses a version string.
func ParseToolchainVersion(s string) (ToolchainVersion, error) {
	m := toolchainVersionPattern.FindStringSubmatch(s)
	if m == nil {
		return ToolchainVersion{}, fmt.Errorf("invalid version %q", s)
	}
	v := ToolchainVersion{RC: -1}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	if m[4] != "" {
		v.RC, _ = strconv.Atoi(m[4])
	}
	return v, nil
}

// IsRC reports whether the version is a release candidate.
func (v ToolchainVersion) IsRC() bool { return v.RC >= 0 }

func (v ToolchainVersion) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.IsRC() {
		s += fmt.Sprintf("-RC%d", v.RC)
	}
	return s
}

// Compare returns -1, 0, or 1. A final release orders after any RC of
// the same triple; RCs order by candidate number.
func (v ToolchainVersion) Compare(o ToolchainVersion) int {
	for _, d := range []int{v.Major - o.Major, v.Minor - o.Minor, v.Patch - o.Patch} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	vr, or := v.RC, o.RC
	if vr == or {
		return 0
	}
	// Final release (-1) beats any RC.
	if vr == -1 {
		return 1
	}
	if or == -1 {
		return -1
	}
	if vr < or {
		return -1
	}
	return 1
}

// constraintTerm is one comparison within a constraint.
type constraintTerm struct {
	op      string // ">=", ">", "<=", "<", "=="
	version ToolchainVersion
	exactRC bool // term literally named an RC version
}

// Constraint is a parsed toolchain constraint: either an exact version or
// a comma-separated conjunction of range terms.
type Constraint struct {
	raw   string
	terms []constraintTerm
	exact bool
}

// ParseConstraint parses a constraint string. Accepted forms:
//
//	"12.3.0"            exact
//	"12.4.0-RC1"        exact, names an RC
//	">=10.0,<11.0"      conjunction of range terms
func ParseConstraint(s string) (Constraint, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Constraint{}, fmt.Errorf("empty toolchain constraint")
	}

	c := Constraint{raw: trimmed}
	parts := strings.Split(trimmed, ",")

	// A single part without an operator is an exact pin.
	if len(parts) == 1 && !strings.ContainsAny(parts[0], "<>=") {
		v, err := ParseToolchainVersion(strings.TrimSpace(parts[0]))
		if err != nil {
			return Constraint{}, err
		}
		c.exact = true
		c.terms = []constraintTerm{{op: "==", version: v, exactRC: v.IsRC()}}
		return c, nil
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		var op string
		switch {
		case strings.HasPrefix(part, ">="):
			op = ">="
		case strings.HasPrefix(part, "<="):
			op = "<="
		case strings.HasPrefix(part, ">"):
			op = ">"
		case strings.HasPrefix(part, "<"):
			op = "<"
		case strings.HasPrefix(part, "=="):
			op = "=="
		case strings.HasPrefix(part, "="):
			op = "="
		default:
			return Constraint{}, fmt.Errorf("invalid constraint term %q", part)
		}
		vs := strings.TrimSpace(strings.TrimPrefix(part, op))
		v, err := ParseToolchainVersion(vs)
		if err != nil {
			return Constraint{}, fmt.Errorf("invalid constraint term %q: %w", part, err)
		}
		if op == "=" {
			op = "=="
		}
		c.terms = append(c.terms, constraintTerm{op: op, version: v, exactRC: v.IsRC()})
	}
	return c, nil
}

// String returns the constraint as declared.
func (c Constraint) String() string { return c.raw }

// Exact reports whether the constraint pins a single version.
func (c Constraint) Exact() bool { return c.exact }

// Satisfies reports whether v satisfies the constraint.
//
// Release candidates satisfy only constraints that name them exactly;
// a range never admits an RC. This mirrors upstream tag handling, where
// RC builds are opt-in.
func (c Constraint) Satisfies(v ToolchainVersion) bool {
	if v.IsRC() {
		for _, t := range c.terms {
			if t.op == "==" && t.exactRC && t.version.Compare(v) == 0 {
				return true
			}
		}
		return false
	}
	for _, t := range c.terms {
		cmp := v.Compare(t.version)
		ok := false
		switch t.op {
		case "==":
			ok = cmp == 0
		case ">=":
			ok = cmp >= 0
		case ">":
			ok = cmp > 0
		case "<=":
			ok = cmp <= 0
		case "<":
			ok = cmp < 0
		}
		if !ok {
			return false
		}
	}
	return true
}

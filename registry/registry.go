// Package registry provides the artifact registry capability injected
// into the resolver.
//
// A Registry is an immutable snapshot of the known artifacts: toolchain
// releases, per-board support packages, and named overlays. Sources load
// snapshots from a local YAML file, an HTTP index, or an S3 object; the
// resolver only ever sees the snapshot, which keeps resolution pure.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/strata/types"
)

// Overlay is a named set of filesystem operations layered onto a base
// board/toolchain setup, backed by an artifact.
type Overlay struct {
	Name     string            `yaml:"name"`
	Artifact types.ArtifactRef `yaml:"artifact"`
	Ops      []types.FSOp      `yaml:"ops"`
}

// Registry is an immutable snapshot of known artifacts.
type Registry struct {
	toolchains []types.ArtifactRef
	boards     map[string][]types.ArtifactRef
	overlays   map[string]Overlay
}

// Source loads a registry snapshot.
type Source interface {
	// Load returns a fresh snapshot. Implementations must not retain
	// references into the returned registry.
	Load(ctx context.Context) (*Registry, error)
}

// registryFile is the on-disk/NET YAML index format.
type registryFile struct {
	Toolchains []types.ArtifactRef            `yaml:"toolchains"`
	Boards     map[string][]types.ArtifactRef `yaml:"boards"`
	Overlays   map[string]overlayFile         `yaml:"overlays"`
}

type overlayFile struct {
	Artifact types.ArtifactRef `yaml:"artifact"`
	Ops      []types.FSOp      `yaml:"ops"`
}

// New builds a registry snapshot from explicit tables. Primarily for
// tests and embedded defaults.
func New(toolchains []types.ArtifactRef, boards map[string][]types.ArtifactRef, overlays map[string]Overlay) *Registry {
	r := &Registry{
		toolchains: append([]types.ArtifactRef(nil), toolchains...),
		boards:     make(map[string][]types.ArtifactRef, len(boards)),
		overlays:   make(map[string]Overlay, len(overlays)),
	}
	for board, refs := range boards {
		r.boards[board] = append([]types.ArtifactRef(nil), refs...)
	}
	for name, ov := range overlays {
		ov.Name = name
		r.overlays[name] = ov
	}
	return r
}

// Decode parses a YAML registry index into a snapshot.
func Decode(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid registry index: %w", err)
	}

	overlays := make(map[string]Overlay, len(f.Overlays))
	for name, ov := range f.Overlays {
		overlays[name] = Overlay{Name: name, Artifact: ov.Artifact, Ops: ov.Ops}
	}
	return New(f.Toolchains, f.Boards, overlays), nil
}

// Toolchains returns all known toolchain releases, unordered.
func (r *Registry) Toolchains() []types.ArtifactRef {
	return append([]types.ArtifactRef(nil), r.toolchains...)
}

// BoardSupport returns all known support packages for a board, unordered.
// The second return is false when the board is not registered at all.
func (r *Registry) BoardSupport(board string) ([]types.ArtifactRef, bool) {
	refs, ok := r.boards[board]
	if !ok {
		return nil, false
	}
	return append([]types.ArtifactRef(nil), refs...), true
}

// Overlay returns the named overlay definition.
func (r *Registry) Overlay(name string) (Overlay, bool) {
	ov, ok := r.overlays[name]
	return ov, ok
}

// ToolchainVersions returns the parseable toolchain versions, newest
// first. Used by the versions command.
func (r *Registry) ToolchainVersions() []types.ToolchainVersion {
	var versions []types.ToolchainVersion
	for _, ref := range r.toolchains {
		v, err := types.ParseToolchainVersion(ref.Version)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) > 0
	})
	return versions
}

// FileSource loads a registry snapshot from a local YAML file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(_ context.Context) (*Registry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("registry index not found: %s", s.Path)
		}
		return nil, fmt.Errorf("cannot read registry index %q: %w", s.Path, err)
	}
	return Decode(data)
}

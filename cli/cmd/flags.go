// Package cmd provides CLI commands for the strata binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes. Resolution failures, execution failures, and lock
// contention are distinguishable by code so CI wrappers can branch
// without parsing output.
const (
	exitOK             = 0
	exitResolveFailure = 2
	exitExecFailure    = 3
	exitLocked         = 4
)

// Shared flags.
var (
	// WorkspaceFlag selects the workspace directory.
	WorkspaceFlag = &cli.StringFlag{
		Name:    "workspace",
		Aliases: []string{"w"},
		Usage:   "Workspace directory",
		Value:   ".",
	}

	// SpecFlag selects the project spec file, resolved against the
	// workspace when relative.
	SpecFlag = &cli.StringFlag{
		Name:  "spec",
		Usage: "Project spec file",
		Value: "strata.yaml",
	}

	// RegistryFlag selects the artifact registry index:
	// a local path, an http(s) URL, or s3://bucket/key.
	RegistryFlag = &cli.StringFlag{
		Name:  "registry",
		Usage: "Registry index: path, http(s) URL, or s3://bucket/key",
		Value: "registry.yaml",
	}

	// RegistryRegionFlag sets the AWS region for s3:// registries.
	RegistryRegionFlag = &cli.StringFlag{
		Name:  "registry-region",
		Usage: "AWS region for s3:// registry (optional, uses default chain)",
	}

	// StoreFlag overrides the artifact store root.
	StoreFlag = &cli.StringFlag{
		Name:  "store",
		Usage: "Artifact store root (default: user cache dir)",
	}

	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}
)

// CommonFlags returns the flags shared by all workspace commands.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		WorkspaceFlag,
		SpecFlag,
		RegistryFlag,
		RegistryRegionFlag,
		StoreFlag,
		FormatFlag,
	}
}

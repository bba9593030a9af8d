package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/registry"
	"github.com/pithecene-io/strata/types"
)

// VersionRow is one toolchain version in the listing.
type VersionRow struct {
	Version string `json:"version"`
	RC      bool   `json:"rc"`
}

// VersionsCommand returns the versions command: list toolchain versions
// known to the registry, or discovered from an upstream repository's
// tags with --remote.
func VersionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "List available toolchain versions (read-only)",
		Flags: append(CommonFlags(),
			&cli.StringFlag{
				Name:  "remote",
				Usage: "Discover versions from a GitHub repository's tags",
			},
			&cli.StringFlag{
				Name:  "tag-prefix",
				Usage: "Tag prefix stripped before version parsing (e.g. nuttx-)",
			},
			&cli.BoolFlag{
				Name:  "rc",
				Usage: "Include release candidates",
			},
		),
		Action: versionsAction,
	}
}

func versionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	var versions []types.ToolchainVersion
	if repo := c.String("remote"); repo != "" {
		lister := &registry.GitHubTags{
			RepoURL:   repo,
			TagPrefix: c.String("tag-prefix"),
		}
		versions, err = lister.Versions(c.Context)
		if err != nil {
			return cli.Exit(err.Error(), exitResolveFailure)
		}
	} else {
		root, err := workspaceRoot(c)
		if err != nil {
			return err
		}
		reg, err := loadRegistry(c.Context, c, root)
		if err != nil {
			return cli.Exit(err.Error(), exitResolveFailure)
		}
		versions = reg.ToolchainVersions()
	}

	includeRC := c.Bool("rc")
	rows := make([]VersionRow, 0, len(versions))
	for _, v := range versions {
		if v.IsRC() && !includeRC {
			continue
		}
		rows = append(rows, VersionRow{Version: v.String(), RC: v.IsRC()})
	}
	return r.Render(rows)
}

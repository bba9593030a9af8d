package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/config"
	"github.com/pithecene-io/strata/registry"
	"github.com/pithecene-io/strata/store"
	"github.com/pithecene-io/strata/types"
)

// workspaceRoot returns the absolute workspace directory.
func workspaceRoot(c *cli.Context) (string, error) {
	root, err := filepath.Abs(c.String("workspace"))
	if err != nil {
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}
	return root, nil
}

// workspacePath resolves a flag path against the workspace when
// relative.
func workspacePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// loadSpec reads the project spec declared for the workspace.
func loadSpec(c *cli.Context, root string) (types.ProjectSpec, error) {
	return config.LoadSpec(workspacePath(root, c.String("spec")))
}

// registrySource builds a registry source from the --registry flag.
func registrySource(ctx context.Context, c *cli.Context, root string) (registry.Source, error) {
	val := c.String("registry")
	switch {
	case strings.HasPrefix(val, "s3://"):
		bucket, key := registry.ParseS3Path(strings.TrimPrefix(val, "s3://"))
		return registry.NewS3Source(ctx, registry.S3Config{
			Bucket: bucket,
			Key:    key,
			Region: c.String("registry-region"),
		})
	case strings.HasPrefix(val, "http://"), strings.HasPrefix(val, "https://"):
		return registry.HTTPSource{URL: val}, nil
	default:
		return registry.FileSource{Path: workspacePath(root, val)}, nil
	}
}

// loadRegistry loads the registry snapshot for this invocation.
func loadRegistry(ctx context.Context, c *cli.Context, root string) (*registry.Registry, error) {
	src, err := registrySource(ctx, c, root)
	if err != nil {
		return nil, err
	}
	return src.Load(ctx)
}

// openStore opens the artifact store, defaulting to the per-user root.
func openStore(c *cli.Context) (*store.Store, error) {
	root := c.String("store")
	if root == "" {
		var err error
		root, err = store.DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(root)
}

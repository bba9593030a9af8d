package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/types"
)

// DefaultGitHubAPIURL is the GitHub REST API base.
const DefaultGitHubAPIURL = "https://api.github.com"

// Tag is a repository tag. GitHub returns more fields; only the name is
// needed for version discovery.
type Tag struct {
	Name string `json:"name"`
}

// GitHubTags lists tags from an upstream repository to discover
// published toolchain versions. Release tags follow
// "<prefix><version>[-RCn]", e.g. "nuttx-12.3.0-RC1".
type GitHubTags struct {
	// RepoURL is the repository URL, e.g. "https://github.com/apache/nuttx".
	RepoURL string
	// TagPrefix strips a leading tag component before version parsing
	// (e.g. "nuttx-"). Tags without the prefix are skipped.
	TagPrefix string
	// APIURL overrides the GitHub API base. For tests.
	APIURL string
	// Client is the HTTP client; nil uses a client with
	// DefaultHTTPTimeout.
	Client *http.Client
}

// ParseRepoURL extracts owner and repository name from a GitHub URL.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	parsed, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL %q: %w", repoURL, err)
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return "", "", fmt.Errorf("repository URL %q is not a GitHub URL", repoURL)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL %q missing owner/repo", repoURL)
	}
	return parts[0], parts[1], nil
}

// Versions fetches tags and returns the parseable toolchain versions,
// newest first. Paginates until the API returns an empty page.
func (g *GitHubTags) Versions(ctx context.Context) ([]types.ToolchainVersion, error) {
	owner, repo, err := ParseRepoURL(g.RepoURL)
	if err != nil {
		return nil, err
	}

	apiURL := g.APIURL
	if apiURL == "" {
		apiURL = DefaultGitHubAPIURL
	}
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	var versions []types.ToolchainVersion
	for page := 1; ; page++ {
		tags, err := g.fetchPage(ctx, client, apiURL, owner, repo, page)
		if err != nil {
			return nil, err
		}
		if len(tags) == 0 {
			break
		}
		for _, tag := range tags {
			name := tag.Name
			if g.TagPrefix != "" {
				if !strings.HasPrefix(name, g.TagPrefix) {
					continue
				}
				name = strings.TrimPrefix(name, g.TagPrefix)
			}
			v, err := types.ParseToolchainVersion(name)
			if err != nil {
				continue
			}
			versions = append(versions, v)
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) > 0
	})
	return versions, nil
}

func (g *GitHubTags) fetchPage(ctx context.Context, client *http.Client, apiURL, owner, repo string, page int) ([]Tag, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/tags?per_page=100&page=%d", apiURL, owner, repo, page)

	reqCtx, cancel := context.WithTimeout(ctx, DefaultHTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("tag listing request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tag listing %s/%s: %w", owner, repo, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tag listing %s/%s: status %d", owner, repo, resp.StatusCode)
	}

	var tags []Tag
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("tag listing %s/%s: invalid JSON: %w", owner, repo, err)
	}
	return tags, nil
}

// Package release queries the GitHub release that publishes the prebuilds.
package release

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/binary-install/prebuild/pkg/httpclient"
	"github.com/binary-install/prebuild/pkg/spec"
	"github.com/google/go-github/v72/github"
	"github.com/pkg/errors"
)

// Prebuild is an archive attached to a release.
type Prebuild struct {
	Essential string
	Artifact  string
	Target    spec.Target
	Size      int
	URL       string
}

// Client lists release assets of one repository.
type Client struct {
	GitHub *github.Client
	Owner  string
	Repo   string
}

// NewClient creates a Client for an "owner/repo" string.
func NewClient(repo string) (*Client, error) {
	owner, name, ok := strings.Cut(strings.Trim(repo, "/"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid repository format: %s", repo)
	}
	return &Client{
		GitHub: github.NewClient(httpclient.NewGitHubClient()),
		Owner:  owner,
		Repo:   name,
	}, nil
}

// LatestVersion returns the version of the most recent release, without the
// "v" prefix.
func (c *Client) LatestVersion(ctx context.Context) (string, error) {
	release, resp, err := c.GitHub.Repositories.GetLatestRelease(ctx, c.Owner, c.Repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			// No release marked latest, take the newest one listed.
			releases, _, err := c.GitHub.Repositories.ListReleases(ctx, c.Owner, c.Repo, &github.ListOptions{
				PerPage: 1,
			})
			if err != nil {
				return "", errors.Wrap(err, "failed to fetch releases")
			}
			if len(releases) == 0 {
				return "", fmt.Errorf("no releases found for %s/%s", c.Owner, c.Repo)
			}
			return strings.TrimPrefix(releases[0].GetTagName(), "v"), nil
		}
		return "", errors.Wrap(err, "failed to fetch latest release")
	}
	return strings.TrimPrefix(release.GetTagName(), "v"), nil
}

// ListPrebuilds returns the prebuild archives published for pkg, sorted by
// essential name.
func (c *Client) ListPrebuilds(ctx context.Context, pkg spec.Package) ([]Prebuild, error) {
	tag := "v" + pkg.Version
	release, _, err := c.GitHub.Repositories.GetReleaseByTag(ctx, c.Owner, c.Repo, tag)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch release %s of %s/%s", tag, c.Owner, c.Repo)
	}

	prefix := fmt.Sprintf("%s-v%s-", pkg.Name, pkg.Version)
	var prebuilds []Prebuild
	for _, a := range release.Assets {
		name := a.GetName()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		essential := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".tar.gz")
		target, ok := ParseEssential(essential)
		if !ok {
			continue
		}
		prebuilds = append(prebuilds, Prebuild{
			Essential: essential,
			Artifact:  strings.TrimSuffix(name, ".tar.gz"),
			Target:    target,
			Size:      a.GetSize(),
			URL:       a.GetBrowserDownloadURL(),
		})
	}

	sort.Slice(prebuilds, func(i, j int) bool {
		return prebuilds[i].Essential < prebuilds[j].Essential
	})
	return prebuilds, nil
}

// ParseEssential is the inverse of spec.Target.Essential.
func ParseEssential(essential string) (spec.Target, bool) {
	parts := strings.Split(essential, "-")
	if len(parts) != 4 || !strings.HasPrefix(parts[1], "v") {
		return spec.Target{}, false
	}
	t := spec.Target{
		Runtime:  parts[0],
		ABI:      strings.TrimPrefix(parts[1], "v"),
		Platform: parts[2],
		Arch:     parts[3],
	}
	if err := (spec.RuntimeABI{Runtime: t.Runtime, ABI: t.ABI}).Validate(); err != nil {
		return spec.Target{}, false
	}
	return t, true
}

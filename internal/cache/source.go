package cache

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/go-github/v27/github"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"
)

// GitHubResolver turns a github.com source URL into a concrete archive
// download URL via the GitHub API, authenticating against GitHub directly
// rather than shelling out to git. An empty token disables authentication
// (subject to GitHub's anonymous rate limit).
type GitHubResolver struct {
	client *github.Client
}

// NewGitHubResolver builds a resolver, optionally authenticated with token.
func NewGitHubResolver(ctx context.Context, token string) *GitHubResolver {
	if token == "" {
		return &GitHubResolver{client: github.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &GitHubResolver{client: github.NewClient(tc)}
}

// IsGitHubSource reports whether sourceURL points at github.com.
func IsGitHubSource(sourceURL string) bool {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return false
	}
	return u.Host == "github.com" || u.Host == "www.github.com"
}

// ownerRepo splits a "https://github.com/<owner>/<repo>" URL into its owner
// and repo path segments.
func ownerRepo(sourceURL string) (owner, repo string, err error) {
	u, parseErr := url.Parse(sourceURL)
	if parseErr != nil {
		return "", "", xerrors.Errorf("cache: parsing source URL %q: %w", sourceURL, parseErr)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", xerrors.Errorf("cache: source URL %q is not owner/repo shaped", sourceURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// ListVersions enumerates sourceURL's tags as candidate versions, satisfying
// internal/resolver's VersionLister for GitHub-hosted packages.
func (g *GitHubResolver) ListVersions(ctx context.Context, sourceURL string) ([]string, error) {
	owner, repo, err := ownerRepo(sourceURL)
	if err != nil {
		return nil, err
	}
	var versions []string
	opt := &github.ListOptions{PerPage: 100}
	for {
		tags, resp, err := g.client.Repositories.ListTags(ctx, owner, repo, opt)
		if err != nil {
			return nil, xerrors.Errorf("cache: ListTags(%s/%s): %w", owner, repo, err)
		}
		for _, tag := range tags {
			versions = append(versions, tag.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return versions, nil
}

// ArchiveLink resolves sourceURL + ref to a concrete tarball download URL
// using the GitHub API's archive-link endpoint, rather than a raw HTTP GET
// against an unauthenticated, rate-limited codeload URL.
func (g *GitHubResolver) ArchiveLink(ctx context.Context, sourceURL, ref string) (string, error) {
	owner, repo, err := ownerRepo(sourceURL)
	if err != nil {
		return "", err
	}
	opt := &github.RepositoryContentGetOptions{}
	if ref != "" {
		opt.Ref = ref
	}
	link, _, err := g.client.Repositories.GetArchiveLink(ctx, owner, repo, github.Tarball, opt)
	if err != nil {
		return "", xerrors.Errorf("cache: GetArchiveLink(%s/%s@%s): %w", owner, repo, ref, err)
	}
	return link.String(), nil
}

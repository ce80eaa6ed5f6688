package forge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lippkg/lipr/client"
	"github.com/lippkg/lipr/internal/manifest"
)

const (
	DefaultAPIURL = "https://api.github.com"
	DefaultRawURL = "https://raw.githubusercontent.com"

	// Host is the platform host name; workspace paths are rooted at it.
	Host = "github.com"

	pageSize = 100
)

// GitHub implements Forge against the GitHub REST API v3 and the raw
// content host.
type GitHub struct {
	apiURL        string
	rawURL        string
	client        *client.Client
	breakers      *hostBreakers
	searchLimiter *rate.Limiter
}

// GitHubOption configures a GitHub forge.
type GitHubOption func(*GitHub)

// WithAPIURL overrides the REST API base URL.
func WithAPIURL(u string) GitHubOption {
	return func(g *GitHub) {
		g.apiURL = strings.TrimSuffix(u, "/")
	}
}

// WithRawURL overrides the raw content base URL.
func WithRawURL(u string) GitHubOption {
	return func(g *GitHub) {
		g.rawURL = strings.TrimSuffix(u, "/")
	}
}

// WithSearchLimiter paces code-search pagination. The search endpoint has
// the tightest quota of the platform; other endpoints are not affected.
func WithSearchLimiter(l *rate.Limiter) GitHubOption {
	return func(g *GitHub) {
		g.searchLimiter = l
	}
}

// NewGitHub creates a GitHub forge. If c is nil, client.DefaultClient()
// is used.
func NewGitHub(c *client.Client, opts ...GitHubOption) *GitHub {
	if c == nil {
		c = client.DefaultClient()
	}
	g := &GitHub{
		apiURL:   DefaultAPIURL,
		rawURL:   DefaultRawURL,
		client:   c,
		breakers: newHostBreakers(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type searchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	} `json:"items"`
}

func (g *GitHub) SearchManifests(ctx context.Context, probe string) ([]Repository, error) {
	query := fmt.Sprintf("%s filename:%s path:/", probe, manifest.Filename)

	seen := make(map[string]struct{})
	var repos []Repository

	for page := 1; ; page++ {
		if g.searchLimiter != nil {
			if err := g.searchLimiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		searchURL := fmt.Sprintf("%s/search/code?q=%s&per_page=%d&page=%d",
			g.apiURL, url.QueryEscape(query), pageSize, page)

		var resp searchResponse
		if err := g.client.GetJSON(ctx, searchURL, &resp); err != nil {
			return nil, fmt.Errorf("searching manifests (page %d): %w", page, err)
		}

		if len(resp.Items) == 0 {
			break
		}

		for _, item := range resp.Items {
			full := item.Repository.FullName
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}

			repo, err := ParseRepository(full)
			if err != nil {
				return nil, fmt.Errorf("search result: %w", err)
			}
			repos = append(repos, repo)
		}

		if len(seen) >= resp.TotalCount {
			break
		}
	}

	return repos, nil
}

type tagResponse struct {
	Name string `json:"name"`
}

func (g *GitHub) ListTags(ctx context.Context, repo Repository) ([]string, error) {
	var names []string

	for page := 1; ; page++ {
		tagsURL := fmt.Sprintf("%s/repos/%s/tags?per_page=%d&page=%d",
			g.apiURL, repo.FullName(), pageSize, page)

		var tags []tagResponse
		if err := g.client.GetJSON(ctx, tagsURL, &tags); err != nil {
			return nil, fmt.Errorf("listing tags for %s: %w", repo, err)
		}

		for _, t := range tags {
			names = append(names, t.Name)
		}

		if len(tags) < pageSize {
			break
		}
	}

	return names, nil
}

func (g *GitHub) FetchManifest(ctx context.Context, repo Repository, ref string) ([]byte, error) {
	contentURL := fmt.Sprintf("%s/%s/%s/%s", g.rawURL, repo.FullName(), ref, manifest.Filename)

	var body []byte
	var notFound bool
	err := g.breakers.call(contentURL, func() error {
		var err error
		body, err = g.client.Get(ctx, contentURL)
		if errors.Is(err, client.ErrNotFound) {
			// A deleted tag or missing file is not an upstream
			// fault; it must not count toward tripping the breaker.
			notFound = true
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching manifest %s@%s: %w", repo, ref, err)
	}
	if notFound {
		return nil, fmt.Errorf("fetching manifest %s@%s: %w", repo, ref, client.ErrNotFound)
	}
	return body, nil
}

type repoResponse struct {
	StargazersCount int       `json:"stargazers_count"`
	PushedAt        time.Time `json:"pushed_at"`
}

func (g *GitHub) FetchMetadata(ctx context.Context, repo Repository) (Metadata, error) {
	repoURL := fmt.Sprintf("%s/repos/%s", g.apiURL, repo.FullName())

	var resp repoResponse
	if err := g.client.GetJSON(ctx, repoURL, &resp); err != nil {
		return Metadata{}, fmt.Errorf("fetching metadata for %s: %w", repo, err)
	}

	return Metadata{
		Stars:     resp.StargazersCount,
		UpdatedAt: resp.PushedAt.UTC(),
	}, nil
}

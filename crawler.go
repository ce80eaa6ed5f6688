// Package lipr builds a versioned package index by crawling a code-hosting
// platform for repositories that expose a tooth.json manifest.
//
// The pipeline runs discovery, then fans out per repository and per version
// under bounded concurrency:
//
//	discovery -> version enumeration -> manifest fetch -> authenticate
//	          -> validate/migrate -> aggregate -> single index write
//
// Only a discovery failure aborts a run; every other failure degrades the
// result set by skipping one version or one repository.
//
// Basic usage:
//
//	c := client.NewClient(client.WithAuthFunc(auth))
//	crawler := lipr.New(
//		forge.NewGitHub(c),
//		migrator,
//		index.NewWriter("./workspace/lipr", forge.Host),
//	)
//	idx, err := crawler.Run(ctx)
package lipr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lippkg/lipr/client"
	"github.com/lippkg/lipr/internal/forge"
	"github.com/lippkg/lipr/internal/index"
	"github.com/lippkg/lipr/internal/manifest"
	"github.com/lippkg/lipr/internal/metadata"
	"github.com/lippkg/lipr/internal/vtag"
)

// Re-export the types callers hold on to.
type (
	// Repository identifies a repository on the platform.
	Repository = forge.Repository

	// Metadata holds the repository facts collected into the index.
	Metadata = forge.Metadata

	// Forge is the set of platform collaborators the pipeline needs.
	Forge = forge.Forge

	// Index is the aggregated, persisted artifact.
	Index = index.Index

	// Manifest is the current-schema package manifest.
	Manifest = manifest.Manifest

	// Migrator bridges older manifest schema generations.
	Migrator = manifest.Migrator
)

// Crawler runs the discovery-to-index pipeline.
type Crawler struct {
	forge          forge.Forge
	reconciler     *manifest.Reconciler
	writer         *index.Writer
	meta           *metadata.Collector
	probe          string
	repoWorkers    int
	versionWorkers int
	logger         *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithProbe overrides the probe marker used for discovery and
// authentication. The default is the manifest format UUID.
func WithProbe(probe string) Option {
	return func(c *Crawler) {
		c.probe = probe
	}
}

// WithRepoWorkers bounds how many repositories are crawled concurrently.
func WithRepoWorkers(n int) Option {
	return func(c *Crawler) {
		c.repoWorkers = n
	}
}

// WithVersionWorkers bounds the per-repository version fan-out.
func WithVersionWorkers(n int) Option {
	return func(c *Crawler) {
		c.versionWorkers = n
	}
}

// WithLogger sets the structured logger. The default logs via slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = l
	}
}

// New creates a Crawler. The migrator may be nil, in which case manifests
// either satisfy the current schema or are rejected without a migration
// attempt.
func New(f forge.Forge, migrator manifest.Migrator, writer *index.Writer, opts ...Option) *Crawler {
	c := &Crawler{
		forge:          f,
		reconciler:     manifest.NewReconciler(migrator),
		writer:         writer,
		meta:           metadata.NewCollector(f),
		probe:          manifest.FormatUUID,
		repoWorkers:    16,
		versionWorkers: 4,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one full crawl and returns the index it wrote. Discovery
// failure is fatal and leaves the index file untouched; per-repository and
// per-version failures are logged and skipped.
func (c *Crawler) Run(ctx context.Context) (*index.Index, error) {
	repos, err := c.forge.SearchManifests(ctx, c.probe)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	c.logger.Info("discovered repositories", "count", len(repos))

	if err := c.writer.Reset(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var entries []index.Entry

	var g errgroup.Group
	g.SetLimit(c.repoWorkers)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			accepted := c.crawlRepository(ctx, repo)
			if len(accepted) > 0 {
				mu.Lock()
				entries = append(entries, accepted...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := index.Build(entries)
	if err := c.writer.WriteIndex(idx); err != nil {
		return nil, err
	}
	c.logger.Info("index written", "packages", len(idx.Packages), "versions", len(entries))
	return idx, nil
}

// crawlRepository enumerates a repository's versions, fetches and
// reconciles each manifest, and returns the accepted entries with metadata
// attached and per-version copies written. Failures here never abort the
// run; they disqualify a version or the whole repository.
func (c *Crawler) crawlRepository(ctx context.Context, repo forge.Repository) []index.Entry {
	raws, err := c.forge.ListTags(ctx, repo)
	if err != nil {
		c.logger.Warn("skipping repository: cannot list tags", "repo", repo.FullName(), "error", err)
		return nil
	}

	tags := vtag.Filter(raws)
	if len(tags) == 0 {
		c.logger.Debug("no release tags", "repo", repo.FullName())
		return nil
	}

	var amu sync.Mutex
	var accepted []index.Entry

	var g errgroup.Group
	g.SetLimit(c.versionWorkers)
	for _, tag := range tags {
		tag := tag
		g.Go(func() error {
			m := c.crawlVersion(ctx, repo, tag)
			if m == nil {
				return nil
			}
			amu.Lock()
			accepted = append(accepted, index.Entry{Repo: repo, Tag: tag, Manifest: m})
			amu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(accepted) == 0 {
		return nil
	}

	meta, err := c.meta.Get(ctx, repo)
	if err != nil {
		c.logger.Warn("disqualifying repository: metadata fetch failed",
			"repo", repo.FullName(), "error", err)
		return nil
	}

	kept := accepted[:0]
	for _, e := range accepted {
		e.Meta = meta
		if err := c.writer.WriteManifest(repo, e.Tag.Canonical(), e.Manifest); err != nil {
			c.logger.Warn("skipping version: cannot write manifest copy",
				"repo", repo.FullName(), "tag", e.Tag.Raw, "error", err)
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// crawlVersion fetches and reconciles one (repository, version) manifest.
// Returns nil when the version is skipped.
func (c *Crawler) crawlVersion(ctx context.Context, repo forge.Repository, tag vtag.Tag) *manifest.Manifest {
	raw, err := c.forge.FetchManifest(ctx, repo, tag.Raw)
	if errors.Is(err, client.ErrNotFound) {
		c.logger.Debug("manifest missing at tag", "repo", repo.FullName(), "tag", tag.Raw)
		return nil
	}
	if err != nil {
		c.logger.Warn("skipping version: fetch failed",
			"repo", repo.FullName(), "tag", tag.Raw, "error", err)
		return nil
	}

	if !manifest.Authentic(raw, c.probe) {
		// Expected noise: code search matches same-named files that do
		// not follow the manifest convention.
		c.logger.Debug("skipping version: foreign manifest",
			"repo", repo.FullName(), "tag", tag.Raw)
		return nil
	}

	m, err := c.reconciler.Reconcile(ctx, raw)
	if err != nil {
		c.logger.Warn("skipping version: manifest rejected",
			"repo", repo.FullName(), "tag", tag.Raw, "error", err)
		return nil
	}
	return m
}

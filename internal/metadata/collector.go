// Package metadata collects repository-level facts, memoized per
// repository for the lifetime of a run.
package metadata

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/lippkg/lipr/internal/forge"
)

const defaultCacheSize = 4096

// Fetcher is the subset of the forge the collector needs.
type Fetcher interface {
	FetchMetadata(ctx context.Context, repo forge.Repository) (forge.Metadata, error)
}

// Collector memoizes metadata per repository. Concurrent requests for the
// same repository collapse into exactly one outbound query.
type Collector struct {
	fetcher Fetcher
	group   singleflight.Group
	cache   *lru.Cache[string, forge.Metadata]
}

// NewCollector builds a collector over the given fetcher.
func NewCollector(f Fetcher) *Collector {
	cache, err := lru.New[string, forge.Metadata](defaultCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Collector{fetcher: f, cache: cache}
}

// Get returns the repository's metadata, fetching it on first demand.
// Failures are not cached; the caller decides whether to retry or to
// disqualify the repository for the run.
func (c *Collector) Get(ctx context.Context, repo forge.Repository) (forge.Metadata, error) {
	key := repo.FullName()

	if meta, ok := c.cache.Get(key); ok {
		return meta, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if meta, ok := c.cache.Get(key); ok {
			return meta, nil
		}
		meta, err := c.fetcher.FetchMetadata(ctx, repo)
		if err != nil {
			return forge.Metadata{}, err
		}
		c.cache.Add(key, meta)
		return meta, nil
	})
	if err != nil {
		return forge.Metadata{}, err
	}
	return v.(forge.Metadata), nil
}

// Package forge talks to the code-hosting platform: code search for
// manifest discovery, tag listing, raw file content, and repository
// metadata. The crawler depends only on the Forge interface; the GitHub
// implementation lives in this package too.
package forge

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Repository identifies a repository on the platform.
type Repository struct {
	Owner string
	Name  string
}

// ParseRepository splits an "owner/name" identifier.
func ParseRepository(full string) (Repository, error) {
	owner, name, found := strings.Cut(full, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("invalid repository identifier %q", full)
	}
	return Repository{Owner: owner, Name: name}, nil
}

// FullName returns the "owner/name" form.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

func (r Repository) String() string {
	return r.FullName()
}

// Metadata holds the repository-level facts collected into the index.
type Metadata struct {
	Stars     int
	UpdatedAt time.Time
}

// Forge is the set of platform collaborators the pipeline needs.
type Forge interface {
	// SearchManifests finds repositories exposing a manifest file whose
	// content contains the probe marker, following pagination to
	// exhaustion and deduplicating by repository. Any page failure is
	// an error; a truncated result set must never look complete.
	SearchManifests(ctx context.Context, probe string) ([]Repository, error)

	// ListTags returns all raw tag names of a repository. A repository
	// without tags yields an empty, non-error result.
	ListTags(ctx context.Context, repo Repository) ([]string, error)

	// FetchManifest retrieves the manifest file content at the given
	// tag. A missing file is reported as client.ErrNotFound.
	FetchManifest(ctx context.Context, repo Repository, ref string) ([]byte, error)

	// FetchMetadata retrieves the repository's popularity signal and
	// last-updated timestamp.
	FetchMetadata(ctx context.Context, repo Repository) (Metadata, error)
}

// Package index aggregates validated manifests and repository metadata
// into the persisted package index.
package index

import (
	"sort"
	"time"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/lippkg/lipr/internal/forge"
	"github.com/lippkg/lipr/internal/manifest"
	"github.com/lippkg/lipr/internal/vtag"
)

// Entry is the unit of aggregation: one accepted (repository, version)
// pair with its validated manifest and the repository's metadata.
type Entry struct {
	Repo     forge.Repository
	Tag      vtag.Tag
	Manifest *manifest.Manifest
	Meta     forge.Metadata
}

// VersionEntry is one released version of a package in the index.
type VersionEntry struct {
	Version  string   `json:"version"`
	Variants []string `json:"variants,omitempty"`
}

// Package is the per-package record of the index artifact.
type Package struct {
	Info      manifest.Info  `json:"info"`
	PURL      string         `json:"purl"`
	Stars     int            `json:"stars"`
	UpdatedAt time.Time      `json:"updated_at"`
	Versions  []VersionEntry `json:"versions"`
}

// Index is the full persisted artifact, keyed by declared package
// identifier.
type Index struct {
	FormatVersion int                 `json:"format_version"`
	FormatUUID    string              `json:"format_uuid"`
	Packages      map[string]*Package `json:"packages"`
}

// Build groups entries by declared package identifier and orders each
// package's versions ascending by SemVer precedence. Presentation info
// comes from the highest-precedence version's manifest. Input order does
// not matter; the result is fully determined by the entry set.
func Build(entries []Entry) *Index {
	grouped := make(map[string][]Entry)
	for _, e := range entries {
		key := e.Manifest.Tooth
		grouped[key] = append(grouped[key], e)
	}

	idx := &Index{
		FormatVersion: manifest.FormatVersion,
		FormatUUID:    manifest.FormatUUID,
		Packages:      make(map[string]*Package, len(grouped)),
	}

	for key, group := range grouped {
		sort.Slice(group, func(i, j int) bool {
			if cmp := group[i].Tag.Version.Compare(group[j].Tag.Version); cmp != 0 {
				return cmp < 0
			}
			return group[i].Tag.Raw < group[j].Tag.Raw
		})

		latest := group[len(group)-1]
		pkg := &Package{
			Info:      latest.Manifest.Info,
			PURL:      repoPURL(latest.Repo),
			Stars:     latest.Meta.Stars,
			UpdatedAt: latest.Meta.UpdatedAt,
			Versions:  make([]VersionEntry, 0, len(group)),
		}

		for _, e := range group {
			ve := VersionEntry{Version: e.Tag.Canonical()}
			for _, v := range e.Manifest.Variants {
				if v.Label != "" {
					ve.Variants = append(ve.Variants, v.Label)
				}
			}
			pkg.Versions = append(pkg.Versions, ve)
		}

		idx.Packages[key] = pkg
	}

	return idx
}

func repoPURL(repo forge.Repository) string {
	return packageurl.NewPackageURL(
		packageurl.TypeGithub, repo.Owner, repo.Name, "", nil, "",
	).ToString()
}

// Package vtag filters and orders git version tags.
//
// Only tags of the form "v" + strict SemVer 2.0.0 are accepted; everything
// else is dropped at enumeration time and never reaches later pipeline
// stages.
package vtag

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Tag pairs a raw git tag name with its parsed version.
type Tag struct {
	Raw     string
	Version *semver.Version
}

// Canonical returns the normalized version string without the "v" prefix.
func (t Tag) Canonical() string {
	return t.Version.String()
}

// Parse validates a raw tag name. The tag must carry a literal "v" prefix
// followed by a strict SemVer version: MAJOR.MINOR.PATCH with no leading
// zeros, optional pre-release and build metadata.
func Parse(raw string) (Tag, bool) {
	rest, found := strings.CutPrefix(raw, "v")
	if !found {
		return Tag{}, false
	}

	v, err := semver.StrictNewVersion(rest)
	if err != nil {
		return Tag{}, false
	}

	return Tag{Raw: raw, Version: v}, true
}

// Filter keeps the valid version tags from a raw tag listing, dropping
// non-conforming names silently. When two raw tags resolve to the same
// precedence (build metadata is not precedence-relevant), the
// lexicographically smallest raw name wins; the result is deterministic
// regardless of input order.
func Filter(raws []string) []Tag {
	byVersion := make(map[string]Tag)
	for _, raw := range raws {
		t, ok := Parse(raw)
		if !ok {
			continue
		}

		key, _, _ := strings.Cut(t.Canonical(), "+")
		if prev, exists := byVersion[key]; exists && prev.Raw <= t.Raw {
			continue
		}
		byVersion[key] = t
	}

	tags := make([]Tag, 0, len(byVersion))
	for _, t := range byVersion {
		tags = append(tags, t)
	}
	Sort(tags)
	return tags
}

// Sort orders tags ascending by SemVer precedence: pre-releases sort before
// the release they precede, build metadata is ignored. Tags equal in
// precedence fall back to raw-name order so the result stays deterministic.
func Sort(tags []Tag) {
	sort.Slice(tags, func(i, j int) bool {
		if cmp := tags[i].Version.Compare(tags[j].Version); cmp != 0 {
			return cmp < 0
		}
		return tags[i].Raw < tags[j].Raw
	})
}

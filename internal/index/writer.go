package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lippkg/lipr/internal/forge"
	"github.com/lippkg/lipr/internal/manifest"
)

// IndexFilename is the fixed name of the index artifact inside the
// host-rooted workspace subtree.
const IndexFilename = "index.json"

// Writer persists the index artifact and per-version manifest copies
// under <workspace>/<host>. Per-version paths are disjoint across
// (repository, version) pairs, so concurrent writers need no locking.
type Writer struct {
	root string
}

// NewWriter builds a writer rooted at <workspace>/<host>.
func NewWriter(workspace, host string) *Writer {
	return &Writer{root: filepath.Join(workspace, host)}
}

// Root returns the host-rooted subtree the writer manages.
func (w *Writer) Root() string {
	return w.root
}

// Reset deletes the managed subtree and recreates it empty. It must run
// before any writer starts; the rebuilt tree contains exactly this run's
// accepted entries.
func (w *Writer) Reset() error {
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("clearing workspace %s: %w", w.root, err)
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("creating workspace %s: %w", w.root, err)
	}
	return nil
}

// WriteManifest stores one accepted manifest at
// <root>/<owner>/<name>/<version>/tooth.json. On failure any partially
// written version directory is removed; rejected or failed versions must
// not leave orphaned directories behind.
func (w *Writer) WriteManifest(repo forge.Repository, version string, m *manifest.Manifest) error {
	dir := filepath.Join(w.root, repo.Owner, repo.Name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	content, err := m.Encode()
	if err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("encoding manifest %s@%s: %w", repo, version, err)
	}

	if err := os.WriteFile(filepath.Join(dir, manifest.Filename), content, 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("writing manifest %s@%s: %w", repo, version, err)
	}
	return nil
}

// WriteIndex serializes the complete index and moves it into place in one
// rename. No partial index file is ever observable at the final path.
func (w *Writer) WriteIndex(idx *Index) error {
	content, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	content = append(content, '\n')

	tmp, err := os.CreateTemp(w.root, IndexFilename+".*")
	if err != nil {
		return fmt.Errorf("creating index temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing index temp file: %w", err)
	}

	final := filepath.Join(w.root, IndexFilename)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("publishing index: %w", err)
	}
	return nil
}

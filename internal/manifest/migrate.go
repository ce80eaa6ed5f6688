package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

var (
	// ErrMigrationFailed reports that the migration tool itself failed:
	// spawn error, non-zero exit, or unreadable output.
	ErrMigrationFailed = errors.New("schema migration failed")

	// ErrStillInvalid reports that a manifest failed current-schema
	// validation even after a successful migration. No second migration
	// is ever attempted.
	ErrStillInvalid = errors.New("manifest invalid after migration")
)

// Migrator transforms a manifest from an older schema generation into the
// current one. Implementations must not mutate the input bytes.
type Migrator interface {
	Migrate(ctx context.Context, raw []byte) ([]byte, error)
}

// CommandMigrator shells out to an external migration tool. The configured
// argv is invoked with two extra arguments appended: the input manifest
// path and the output path the tool must write the migrated content to.
type CommandMigrator struct {
	argv []string
}

// NewCommandMigrator builds a migrator around the given command line.
func NewCommandMigrator(argv []string) (*CommandMigrator, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty migration command")
	}
	return &CommandMigrator{argv: argv}, nil
}

func (m *CommandMigrator) Migrate(ctx context.Context, raw []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "lipr-migrate-")
	if err != nil {
		return nil, fmt.Errorf("creating migration scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.json")
	if err := os.WriteFile(in, raw, 0o644); err != nil {
		return nil, fmt.Errorf("writing migration input: %w", err)
	}

	args := append(append([]string(nil), m.argv[1:]...), in, out)
	cmd := exec.CommandContext(ctx, m.argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("running %s: %w: %s", m.argv[0], err, msg)
		}
		return nil, fmt.Errorf("running %s: %w", m.argv[0], err)
	}

	migrated, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading migration output: %w", err)
	}
	return migrated, nil
}

// Reconciler bridges manifest schema generations: validate against the
// current schema, fall back to exactly one migration attempt, re-validate.
type Reconciler struct {
	migrator Migrator
}

// NewReconciler builds a reconciler. A nil migrator disables the fallback;
// manifests then either satisfy the current schema or are rejected.
func NewReconciler(m Migrator) *Reconciler {
	return &Reconciler{migrator: m}
}

// Reconcile parses raw bytes into a current-schema Manifest. On validation
// failure the migrator runs once and the migrated content is validated
// independently; the original bytes are never modified. The returned error
// wraps ErrMigrationFailed or ErrStillInvalid so callers can classify the
// rejection.
func (r *Reconciler) Reconcile(ctx context.Context, raw []byte) (*Manifest, error) {
	m, err := Parse(raw)
	if err == nil {
		return m, nil
	}

	if r.migrator == nil {
		return nil, fmt.Errorf("%w: %v", ErrStillInvalid, err)
	}

	migrated, merr := r.migrator.Migrate(ctx, raw)
	if merr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, merr)
	}

	m, err = Parse(migrated)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStillInvalid, err)
	}
	return m, nil
}

package manifest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls  int
	output []byte
	err    error
}

func (f *fakeMigrator) Migrate(_ context.Context, raw []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func TestReconcileValidSkipsMigration(t *testing.T) {
	mig := &fakeMigrator{}
	r := NewReconciler(mig)

	m, err := r.Reconcile(context.Background(), validRaw("1.2.3"))
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", m.Version)
	assert.Zero(t, mig.calls, "migration must not run for a valid manifest")
}

func TestReconcileMigratesLegacyManifest(t *testing.T) {
	legacy := []byte(`{"format_version":1,"tooth":"github.com/acme/gadget","version":"2.0.0","dependencies":{"github.com/acme/base":["1.0.0"]}}`)
	mig := &fakeMigrator{output: validRaw("2.0.0")}
	r := NewReconciler(mig)

	m, err := r.Reconcile(context.Background(), legacy)
	require.NoError(t, err)
	assert.Equal(t, 1, mig.calls)
	assert.Equal(t, "2.0.0", m.Version)
	assert.Equal(t, FormatVersion, m.FormatVersion, "result reflects migrated content, not the original bytes")
}

func TestReconcileStillInvalidAfterMigration(t *testing.T) {
	mig := &fakeMigrator{output: []byte(`{}`)}
	r := NewReconciler(mig)

	_, err := r.Reconcile(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrStillInvalid)
	assert.Equal(t, 1, mig.calls, "at most one migration attempt per manifest")
}

func TestReconcileMigrationFailure(t *testing.T) {
	mig := &fakeMigrator{err: errors.New("exit status 1")}
	r := NewReconciler(mig)

	_, err := r.Reconcile(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrMigrationFailed)
	assert.Equal(t, 1, mig.calls)
}

func TestReconcileWithoutMigrator(t *testing.T) {
	r := NewReconciler(nil)

	_, err := r.Reconcile(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrStillInvalid)
}

func TestCommandMigratorCopiesOutput(t *testing.T) {
	// cp <in> <out> stands in for a migration tool that succeeds.
	mig, err := NewCommandMigrator([]string{"cp"})
	require.NoError(t, err)

	raw := validRaw("1.0.0")
	out, err := mig.Migrate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestCommandMigratorNonZeroExit(t *testing.T) {
	mig, err := NewCommandMigrator([]string{"sh", "-c", `echo "unsupported format" >&2; exit 1`, "migrate"})
	require.NoError(t, err)

	_, err = mig.Migrate(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format", "stderr diagnostics are surfaced")
}

func TestCommandMigratorMissingOutput(t *testing.T) {
	mig, err := NewCommandMigrator([]string{"true"})
	require.NoError(t, err)

	_, err = mig.Migrate(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

func TestNewCommandMigratorEmpty(t *testing.T) {
	_, err := NewCommandMigrator(nil)
	assert.Error(t, err)
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	raw := []byte(`{}`)
	snapshot := fmt.Sprintf("%s", raw)
	r := NewReconciler(&fakeMigrator{output: validRaw("1.0.0")})

	_, err := r.Reconcile(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, snapshot, string(raw))
}

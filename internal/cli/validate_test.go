package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgaudit/symaudit/internal/config"
	"github.com/pkgaudit/symaudit/internal/history"
	"github.com/pkgaudit/symaudit/internal/nupkg"
	"github.com/pkgaudit/symaudit/internal/validate"
)

func TestRecordOutcome(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg := config.Default()
	cfg.History.Enabled = true
	cfg.History.Path = dbPath

	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	orig := timeNow
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = orig }()

	pkgPath := nupkg.BuildTestPackage(t, t.TempDir(), map[string][]byte{
		"test.nuspec": nupkg.TestNuspec("TestPkg", "1.0.0"),
	})
	pkg, err := nupkg.Open(pkgPath)
	require.NoError(t, err)
	defer pkg.Close()

	outcome := validate.Outcome{
		RunID:    uuid.NewString(),
		Result:   validate.ResultValid,
		Duration: 2 * time.Second,
	}
	recordOutcome(context.Background(), cfg, pkgPath, pkg, outcome)

	store, err := history.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.Equal(t, outcome.RunID, runs[0].ID)
	assert.Equal(t, "testpkg", runs[0].PackageID)
	assert.Equal(t, "1.0.0", runs[0].PackageVersion)
	assert.Equal(t, "valid", runs[0].Result)
	assert.WithinDuration(t, fixed.Add(-2*time.Second), runs[0].StartedAt, time.Second)
}

func TestRecordOutcome_DisabledIsNoOp(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.False(t, cfg.History.Enabled)

	pkgPath := nupkg.BuildTestPackage(t, t.TempDir(), map[string][]byte{
		"test.nuspec": nupkg.TestNuspec("TestPkg", "1.0.0"),
	})
	pkg, err := nupkg.Open(pkgPath)
	require.NoError(t, err)
	defer pkg.Close()

	// Must not create a store or touch disk.
	recordOutcome(context.Background(), cfg, pkgPath, pkg, validate.Outcome{})
}

func TestNewProgressReporter(t *testing.T) {
	t.Parallel()

	assert.IsType(t, validate.NoOpProgressReporter{}, newProgressReporter(true))
	assert.IsType(t, &progressReporter{}, newProgressReporter(false))
}

func TestProgressReporter_NoCandidates(t *testing.T) {
	t.Parallel()

	p := &progressReporter{}
	p.OnClassified(0)
	p.OnFileChecked("lib/net6.0/foo.dll")
	p.OnComplete(validate.Outcome{Result: validate.ResultNothingToValidate})
	assert.Nil(t, p.bar)
}

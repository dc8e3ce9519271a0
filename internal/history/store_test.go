package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordAndRecent(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:             uuid.NewString(),
		PackagePath:    "/tmp/test.nupkg",
		PackageID:      "testpkg",
		PackageVersion: "1.0.0",
		Result:         "valid",
		External:       true,
		StartedAt:      time.Now().Add(-time.Minute),
		Duration:       1500 * time.Millisecond,
	}
	require.NoError(t, store.Record(ctx, run))

	runs, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.PackagePath, got.PackagePath)
	assert.Equal(t, run.PackageID, got.PackageID)
	assert.Equal(t, run.PackageVersion, got.PackageVersion)
	assert.Equal(t, run.Result, got.Result)
	assert.Empty(t, got.ErrorMessage)
	assert.True(t, got.External)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
}

func TestStore_RecentOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, Run{
			ID:          uuid.NewString(),
			PackagePath: fmt.Sprintf("/tmp/pkg-%d.nupkg", i),
			Result:      "missing symbols",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "/tmp/pkg-4.nupkg", runs[0].PackagePath)
	assert.Equal(t, "/tmp/pkg-3.nupkg", runs[1].PackagePath)
	assert.Equal(t, "/tmp/pkg-2.nupkg", runs[2].PackagePath)
}

func TestStore_RecentDefaultLimit(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		require.NoError(t, store.Record(ctx, Run{
			ID:        uuid.NewString(),
			Result:    "valid",
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 20)
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)
	ctx := context.Background()

	run := Run{ID: uuid.NewString(), Result: "valid", StartedAt: time.Now()}
	require.NoError(t, store.Record(ctx, run))
	assert.Error(t, store.Record(ctx, run))
}

func TestStore_EmptyDatabase(t *testing.T) {
	t.Parallel()

	runs, err := NewTestStore(t).Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

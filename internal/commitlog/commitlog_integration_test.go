package commitlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/dcsp-io/dcsp/internal/commitlog"
	"github.com/dcsp-io/dcsp/internal/config"
)

func TestCommitLogIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	store := commitlog.NewStore(testDB.Connection)

	t.Run("GetNextVersion_StartsAtOne", func(t *testing.T) {
		next, err := store.GetNextVersion(ctx, "ds-a")
		require.NoError(t, err)
		assert.Equal(t, 1, next)
	})

	t.Run("PromoteCommit_SupersedesPriorCommitted", func(t *testing.T) {
		datasetID := "ds-b"

		require.NoError(t, store.CreatePendingCommit(ctx, commitlog.Commit{
			DatasetID:   datasetID,
			Version:     1,
			RecordCount: 30,
			IngestedAt:  time.Now().UTC(),
		}))
		require.NoError(t, store.PromoteCommit(ctx, datasetID, 1, commitlog.SchemaInfo{SchemaVersion: "1.0.0", SchemaHash: "abc"}))

		require.NoError(t, store.CreatePendingCommit(ctx, commitlog.Commit{
			DatasetID:   datasetID,
			Version:     2,
			RecordCount: 40,
			IngestedAt:  time.Now().UTC(),
		}))
		require.NoError(t, store.PromoteCommit(ctx, datasetID, 2, commitlog.SchemaInfo{SchemaVersion: "1.0.0", SchemaHash: "abc"}))

		cv, err := store.CurrentVersionFor(ctx, datasetID)
		require.NoError(t, err)
		assert.Equal(t, 2, cv.CurrentVersion)
		assert.False(t, cv.IsServingLKG)
	})

	t.Run("RollbackCommit_RejectsNonPending", func(t *testing.T) {
		datasetID := "ds-c"

		require.NoError(t, store.CreatePendingCommit(ctx, commitlog.Commit{
			DatasetID:  datasetID,
			Version:    1,
			IngestedAt: time.Now().UTC(),
		}))
		require.NoError(t, store.PromoteCommit(ctx, datasetID, 1, commitlog.SchemaInfo{}))

		err := store.RollbackCommit(ctx, datasetID, 1, "too late")
		require.ErrorIs(t, err, commitlog.ErrNotPending)
	})

	t.Run("MarkServingLKG_SetsFlagAndReason", func(t *testing.T) {
		datasetID := "ds-d"

		require.NoError(t, store.CreatePendingCommit(ctx, commitlog.Commit{
			DatasetID:  datasetID,
			Version:    1,
			IngestedAt: time.Now().UTC(),
		}))
		require.NoError(t, store.PromoteCommit(ctx, datasetID, 1, commitlog.SchemaInfo{}))

		require.NoError(t, store.MarkServingLKG(ctx, datasetID, 1, "density shortfall"))

		cv, err := store.CurrentVersionFor(ctx, datasetID)
		require.NoError(t, err)
		assert.True(t, cv.IsServingLKG)
		assert.Equal(t, "density shortfall", cv.LKGReason)

		require.NoError(t, store.ClearLKGStatus(ctx, datasetID))

		cv, err = store.CurrentVersionFor(ctx, datasetID)
		require.NoError(t, err)
		assert.False(t, cv.IsServingLKG)
	})
}

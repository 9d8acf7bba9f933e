package adminauth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/dcsp-io/dcsp/internal/adminauth"
	"github.com/dcsp-io/dcsp/internal/config"
)

func TestAdminAuthIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := adminauth.NewStore(testDB.Connection, logger)

	t.Run("IssueThenVerify_Succeeds", func(t *testing.T) {
		plaintext, key, err := store.Issue(ctx, "ingestion-trigger")
		require.NoError(t, err)
		assert.NotEmpty(t, key.ID)

		verified, err := store.Verify(ctx, plaintext)
		require.NoError(t, err)
		assert.Equal(t, key.ID, verified.ID)
	})

	t.Run("Verify_UnknownKeyFails", func(t *testing.T) {
		_, err := store.Verify(ctx, "dcsp_admin_does_not_exist_00000000000000000000000000000000000000000000000000000000000")
		require.ErrorIs(t, err, adminauth.ErrKeyNotFound)
	})

	t.Run("Verify_CachedHitStillHonorsRevocation", func(t *testing.T) {
		plaintext, key, err := store.Issue(ctx, "short-lived")
		require.NoError(t, err)

		_, err = store.Verify(ctx, plaintext)
		require.NoError(t, err)

		require.NoError(t, store.Revoke(ctx, key.ID))

		_, err = store.Verify(ctx, plaintext)
		require.ErrorIs(t, err, adminauth.ErrKeyRevoked)
	})

	t.Run("Revoke_UnknownIDFails", func(t *testing.T) {
		err := store.Revoke(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, adminauth.ErrKeyNotFound)
	})
}

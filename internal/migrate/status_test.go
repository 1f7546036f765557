package migrate_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealshub/dealshub-go/internal/migrate"
	"github.com/dealshub/dealshub-go/internal/testutil"
)

func TestStatus_AllAppliedAfterRun(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithEphemeralDB(t, func(db *sql.DB) {
		ctx := context.Background()
		require.NoError(t, migrate.Run(ctx, db), "second run is a no-op")

		status, err := migrate.Status(ctx, db)
		require.NoError(t, err)
		require.NotEmpty(t, status)
		for _, m := range status {
			assert.True(t, m.Applied, m.Version)
			assert.False(t, m.AppliedAt.IsZero(), m.Version)
		}
	})
}

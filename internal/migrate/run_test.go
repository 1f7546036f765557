package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_Sorted(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_users_roles.sql", files[0])
	assert.IsIncreasing(t, files)
}

func TestMigrationFiles_Embedded(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	for _, f := range files {
		b, readErr := migrationsFS.ReadFile("migrations/" + f)
		require.NoError(t, readErr, f)
		assert.NotEmpty(t, b, f)
	}
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "0002_user_triggers", version("0002_user_triggers.sql"))
}

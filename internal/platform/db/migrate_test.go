package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_init.sql", names[0])
	for i := 1; i < len(names); i++ {
		require.Less(t, names[i-1], names[i])
	}
}

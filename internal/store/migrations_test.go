package store

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_OrderedByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_late.sql":   {Data: []byte("SELECT 10;")},
		"migrations/002_second.sql": {Data: []byte("SELECT 2;")},
		"migrations/001_first.sql":  {Data: []byte("SELECT 1;")},
	}
	ms, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{ms[0].version, ms[1].version, ms[2].version})
	assert.Equal(t, "second", ms[1].name)
}

func TestLoadMigrations_BadName(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{"migrations/initial.sql": {Data: []byte("SELECT 1;")}})
	assert.ErrorContains(t, err, "NNN_name.sql")

	_, err = loadMigrations(fstest.MapFS{"migrations/one_initial.sql": {Data: []byte("SELECT 1;")}})
	assert.ErrorContains(t, err, "bad version")
}

func TestLoadMigrations_Embedded(t *testing.T) {
	ms, err := loadMigrations(migrationFiles)
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].version)
	assert.Equal(t, "initial_schema", ms[0].name)
}

package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenForTesting(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	for _, table := range []string{
		"users", "items", "categories", "locations", "tags", "item_tags",
		"item_locations", "change_history", "item_templates", "notifications",
	} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpenForTestingIsolated(t *testing.T) {
	a, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, err = a.Exec("INSERT INTO tags (id, name) VALUES ('t1', 'pantry')")
	require.NoError(t, err)

	var n int
	require.NoError(t, b.QueryRow("SELECT COUNT(*) FROM tags").Scan(&n))
	assert.Zero(t, n)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "homeinv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db))

	v, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
}

func TestSinglePrimaryLocationEnforced(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		INSERT INTO items (id, name) VALUES ('i1', 'Rice');
		INSERT INTO locations (id, name) VALUES ('l1', 'Pantry'), ('l2', 'Basement');
		INSERT INTO item_locations (id, item_id, location_id, is_primary) VALUES ('a', 'i1', 'l1', 1);
	`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO item_locations (id, item_id, location_id, is_primary) VALUES ('b', 'i1', 'l2', 1)`)
	assert.Error(t, err)
}

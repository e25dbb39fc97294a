package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"001_create_a.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"001_create_a.down.sql": {Data: []byte("DROP TABLE a;")},
		"002_create_b.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER); CREATE INDEX b_idx ON b (id);")},
		"002_create_b.down.sql": {Data: []byte("DROP TABLE b;")},
		"README.md":             {Data: []byte("ignored")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n))
	return n == 1
}

func TestGetMigrations(t *testing.T) {
	migrations, err := NewFSSource(testFS(), "").Migrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create a", migrations[0].Name)
	assert.Equal(t, "DROP TABLE b;", migrations[1].Down)
}

func TestMigrateUpAndDown(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSSource(testFS(), "schema_migrations"), nil)

	ctx := context.Background()
	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Current)
	assert.Equal(t, 2, st.Latest)
	assert.Len(t, st.Pending, 2)

	require.NoError(t, m.Up(ctx))
	v, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.True(t, tableExists(t, db, "a"))
	assert.True(t, tableExists(t, db, "b"))

	// idempotent
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx, 1))
	v, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, tableExists(t, db, "b"))

	require.NoError(t, m.To(ctx, 0))
	assert.False(t, tableExists(t, db, "a"))

	assert.Error(t, m.Down(ctx, 0))
}

func TestFailedMigrationRollsBack(t *testing.T) {
	fsys := testFS()
	fsys["003_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE c (id INTEGER); NOT SQL;")}

	db := openDB(t)
	m := NewMigrator(db, NewFSSource(fsys, ""), nil)
	require.Error(t, m.Up(context.Background()))

	v, err := m.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.False(t, tableExists(t, db, "c"))
}

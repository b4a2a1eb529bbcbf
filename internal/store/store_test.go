package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}
	_, err := os.Stat(path)
	require.NoError(t, err)

	s := createTestStore(t)
	for _, table := range []string{"builds", "emissions"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.WriteBuild(t.Context(), createTestBuild("b1", "M", "/tmp/M", StatusGenerated), nil)
	require.NoError(t, err)
	_, err = s.ReadBuild(t.Context(), "b1")
	assert.NoError(t, err, "the single connection keeps the in-memory database")
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "history.db"))
	assert.Error(t, err)
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion+1))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.True(t, errors.Is(err, ErrSchemaTooNew))
}

func TestOpen_StampsSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)
}

func TestClose_ZeroStore(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			require.NoError(t, s.db.QueryRow("PRAGMA "+tt.name).Scan(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	assert.Subset(t, tableColumns(t, s.db, "builds"), []string{
		"id", "seq", "model", "model_url", "build_dir", "mode", "status",
		"model_hash", "kernel_hash", "error", "generator_version", "ir_version", "created_at",
	})
	assert.Subset(t, tableColumns(t, s.db, "emissions"),
		[]string{"build_id", "ordinal", "scope", "scope_hash", "declared"})
}

func TestSchema_BuildsIndexes(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name='builds'")
	require.NoError(t, err)
	defer rows.Close()
	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	assert.Subset(t, indexes, []string{"idx_builds_model", "idx_builds_dir_seq"})
}

func TestConstraints(t *testing.T) {
	const insertBuild = `
		INSERT INTO builds (id, seq, model, build_dir, mode, status, model_hash, generator_version, ir_version, created_at)
		VALUES (?, 1, 'M', '/tmp/M', 'lazy', ?, 'h', '0.1.0', '1', '2025-01-01T00:00:00Z')
	`

	t.Run("status checked", func(t *testing.T) {
		s := createTestStore(t)
		_, err := s.db.Exec(insertBuild, "b1", "exploded")
		assert.Error(t, err)
	})

	t.Run("seq unique", func(t *testing.T) {
		s := createTestStore(t)
		_, err := s.db.Exec(insertBuild, "b1", StatusInstalled)
		require.NoError(t, err)
		_, err = s.db.Exec(insertBuild, "b2", StatusInstalled)
		assert.Error(t, err)
	})

	t.Run("emission needs build", func(t *testing.T) {
		s := createTestStore(t)
		_, err := s.db.Exec(`
			INSERT INTO emissions (build_id, ordinal, scope, scope_hash, declared)
			VALUES ('missing', 0, 'M_dynamics', 'h', '{}')
		`)
		assert.Error(t, err)
	})
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

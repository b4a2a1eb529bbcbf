package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/dyngen/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestBuild creates a test build with minimal required fields.
func createTestBuild(id, model, dir, status string) Build {
	return Build{
		ID:               id,
		Model:            model,
		Dir:              dir,
		Mode:             "lazy",
		Status:           status,
		ModelHash:        "hash-" + model,
		GeneratorVersion: ir.GeneratorVersion,
		IRVersion:        ir.IRVersion,
		CreatedAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

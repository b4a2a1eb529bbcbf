package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dyngen/internal/ir"
)

// ErrNotFound is returned when a requested build does not exist.
var ErrNotFound = errors.New("build not found")

// Build statuses.
const (
	StatusInstalled = "installed"
	StatusGenerated = "generated"
	StatusReused    = "reused"
	StatusFailed    = "failed"
)

// Build is one recorded generation run.
type Build struct {
	ID               string    `json:"id"`
	Seq              int64     `json:"seq"`
	Model            string    `json:"model"`
	ModelURL         string    `json:"model_url,omitempty"`
	Dir              string    `json:"build_dir"`
	Mode             string    `json:"mode"`
	Status           string    `json:"status"`
	ModelHash        string    `json:"model_hash"`
	KernelHash       string    `json:"kernel_hash,omitempty"`
	Error            string    `json:"error,omitempty"`
	GeneratorVersion string    `json:"generator_version"`
	IRVersion        string    `json:"ir_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// Emission is what one generated scope declared.
type Emission struct {
	Ordinal   int            `json:"ordinal"`
	Scope     string         `json:"scope"`
	ScopeHash string         `json:"scope_hash"`
	Declared  ir.RequiredSet `json:"declared"`
}

// WriteBuild records a build and its emissions in one transaction and
// returns the assigned sequence number. Build.Seq is ignored on input.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing the same build
// ID twice keeps the first record and returns its seq.
func (s *Store) WriteBuild(ctx context.Context, b Build, emissions []Emission) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write build: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM builds WHERE id = ?`, b.ID).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("write build: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM builds`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write build: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds
		(id, seq, model, model_url, build_dir, mode, status, model_hash, kernel_hash, error,
		 generator_version, ir_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		b.ID,
		seq,
		b.Model,
		b.ModelURL,
		b.Dir,
		b.Mode,
		b.Status,
		b.ModelHash,
		b.KernelHash,
		b.Error,
		b.GeneratorVersion,
		b.IRVersion,
		formatTime(b.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("write build: %w", err)
	}

	for _, e := range emissions {
		declared, err := marshalDeclared(e.Declared)
		if err != nil {
			return 0, fmt.Errorf("write build: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO emissions (build_id, ordinal, scope, scope_hash, declared)
			VALUES (?, ?, ?, ?, ?)
		`, b.ID, e.Ordinal, e.Scope, e.ScopeHash, declared)
		if err != nil {
			return 0, fmt.Errorf("write build: emission %d: %w", e.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write build: commit: %w", err)
	}
	return seq, nil
}

const buildColumns = `id, seq, model, model_url, build_dir, mode, status, model_hash, kernel_hash, error,
	generator_version, ir_version, created_at`

// ReadBuild retrieves a single build by ID.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadBuild(ctx context.Context, id string) (Build, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	return scanBuild(row)
}

// LatestBuild returns the most recent build of dir that produced a kernel
// (installed, generated or reused). ok is false when there is none.
func (s *Store) LatestBuild(ctx context.Context, dir string) (b Build, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE build_dir = ? AND status != ?
		ORDER BY seq DESC
		LIMIT 1
	`, dir, StatusFailed)
	b, err = scanBuild(row)
	if errors.Is(err, ErrNotFound) {
		return Build{}, false, nil
	}
	if err != nil {
		return Build{}, false, err
	}
	return b, true, nil
}

// ListBuilds returns builds ordered by seq ASC, id ASC COLLATE BINARY.
// An empty model lists every model. limit <= 0 means no limit; otherwise
// the most recent limit builds are returned, still in ascending order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListBuilds(ctx context.Context, model string, limit int) ([]Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds WHERE (? = '' OR model = ?)`
	args := []any{model, model}
	if limit > 0 {
		query = `SELECT * FROM (` + query + ` ORDER BY seq DESC LIMIT ?)`
		args = append(args, limit)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// ReadEmissions returns the emissions of a build in ordinal order.
//
// Returns an empty slice (not nil) if the build recorded none.
func (s *Store) ReadEmissions(ctx context.Context, buildID string) ([]Emission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, scope, scope_hash, declared
		FROM emissions
		WHERE build_id = ?
		ORDER BY ordinal ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query emissions: %w", err)
	}
	defer rows.Close()

	emissions := []Emission{}
	for rows.Next() {
		var (
			e        Emission
			declared string
		)
		if err := rows.Scan(&e.Ordinal, &e.Scope, &e.ScopeHash, &declared); err != nil {
			return nil, fmt.Errorf("scan emission: %w", err)
		}
		if e.Declared, err = unmarshalDeclared(declared); err != nil {
			return nil, err
		}
		emissions = append(emissions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emissions: %w", err)
	}
	return emissions, nil
}

// DeleteBuilds removes every recorded build of dir, emissions included.
// Used when a build directory is purged.
func (s *Store) DeleteBuilds(ctx context.Context, dir string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM builds WHERE build_dir = ?`, dir)
	if err != nil {
		return 0, fmt.Errorf("delete builds: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row rowScanner) (Build, error) {
	var (
		b         Build
		createdAt string
	)
	err := row.Scan(
		&b.ID, &b.Seq, &b.Model, &b.ModelURL, &b.Dir, &b.Mode, &b.Status,
		&b.ModelHash, &b.KernelHash, &b.Error,
		&b.GeneratorVersion, &b.IRVersion, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, ErrNotFound
	}
	if err != nil {
		return Build{}, fmt.Errorf("scan build: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return Build{}, err
	}
	return b, nil
}

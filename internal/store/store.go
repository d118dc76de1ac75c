// Package store persists analysis runs in SQLite so results from separate
// batches can be compared later.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/KaramelBytes/cplog-cli/internal/analysis"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Store wraps a SQLite database of runs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// SQLite allows one writer, so the pool is limited to one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Run is a stored batch header.
type Run struct {
	ID        string
	CreatedAt time.Time
	GroupBy   string
	Records   int
	Parsed    int
	Skipped   int
	Conflicts int
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// SaveBatch writes a batch and its summary in one transaction. Saving the
// same run ID again replaces the earlier copy.
func (s *Store) SaveBatch(ctx context.Context, b *dataset.Batch, sum *analysis.Summary) (err error) {
	if b.Dataset == nil {
		return fmt.Errorf("save batch: %w", dataset.ErrNoFilesParsed)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id := b.ID.String()
	if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("replace run: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, group_by, records, parsed, skipped, conflicts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), string(sum.GroupBy), b.Dataset.Len(),
		len(b.Parsed), len(b.Skipped), len(b.Conflicts)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, p := range b.Parsed {
		if _, err = tx.ExecContext(ctx, `INSERT INTO files (run_id, path, status) VALUES (?, ?, 'parsed')`, id, p); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
	}
	for _, sk := range b.Skipped {
		if _, err = tx.ExecContext(ctx, `INSERT INTO files (run_id, path, status, error) VALUES (?, ?, 'skipped', ?)`,
			id, sk.File, sk.Err.Error()); err != nil {
			return fmt.Errorf("insert file: %w", err)
		}
	}

	params := make([]string, 0, len(sum.Params))
	for _, p := range sum.Params {
		params = append(params, p.Parameter)
	}
	if err = insertMeasurements(ctx, tx, id, b.Dataset, params); err != nil {
		return err
	}

	for _, c := range b.Conflicts {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO conflicts (run_id, parameter, bound, kept, kept_file, rejected, file) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, c.Parameter, c.Bound, nullable(c.Kept), c.KeptFile, c.Rejected, c.File); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}
	for _, p := range sum.Params {
		if _, err = tx.ExecContext(ctx, `INSERT INTO limits (run_id, parameter, lower, upper) VALUES (?, ?, ?, ?)`,
			id, p.Parameter, nullable(p.Limits.Lower), nullable(p.Limits.Upper)); err != nil {
			return fmt.Errorf("insert limits: %w", err)
		}
		for i, y := range p.Yield {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO yield (run_id, parameter, group_key, seq, total, passed, failed, yield_pct) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id, p.Parameter, y.Key, i, y.Total, y.Passed, y.Failed, y.YieldPct); err != nil {
				return fmt.Errorf("insert yield: %w", err)
			}
		}
		for _, c := range p.Capability {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO capability (run_id, parameter, group_key, count, mean, std, cp, cpk) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id, p.Parameter, c.Key, c.Count, c.Mean, c.Std, nullable(c.Cp), nullable(c.Cpk)); err != nil {
				return fmt.Errorf("insert capability: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertMeasurements(ctx context.Context, tx *sql.Tx, runID string, ds *dataset.Dataset, params []string) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO measurements (run_id, file, lot, wafer, device, parameter, value) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare measurements: %w", err)
	}
	defer stmt.Close()
	for _, r := range ds.Records() {
		for _, p := range params {
			v, ok := r.Value(p)
			if !ok {
				continue
			}
			var val any
			if v.OK {
				val = v.Num
			}
			if _, err := stmt.ExecContext(ctx, runID, r.File, r.Lot, r.Wafer, r.Device, p, val); err != nil {
				return fmt.Errorf("insert measurement: %w", err)
			}
		}
	}
	return nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, group_by, records, parsed, skipped, conflicts FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(&r.ID, &created, &r.GroupBy, &r.Records, &r.Parsed, &r.Skipped, &r.Conflicts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Yield reads back the yield table of one run and parameter in group order.
func (s *Store) Yield(ctx context.Context, runID, param string) ([]analysis.YieldResult, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_key, total, passed, failed, yield_pct FROM yield WHERE run_id = ? AND parameter = ? ORDER BY seq`,
		runID, param)
	if err != nil {
		return nil, fmt.Errorf("query yield: %w", err)
	}
	defer rows.Close()
	var out []analysis.YieldResult
	for rows.Next() {
		var y analysis.YieldResult
		if err := rows.Scan(&y.Key, &y.Total, &y.Passed, &y.Failed, &y.YieldPct); err != nil {
			return nil, fmt.Errorf("scan yield: %w", err)
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// MeasurementCount returns the number of stored readings for a run.
func (s *Store) MeasurementCount(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count measurements: %w", err)
	}
	return n, nil
}

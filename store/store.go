// Package store archives workflow runs in SQLite so past fits can be
// inspected across processes. It is strictly an archive: the fit cache
// never reads from it, because cached fits are scoped to a single run by
// design.
package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/CraigKelly/bayescmp/sampler"
)

const createTables = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	plan_name TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS fits (
	run_id TEXT NOT NULL,
	model_name TEXT NOT NULL,
	cache_key TEXT NOT NULL,
	formula TEXT NOT NULL,
	family TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL,
	divergences INTEGER NOT NULL,
	accept_rate REAL NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, model_name)
);
`

// A Store is a SQLite-backed run archive.
type Store struct {
	db *sql.DB
}

// A Run is one archived workflow run.
type Run struct {
	RunID      string
	PlanName   string
	StartedAt  time.Time
	FinishedAt time.Time
}

// A Fit is one archived model fit within a run.
type Fit struct {
	RunID       string
	ModelName   string
	CacheKey    string
	Formula     string
	Family      string
	Status      string
	Reason      string
	Divergences int
	AcceptRate  float64
	Elapsed     time.Duration
}

// Open creates or opens the archive at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not open run archive %s", path)
	}

	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "Could not migrate run archive %s", path)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun archives one run and its fits, keyed by model name.
func (s *Store) RecordRun(run *Run, fits map[string]*sampler.FitResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "Could not begin archive transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, plan_name, started_at, finished_at) VALUES (?, ?, ?, ?)`,
		run.RunID, run.PlanName, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "Could not archive run %s", run.RunID)
	}

	for name, f := range fits {
		_, err = tx.Exec(
			`INSERT INTO fits (run_id, model_name, cache_key, formula, family, status, reason, divergences, accept_rate, elapsed_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, name, string(f.Spec.Key()), f.Spec.Formula.Canonical(), f.Spec.Family,
			f.Status, f.Reason, f.Diagnostics.Divergences, f.Diagnostics.AcceptRate,
			f.Elapsed.Milliseconds(),
		)
		if err != nil {
			return errors.Wrapf(err, "Could not archive fit %s in run %s", name, run.RunID)
		}
	}

	return errors.Wrap(tx.Commit(), "Could not commit archive transaction")
}

// Runs returns archived runs, most recent first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, plan_name, started_at, finished_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "Could not list runs")
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.PlanName, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "Could not read run row")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "Run listing failed")
}

// Fits returns the archived fits for one run.
func (s *Store) Fits(runID string) ([]Fit, error) {
	rows, err := s.db.Query(
		`SELECT run_id, model_name, cache_key, formula, family, status, reason, divergences, accept_rate, elapsed_ms
		 FROM fits WHERE run_id = ? ORDER BY model_name`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not list fits for run %s", runID)
	}
	defer rows.Close()

	out := []Fit{}
	for rows.Next() {
		var f Fit
		var ms int64
		if err := rows.Scan(&f.RunID, &f.ModelName, &f.CacheKey, &f.Formula, &f.Family,
			&f.Status, &f.Reason, &f.Divergences, &f.AcceptRate, &ms); err != nil {
			return nil, errors.Wrap(err, "Could not read fit row")
		}
		f.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, f)
	}
	return out, errors.Wrap(rows.Err(), "Fit listing failed")
}

// Package store exports run results to SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
	"github.com/Sumatoshi-tech/bugflow/pkg/workflow"
)

// Sentinel errors.
var (
	ErrRunNotFound  = errors.New("run not found")
	ErrInvalidRunID = errors.New("invalid run id")
)

// Store is a SQLite-backed result sink.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID   string
	SavedAt time.Time
	Days    int
	Stats   series.Stats
}

// Open opens dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	err = migrate(ctx, db)
	if err != nil {
		db.Close()

		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes res in one transaction. A run saved again replaces its rows.
func (s *Store) Save(ctx context.Context, res *series.Result) error {
	if _, err := uuid.Parse(res.RunID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, res.RunID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"snapshots", "transitions", "faults", "runs"} {
		_, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, res.RunID)
		if err != nil {
			return fmt.Errorf("delete previous %s: %w", table, err)
		}
	}

	st := res.Stats

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, saved_at, days, records, timelines, background,
			faulted, candidates, committed, discarded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, s.now().UTC().Format(time.RFC3339), res.Series.Len(),
		st.Records, st.Timelines, st.Background, st.Faulted,
		st.Candidates, st.Committed, st.Discarded,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	err = insertSnapshots(ctx, tx, res.RunID, res.Series)
	if err != nil {
		return err
	}

	err = insertTransitions(ctx, tx, res.RunID, res.Timelines)
	if err != nil {
		return err
	}

	err = insertFaults(ctx, tx, res.RunID, res.Faults)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func insertSnapshots(ctx context.Context, tx *sql.Tx, runID string, s series.Series) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshots (run_id, day_index, day, stage, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshots: %w", err)
	}
	defer stmt.Close()

	for i, day := range s.Dates {
		for _, stage := range workflow.Stages() {
			counts := s.Counts[stage]
			if i >= len(counts) {
				continue
			}

			_, err = stmt.ExecContext(ctx, runID, i, day, stage.String(), counts[i])
			if err != nil {
				return fmt.Errorf("insert snapshot %s %s: %w", day, stage, err)
			}
		}
	}

	return nil
}

func insertTransitions(ctx context.Context, tx *sql.Tx, runID string, timelines []*workflow.Timeline) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transitions (run_id, record_id, seq, at, stage, previous) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transitions: %w", err)
	}
	defer stmt.Close()

	for _, tl := range timelines {
		for seq, tr := range tl.Transitions {
			_, err = stmt.ExecContext(ctx, runID, tl.RecordID, seq,
				tr.When.UTC().Format(time.RFC3339), tr.Stage.String(), tr.Previous.String())
			if err != nil {
				return fmt.Errorf("insert transition of record %d: %w", tl.RecordID, err)
			}
		}
	}

	return nil
}

func insertFaults(ctx context.Context, tx *sql.Tx, runID string, faults []*workflow.Fault) error {
	for _, f := range faults {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO faults (run_id, record_id, kind, detail) VALUES (?, ?, ?, ?)`,
			runID, f.RecordID, f.Kind, f.Detail)
		if err != nil {
			return fmt.Errorf("insert fault of record %d: %w", f.RecordID, err)
		}
	}

	return nil
}

// Runs lists saved runs, most recently saved first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, saved_at, days, records, timelines, background,
			faulted, candidates, committed, discarded
		FROM runs
		ORDER BY saved_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Run returns the summary of runID.
func (s *Store) Run(ctx context.Context, runID string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, saved_at, days, records, timelines, background,
			faulted, candidates, committed, discarded
		FROM runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var (
		run     RunSummary
		savedAt string
	)

	st := &run.Stats

	err := row.Scan(&run.RunID, &savedAt, &run.Days, &st.Records, &st.Timelines, &st.Background,
		&st.Faulted, &st.Candidates, &st.Committed, &st.Discarded)
	if err != nil {
		return RunSummary{}, fmt.Errorf("scan run: %w", err)
	}

	run.SavedAt, err = time.Parse(time.RFC3339, savedAt)
	if err != nil {
		return RunSummary{}, fmt.Errorf("parse saved_at: %w", err)
	}

	return run, nil
}

// Series rebuilds the stored series of runID.
func (s *Store) Series(ctx context.Context, runID string) (series.Series, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return series.Series{}, err
	}

	out := series.Series{
		Dates:  make([]string, run.Days),
		Counts: make(map[workflow.Stage][]int, workflow.StageCount),
	}

	for _, stage := range workflow.Stages() {
		out.Counts[stage] = make([]int, run.Days)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT day_index, day, stage, count FROM snapshots WHERE run_id = ? ORDER BY day_index`, runID)
	if err != nil {
		return series.Series{}, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx, count int
			day, name  string
		)

		err = rows.Scan(&idx, &day, &name, &count)
		if err != nil {
			return series.Series{}, fmt.Errorf("scan snapshot: %w", err)
		}

		stage, err := workflow.ParseStage(name)
		if err != nil {
			return series.Series{}, err
		}

		if idx < 0 || idx >= run.Days {
			return series.Series{}, fmt.Errorf("snapshot index %d out of range for run %s", idx, runID)
		}

		out.Dates[idx] = day
		out.Counts[stage][idx] = count
	}

	return out, rows.Err()
}

// Faults returns the faults of runID ordered by record id.
func (s *Store) Faults(ctx context.Context, runID string) ([]*workflow.Fault, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, kind, detail FROM faults WHERE run_id = ? ORDER BY record_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query faults: %w", err)
	}
	defer rows.Close()

	var faults []*workflow.Fault

	for rows.Next() {
		f := &workflow.Fault{}

		err = rows.Scan(&f.RecordID, &f.Kind, &f.Detail)
		if err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}

		faults = append(faults, f)
	}

	return faults, rows.Err()
}

// StageEntries counts the transitions of runID into each stage.
func (s *Store) StageEntries(ctx context.Context, runID string) (map[workflow.Stage]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM transitions WHERE run_id = ? GROUP BY stage`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	entries := make(map[workflow.Stage]int)

	for rows.Next() {
		var (
			name  string
			count int
		)

		err = rows.Scan(&name, &count)
		if err != nil {
			return nil, fmt.Errorf("scan transitions: %w", err)
		}

		stage, err := workflow.ParseStage(name)
		if err != nil {
			return nil, err
		}

		entries[stage] = count
	}

	return entries, rows.Err()
}

package artifact

import (
	"context"
	_ "embed"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/auto-codex/internal/models"
)

//go:embed schema.sql
var ledgerSchema string

// Ledger is the SQLite run index at .auto-codex/runs.db: pure bookkeeping
// that lets `clean` and future tooling enumerate past runs without walking
// the artifact tree. Nothing in the run lifecycle engine reads it back to
// make a decision.
//
// Grounded on internal/learning/store.go: open/exec-schema/close per call,
// no long-lived connection held across a run.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if absent) the run ledger at path and ensures
// its schema exists.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply run ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordStart upserts a row for a run that has just begun.
func (l *Ledger) RecordStart(ctx context.Context, runID models.RunID, goal string, startedAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, goal, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET goal = excluded.goal, started_at = excluded.started_at`,
		string(runID), goal, startedAt.UTC().Format(time.RFC3339))
	return err
}

// RecordFinish updates a run's row with its end time and outcome.
func (l *Ledger) RecordFinish(ctx context.Context, runID models.RunID, endedAt time.Time, outcome models.RunOutcome) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, outcome = ? WHERE run_id = ?`,
		endedAt.UTC().Format(time.RFC3339), string(outcome), string(runID))
	return err
}

// Delete removes a run's row, called by `clean <run_id>`.
func (l *Ledger) Delete(ctx context.Context, runID models.RunID) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, string(runID))
	return err
}

// List returns every recorded run, most recently started first.
func (l *Ledger) List(ctx context.Context) ([]models.RunRecord, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT run_id, goal, started_at, ended_at, outcome FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		var rec models.RunRecord
		var started string
		var ended, outcome sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Goal, &started, &ended, &outcome); err != nil {
			return nil, err
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339, started)
		if ended.Valid {
			rec.EndedAt, _ = time.Parse(time.RFC3339, ended.String)
		}
		rec.Outcome = models.RunOutcome(outcome.String)
		out = append(out, rec)
	}
	return out, rows.Err()
}

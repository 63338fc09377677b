package storage

// sqlite.go: attempt journal.
//
// One row per liquidation attempt, whatever the outcome. The journal is write-mostly:
// the bot never reads it back to decide anything, it only feeds -report.
// Amounts are stored as TEXT so decimals round-trip exactly.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id                    TEXT PRIMARY KEY,
    started_at            TEXT    NOT NULL,
    finished_at           TEXT    NOT NULL,
    outcome               TEXT    NOT NULL,
    block_number          INTEGER NOT NULL DEFAULT 0,
    selected              INTEGER NOT NULL DEFAULT 0,
    liquidated            INTEGER NOT NULL DEFAULT 0,
    expected_compensation TEXT    NOT NULL DEFAULT '0',
    worst_cost            TEXT    NOT NULL DEFAULT '0',
    tx_hash               TEXT    NOT NULL DEFAULT '',
    gas_cost              TEXT    NOT NULL DEFAULT '0',
    compensation          TEXT    NOT NULL DEFAULT '0',
    miner_cut             TEXT    NOT NULL DEFAULT '0',
    error                 TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);
`

// DefaultRetention is how long attempts are kept before being pruned on open.
const DefaultRetention = 90 * 24 * time.Hour

// Fixed width, always UTC, so that string order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteJournal implements ports.AttemptJournal using SQLite (pure Go, no CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal at path, applying DefaultRetention.
// Use ":memory:" for tests.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	return NewSQLiteJournalWithRetention(path, DefaultRetention)
}

// NewSQLiteJournalWithRetention opens the journal and prunes attempts older than retention.
// A zero retention keeps everything.
func NewSQLiteJournalWithRetention(path string, retention time.Duration) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open: %w", err)
	}
	// SQLite admits a single writer; :memory: also needs one connection to keep its data.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: migrate: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if retention > 0 {
		if err := j.pruneOld(retention); err != nil {
			db.Close()
			return nil, err
		}
	}
	return j, nil
}

func (j *SQLiteJournal) pruneOld(retention time.Duration) error {
	cutoff := formatTime(time.Now().Add(-retention))
	if _, err := j.db.Exec(`DELETE FROM attempts WHERE started_at < ?`, cutoff); err != nil {
		return fmt.Errorf("storage.pruneOld: %w", err)
	}
	return nil
}

// SaveAttempt implements ports.AttemptJournal. Saving the same ID twice overwrites.
func (j *SQLiteJournal) SaveAttempt(ctx context.Context, r domain.AttemptReport) error {
	if r.ID == "" {
		return fmt.Errorf("storage.SaveAttempt: attempt without id")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempt: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attempts (
			id, started_at, finished_at, outcome, block_number,
			selected, liquidated, expected_compensation, worst_cost,
			tx_hash, gas_cost, compensation, miner_cut, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at           = excluded.finished_at,
			outcome               = excluded.outcome,
			block_number          = excluded.block_number,
			selected              = excluded.selected,
			liquidated            = excluded.liquidated,
			expected_compensation = excluded.expected_compensation,
			worst_cost            = excluded.worst_cost,
			tx_hash               = excluded.tx_hash,
			gas_cost              = excluded.gas_cost,
			compensation          = excluded.compensation,
			miner_cut             = excluded.miner_cut,
			error                 = excluded.error
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempt: prepare: %w", err)
	}
	defer stmt.Close()

	finished := r.FinishedAt
	if finished.IsZero() {
		finished = r.StartedAt
	}

	_, err = stmt.ExecContext(ctx,
		r.ID,
		formatTime(r.StartedAt),
		formatTime(finished),
		r.Outcome.String(),
		int64(r.BlockNumber),
		r.Selected,
		r.Liquidated,
		r.ExpectedCompensation.String(),
		r.WorstCost.String(),
		r.TxHash,
		r.GasCost.String(),
		r.Compensation.String(),
		r.MinerCut.String(),
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAttempt: insert %s: %w", r.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveAttempt: commit: %w", err)
	}
	return nil
}

// Report implements ports.OutcomeReporter so the journal can sit in the reporter fan-out.
func (j *SQLiteJournal) Report(ctx context.Context, r domain.AttemptReport) error {
	return j.SaveAttempt(ctx, r)
}

// GetAttempts implements ports.AttemptJournal. Most recent first.
func (j *SQLiteJournal) GetAttempts(ctx context.Context, from, to time.Time) ([]domain.AttemptReport, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, outcome, block_number,
		       selected, liquidated, expected_compensation, worst_cost,
		       tx_hash, gas_cost, compensation, miner_cut, error
		FROM attempts
		WHERE started_at BETWEEN ? AND ?
		ORDER BY started_at DESC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("storage.GetAttempts: query: %w", err)
	}
	defer rows.Close()

	var result []domain.AttemptReport
	for rows.Next() {
		var (
			r                          domain.AttemptReport
			startedAt, finishedAt      string
			outcome                    string
			blockNumber                int64
			expected, worst            string
			gasCost, compensation, cut string
		)
		if err := rows.Scan(
			&r.ID, &startedAt, &finishedAt, &outcome, &blockNumber,
			&r.Selected, &r.Liquidated, &expected, &worst,
			&r.TxHash, &gasCost, &compensation, &cut, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("storage.GetAttempts: scan: %w", err)
		}

		if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("storage.GetAttempts: %s started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
			return nil, fmt.Errorf("storage.GetAttempts: %s finished_at: %w", r.ID, err)
		}
		if r.Outcome, err = domain.ParseLiquidationOutcome(outcome); err != nil {
			return nil, fmt.Errorf("storage.GetAttempts: %s: %w", r.ID, err)
		}
		r.BlockNumber = uint64(blockNumber)

		amounts := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&r.ExpectedCompensation, expected},
			{&r.WorstCost, worst},
			{&r.GasCost, gasCost},
			{&r.Compensation, compensation},
			{&r.MinerCut, cut},
		}
		for _, a := range amounts {
			if *a.dst, err = decimal.NewFromString(a.src); err != nil {
				return nil, fmt.Errorf("storage.GetAttempts: %s amount %q: %w", r.ID, a.src, err)
			}
		}

		result = append(result, r)
	}
	return result, rows.Err()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

package periphery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a ReadConfig call.
type Outcome string

// Apply outcomes.
const (
	OutcomeApplied      Outcome = "applied"
	OutcomeRolledBack   Outcome = "rolled_back"
	OutcomeInconsistent Outcome = "inconsistent"
	OutcomeFailed       Outcome = "failed" // unreadable file or snapshot failure; nothing changed
)

// ApplyRecord is one ReadConfig attempt.
type ApplyRecord struct {
	ID         string    `json:"id"`
	ConfigPath string    `json:"config_path"`
	Outcome    Outcome   `json:"outcome"`
	State      State     `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// timeLayout is fixed-width so that text ordering of the time columns
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HistoryRecorder stores apply records.
type HistoryRecorder interface {
	RecordApply(ctx context.Context, rec *ApplyRecord) error
}

// SQLiteHistory stores apply records in the periphery_applies table.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory creates a history store on db. The schema is created
// by the database migrations.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// RecordApply inserts rec. The ID is generated if empty.
func (h *SQLiteHistory) RecordApply(ctx context.Context, rec *ApplyRecord) error {
	if rec.ID == "" {
		rec.ID = "apl-" + uuid.NewString()[:8]
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO periphery_applies (id, config_path, outcome, state, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConfigPath, string(rec.Outcome), rec.State.String(),
		nullableString(rec.Error),
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting apply record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]ApplyRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, config_path, outcome, state, error, started_at, finished_at
		 FROM periphery_applies ORDER BY started_at DESC, finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying apply records: %w", err)
	}
	defer rows.Close()

	var records []ApplyRecord
	for rows.Next() {
		var rec ApplyRecord
		var outcome, state, startedAt, finishedAt string
		var errText sql.NullString

		if err := rows.Scan(&rec.ID, &rec.ConfigPath, &outcome, &state, &errText, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning apply record: %w", err)
		}
		rec.Outcome = Outcome(outcome)
		rec.State = parseState(state)
		if errText.Valid {
			rec.Error = errText.String
		}
		if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
		}
		if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at %q: %w", finishedAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating apply records: %w", err)
	}
	return records, nil
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

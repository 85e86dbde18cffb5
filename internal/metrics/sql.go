// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/dossier/internal/provider"
	"github.com/pdiddy/dossier/internal/sqlitedb"
	"github.com/pdiddy/dossier/pkg/types"
)

// SQLRecorder appends timings to the phase_timings table.
type SQLRecorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLRecorder creates the phase_timings table if needed.
func NewSQLRecorder(ctx context.Context, db *sql.DB, logger *slog.Logger) (*SQLRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	err := sqlitedb.Exec(ctx, db,
		`CREATE TABLE IF NOT EXISTS phase_timings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			category TEXT NOT NULL,
			phase_id TEXT NOT NULL,
			model TEXT,
			outcome TEXT NOT NULL,
			cache_hit INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_phase_timings_subject ON phase_timings(subject_id, started_at)`,
	)
	if err != nil {
		return nil, fmt.Errorf("creating phase timings schema: %w", err)
	}
	return &SQLRecorder{db: db, logger: logger}, nil
}

// Record implements Recorder. Insert failures are logged.
func (r *SQLRecorder) Record(ctx context.Context, t types.PhaseTiming) {
	// The run context may already be canceled when a failed phase settles;
	// the row is still worth keeping.
	ctx = context.WithoutCancel(ctx)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO phase_timings
			(run_id, subject_id, category, phase_id, model, outcome, cache_hit, attempts, duration_ms, started_at, ended_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.SubjectID, t.Category, t.PhaseID, t.Model, string(t.Outcome), t.CacheHit, t.Attempts,
		t.DurationMs, formatTime(t.StartedAt), formatTime(t.EndedAt), t.Error)
	if err != nil {
		r.logger.Warn("recording phase timing failed",
			"phase", t.PhaseID, "error", fmt.Errorf("%w: %w", provider.ErrPersistence, err))
	}
}

// Query returns recorded timings for a subject, most recent launch first.
// limit <= 0 means no limit.
func (r *SQLRecorder) Query(ctx context.Context, subjectID string, limit int) ([]types.PhaseTiming, error) {
	q := `SELECT run_id, subject_id, category, phase_id, model, outcome, cache_hit, attempts,
			duration_ms, started_at, ended_at, error
		  FROM phase_timings WHERE subject_id = ?
		  ORDER BY started_at DESC, id DESC`
	args := []any{subjectID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying phase timings: %w", err)
	}
	defer rows.Close()

	var out []types.PhaseTiming
	for rows.Next() {
		var (
			t              types.PhaseTiming
			model, msg     sql.NullString
			outcome        string
			started, ended string
		)
		if err := rows.Scan(&t.RunID, &t.SubjectID, &t.Category, &t.PhaseID, &model, &outcome,
			&t.CacheHit, &t.Attempts, &t.DurationMs, &started, &ended, &msg); err != nil {
			return nil, fmt.Errorf("scanning phase timing: %w", err)
		}
		t.Model = model.String
		t.Error = msg.String
		t.Outcome = types.PhaseOutcome(outcome)
		t.StartedAt, _ = time.Parse(timeLayout, started)
		t.EndedAt, _ = time.Parse(timeLayout, ended)
		out = append(out, t)
	}
	return out, rows.Err()
}

// timeLayout has fixed-width fractions so stored values sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

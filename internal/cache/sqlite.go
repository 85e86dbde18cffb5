// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/dossier/internal/sqlitedb"
)

// SQLiteStore is the durable store backed by the phase_cache table.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

// NewSQLiteStore uses an already open database; Close leaves it open.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		return nil, fmt.Errorf("creating phase cache schema: %w", err)
	}
	return s, nil
}

// OpenSQLiteStore opens baseDir/index/dossier.db and owns the connection.
func OpenSQLiteStore(ctx context.Context, baseDir string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(baseDir)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	return sqlitedb.Exec(ctx, s.db,
		`CREATE TABLE IF NOT EXISTS phase_cache (
			subject_id TEXT NOT NULL,
			phase_id TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT,
			error TEXT,
			model TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (subject_id, phase_id)
		)`,
	)
}

// Name implements Store.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, subjectID, phaseID string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject_id, phase_id, status, payload, error, model, updated_at
		 FROM phase_cache WHERE subject_id = ? AND phase_id = ?`, subjectID, phaseID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading phase cache: %w", err)
	}
	return e, true, nil
}

// Put implements Store; the entry replaces any previous one for the key.
func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phase_cache (subject_id, phase_id, status, payload, error, model, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id, phase_id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			error = excluded.error,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		e.SubjectID, e.PhaseID, string(e.Status), nullString(string(e.Payload)), nullString(e.Error),
		nullString(e.Model), e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing phase cache: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, subjectID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, phase_id, status, payload, error, model, updated_at
		 FROM phase_cache WHERE subject_id = ? ORDER BY phase_id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("listing phase cache: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning phase cache: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, subjectID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM phase_cache WHERE subject_id = ?`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("clearing phase cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                   Entry
		status              string
		payload, msg, model sql.NullString
		updated             string
	)
	if err := sc.Scan(&e.SubjectID, &e.PhaseID, &status, &payload, &msg, &model, &updated); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	if payload.Valid {
		e.Payload = []byte(payload.String)
	}
	e.Error = msg.String
	e.Model = model.String
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		e.UpdatedAt = t
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

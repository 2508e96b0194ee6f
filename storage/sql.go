package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// registers the "postgres" database/sql driver
	_ "github.com/lib/pq"
)

// SQLStore implements Store on database/sql for callers that already hold a
// *sql.DB
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLStore opens a PostgreSQL connection through lib/pq
func OpenSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLStore(db), nil
}

// Close closes the underlying database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the transcript table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// SaveTranscript implements Store
func (s *SQLStore) SaveTranscript(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	turnsJSON, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("failed to marshal turns: %w", err)
	}
	usageJSON, err := json.Marshal(rec.Usage)
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aepilot_transcripts (session_id, turns, last_state, usage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			turns = EXCLUDED.turns,
			last_state = EXCLUDED.last_state,
			usage = EXCLUDED.usage,
			updated_at = NOW()
	`, rec.SessionID, string(turnsJSON), lastState(rec), string(usageJSON))
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// LoadTranscript implements Store
func (s *SQLStore) LoadTranscript(ctx context.Context, sessionID string) (*Record, error) {
	var rec Record
	var turnsJSON, usageJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, turns, last_state, usage, created_at, updated_at
		FROM aepilot_transcripts
		WHERE session_id = $1
	`, sessionID).Scan(&rec.SessionID, &turnsJSON, &rec.LastState, &usageJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	if err := decodeRecord(&rec, turnsJSON, usageJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteTranscript implements Store
func (s *SQLStore) DeleteTranscript(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM aepilot_transcripts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

// DeleteTranscriptsBefore implements Expirer
func (s *SQLStore) DeleteTranscriptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM aepilot_transcripts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired transcripts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired transcripts: %w", err)
	}
	return int(n), nil
}

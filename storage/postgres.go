package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context whose store calls run inside tx
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL with pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// Migrate creates the transcript table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// SaveTranscript implements Store
func (s *PostgresStore) SaveTranscript(ctx context.Context, rec *Record) error {
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

	query := `
		INSERT INTO aepilot_transcripts (session_id, turns, last_state, usage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			turns = EXCLUDED.turns,
			last_state = EXCLUDED.last_state,
			usage = EXCLUDED.usage,
			updated_at = NOW()
	`

	if _, err := s.getQuerier(ctx).Exec(ctx, query, rec.SessionID, turnsJSON, lastState(rec), usageJSON); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	return nil
}

// LoadTranscript implements Store
func (s *PostgresStore) LoadTranscript(ctx context.Context, sessionID string) (*Record, error) {
	query := `
		SELECT session_id, turns, last_state, usage, created_at, updated_at
		FROM aepilot_transcripts
		WHERE session_id = $1
	`

	var rec Record
	var turnsJSON, usageJSON []byte

	err := s.getQuerier(ctx).QueryRow(ctx, query, sessionID).Scan(
		&rec.SessionID,
		&turnsJSON,
		&rec.LastState,
		&usageJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) DeleteTranscript(ctx context.Context, sessionID string) error {
	if _, err := s.getQuerier(ctx).Exec(ctx, `DELETE FROM aepilot_transcripts WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}

// DeleteTranscriptsBefore implements Expirer
func (s *PostgresStore) DeleteTranscriptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.getQuerier(ctx).Exec(ctx, `DELETE FROM aepilot_transcripts WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired transcripts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func decodeRecord(rec *Record, turnsJSON, usageJSON []byte) error {
	if err := json.Unmarshal(turnsJSON, &rec.Turns); err != nil {
		return fmt.Errorf("failed to unmarshal turns: %w", err)
	}
	if err := json.Unmarshal(usageJSON, &rec.Usage); err != nil {
		return fmt.Errorf("failed to unmarshal usage: %w", err)
	}
	return nil
}

func lastState(rec *Record) string {
	if rec.LastState == "" {
		return "awaiting_model"
	}
	return rec.LastState.String()
}

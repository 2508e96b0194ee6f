// Package storage persists conversation transcripts between runs. The loop
// never requires a store; sessions save through one when configured.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/youssefsiam38/aepilot/loopstate"
	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/transcript"
)

// ErrNotFound is returned when no transcript is stored for a session
var ErrNotFound = errors.New("transcript not found")

// Store defines the transcript storage interface
type Store interface {
	// SaveTranscript inserts or replaces the record of a session
	SaveTranscript(ctx context.Context, rec *Record) error

	// LoadTranscript returns the record of a session or ErrNotFound
	LoadTranscript(ctx context.Context, sessionID string) (*Record, error)

	// DeleteTranscript removes the record of a session. Deleting a missing
	// record is not an error.
	DeleteTranscript(ctx context.Context, sessionID string) error
}

// Expirer is implemented by stores that can drop transcripts by age
type Expirer interface {
	// DeleteTranscriptsBefore removes every record last updated before
	// cutoff and returns how many were removed
	DeleteTranscriptsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Record is the persisted state of one session
type Record struct {
	SessionID string            `json:"session_id"`
	Turns     []transcript.Turn `json:"turns"`
	LastState loopstate.State   `json:"last_state"`
	Usage     streaming.Usage   `json:"usage"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Validate checks that the record can be persisted and replayed
func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record cannot be nil")
	}
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	if r.LastState != "" && !r.LastState.IsValid() {
		return errors.New("invalid last_state " + string(r.LastState))
	}
	return transcript.Validate(r.Turns)
}

// Schema creates the transcript table. Both SQL stores apply it in Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS aepilot_transcripts (
	session_id  TEXT PRIMARY KEY,
	turns       JSONB NOT NULL DEFAULT '[]',
	last_state  TEXT NOT NULL DEFAULT 'awaiting_model',
	usage       JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS aepilot_transcripts_updated_at_idx ON aepilot_transcripts (updated_at);
`

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// SaveTranscript implements Store
func (s *MemoryStore) SaveTranscript(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := *rec
	stored.Turns = append([]transcript.Turn(nil), rec.Turns...)
	if prev, ok := s.records[rec.SessionID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.records[rec.SessionID] = stored
	return nil
}

// LoadTranscript implements Store
func (s *MemoryStore) LoadTranscript(ctx context.Context, sessionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Turns = append([]transcript.Turn(nil), rec.Turns...)
	return &rec, nil
}

// DeleteTranscript implements Store
func (s *MemoryStore) DeleteTranscript(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	return nil
}

// DeleteTranscriptsBefore implements Expirer
func (s *MemoryStore) DeleteTranscriptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

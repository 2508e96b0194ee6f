package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/aepilot/internal/testutil"
	"github.com/youssefsiam38/aepilot/loopstate"
	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/transcript"
)

func sampleRecord(sessionID string) *Record {
	return &Record{
		SessionID: sessionID,
		Turns: []transcript.Turn{
			{Role: transcript.RoleUser, Text: "find cats"},
			{Role: transcript.RoleAssistant, ToolCalls: []streaming.ToolCall{{ID: "call_1", Name: "search_docs", Arguments: map[string]any{"query": "cat"}}}},
			{Role: transcript.RoleToolResult, Result: &transcript.ToolResult{ToolCallID: "call_1", ToolName: "search_docs", Success: true, Payload: "3 cats"}},
			{Role: transcript.RoleAssistant, Text: "There are 3 cats."},
		},
		LastState: loopstate.Done,
		Usage:     streaming.Usage{InputTokens: 30, OutputTokens: 12},
	}
}

// exerciseStore runs the same lifecycle against any Store
func exerciseStore(t *testing.T, store interface {
	Store
	Expirer
}) {
	t.Helper()
	ctx := context.Background()
	sessionID := "test-" + uuid.NewString()

	if _, err := store.LoadTranscript(ctx, sessionID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadTranscript(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.SaveTranscript(ctx, sampleRecord(sessionID)); err != nil {
		t.Fatalf("SaveTranscript() error = %v", err)
	}

	rec, err := store.LoadTranscript(ctx, sessionID)
	if err != nil {
		t.Fatalf("LoadTranscript() error = %v", err)
	}
	if len(rec.Turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(rec.Turns))
	}
	if rec.Turns[2].Result == nil || rec.Turns[2].Result.Payload != "3 cats" {
		t.Errorf("tool result turn = %+v", rec.Turns[2])
	}
	if rec.Turns[1].ToolCalls[0].Arguments["query"] != "cat" {
		t.Errorf("tool call arguments = %v", rec.Turns[1].ToolCalls[0].Arguments)
	}
	if rec.LastState != loopstate.Done {
		t.Errorf("LastState = %s", rec.LastState)
	}
	if rec.Usage.OutputTokens != 12 {
		t.Errorf("Usage = %+v", rec.Usage)
	}
	created := rec.CreatedAt

	updated := sampleRecord(sessionID)
	updated.Turns = updated.Turns[:1]
	updated.LastState = loopstate.Failed
	if err := store.SaveTranscript(ctx, updated); err != nil {
		t.Fatalf("SaveTranscript(update) error = %v", err)
	}
	rec, err = store.LoadTranscript(ctx, sessionID)
	if err != nil {
		t.Fatalf("LoadTranscript() error = %v", err)
	}
	if len(rec.Turns) != 1 || rec.LastState != loopstate.Failed {
		t.Errorf("after update: %d turns, state %s", len(rec.Turns), rec.LastState)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v -> %v", created, rec.CreatedAt)
	}

	if err := store.DeleteTranscript(ctx, sessionID); err != nil {
		t.Fatalf("DeleteTranscript() error = %v", err)
	}
	if _, err := store.LoadTranscript(ctx, sessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteTranscript(ctx, sessionID); err != nil {
		t.Errorf("deleting a missing record: %v", err)
	}

	if err := store.SaveTranscript(ctx, sampleRecord(sessionID)); err != nil {
		t.Fatalf("SaveTranscript() error = %v", err)
	}
	if _, err := store.DeleteTranscriptsBefore(ctx, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("DeleteTranscriptsBefore(past) error = %v", err)
	}
	if _, err := store.LoadTranscript(ctx, sessionID); err != nil {
		t.Errorf("recent record expired: %v", err)
	}
	n, err := store.DeleteTranscriptsBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteTranscriptsBefore(future) error = %v", err)
	}
	if n < 1 {
		t.Errorf("expired %d records, want at least 1", n)
	}
	if _, err := store.LoadTranscript(ctx, sessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after expiry: error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRecord_Validate(t *testing.T) {
	unpaired := &Record{SessionID: "s", Turns: []transcript.Turn{
		{Role: transcript.RoleToolResult, Result: &transcript.ToolResult{ToolCallID: "x"}},
	}}

	tests := []struct {
		name  string
		rec   *Record
		valid bool
	}{
		{"valid", sampleRecord("s1"), true},
		{"nil", nil, false},
		{"no session", &Record{}, false},
		{"bad state", &Record{SessionID: "s", LastState: "bogus"}, false},
		{"unpaired result", unpaired, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if (err == nil) != tt.valid {
				t.Errorf("Validate() error = %v, valid = %v", err, tt.valid)
			}
		})
	}

	if err := unpaired.Validate(); !errors.Is(err, transcript.ErrUnpairedToolResult) {
		t.Errorf("unpaired: error = %v, want ErrUnpairedToolResult", err)
	}
}

func TestIntegration_PostgresStore(t *testing.T) {
	testutil.RequireIntegration(t)
	db := testutil.NewTestDB(t)

	store := NewPostgresStore(db.Pool)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	exerciseStore(t, store)
}

func TestIntegration_PostgresStore_Tx(t *testing.T) {
	testutil.RequireIntegration(t)
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	store := NewPostgresStore(db.Pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sessionID := "tx-" + uuid.NewString()
	if err := store.SaveTranscript(WithTx(ctx, tx), sampleRecord(sessionID)); err != nil {
		t.Fatalf("SaveTranscript(tx) error = %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadTranscript(ctx, sessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("rolled back save is visible: %v", err)
	}
}

func TestIntegration_SQLStore(t *testing.T) {
	testutil.RequireIntegration(t)
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	store, err := OpenSQLStore(ctx, db.URL)
	if err != nil {
		t.Fatalf("OpenSQLStore() error = %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	exerciseStore(t, store)
}

package maintenance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/youssefsiam38/aepilot/storage"
)

// expirerMock records every cutoff it is asked to expire before.
type expirerMock struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int
	err     error
}

func (m *expirerMock) DeleteTranscriptsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.count, m.err
}

func (m *expirerMock) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cutoffs)
}

func TestRetention_StartStop(t *testing.T) {
	store := &expirerMock{count: 2}
	var expired atomic.Int32
	r := NewRetention(store, &RetentionConfig{
		Interval:  20 * time.Millisecond,
		MaxAge:    time.Hour,
		OnExpired: func(n int) { expired.Add(int32(n)) },
	})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !r.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	if err := r.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	time.Sleep(70 * time.Millisecond)

	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if r.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	if err := r.Stop(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Stop() error = %v, want ErrNotStarted", err)
	}

	if store.calls() < 2 {
		t.Errorf("sweeps = %d, want the initial sweep plus at least one tick", store.calls())
	}
	if expired.Load() < 4 {
		t.Errorf("OnExpired total = %d", expired.Load())
	}
}

func TestRetention_RunOnceCutoff(t *testing.T) {
	store := &expirerMock{count: 1}
	r := NewRetention(store, &RetentionConfig{MaxAge: 48 * time.Hour})
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("RunOnce() = %d, %v", n, err)
	}
	if want := now.Add(-48 * time.Hour); !store.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.cutoffs[0], want)
	}
}

func TestRetention_ReportsErrors(t *testing.T) {
	store := &expirerMock{err: errors.New("database unavailable")}
	errs := make(chan error, 1)
	r := NewRetention(store, &RetentionConfig{
		Interval:  time.Hour,
		OnExpired: func(int) { t.Error("OnExpired called on failure") },
		OnError: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop(context.Background())

	select {
	case err := <-errs:
		if err != store.err {
			t.Errorf("OnError got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("OnError not called")
	}
}

func TestNewRetention_Defaults(t *testing.T) {
	r := NewRetention(&expirerMock{}, &RetentionConfig{})
	if r.config.Interval != DefaultRetentionInterval || r.config.MaxAge != DefaultMaxAge {
		t.Errorf("config = %+v", r.config)
	}
	if NewRetention(&expirerMock{}, nil).config.MaxAge != DefaultMaxAge {
		t.Error("nil config should use defaults")
	}
}

func TestRetention_MemoryStore(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	if err := store.SaveTranscript(ctx, &storage.Record{SessionID: "old"}); err != nil {
		t.Fatal(err)
	}

	r := NewRetention(store, &RetentionConfig{MaxAge: time.Hour})
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := r.RunOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RunOnce() = %d, %v", n, err)
	}
	if _, err := store.LoadTranscript(ctx, "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired record still loadable: %v", err)
	}
}

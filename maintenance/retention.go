// Package maintenance runs background upkeep for persisted sessions.
package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/aepilot/storage"
)

// Default retention configuration values
const (
	DefaultRetentionInterval = 1 * time.Hour
	DefaultMaxAge            = 30 * 24 * time.Hour
)

// RetentionConfig holds configuration for the retention service.
type RetentionConfig struct {
	// Interval is how often expired transcripts are removed.
	// Default: 1 hour
	Interval time.Duration

	// MaxAge is how long a transcript is kept after its last update.
	// Default: 30 days
	MaxAge time.Duration

	// OnExpired is called with the number of transcripts removed by a sweep
	// that removed any.
	OnExpired func(count int)

	// OnError is called when a sweep fails.
	OnError func(err error)
}

// DefaultRetentionConfig returns the default retention configuration.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Interval: DefaultRetentionInterval,
		MaxAge:   DefaultMaxAge,
	}
}

// Retention periodically removes transcripts that have not been updated
// within MaxAge.
type Retention struct {
	store  storage.Expirer
	config *RetentionConfig
	now    func() time.Time

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewRetention creates a new retention service. Zero config fields take
// their defaults.
func NewRetention(store storage.Expirer, config *RetentionConfig) *Retention {
	cfg := DefaultRetentionConfig()
	if config != nil {
		*cfg = *config
		if cfg.Interval <= 0 {
			cfg.Interval = DefaultRetentionInterval
		}
		if cfg.MaxAge <= 0 {
			cfg.MaxAge = DefaultMaxAge
		}
	}

	return &Retention{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

// Start begins the sweep loop.
// It returns immediately and sweeps in a goroutine, once right away and then
// every Interval.
func (r *Retention) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	r.done = make(chan struct{})
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)

	return nil
}

// Stop stops the sweep loop and waits for a running sweep to finish.
func (r *Retention) Stop(ctx context.Context) error {
	if !r.started.Load() {
		return ErrNotStarted
	}

	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.started.Store(false)
	return nil
}

// IsRunning returns true if the retention service is running.
func (r *Retention) IsRunning() bool {
	return r.started.Load()
}

func (r *Retention) run(ctx context.Context) {
	defer close(r.done)

	r.sweep(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Retention) sweep(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil {
		if r.config.OnError != nil && ctx.Err() == nil {
			r.config.OnError(err)
		}
		return
	}
	if r.config.OnExpired != nil && n > 0 {
		r.config.OnExpired(n)
	}
}

// RunOnce removes expired transcripts once and returns how many were removed.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	return r.store.DeleteTranscriptsBefore(ctx, r.now().Add(-r.config.MaxAge))
}

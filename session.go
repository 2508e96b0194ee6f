package aepilot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/youssefsiam38/aepilot/compaction"
	"github.com/youssefsiam38/aepilot/loopstate"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/transcript"
)

// Session is one conversation with its own transcript and tool cache
// namespace. Calls on a session are serialized.
type Session struct {
	agent *Agent
	id    string

	mu         sync.Mutex
	transcript *transcript.Transcript
	state      loopstate.State
	usage      streaming.Usage
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Transcript returns the session transcript
func (s *Session) Transcript() *transcript.Transcript {
	return s.transcript
}

// State returns the state the last run ended in
func (s *Session) State() loopstate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Usage returns the tokens used by the session so far
func (s *Session) Usage() streaming.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Reset clears the transcript, the session's cached tool results and its
// stored copy
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript.Reset()
	s.state = loopstate.AwaitingModel
	s.usage = streaming.Usage{}

	var errs []error
	if err := s.agent.invoker.ResetSession(ctx, s.id); err != nil {
		errs = append(errs, err)
	}
	if store := s.agent.config.store; store != nil {
		if err := store.DeleteTranscript(ctx, s.id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return NewAgentErrorWithSession("Reset", s.id, err)
	}
	return nil
}

// Ask runs prompt and returns only the final answer
func (s *Session) Ask(ctx context.Context, prompt string) (string, error) {
	result, err := s.Run(ctx, prompt)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// Complete sends prompt as a single request without tools. Neither the prompt
// nor the answer is added to the transcript.
func (s *Session) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := s.complete(ctx, prompt)
	if err != nil {
		return "", NewAgentErrorWithSession("Complete", s.id, err)
	}
	return text, nil
}

// complete is Complete without locking
func (s *Session) complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := s.agent.tracer.Start(ctx, "aepilot.complete")
	defer span.End()

	var res Result
	turns := []transcript.Turn{{Role: transcript.RoleUser, Text: prompt, CreatedAt: time.Now()}}
	msg, err := s.request(ctx, loopstate.NewMachine(), &res, turns, false)
	if err != nil {
		return "", err
	}
	if msg.StopReason.IsRefusal() {
		return "", ErrRefused
	}
	return strings.TrimSpace(msg.Text), nil
}

// lockedCompleter serves compaction summaries while the session is locked
type lockedCompleter struct {
	s *Session
}

func (c lockedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return c.s.complete(ctx, prompt)
}

// Compact shrinks the transcript now, using the configured compaction
// settings or the compaction defaults. It returns compaction.ErrNothingToCompact
// when the transcript is too short to compact.
func (s *Session) Compact(ctx context.Context) (*compaction.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := compaction.DefaultConfig()
	if s.agent.config.compaction != nil {
		cfg = *s.agent.config.compaction
	}
	res, err := s.compact(ctx, cfg)
	if err != nil {
		return nil, NewAgentErrorWithSession("Compact", s.id, err)
	}
	s.persist(ctx)
	return res, nil
}

// compactIfNeeded runs automatic compaction before a run. Failures are logged
// and the run goes ahead with the full transcript.
func (s *Session) compactIfNeeded(ctx context.Context) {
	cfg := s.agent.config.compaction
	if cfg == nil {
		return
	}
	c, err := s.compactor(*cfg)
	if err != nil {
		s.agent.config.logger.Warn("compaction skipped", "session_id", s.id, "error", err)
		return
	}
	if !c.ShouldCompact(ctx, s.transcript.Turns()) {
		return
	}

	if _, err := s.compactWith(ctx, c); err != nil {
		level := s.agent.config.logger.Warn
		if errors.Is(err, compaction.ErrNothingToCompact) {
			level = s.agent.config.logger.Debug
		}
		level("compaction skipped", "session_id", s.id, "error", err)
	}
}

func (s *Session) compactor(cfg compaction.Config) (*compaction.Compactor, error) {
	c, err := compaction.New(lockedCompleter{s: s}, cfg)
	if err != nil {
		return nil, err
	}
	c.SetLogger(s.agent.config.logger)
	return c, nil
}

func (s *Session) compact(ctx context.Context, cfg compaction.Config) (*compaction.Result, error) {
	c, err := s.compactor(cfg)
	if err != nil {
		return nil, err
	}
	return s.compactWith(ctx, c)
}

func (s *Session) compactWith(ctx context.Context, c *compaction.Compactor) (*compaction.Result, error) {
	res, err := c.Compact(ctx, s.transcript.Turns())
	if err != nil {
		var ce *compaction.CompactionError
		if errors.As(err, &ce) {
			ce.WithSession(s.id)
		}
		return nil, err
	}
	if err := s.transcript.Replace(res.Turns); err != nil {
		return nil, err
	}
	return res, nil
}

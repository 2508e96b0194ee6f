package streaming

import (
	"context"
	"errors"
	"io"
)

const readChunkSize = 4096

// EventSource yields events in order until a terminal event.
type EventSource interface {
	Next() bool
	Event() Event
}

// Stream pulls events from a server-sent event body.
//
//	s := streaming.NewStream(ctx, body, logger)
//	defer s.Close()
//	for s.Next() {
//		ev := s.Event()
//	}
//	if err := s.Err(); err != nil { ... }
//
// The last event is always a TurnStopEvent or an ErrorEvent.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	decoder *Decoder

	chunk   []byte
	queue   []Event
	current Event
	err     error
	eof     bool
}

// NewStream wraps body. The stream owns body and closes it in Close.
func NewStream(ctx context.Context, body io.ReadCloser, logger Logger) *Stream {
	return &Stream{
		ctx:     ctx,
		body:    body,
		decoder: NewDecoder(logger),
		chunk:   make([]byte, readChunkSize),
	}
}

// Next advances to the next event. It returns false once the terminal event
// has been consumed.
func (s *Stream) Next() bool {
	for len(s.queue) == 0 {
		if s.eof {
			return false
		}
		s.fill()
	}

	s.current = s.queue[0]
	s.queue = s.queue[1:]
	if ev, ok := s.current.(*ErrorEvent); ok {
		s.err = ev.Err
	}
	return true
}

func (s *Stream) fill() {
	if err := s.ctx.Err(); err != nil {
		s.queue = append(s.queue, s.decoder.Fail(err)...)
		s.eof = true
		return
	}

	n, err := s.body.Read(s.chunk)
	if n > 0 {
		s.queue = append(s.queue, s.decoder.Feed(s.chunk[:n])...)
	}
	if s.decoder.Done() {
		s.eof = true
		return
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.queue = append(s.queue, s.decoder.Finish()...)
		} else {
			s.queue = append(s.queue, s.decoder.Fail(err)...)
		}
		s.eof = true
	}
}

// Event returns the current event.
func (s *Stream) Event() Event {
	return s.current
}

// Err returns the error carried by a terminal ErrorEvent, if one was seen.
func (s *Stream) Err() error {
	return s.err
}

// Dropped returns the number of malformed lines skipped so far.
func (s *Stream) Dropped() int {
	return s.decoder.Dropped()
}

// Close releases the underlying body.
func (s *Stream) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

package streaming

import "errors"

var (
	// ErrTransport indicates the underlying byte stream failed or was cancelled
	ErrTransport = errors.New("stream transport error")

	// ErrUnexpectedEOF indicates the stream closed before the turn finished
	ErrUnexpectedEOF = errors.New("stream closed before turn stop")

	// ErrUpstream indicates the provider sent an error record in the stream
	ErrUpstream = errors.New("upstream stream error")

	// ErrTurnIncomplete is returned when a message is requested before the turn stopped
	ErrTurnIncomplete = errors.New("turn has not stopped")
)

// Logger is the logging interface used by the decoder and accumulator.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a no-op implementation of Logger.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

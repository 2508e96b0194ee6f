// Package provider defines the boundary between the conversation loop and an
// upstream model API. A Provider returns the raw event stream of one turn;
// decoding it is the job of package streaming.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/transcript"
)

// Provider issues one streaming request per call
type Provider interface {
	// Stream sends req and returns the response body as an SSE stream.
	// The caller closes the returned reader.
	Stream(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Request is the provider-neutral description of one model request
type Request struct {
	Model  string
	System string
	Turns  []transcript.Turn

	// Tools is the catalog offered for this request. Empty means the model
	// cannot call tools.
	Tools []tool.Definition

	Temperature     *float64
	MaxTokens       int64
	Reasoning       bool
	ReasoningBudget int64
}

// ErrorKind classifies upstream failures
type ErrorKind string

const (
	ErrorKindAuth           ErrorKind = "auth"
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
	ErrorKindRateLimited    ErrorKind = "rate_limited"
	ErrorKindUnavailable    ErrorKind = "unavailable"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// ErrUpstream is matched by every *Error
var ErrUpstream = errors.New("upstream request failed")

// Error is a classified upstream failure
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrUpstream as a match
func (e *Error) Is(target error) bool {
	return target == ErrUpstream
}

// Retryable reports whether a later identical request could succeed
func (e *Error) Retryable() bool {
	return e.Kind == ErrorKindRateLimited || e.Kind == ErrorKindUnavailable
}

// KindForStatus maps an HTTP status code to an ErrorKind
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrorKindAuth
	case status == 429:
		return ErrorKindRateLimited
	case status == 529 || status >= 500:
		return ErrorKindUnavailable
	case status >= 400:
		return ErrorKindInvalidRequest
	default:
		return ErrorKindUnknown
	}
}

// KindOf returns the kind of a classified error, or ErrorKindUnknown
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ErrorKindUnknown
}

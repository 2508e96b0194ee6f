package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, ErrorKindAuth},
		{403, ErrorKindAuth},
		{400, ErrorKindInvalidRequest},
		{404, ErrorKindInvalidRequest},
		{429, ErrorKindRateLimited},
		{500, ErrorKindUnavailable},
		{529, ErrorKindUnavailable},
		{0, ErrorKindUnknown},
	}
	for _, tt := range tests {
		if got := KindForStatus(tt.status); got != tt.want {
			t.Errorf("KindForStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestError(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("turn 2: %w", &Error{Kind: ErrorKindRateLimited, StatusCode: 429, Err: base})

	if !errors.Is(err, ErrUpstream) {
		t.Error("should match ErrUpstream")
	}
	if !errors.Is(err, base) {
		t.Error("should unwrap to the cause")
	}
	if KindOf(err) != ErrorKindRateLimited {
		t.Errorf("KindOf() = %s", KindOf(err))
	}
	var perr *Error
	if !errors.As(err, &perr) || !perr.Retryable() {
		t.Error("rate limited errors are retryable")
	}
	if KindOf(base) != ErrorKindUnknown {
		t.Error("unclassified errors are unknown")
	}
}

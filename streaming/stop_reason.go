package streaming

// StopReason is the normalized reason an assistant turn ended.
type StopReason string

const (
	// StopReasonEnd indicates the model finished its answer.
	StopReasonEnd StopReason = "end"

	// StopReasonToolRequest indicates the model wants tools executed.
	StopReasonToolRequest StopReason = "tool_request"

	// StopReasonRefused indicates the provider's classifiers refused the request.
	// A refused turn is a terminal failure and is never retried.
	StopReasonRefused StopReason = "refused"

	// StopReasonMaxTokens indicates the output token limit was reached.
	StopReasonMaxTokens StopReason = "max_tokens"

	// StopReasonUnknown covers any reason the decoder does not recognize.
	StopReasonUnknown StopReason = "unknown"
)

// ParseStopReason maps a wire stop reason onto a StopReason.
func ParseStopReason(raw string) StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return StopReasonEnd
	case "tool_use":
		return StopReasonToolRequest
	case "refusal":
		return StopReasonRefused
	case "max_tokens":
		return StopReasonMaxTokens
	default:
		return StopReasonUnknown
	}
}

// String returns the string representation of the stop reason.
func (r StopReason) String() string {
	return string(r)
}

// IsValid returns true if the stop reason is a known value.
func (r StopReason) IsValid() bool {
	switch r {
	case StopReasonEnd, StopReasonToolRequest, StopReasonRefused,
		StopReasonMaxTokens, StopReasonUnknown:
		return true
	default:
		return false
	}
}

// IsRefusal returns true if the turn was refused.
func (r StopReason) IsRefusal() bool {
	return r == StopReasonRefused
}

// RequiresToolExecution returns true if the model asked for tools.
func (r StopReason) RequiresToolExecution() bool {
	return r == StopReasonToolRequest
}

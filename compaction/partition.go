package compaction

import (
	"github.com/youssefsiam38/aepilot/transcript"
)

// splitIndex returns the index of the first turn kept verbatim. Turns before
// it may be summarized. The index is 0 when nothing can be split off.
func splitIndex(turns []transcript.Turn, cfg Config) int {
	if len(turns) <= cfg.PreserveLastN {
		return 0
	}

	// Take the more conservative of the two bounds
	idx := min(len(turns)-cfg.PreserveLastN, protectedIndex(turns, cfg.ProtectedTokens))
	return adjustToUserTurn(turns, idx)
}

// protectedIndex finds the index where the protected zone starts
func protectedIndex(turns []transcript.Turn, protectedTokens int) int {
	seen := 0
	for i := len(turns) - 1; i >= 0; i-- {
		seen += TurnTokens(turns[i])
		if seen > protectedTokens {
			return i + 1
		}
	}
	return 0
}

// adjustToUserTurn moves idx back onto a user turn. No tool call is open at a
// user turn, so the split never separates a call from its results.
func adjustToUserTurn(turns []transcript.Turn, idx int) int {
	for ; idx > 0; idx-- {
		if idx < len(turns) && turns[idx].Role == transcript.RoleUser {
			return idx
		}
	}
	return 0
}

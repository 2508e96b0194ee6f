package streaming

import (
	"reflect"
	"testing"
)

func TestTryParse(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
		want   map[string]any
		wantOK bool
	}{
		{"empty", "", nil, false},
		{"whitespace", "  \n", nil, false},
		{"partial key", `{"que`, nil, false},
		{"partial value", `{"query":"fo`, nil, false},
		{"missing brace", `{"query":"foo"`, nil, false},
		{"array is not an object", `["a"]`, nil, false},
		{"scalar", `42`, nil, false},
		{"null", `null`, nil, false},
		{"empty object", `{}`, map[string]any{}, true},
		{"complete", `{"query":"foo"}`, map[string]any{"query": "foo"}, true},
		{"surrounding whitespace", " {\"n\": 2}\n", map[string]any{"n": float64(2)}, true},
		{"nested", `{"a":{"b":[1,true]}}`, map[string]any{"a": map[string]any{"b": []any{float64(1), true}}}, true},
		{"trailing garbage", `{"a":1}}`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TryParse(tt.buffer)
			if ok != tt.wantOK {
				t.Fatalf("TryParse(%q) ok = %v, want %v", tt.buffer, ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TryParse(%q) = %#v, want %#v", tt.buffer, got, tt.want)
			}
		})
	}
}

func TestParseStopReason(t *testing.T) {
	tests := []struct {
		raw  string
		want StopReason
	}{
		{"end_turn", StopReasonEnd},
		{"stop_sequence", StopReasonEnd},
		{"tool_use", StopReasonToolRequest},
		{"refusal", StopReasonRefused},
		{"max_tokens", StopReasonMaxTokens},
		{"pause_turn", StopReasonUnknown},
		{"", StopReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseStopReason(tt.raw); got != tt.want {
				t.Errorf("ParseStopReason(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

package planning

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// Assessment values reported by the model
const (
	AssessmentComplete   = "complete"
	AssessmentIncomplete = "incomplete"
)

// Recommendation values reported by the model
const (
	RecommendContinue = "continue"
	RecommendRetry    = "retry"
	RecommendStop     = "stop"
)

// Evaluation is the model's self-assessment after a step
type Evaluation struct {
	Confidence     float64 `json:"confidence"`
	Quality        float64 `json:"quality"`
	Assessment     string  `json:"assessment"`
	Recommendation string  `json:"recommendation"`
	Reasoning      string  `json:"reasoning,omitempty"`

	// Parsed is false when the response held no usable evaluation
	Parsed bool `json:"parsed"`
}

// IsComplete reports whether the evaluation meets threshold and the model
// itself considers the task complete
func (e Evaluation) IsComplete(threshold float64) bool {
	return e.Confidence >= threshold && e.Assessment == AssessmentComplete
}

// ParseEvaluation reads an evaluation from a model response. Scores are
// clamped to [0, 1]. An unparseable response yields zero confidence and a
// continue recommendation.
func ParseEvaluation(response string) Evaluation {
	eval := Evaluation{
		Assessment:     AssessmentIncomplete,
		Recommendation: RecommendContinue,
	}

	raw, ok := extractJSON(response)
	if !ok {
		return eval
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return eval
	}

	eval.Parsed = true
	eval.Confidence = clamp(doc.Get("confidence").Float())
	eval.Quality = clamp(doc.Get("quality").Float())
	if a := strings.ToLower(strings.TrimSpace(doc.Get("assessment").String())); a == AssessmentComplete {
		eval.Assessment = AssessmentComplete
	}
	switch r := strings.ToLower(strings.TrimSpace(doc.Get("recommendation").String())); r {
	case RecommendRetry, RecommendStop:
		eval.Recommendation = r
	}
	eval.Reasoning = strings.TrimSpace(doc.Get("reasoning").String())
	return eval
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FailureAction is what the supervisor does after a step fails
type FailureAction string

const (
	// ActionContinue records the failure and moves on
	ActionContinue FailureAction = "continue"

	// ActionAbort ends the task
	ActionAbort FailureAction = "abort"
)

// Failure categories reported by ClassifyFailure
const (
	CategoryCancelled = "cancelled"
	CategoryFatal     = "fatal"
	CategoryTool      = "tool"
	CategoryTransport = "transport"
	CategoryUnknown   = "unknown"
)

// Failure is the classification of a failed step
type Failure struct {
	Action   FailureAction
	Category string
}

var (
	fatalKeywords     = []string{"fatal", "critical", "refused", "unrecoverable"}
	toolKeywords      = []string{"tool", "invalid arguments"}
	transportKeywords = []string{"transport", "timeout", "timed out", "connection", "network", "rate limit", "unavailable", "stream"}
)

// ClassifyFailure decides whether a failed step ends the task. Cancellation
// and fatal or critical errors abort; tool and transport errors, and anything
// unrecognized, continue.
func ClassifyFailure(err error) Failure {
	if err == nil {
		return Failure{Action: ActionContinue, Category: CategoryUnknown}
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Action: ActionAbort, Category: CategoryCancelled}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, fatalKeywords):
		return Failure{Action: ActionAbort, Category: CategoryFatal}
	case containsAny(msg, toolKeywords):
		return Failure{Action: ActionContinue, Category: CategoryTool}
	case containsAny(msg, transportKeywords):
		return Failure{Action: ActionContinue, Category: CategoryTransport}
	default:
		return Failure{Action: ActionContinue, Category: CategoryUnknown}
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Package planning runs multi-step tasks: it asks the model for a plan, runs
// each step as its own conversation, has the model score progress and stops
// once the task is judged complete.
package planning

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Step is one unit of work in a plan
type Step struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	ExpectedOutcome string `json:"expected_outcome,omitempty"`
	IsComplete      bool   `json:"is_complete"`

	// Attempts counts how often the step was run
	Attempts int    `json:"attempts,omitempty"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Plan is the ordered decomposition of a task. It is mutated in place as
// steps run.
type Plan struct {
	Task               string `json:"task"`
	Steps              []Step `json:"steps"`
	CompletionCriteria string `json:"completion_criteria,omitempty"`
	CurrentStepIndex   int    `json:"current_step_index"`

	// IsFallback is set when the model's plan could not be used
	IsFallback bool `json:"is_fallback,omitempty"`
}

// Current returns the step being worked on
func (p *Plan) Current() (*Step, bool) {
	if p.CurrentStepIndex < 0 || p.CurrentStepIndex >= len(p.Steps) {
		return nil, false
	}
	return &p.Steps[p.CurrentStepIndex], true
}

// Advance moves to the next step and reports whether one is left
func (p *Plan) Advance() bool {
	if p.CurrentStepIndex < len(p.Steps) {
		p.CurrentStepIndex++
	}
	return p.CurrentStepIndex < len(p.Steps)
}

// Exhausted reports whether every step has been visited
func (p *Plan) Exhausted() bool {
	return p.CurrentStepIndex >= len(p.Steps)
}

// Completed returns the number of steps marked complete
func (p *Plan) Completed() int {
	n := 0
	for _, s := range p.Steps {
		if s.IsComplete {
			n++
		}
	}
	return n
}

// FallbackPlan returns the fixed analyze, execute, verify plan used when the
// model's plan cannot be parsed
func FallbackPlan(task string) *Plan {
	return &Plan{
		Task: task,
		Steps: []Step{
			{
				ID:              "analyze",
				Description:     "Analyze the request and gather the information needed: " + task,
				ExpectedOutcome: "The current state and what needs to change are known",
			},
			{
				ID:              "execute",
				Description:     "Carry out the changes needed to accomplish: " + task,
				ExpectedOutcome: "The requested changes have been made",
			},
			{
				ID:              "verify",
				Description:     "Verify that the task has been accomplished: " + task,
				ExpectedOutcome: "The result matches the request",
			},
		},
		CompletionCriteria: "All requested changes are made and verified",
		IsFallback:         true,
	}
}

const planSchema = `{
	"type": "object",
	"required": ["steps"],
	"properties": {
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["description"],
				"properties": {
					"id": {"type": "string"},
					"description": {"type": "string", "minLength": 1},
					"expected_outcome": {"type": "string"}
				}
			}
		},
		"completion_criteria": {"type": "string"}
	}
}`

var compilePlanSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal plan schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("plan.json", doc); err != nil {
		return nil, fmt.Errorf("add plan schema resource: %w", err)
	}
	return c.Compile("plan.json")
})

// ParsePlan extracts a plan from a model response. The JSON object may be
// wrapped in prose or a code fence.
func ParsePlan(task, response string) (*Plan, error) {
	raw, ok := extractJSON(response)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidPlan)
	}

	schema, err := compilePlanSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	var doc struct {
		Steps []struct {
			ID              string `json:"id"`
			Description     string `json:"description"`
			ExpectedOutcome string `json:"expected_outcome"`
		} `json:"steps"`
		CompletionCriteria string `json:"completion_criteria"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	plan := &Plan{Task: task, CompletionCriteria: doc.CompletionCriteria}
	seen := map[string]bool{}
	for _, s := range doc.Steps {
		desc := strings.TrimSpace(s.Description)
		if desc == "" {
			return nil, fmt.Errorf("%w: blank step description", ErrInvalidPlan)
		}
		id := strings.TrimSpace(s.ID)
		if id == "" || seen[id] {
			id = uuid.NewString()
		}
		seen[id] = true
		plan.Steps = append(plan.Steps, Step{
			ID:              id,
			Description:     desc,
			ExpectedOutcome: strings.TrimSpace(s.ExpectedOutcome),
		})
	}
	return plan, nil
}

// ParsePlanOrFallback parses response and substitutes FallbackPlan when it
// is unusable. The returned plan always has at least one step.
func ParsePlanOrFallback(task, response string) (*Plan, error) {
	plan, err := ParsePlan(task, response)
	if err != nil {
		return FallbackPlan(task), err
	}
	return plan, nil
}

// extractJSON returns the outermost JSON object in s, skipping code fences
// and surrounding prose
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	raw := s[start : end+1]
	if !json.Valid([]byte(raw)) {
		return "", false
	}
	return raw, true
}

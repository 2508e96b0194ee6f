package planning

import (
	"fmt"
	"strings"
)

func planPrompt(task string) string {
	return fmt.Sprintf(`Break the following task into an ordered list of concrete steps.

Task: %s

Respond with only a JSON object of this form:
{"steps": [{"id": "short-id", "description": "what to do", "expected_outcome": "how to tell it is done"}], "completion_criteria": "when the whole task is done"}`, task)
}

func stepPrompt(plan *Plan, step *Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are working on this task: %s\n\n", plan.Task)
	fmt.Fprintf(&b, "Current step (%d of %d): %s\n", plan.CurrentStepIndex+1, len(plan.Steps), step.Description)
	if step.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "Expected outcome: %s\n", step.ExpectedOutcome)
	}
	if prev := completedOutputs(plan); prev != "" {
		fmt.Fprintf(&b, "\nResults of earlier steps:\n%s", prev)
	}
	return b.String()
}

func evaluationPrompt(plan *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", plan.Task)
	if plan.CompletionCriteria != "" {
		fmt.Fprintf(&b, "Completion criteria: %s\n", plan.CompletionCriteria)
	}
	b.WriteString("\nSteps so far:\n")
	for i, s := range plan.Steps {
		status := "pending"
		switch {
		case s.IsComplete:
			status = "done"
		case s.Error != "":
			status = "failed: " + s.Error
		}
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, s.Description, status)
		if s.Output != "" {
			fmt.Fprintf(&b, "   Result: %s\n", s.Output)
		}
	}
	b.WriteString(`
Assess whether the task is complete. Respond with only a JSON object:
{"confidence": 0.0-1.0, "quality": 0.0-1.0, "assessment": "complete" or "incomplete", "recommendation": "continue", "retry" or "stop", "reasoning": "short explanation"}`)
	return b.String()
}

func summaryPrompt(plan *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nStep results:\n", plan.Task)
	for i, s := range plan.Steps {
		if s.Output == "" && s.Error == "" {
			continue
		}
		result := s.Output
		if result == "" {
			result = "failed: " + s.Error
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, s.Description, result)
	}
	b.WriteString("\nWrite a short summary for the user of what was done and the outcome.")
	return b.String()
}

func completedOutputs(plan *Plan) string {
	var b strings.Builder
	for i, s := range plan.Steps[:plan.CurrentStepIndex] {
		if s.Output != "" {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s.Output)
		}
	}
	return b.String()
}

// fallbackSummary joins step outputs when the model cannot summarize
func fallbackSummary(plan *Plan) string {
	var parts []string
	for _, s := range plan.Steps {
		if s.Output != "" {
			parts = append(parts, s.Output)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Completed %d of %d steps for: %s", plan.Completed(), len(plan.Steps), plan.Task)
	}
	return strings.Join(parts, "\n\n")
}

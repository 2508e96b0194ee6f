package compaction

import (
	"fmt"
	"strings"

	"github.com/youssefsiam38/aepilot/transcript"
)

// SummaryPrefix starts the user turn that replaces summarized turns
const SummaryPrefix = "Summary of the earlier conversation:\n\n"

// prunedMarker replaces pruned tool output
const prunedMarker = "[tool output pruned]"

const summaryInstructions = `Summarize the conversation below so it can replace the original turns while preserving all context needed to continue.

Use these sections, writing "None" when a section has no content:

1. **Request and Intent**: what the user wants and any constraints
2. **Project State**: compositions, layers, effects and properties inspected or changed
3. **Scripts and Results**: scripts run, their outcomes and any errors with their fixes
4. **Findings**: facts learned from documentation, web or project graph searches
5. **Pending Work**: what remains to be done and the immediate next step

Be concise but complete. Keep exact names of compositions, layers, properties and tools. Do not add information that is not in the conversation.`

// buildSummaryPrompt creates the request asking for a summary of turns
func buildSummaryPrompt(turns []transcript.Turn) string {
	return summaryInstructions + "\n\n<conversation>\n" + formatTurns(turns) + "</conversation>"
}

// formatTurns renders turns as readable text for summarization
func formatTurns(turns []transcript.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case transcript.RoleUser:
			fmt.Fprintf(&b, "User:\n%s\n\n", turn.Text)
		case transcript.RoleAssistant:
			b.WriteString("Assistant:\n")
			if turn.Text != "" {
				b.WriteString(turn.Text)
				b.WriteString("\n")
			}
			for _, call := range turn.ToolCalls {
				fmt.Fprintf(&b, "[called %s with %v]\n", call.Name, call.Arguments)
			}
			b.WriteString("\n")
		case transcript.RoleToolResult:
			if turn.Result == nil {
				continue
			}
			status := "ok"
			if !turn.Result.Success {
				status = "error"
			}
			fmt.Fprintf(&b, "Tool %s (%s):\n%s\n\n", turn.Result.ToolName, status, turn.Result.Content())
		}
	}
	return b.String()
}

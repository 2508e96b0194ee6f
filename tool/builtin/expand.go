package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// maxRelatedQueries is how many model-written queries join the question
	maxRelatedQueries = 4

	// maxManualQueries bounds the keyword fallback, question included
	maxManualQueries = 5
)

// QueryExpander rewrites a question into related search queries
type QueryExpander interface {
	ExpandQueries(ctx context.Context, question string) ([]string, error)
}

// Completer issues a single prompt without tools
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompletionExpander asks the model for related documentation queries
type CompletionExpander struct {
	completer Completer
}

// NewCompletionExpander creates a QueryExpander over completer
func NewCompletionExpander(completer Completer) (*CompletionExpander, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer cannot be nil")
	}
	return &CompletionExpander{completer: completer}, nil
}

// ExpandQueries implements QueryExpander. The question is always the first
// query.
func (e *CompletionExpander) ExpandQueries(ctx context.Context, question string) ([]string, error) {
	resp, err := e.completer.Complete(ctx, expansionPrompt(question))
	if err != nil {
		return nil, err
	}
	related, err := parseQueryList(resp)
	if err != nil {
		return nil, err
	}
	if len(related) > maxRelatedQueries {
		related = related[:maxRelatedQueries]
	}
	return append([]string{question}, related...), nil
}

func expansionPrompt(question string) string {
	return fmt.Sprintf(`You are a search query generator for After Effects ExtendScript documentation. Generate exactly %d related search queries for comprehensive documentation coverage.

Original question: %s

Generate queries that cover:
1. Main objects and classes (Layer, CompItem, Property)
2. Specific methods and properties
3. Alternative terminology
4. Implementation details

Return ONLY a JSON array of %d strings, with no explanation and no markdown.`, maxRelatedQueries, question, maxRelatedQueries)
}

// parseQueryList reads the first JSON array of strings in s
func parseQueryList(s string) ([]string, error) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no query list in response")
	}
	raw := s[start : end+1]
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("query list is not valid JSON")
	}

	var queries []string
	for _, item := range gjson.Parse(raw).Array() {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("query list holds a non-string element")
		}
		if q := strings.TrimSpace(item.Str); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("query list is empty")
	}
	return queries, nil
}

type keywordRule struct {
	keywords []string
	queries  []string
}

var creationRules = []keywordRule{
	{[]string{"layer"}, []string{"add layer to composition", "layer creation methods"}},
	{[]string{"shape"}, []string{"shape layer properties", "addProperty shape"}},
	{[]string{"text"}, []string{"text layer methods", "TextLayer properties"}},
}

var topicRules = []keywordRule{
	{[]string{"property"}, []string{"property setValue getValue", "PropertyGroup addProperty"}},
	{[]string{"keyframe"}, []string{"setValueAtTime keyframe", "Property keyframe methods"}},
	{[]string{"composition", "comp"}, []string{"CompItem methods properties"}},
	{[]string{"effect"}, []string{"apply effect layer", "effects property"}},
}

// ManualQueries derives related queries from keywords in question. It is the
// fallback when no expander is configured or the expander fails.
func ManualQueries(question string) []string {
	lower := strings.ToLower(question)
	queries := []string{question}

	if containsAny(lower, "create", "add") {
		for _, rule := range creationRules {
			if containsAny(lower, rule.keywords...) {
				queries = append(queries, rule.queries...)
			}
		}
	}
	for _, rule := range topicRules {
		if containsAny(lower, rule.keywords...) {
			queries = append(queries, rule.queries...)
		}
	}

	queries = uniqueQueries(queries)
	if len(queries) > maxManualQueries {
		queries = queries[:maxManualQueries]
	}
	return queries
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func uniqueQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := queries[:0:0]
	for _, q := range queries {
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	return out
}

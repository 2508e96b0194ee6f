package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/youssefsiam38/aepilot/tool"
)

const defaultTopK = 5

const (
	// perQueryTopK is how many passages each expanded query asks for
	perQueryTopK = 2

	// maxCollectedHits bounds the unique passages kept across queries
	maxCollectedHits = 8

	// maxExpandedResults bounds the passages returned after filtering
	maxExpandedResults = 6

	// minPassageChars drops fragments too short to be useful
	minPassageChars = 50

	// dedupPrefixChars is how much of a passage identifies it
	dedupPrefixChars = 200
)

// SearchTool exposes a Searcher as a tool
type SearchTool struct {
	name        string
	description string
	searcher    Searcher
	sanitize    *bluemonday.Policy

	// expand enables multi-query search; expander may still be nil, in which
	// case keyword queries are used
	expand   bool
	expander QueryExpander
}

// SearchOption configures a SearchTool
type SearchOption func(*SearchTool)

// WithQueryExpansion makes the tool search a set of related queries instead
// of the question alone. A nil expander, or one that fails, falls back to
// ManualQueries.
func WithQueryExpansion(expander QueryExpander) SearchOption {
	return func(s *SearchTool) {
		s.expand = true
		s.expander = expander
	}
}

// NewDocsSearchTool creates the search_docs tool over the scripting documentation index
func NewDocsSearchTool(searcher Searcher, opts ...SearchOption) (*SearchTool, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	s := &SearchTool{
		name:        "search_docs",
		description: "Search the After Effects scripting and expression documentation. Returns the most relevant passages with their source ids.",
		searcher:    searcher,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewWebSearchTool creates the search_web tool. Web passages may carry
// markup, which is stripped before it reaches the model.
func NewWebSearchTool(searcher Searcher, opts ...SearchOption) (*SearchTool, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	s := &SearchTool{
		name:        "search_web",
		description: "Search the web for tutorials and community answers. Returns plain-text passages with their source URLs.",
		searcher:    searcher,
		sanitize:    bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements tool.Tool
func (s *SearchTool) Name() string {
	return s.name
}

// Description implements tool.Tool
func (s *SearchTool) Description() string {
	return s.description
}

// InputSchema implements tool.Tool
func (s *SearchTool) InputSchema() tool.ToolSchema {
	minK, maxK := 1.0, 20.0
	return tool.ToolSchema{
		Type: "object",
		Properties: map[string]tool.PropertyDef{
			"query": {
				Type:        "string",
				Description: "What to look for",
				MinLength:   intPtr(1),
			},
			"top_k": {
				Type:        "integer",
				Description: "Maximum number of passages to return (default 5)",
				Minimum:     &minK,
				Maximum:     &maxK,
			},
		},
		Required: []string{"query"},
	}
}

// Execute implements tool.Tool
func (s *SearchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if s.expand {
		return s.searchExpanded(ctx, params.Query, params.TopK)
	}
	if params.TopK <= 0 {
		params.TopK = defaultTopK
	}

	resp, err := s.searcher.Search(ctx, params.Query, params.TopK)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.name, err)
	}
	if !resp.Success {
		return "", fmt.Errorf("%s: %s", s.name, resp.Error)
	}

	return s.render(params.Query, resp), nil
}

// render writes one markdown section per passage so that payload truncation
// drops whole passages.
func (s *SearchTool) render(query string, resp SearchResponse) string {
	if len(resp.Results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d of %d results for %q.\n", len(resp.Results), resp.TotalResults, query)
	for i, hit := range resp.Results {
		content := hit.Content
		if s.sanitize != nil {
			content = html.UnescapeString(s.sanitize.Sanitize(content))
		}
		fmt.Fprintf(&b, "\n## Result %d\n\nsource: %s\n", i+1, hit.SourceID)
		if hit.SourceQuery != "" {
			fmt.Fprintf(&b, "found via: %s\n", hit.SourceQuery)
		}
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(content))
	}
	return b.String()
}

// queries returns the question followed by its related queries
func (s *SearchTool) queries(ctx context.Context, question string) []string {
	if s.expander != nil {
		queries, err := s.expander.ExpandQueries(ctx, question)
		if err == nil && len(queries) > 0 {
			if queries[0] != question {
				queries = append([]string{question}, queries...)
			}
			return uniqueQueries(queries)
		}
	}
	return ManualQueries(question)
}

// searchExpanded runs every related query, keeps the first copy of each
// passage and drops fragments. topK, when set, lowers the result cap.
func (s *SearchTool) searchExpanded(ctx context.Context, question string, topK int) (string, error) {
	queries := s.queries(ctx, question)

	var (
		hits    []SearchHit
		total   int
		lastErr error
		ok      bool
	)
	seen := make(map[string]bool)
	for _, q := range queries {
		resp, err := s.searcher.Search(ctx, q, perQueryTopK)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("%s: %w", s.name, ctxErr)
			}
			lastErr = err
			continue
		case !resp.Success:
			lastErr = errors.New(resp.Error)
			continue
		}
		ok = true
		total += resp.TotalResults

		for _, hit := range resp.Results {
			key := dedupKey(hit.Content)
			if seen[key] {
				continue
			}
			seen[key] = true
			hit.SourceQuery = q
			hits = append(hits, hit)
		}
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", s.name, lastErr)
	}
	if len(hits) > maxCollectedHits {
		hits = hits[:maxCollectedHits]
	}

	limit := maxExpandedResults
	if topK > 0 && topK < limit {
		limit = topK
	}
	filtered := hits[:0]
	for _, hit := range hits {
		content := strings.TrimSpace(hit.Content)
		if utf8.RuneCountInString(content) <= minPassageChars {
			continue
		}
		hit.Content = strings.Join(strings.Fields(content), " ")
		filtered = append(filtered, hit)
		if len(filtered) == limit {
			break
		}
	}

	return s.render(question, SearchResponse{
		Success:      true,
		Results:      filtered,
		TotalResults: total,
	}), nil
}

func dedupKey(content string) string {
	if utf8.RuneCountInString(content) <= dedupPrefixChars {
		return content
	}
	return string([]rune(content)[:dedupPrefixChars])
}

// Package bridge talks to the assistant's collaborator services (the host
// scripting bridge, the search backends and the project graph) over HTTP JSON.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/youssefsiam38/aepilot/tool/builtin"
)

// DefaultTimeout bounds one collaborator call when no client is supplied
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 512

// Options configures a Client
type Options struct {
	// Endpoint is the collaborator base URL, for example http://127.0.0.1:8765
	Endpoint string

	// Client is the HTTP client to use. Defaults to one with DefaultTimeout.
	Client *http.Client
}

// Client is an HTTP JSON client for one collaborator service
type Client struct {
	endpoint string
	client   *http.Client
}

// New creates a client for the collaborator at opts.Endpoint
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		client:   httpClient,
	}, nil
}

// post sends body as JSON to path and decodes the JSON answer into out
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

// ScriptRunner runs scripts through the host scripting bridge
type ScriptRunner struct {
	c *Client
}

// NewScriptRunner wraps c as a builtin.CommandRunner
func NewScriptRunner(c *Client) *ScriptRunner {
	return &ScriptRunner{c: c}
}

// RunCommand implements builtin.CommandRunner
func (r *ScriptRunner) RunCommand(ctx context.Context, source string) (builtin.CommandResult, error) {
	var result builtin.CommandResult
	err := r.c.post(ctx, "/run", map[string]string{"source": source}, &result)
	return result, err
}

// Searcher queries one search index
type Searcher struct {
	c     *Client
	index string
}

// NewSearcher wraps c as a builtin.Searcher over the named index
func NewSearcher(c *Client, index string) *Searcher {
	return &Searcher{c: c, index: index}
}

// Search implements builtin.Searcher
func (s *Searcher) Search(ctx context.Context, query string, topK int) (builtin.SearchResponse, error) {
	var resp builtin.SearchResponse
	err := s.c.post(ctx, "/search", map[string]any{
		"index": s.index,
		"query": query,
		"top_k": topK,
	}, &resp)
	return resp, err
}

// QueryGenerator asks the search service for related queries
type QueryGenerator struct {
	c *Client
}

// NewQueryGenerator wraps c as a builtin.QueryExpander
func NewQueryGenerator(c *Client) *QueryGenerator {
	return &QueryGenerator{c: c}
}

// ExpandQueries implements builtin.QueryExpander
func (g *QueryGenerator) ExpandQueries(ctx context.Context, question string) ([]string, error) {
	var resp struct {
		Success bool     `json:"success"`
		Queries []string `json:"generated_queries"`
		Error   string   `json:"error"`
	}
	if err := g.c.post(ctx, "/generate_queries", map[string]string{"query": question}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("generate queries: %s", resp.Error)
	}
	return resp.Queries, nil
}

// Graph runs named project graph queries
type Graph struct {
	c *Client
}

// NewGraph wraps c as a builtin.GraphQuerier
func NewGraph(c *Client) *Graph {
	return &Graph{c: c}
}

// Query implements builtin.GraphQuerier
func (g *Graph) Query(ctx context.Context, name string, params map[string]any) (json.RawMessage, error) {
	var out json.RawMessage
	err := g.c.post(ctx, "/graph/query", map[string]any{
		"query":  name,
		"params": params,
	}, &out)
	return out, err
}

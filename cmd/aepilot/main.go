// Command aepilot runs the assistant against a motion graphics project,
// either one prompt at a time or as an interactive session.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/youssefsiam38/aepilot"
	"github.com/youssefsiam38/aepilot/hooks"
	"github.com/youssefsiam38/aepilot/internal/bridge"
	"github.com/youssefsiam38/aepilot/maintenance"
	"github.com/youssefsiam38/aepilot/metrics"
	"github.com/youssefsiam38/aepilot/planning"
	"github.com/youssefsiam38/aepilot/provider/anthropic"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/tool/builtin"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

const defaultConfigPath = "aepilot.yaml"

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default "+defaultConfigPath+")")
	sessionID := flag.String("session", "", "session id to resume or create")
	plan := flag.Bool("plan", false, "plan the task into steps and supervise them")
	verbose := flag.Bool("verbose", false, "log tool inputs and outputs")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("aepilot", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, explicit := *configPath, *configPath != ""
	if !explicit {
		path = defaultConfigPath
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aepilot: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	app := &app{cfg: cfg, logger: logger, verbose: *verbose}
	defer app.close()

	if err := app.run(ctx, *sessionID, *plan, strings.Join(flag.Args(), " ")); err != nil {
		logger.Error("aepilot failed", "error", err)
		app.close()
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

type app struct {
	cfg     Config
	logger  *slog.Logger
	verbose bool
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) run(ctx context.Context, sessionID string, plan bool, prompt string) error {
	agent, err := a.buildAgent(ctx)
	if err != nil {
		return err
	}

	session, err := a.openSession(ctx, agent, sessionID)
	if err != nil {
		return err
	}
	a.logger.Info("session ready", "session_id", session.ID(), "turns", session.Transcript().Len())

	switch {
	case plan:
		if prompt == "" {
			return errors.New("-plan needs a task")
		}
		return a.supervise(ctx, agent, session, prompt)
	case prompt != "":
		return ask(ctx, session, prompt, os.Stdout)
	default:
		return repl(ctx, session, os.Stdin, os.Stdout)
	}
}

func (a *app) buildAgent(ctx context.Context) (*aepilot.Agent, error) {
	var reqOpts []option.RequestOption
	if a.cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(a.cfg.BaseURL))
	}
	p, err := anthropic.NewFromAPIKey(a.cfg.APIKey, reqOpts...)
	if err != nil {
		return nil, err
	}
	config := aepilot.Config{
		Provider:     p,
		Model:        a.cfg.Model,
		SystemPrompt: a.cfg.SystemPrompt,
	}
	if a.cfg.Compaction != nil && a.cfg.CountTokensAPI {
		counter, err := p.TokenCounter(a.cfg.Model)
		if err != nil {
			return nil, err
		}
		a.cfg.Compaction.Counter = counter
	}

	opts, err := a.options(ctx)
	if err != nil {
		return nil, err
	}
	tools, err := a.collaboratorTools(config)
	if err != nil {
		return nil, err
	}
	opts = append(opts, aepilot.WithTools(tools...))

	if name := a.cfg.Collaborators.Delegate; name != "" {
		sub, err := aepilot.New(config, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s assistant: %w", name, err)
		}
		delegate, err := builtin.NewDelegateTool(sub, name, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, aepilot.WithTools(delegate))
	}

	return aepilot.New(config, opts...)
}

// options turns the config into agent options and opens the cache, store and
// metrics endpoint
func (a *app) options(ctx context.Context) ([]aepilot.Option, error) {
	c := a.cfg
	opts := []aepilot.Option{aepilot.WithLogger(a.logger)}

	if a.verbose {
		opts = append(opts, aepilot.WithHooks(hooks.NewVerboseLoggingHooks(a.logger)))
	} else {
		opts = append(opts, aepilot.WithHooks(hooks.NewLoggingHooks(a.logger)))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, aepilot.WithMaxTokens(c.MaxTokens))
	}
	if c.Temperature != nil {
		opts = append(opts, aepilot.WithTemperature(*c.Temperature))
	}
	if c.ReasoningBudget > 0 {
		opts = append(opts, aepilot.WithReasoning(c.ReasoningBudget))
	}
	if c.MaxTurns > 0 {
		opts = append(opts, aepilot.WithMaxTurns(c.MaxTurns))
	}
	if c.MaxToolCallsPerTurn > 0 {
		opts = append(opts, aepilot.WithMaxToolCallsPerTurn(c.MaxToolCallsPerTurn))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, aepilot.WithRequestTimeout(c.RequestTimeout))
	}
	if c.ToolTimeout > 0 {
		opts = append(opts, aepilot.WithToolTimeout(c.ToolTimeout))
	}
	for name, d := range c.ToolTimeouts {
		opts = append(opts, aepilot.WithToolTimeoutFor(name, d))
	}
	if c.MaxPayloadChars > 0 {
		opts = append(opts, aepilot.WithMaxPayloadChars(c.MaxPayloadChars))
	}
	if c.Compaction != nil {
		opts = append(opts, aepilot.WithCompaction(*c.Compaction))
	}
	if c.RateLimit > 0 {
		opts = append(opts, aepilot.WithRateLimit(rate.Limit(c.RateLimit), c.RateBurst))
	}

	if c.RedisURL != "" {
		redisOpts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		opts = append(opts, aepilot.WithCache(tool.NewRedisCache(rdb, "aepilot:tools")))
	}

	if c.Storage.URL != "" {
		store, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, aepilot.WithStore(store))
		if c.Storage.RetentionMaxAge > 0 {
			if err := a.startRetention(ctx, store); err != nil {
				return nil, err
			}
		}
	}

	if c.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, aepilot.WithMetrics(metrics.New(reg)))
		a.serveMetrics(reg)
	}

	return opts, nil
}

// expiringStore is a transcript store that supports retention
type expiringStore interface {
	storage.Store
	storage.Expirer
}

func (a *app) openStore(ctx context.Context) (expiringStore, error) {
	switch a.cfg.Storage.Driver {
	case "database_sql":
		store, err := storage.OpenSQLStore(ctx, a.cfg.Storage.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		pool, err := pgxpool.New(ctx, a.cfg.Storage.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		store := storage.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *app) startRetention(ctx context.Context, store storage.Expirer) error {
	r := maintenance.NewRetention(store, &maintenance.RetentionConfig{
		Interval: a.cfg.Storage.RetentionInterval,
		MaxAge:   a.cfg.Storage.RetentionMaxAge,
		OnExpired: func(n int) {
			a.logger.Info("expired transcripts removed", "count", n)
		},
		OnError: func(err error) {
			a.logger.Warn("transcript retention failed", "error", err)
		},
	})
	if err := r.Start(ctx); err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(stopCtx)
	})
	return nil
}

func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.cfg.MetricsAddr)

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// collaboratorTools builds the built-in tools whose endpoints are configured
func (a *app) collaboratorTools(config aepilot.Config) ([]tool.Tool, error) {
	c := a.cfg.Collaborators
	var httpClient *http.Client
	if c.Timeout > 0 {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	client := func(endpoint string) (*bridge.Client, error) {
		return bridge.New(bridge.Options{Endpoint: endpoint, Client: httpClient})
	}

	var tools []tool.Tool
	if c.Script != "" {
		bc, err := client(c.Script)
		if err != nil {
			return nil, err
		}
		t, err := builtin.NewScriptTool(bridge.NewScriptRunner(bc))
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	if c.Docs != "" {
		bc, err := client(c.Docs)
		if err != nil {
			return nil, err
		}
		expansion, err := a.queryExpansion(config, bc)
		if err != nil {
			return nil, err
		}
		t, err := builtin.NewDocsSearchTool(bridge.NewSearcher(bc, "docs"), expansion...)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	if c.Web != "" {
		bc, err := client(c.Web)
		if err != nil {
			return nil, err
		}
		t, err := builtin.NewWebSearchTool(bridge.NewSearcher(bc, "web"))
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	if c.Graph != "" {
		bc, err := client(c.Graph)
		if err != nil {
			return nil, err
		}
		t, err := builtin.NewGraphTool(bridge.NewGraph(bc))
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}

	if len(tools) == 0 {
		a.logger.Warn("no collaborator endpoints configured; the assistant has no tools")
	}
	return tools, nil
}

// queryExpansion returns the search_docs options for the configured mode. The
// model mode runs on its own tool-less assistant.
func (a *app) queryExpansion(config aepilot.Config, docs *bridge.Client) ([]builtin.SearchOption, error) {
	switch a.cfg.Collaborators.QueryExpansion {
	case "off":
		return nil, nil
	case "keywords":
		return []builtin.SearchOption{builtin.WithQueryExpansion(nil)}, nil
	case "endpoint":
		return []builtin.SearchOption{builtin.WithQueryExpansion(bridge.NewQueryGenerator(docs))}, nil
	}

	expanderAgent, err := aepilot.New(config, aepilot.WithLogger(a.logger), aepilot.WithMaxTokens(300), aepilot.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("failed to create query expansion assistant: %w", err)
	}
	expander, err := builtin.NewCompletionExpander(expanderAgent.NewSession("query-expansion"))
	if err != nil {
		return nil, err
	}
	return []builtin.SearchOption{builtin.WithQueryExpansion(expander)}, nil
}

func (a *app) openSession(ctx context.Context, agent *aepilot.Agent, id string) (*aepilot.Session, error) {
	if id == "" || a.cfg.Storage.URL == "" {
		return agent.NewSession(id), nil
	}
	session, err := agent.LoadSession(ctx, id)
	if errors.Is(err, aepilot.ErrSessionNotFound) {
		return agent.NewSession(id), nil
	}
	return session, err
}

func (a *app) supervise(ctx context.Context, agent *aepilot.Agent, session *aepilot.Session, task string) error {
	opts := []planning.Option{planning.WithLogger(a.logger)}
	if a.cfg.Planning.Threshold > 0 {
		opts = append(opts, planning.WithThreshold(a.cfg.Planning.Threshold))
	}
	if a.cfg.Planning.MaxIterations > 0 {
		opts = append(opts, planning.WithMaxIterations(a.cfg.Planning.MaxIterations))
	}

	sup, err := planning.New(session, planning.StepRunnerFunc(agent.RunTask), opts...)
	if err != nil {
		return err
	}

	out, err := sup.Run(ctx, task)
	if out != nil && out.Plan != nil {
		for i, step := range out.Plan.Steps {
			mark := " "
			if step.IsComplete {
				mark = "x"
			}
			fmt.Printf("[%s] %d. %s\n", mark, i+1, step.Description)
		}
		fmt.Println()
		fmt.Println(out.Summary)
	}
	return err
}

func ask(ctx context.Context, session *aepilot.Session, prompt string, w io.Writer) error {
	res, err := session.Run(ctx, prompt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, res.Text)
	return err
}

// repl reads one prompt per line until EOF, /exit or cancellation
func repl(ctx context.Context, session *aepilot.Session, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := session.Reset(ctx); err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
			}
			continue
		case "/compact":
			res, err := session.Compact(ctx)
			if err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(w, "compacted %d -> %d tokens (%s)\n", res.OriginalTokens, res.CompactedTokens, res.Strategy)
			continue
		}

		if err := ask(ctx, session, line, w); err != nil {
			if errors.Is(err, aepilot.ErrCancelled) {
				return nil
			}
			fmt.Fprintf(w, "error: %v\n", err)
		}
	}
}

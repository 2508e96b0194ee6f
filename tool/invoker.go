package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single tool call
const DefaultTimeout = 60 * time.Second

const tracerName = "github.com/youssefsiam38/aepilot/tool"

// Logger is the logging interface used by the invoker.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Invoker executes tool calls against a Registry. It never returns an
// error: every failure becomes a Result with Success false so the model
// can read it and react.
type Invoker struct {
	registry  *Registry
	validator *Validator
	cache     Cache
	logger    Logger
	tracer    trace.Tracer

	timeout         time.Duration
	toolTimeouts    map[string]time.Duration
	maxPayloadChars int
	variables       map[string]any
}

// InvokerOption configures an Invoker
type InvokerOption func(*Invoker)

// WithCache sets the session result cache. A nil cache disables caching.
func WithCache(cache Cache) InvokerOption {
	return func(i *Invoker) {
		i.cache = cache
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) InvokerOption {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithTimeout sets the default per-call timeout
func WithTimeout(timeout time.Duration) InvokerOption {
	return func(i *Invoker) {
		if timeout > 0 {
			i.timeout = timeout
		}
	}
}

// WithToolTimeout overrides the timeout for one tool
func WithToolTimeout(name string, timeout time.Duration) InvokerOption {
	return func(i *Invoker) {
		if timeout > 0 {
			i.toolTimeouts[name] = timeout
		}
	}
}

// WithMaxPayloadChars sets the payload character budget. Zero disables truncation.
func WithMaxPayloadChars(n int) InvokerOption {
	return func(i *Invoker) {
		if n >= 0 {
			i.maxPayloadChars = n
		}
	}
}

// WithVariables sets values exposed to tools through GetVariable
func WithVariables(vars map[string]any) InvokerOption {
	return func(i *Invoker) {
		i.variables = vars
	}
}

// NewInvoker creates an invoker for registry. By default results are cached
// in memory.
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		registry:        registry,
		validator:       NewValidator(),
		cache:           NewMemoryCache(),
		logger:          noopLogger{},
		tracer:          otel.Tracer(tracerName),
		timeout:         DefaultTimeout,
		toolTimeouts:    make(map[string]time.Duration),
		maxPayloadChars: DefaultMaxPayloadChars,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Registry returns the registry the invoker executes against
func (i *Invoker) Registry() *Registry {
	return i.registry
}

// TimeoutFor returns the effective timeout for a tool
func (i *Invoker) TimeoutFor(name string) time.Duration {
	if t, ok := i.toolTimeouts[name]; ok {
		return t
	}
	return i.timeout
}

// Execute runs one tool call.
func (i *Invoker) Execute(ctx context.Context, sessionID string, req Request) Result {
	start := time.Now()

	ctx, span := i.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", req.Name),
		attribute.String("tool.call_id", req.ID),
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	result := i.execute(ctx, sessionID, req)
	result.ID = req.ID
	result.Name = req.Name
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Bool("tool.cached", result.Cached),
		attribute.Bool("tool.truncated", result.Truncated),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
		i.logger.Warn("tool call failed",
			"session_id", sessionID,
			"tool", req.Name,
			"call_id", req.ID,
			"error", result.Error,
			"duration", result.Duration,
		)
	} else {
		i.logger.Debug("tool call succeeded",
			"session_id", sessionID,
			"tool", req.Name,
			"call_id", req.ID,
			"cached", result.Cached,
			"truncated", result.Truncated,
			"duration", result.Duration,
		)
	}
	return result
}

func (i *Invoker) execute(ctx context.Context, sessionID string, req Request) Result {
	t, ok := i.registry.Get(req.Name)
	if !ok {
		return failed(&ToolError{
			Name:   req.Name,
			Err:    ErrToolNotFound,
			Detail: "available tools: " + strings.Join(i.registry.List(), ", "),
		})
	}

	input, args, err := normalizeArguments(req.Arguments)
	if err != nil {
		return failed(&ToolError{Name: req.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArguments, err)})
	}
	if err := i.validator.ValidateArguments(t.InputSchema(), args); err != nil {
		return failed(&ToolError{Name: req.Name, Err: err})
	}

	fingerprint, err := Fingerprint(req.Name, args)
	if err != nil {
		fingerprint = ""
	}
	if cached, ok := i.lookup(ctx, sessionID, fingerprint); ok {
		return cached
	}

	runCtx := WithRunContext(ctx, RunContext{
		RunID:     uuid.New(),
		SessionID: sessionID,
		CallID:    req.ID,
		Variables: i.variables,
	})
	output, err := i.run(runCtx, t, input)
	if err != nil {
		return failed(&ToolError{Name: req.Name, Err: err})
	}

	result := Result{Success: true}
	result.Payload, result.Truncated = Truncate(output, i.maxPayloadChars)
	i.store(ctx, sessionID, fingerprint, result)
	return result
}

// run executes t under its timeout. A tool that ignores its context is
// abandoned when the deadline passes.
func (i *Invoker) run(ctx context.Context, t Tool, input json.RawMessage) (string, error) {
	timeout := i.TimeoutFor(t.Name())
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrToolPanicked, r)}
			}
		}()
		output, err := t.Execute(execCtx, input)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && execCtx.Err() != nil {
			return "", contextError(ctx, timeout)
		}
		return o.output, o.err
	case <-execCtx.Done():
		return "", contextError(ctx, timeout)
	}
}

func contextError(parent context.Context, timeout time.Duration) error {
	if parent.Err() != nil {
		return ErrToolCancelled
	}
	return fmt.Errorf("%w after %s", ErrToolTimeout, timeout)
}

func (i *Invoker) lookup(ctx context.Context, sessionID, fingerprint string) (Result, bool) {
	if i.cache == nil || fingerprint == "" {
		return Result{}, false
	}
	cached, ok, err := i.cache.Get(ctx, sessionID, fingerprint)
	if err != nil {
		i.logger.Warn("tool cache read failed", "session_id", sessionID, "error", err)
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	cached.Cached = true
	return cached, true
}

func (i *Invoker) store(ctx context.Context, sessionID, fingerprint string, result Result) {
	if i.cache == nil || fingerprint == "" {
		return
	}
	if err := i.cache.Set(ctx, sessionID, fingerprint, result); err != nil {
		i.logger.Warn("tool cache write failed", "session_id", sessionID, "error", err)
	}
}

// ResetSession drops every cached result of a session
func (i *Invoker) ResetSession(ctx context.Context, sessionID string) error {
	if i.cache == nil {
		return nil
	}
	return i.cache.Reset(ctx, sessionID)
}

// ExecuteAll runs calls one at a time in the order received. When max is
// positive, calls beyond it are not executed but still receive a failed
// result so every call stays paired with a result.
func (i *Invoker) ExecuteAll(ctx context.Context, sessionID string, reqs []Request, max int) []Result {
	results := make([]Result, len(reqs))
	for n, req := range reqs {
		if max > 0 && n >= max {
			results[n] = Result{
				ID:    req.ID,
				Name:  req.Name,
				Error: fmt.Sprintf("%v: at most %d tool calls run per turn", ErrToolSkipped, max),
			}
			continue
		}
		results[n] = i.Execute(ctx, sessionID, req)
	}
	return results
}

// normalizeArguments round-trips arguments through JSON so validation and
// fingerprinting see the same value types the tool will decode.
func normalizeArguments(args map[string]any) (json.RawMessage, map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	input, err := json.Marshal(args)
	if err != nil {
		return nil, nil, err
	}
	var normalized map[string]any
	if err := json.Unmarshal(input, &normalized); err != nil {
		return nil, nil, err
	}
	return input, normalized, nil
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

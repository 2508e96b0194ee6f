package planning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/youssefsiam38/aepilot/planning"

const (
	// DefaultThreshold is the confidence at which a task counts as complete
	DefaultThreshold = 0.8

	// DefaultMaxIterations bounds the number of step executions per task
	DefaultMaxIterations = 10

	// DefaultMaxStepAttempts bounds how often one step is run when the model
	// recommends a retry
	DefaultMaxStepAttempts = 2
)

var (
	// ErrInvalidPlan is returned when a planning response is not a usable plan
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrAborted is returned when a task is abandoned
	ErrAborted = errors.New("task aborted")

	// ErrIterationLimit is returned when the iteration cap expires before the
	// task is judged complete
	ErrIterationLimit = errors.New("iteration limit reached")
)

// State is the phase of a supervised task
type State string

const (
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateEvaluating State = "evaluating"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// IsTerminal returns true for completed and aborted
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted
}

// CanTransitionTo reports whether a task may move from s to target
func (s State) CanTransitionTo(target State) bool {
	if s.IsTerminal() {
		return false
	}
	if target == StateAborted {
		return true
	}
	switch s {
	case StatePlanning:
		return target == StateExecuting || target == StateCompleted
	case StateExecuting:
		return target == StateEvaluating
	case StateEvaluating:
		return target == StateExecuting || target == StateCompleted
	default:
		return false
	}
}

// Completer answers a single prompt without tools
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StepRunner runs one step to completion, tools included
type StepRunner interface {
	RunStep(ctx context.Context, prompt string) (string, error)
}

// StepRunnerFunc adapts a function to StepRunner
type StepRunnerFunc func(ctx context.Context, prompt string) (string, error)

// RunStep calls f
func (f StepRunnerFunc) RunStep(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Logger is the logging interface used by the supervisor.
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

// Option configures a Supervisor
type Option func(*Supervisor) error

// WithThreshold sets the confidence needed to complete a task
func WithThreshold(threshold float64) Option {
	return func(s *Supervisor) error {
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("threshold must be in (0, 1], got %v", threshold)
		}
		s.threshold = threshold
		return nil
	}
}

// WithMaxIterations sets the overall step execution cap
func WithMaxIterations(n int) Option {
	return func(s *Supervisor) error {
		if n < 1 {
			return fmt.Errorf("max iterations must be at least 1, got %d", n)
		}
		s.maxIterations = n
		return nil
	}
}

// WithMaxStepAttempts sets how often a single step may run
func WithMaxStepAttempts(n int) Option {
	return func(s *Supervisor) error {
		if n < 1 {
			return fmt.Errorf("max step attempts must be at least 1, got %d", n)
		}
		s.maxStepAttempts = n
		return nil
	}
}

// WithLogger sets the supervisor logger
func WithLogger(logger Logger) Option {
	return func(s *Supervisor) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// Supervisor plans a task, runs its steps and evaluates progress
type Supervisor struct {
	completer Completer
	runner    StepRunner
	logger    Logger
	tracer    trace.Tracer

	threshold       float64
	maxIterations   int
	maxStepAttempts int
}

// New creates a supervisor. The completer serves planning, evaluation and
// summary requests; the runner executes steps.
func New(completer Completer, runner StepRunner, opts ...Option) (*Supervisor, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("step runner cannot be nil")
	}

	s := &Supervisor{
		completer:       completer,
		runner:          runner,
		logger:          noopLogger{},
		tracer:          otel.Tracer(tracerName),
		threshold:       DefaultThreshold,
		maxIterations:   DefaultMaxIterations,
		maxStepAttempts: DefaultMaxStepAttempts,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return s, nil
}

// Outcome describes a supervised task. Run returns it for aborted tasks too.
type Outcome struct {
	Task        string
	State       State
	Plan        *Plan
	Evaluations []Evaluation
	Iterations  int
	Summary     string

	// PlanError explains why the fallback plan was used
	PlanError error

	History []State
}

// FinalEvaluation returns the last evaluation, if any
func (o *Outcome) FinalEvaluation() (Evaluation, bool) {
	if len(o.Evaluations) == 0 {
		return Evaluation{}, false
	}
	return o.Evaluations[len(o.Evaluations)-1], true
}

func (o *Outcome) to(target State) {
	if o.State != "" && !o.State.CanTransitionTo(target) {
		panic(fmt.Sprintf("planning: invalid transition %s -> %s", o.State, target))
	}
	o.State = target
	o.History = append(o.History, target)
}

// Run plans task and works through the plan until the model judges the task
// complete, the steps run out, a step fails fatally or the iteration cap
// expires.
func (s *Supervisor) Run(ctx context.Context, task string) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "planning.run", trace.WithAttributes(
		attribute.Int("planning.max_iterations", s.maxIterations),
	))
	defer span.End()

	out := &Outcome{Task: task}
	err := s.run(ctx, out)

	span.SetAttributes(
		attribute.String("planning.state", string(out.State)),
		attribute.Int("planning.iterations", out.Iterations),
		attribute.Bool("planning.fallback_plan", out.Plan != nil && out.Plan.IsFallback),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (s *Supervisor) run(ctx context.Context, out *Outcome) error {
	out.to(StatePlanning)
	plan, err := s.plan(ctx, out)
	if err != nil {
		return s.abort(out, fmt.Errorf("%w: planning: %w", ErrAborted, err))
	}
	out.Plan = plan

	for {
		if err := ctx.Err(); err != nil {
			return s.abort(out, fmt.Errorf("%w: %w", ErrAborted, err))
		}
		step, ok := plan.Current()
		if !ok {
			out.to(StateCompleted)
			break
		}
		if out.Iterations >= s.maxIterations {
			return s.expire(ctx, out)
		}
		out.Iterations++

		out.to(StateExecuting)
		if err := s.execute(ctx, plan, step); err != nil {
			return s.abort(out, err)
		}

		out.to(StateEvaluating)
		eval, err := s.evaluate(ctx, plan)
		if err != nil {
			return s.abort(out, fmt.Errorf("%w: %w", ErrAborted, err))
		}
		out.Evaluations = append(out.Evaluations, eval)

		if eval.IsComplete(s.threshold) {
			out.to(StateCompleted)
			break
		}
		if eval.Recommendation == RecommendRetry && step.Attempts < s.maxStepAttempts {
			s.logger.Info("retrying step", "step", step.ID, "attempt", step.Attempts+1)
			continue
		}
		if !plan.Advance() {
			out.to(StateCompleted)
			break
		}
	}

	out.Summary = s.summarize(ctx, plan)
	return nil
}

func (s *Supervisor) plan(ctx context.Context, out *Outcome) (*Plan, error) {
	resp, err := s.completer.Complete(ctx, planPrompt(out.Task))
	if err != nil {
		return nil, err
	}

	plan, perr := ParsePlanOrFallback(out.Task, resp)
	if perr != nil {
		out.PlanError = perr
		s.logger.Warn("using fallback plan", "error", perr)
	}
	s.logger.Info("plan ready", "steps", len(plan.Steps), "fallback", plan.IsFallback)
	return plan, nil
}

// execute runs step and records its output. It returns an error only when
// the failure ends the task.
func (s *Supervisor) execute(ctx context.Context, plan *Plan, step *Step) error {
	step.Attempts++
	output, err := s.runner.RunStep(ctx, stepPrompt(plan, step))
	if err == nil {
		step.Output = strings.TrimSpace(output)
		step.Error = ""
		step.IsComplete = true
		return nil
	}

	step.Error = err.Error()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrAborted, ctxErr)
	}

	failure := ClassifyFailure(err)
	s.logger.Warn("step failed",
		"step", step.ID,
		"category", failure.Category,
		"action", failure.Action,
		"error", err,
	)
	if failure.Action == ActionAbort {
		return fmt.Errorf("%w: step %s: %w", ErrAborted, step.ID, err)
	}
	return nil
}

// evaluate asks the model to score progress. Only cancellation is an error;
// an unusable answer counts as zero confidence.
func (s *Supervisor) evaluate(ctx context.Context, plan *Plan) (Evaluation, error) {
	resp, err := s.completer.Complete(ctx, evaluationPrompt(plan))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Evaluation{}, ctxErr
		}
		s.logger.Warn("evaluation request failed", "error", err)
		return ParseEvaluation(""), nil
	}

	eval := ParseEvaluation(resp)
	if !eval.Parsed {
		s.logger.Warn("evaluation response not understood")
	}
	s.logger.Debug("evaluation",
		"confidence", eval.Confidence,
		"quality", eval.Quality,
		"assessment", eval.Assessment,
		"recommendation", eval.Recommendation,
	)
	return eval, nil
}

// expire runs the final evaluation and summary once the iteration cap is spent
func (s *Supervisor) expire(ctx context.Context, out *Outcome) error {
	s.logger.Warn("iteration limit reached", "iterations", out.Iterations)

	eval, err := s.evaluate(ctx, out.Plan)
	if err != nil {
		return s.abort(out, fmt.Errorf("%w: %w", ErrAborted, err))
	}
	out.Evaluations = append(out.Evaluations, eval)
	out.Summary = s.summarize(ctx, out.Plan)

	if eval.IsComplete(s.threshold) {
		out.to(StateCompleted)
		return nil
	}
	out.to(StateAborted)
	return ErrIterationLimit
}

func (s *Supervisor) summarize(ctx context.Context, plan *Plan) string {
	resp, err := s.completer.Complete(ctx, summaryPrompt(plan))
	if err != nil || strings.TrimSpace(resp) == "" {
		if err != nil {
			s.logger.Warn("summary request failed", "error", err)
		}
		return fallbackSummary(plan)
	}
	return strings.TrimSpace(resp)
}

func (s *Supervisor) abort(out *Outcome, err error) error {
	out.to(StateAborted)
	if out.Plan != nil {
		out.Summary = fallbackSummary(out.Plan)
	}
	s.logger.Error("task aborted", "error", err)
	return err
}

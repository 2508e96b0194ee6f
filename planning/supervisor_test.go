package planning

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/youssefsiam38/aepilot"
	"github.com/youssefsiam38/aepilot/provider/providertest"
)

// scriptedCompleter answers planning, evaluation and summary prompts from
// separate scripts
type scriptedCompleter struct {
	mu         sync.Mutex
	plan       string
	planErr    error
	evals      []string
	evalCalls  int
	summary    string
	summaryErr error
}

func (c *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case strings.HasPrefix(prompt, "Break the following task"):
		return c.plan, c.planErr
	case strings.Contains(prompt, "Assess whether the task is complete"):
		n := c.evalCalls
		c.evalCalls++
		if n < len(c.evals) {
			return c.evals[n], nil
		}
		return "", nil
	default:
		return c.summary, c.summaryErr
	}
}

type recordingRunner struct {
	prompts []string
	fail    map[int]error
}

func (r *recordingRunner) RunStep(ctx context.Context, prompt string) (string, error) {
	n := len(r.prompts)
	r.prompts = append(r.prompts, prompt)
	if err, ok := r.fail[n]; ok {
		return "", err
	}
	return "output " + string(rune('A'+n)), nil
}

const threeSteps = `{"steps":[{"id":"s1","description":"inspect"},{"id":"s2","description":"change"},{"id":"s3","description":"check"}]}`

const (
	incomplete = `{"confidence":0.4,"assessment":"incomplete","recommendation":"continue"}`
	complete   = `{"confidence":0.92,"quality":0.9,"assessment":"complete","recommendation":"stop"}`
)

func newSupervisor(t *testing.T, c Completer, r StepRunner, opts ...Option) *Supervisor {
	t.Helper()
	s, err := New(c, r, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSupervisor_CompletesOnConfidence(t *testing.T) {
	c := &scriptedCompleter{plan: threeSteps, evals: []string{incomplete, complete}, summary: "All done."}
	r := &recordingRunner{}

	out, err := newSupervisor(t, c, r).Run(context.Background(), "fade the title")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.State != StateCompleted {
		t.Errorf("State = %s", out.State)
	}
	if len(r.prompts) != 2 || out.Iterations != 2 {
		t.Errorf("ran %d steps in %d iterations, want 2", len(r.prompts), out.Iterations)
	}
	if out.Summary != "All done." {
		t.Errorf("Summary = %q", out.Summary)
	}
	if !strings.Contains(r.prompts[1], "output A") {
		t.Errorf("second step prompt should carry earlier results: %q", r.prompts[1])
	}

	want := []State{StatePlanning, StateExecuting, StateEvaluating, StateExecuting, StateEvaluating, StateCompleted}
	if len(out.History) != len(want) {
		t.Fatalf("History = %v, want %v", out.History, want)
	}
	for i := range want {
		if out.History[i] != want[i] {
			t.Errorf("History = %v, want %v", out.History, want)
			break
		}
	}
}

func TestSupervisor_FallbackPlanRunsAllSteps(t *testing.T) {
	c := &scriptedCompleter{plan: "Sure! First I'll look around.", summary: "Summary."}
	r := &recordingRunner{}

	out, err := newSupervisor(t, c, r).Run(context.Background(), "tidy the project")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.Plan.IsFallback || !errors.Is(out.PlanError, ErrInvalidPlan) {
		t.Errorf("plan = %+v, error = %v", out.Plan, out.PlanError)
	}
	if len(r.prompts) != 3 {
		t.Errorf("ran %d steps, want all 3 fallback steps", len(r.prompts))
	}
	if out.State != StateCompleted || out.Plan.Completed() != 3 {
		t.Errorf("State = %s with %d steps complete", out.State, out.Plan.Completed())
	}
	for _, eval := range out.Evaluations {
		if eval.Parsed || eval.Confidence != 0 {
			t.Errorf("empty evaluations should count as zero confidence: %+v", eval)
		}
	}
}

func TestSupervisor_StepFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantState State
		wantSteps int
	}{
		{"tool failure continues", errors.New("tool search_docs: tool timed out"), StateCompleted, 3},
		{"unknown failure continues", errors.New("odd"), StateCompleted, 3},
		{"fatal failure aborts", errors.New("fatal: project file is corrupt"), StateAborted, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{plan: threeSteps, summary: "s"}
			r := &recordingRunner{fail: map[int]error{0: tt.err}}

			out, err := newSupervisor(t, c, r).Run(context.Background(), "task")
			if out.State != tt.wantState || len(r.prompts) != tt.wantSteps {
				t.Errorf("State = %s after %d steps, want %s after %d", out.State, len(r.prompts), tt.wantState, tt.wantSteps)
			}
			if tt.wantState == StateAborted {
				if !errors.Is(err, ErrAborted) || !errors.Is(err, tt.err) {
					t.Errorf("error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if out.Plan.Steps[0].Error == "" || out.Plan.Steps[0].IsComplete {
				t.Errorf("failed step = %+v", out.Plan.Steps[0])
			}
		})
	}
}

func TestSupervisor_IterationCap(t *testing.T) {
	plan := `{"steps":[{"description":"1"},{"description":"2"},{"description":"3"},{"description":"4"}]}`
	c := &scriptedCompleter{plan: plan, evals: []string{incomplete, incomplete, incomplete}, summary: "Partial."}
	r := &recordingRunner{}

	out, err := newSupervisor(t, c, r, WithMaxIterations(2)).Run(context.Background(), "task")
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("error = %v, want ErrIterationLimit", err)
	}
	if out.State != StateAborted || len(r.prompts) != 2 {
		t.Errorf("State = %s after %d steps", out.State, len(r.prompts))
	}
	if len(out.Evaluations) != 3 {
		t.Errorf("evaluations = %d, want 2 plus a final one", len(out.Evaluations))
	}
	if out.Summary != "Partial." {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestSupervisor_Retry(t *testing.T) {
	retry := `{"confidence":0.2,"assessment":"incomplete","recommendation":"retry"}`
	plan := `{"steps":[{"id":"only","description":"do it"}]}`
	c := &scriptedCompleter{plan: plan, evals: []string{retry, retry, retry}, summary: "s"}
	r := &recordingRunner{}

	out, err := newSupervisor(t, c, r).Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(r.prompts) != DefaultMaxStepAttempts {
		t.Errorf("step ran %d times, want %d", len(r.prompts), DefaultMaxStepAttempts)
	}
	if out.Plan.Steps[0].Attempts != DefaultMaxStepAttempts {
		t.Errorf("Attempts = %d", out.Plan.Steps[0].Attempts)
	}
}

func TestSupervisor_SummaryFallback(t *testing.T) {
	plan := `{"steps":[{"description":"a"},{"description":"b"}]}`
	c := &scriptedCompleter{plan: plan, summaryErr: errors.New("unavailable")}
	r := &recordingRunner{}

	out, err := newSupervisor(t, c, r).Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Summary != "output A\n\noutput B" {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestSupervisor_PlanningFailureAborts(t *testing.T) {
	c := &scriptedCompleter{planErr: errors.New("stream transport error")}
	r := &recordingRunner{}

	out, err := newSupervisor(t, c, r).Run(context.Background(), "task")
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("error = %v", err)
	}
	if out.State != StateAborted || len(r.prompts) != 0 {
		t.Errorf("State = %s after %d steps", out.State, len(r.prompts))
	}
}

func TestSupervisor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &scriptedCompleter{plan: threeSteps}
	r := StepRunnerFunc(func(ctx context.Context, prompt string) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	out, err := newSupervisor(t, c, r).Run(ctx, "task")
	if !errors.Is(err, ErrAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
	if out.State != StateAborted {
		t.Errorf("State = %s", out.State)
	}
}

func TestNew_Validation(t *testing.T) {
	c, r := &scriptedCompleter{}, &recordingRunner{}
	if _, err := New(nil, r); err == nil {
		t.Error("expected error for nil completer")
	}
	if _, err := New(c, nil); err == nil {
		t.Error("expected error for nil runner")
	}
	for _, opt := range []Option{WithThreshold(0), WithThreshold(1.2), WithMaxIterations(0), WithMaxStepAttempts(0), WithLogger(nil)} {
		if _, err := New(c, r, opt); err == nil {
			t.Error("expected option error")
		}
	}
}

func TestState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StatePlanning, StateExecuting, true},
		{StateExecuting, StateEvaluating, true},
		{StateEvaluating, StateExecuting, true},
		{StateEvaluating, StateCompleted, true},
		{StateExecuting, StateCompleted, false},
		{StatePlanning, StateEvaluating, false},
		{StateExecuting, StateAborted, true},
		{StateCompleted, StateAborted, false},
		{StateAborted, StatePlanning, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSupervisor_WithSession(t *testing.T) {
	p := providertest.New(
		providertest.TextResponse(`{"steps":[{"id":"count","description":"count the layers"}]}`),
		providertest.TextResponse("There are 4 layers."),
		providertest.TextResponse(`{"confidence":0.95,"assessment":"complete"}`),
		providertest.TextResponse("The composition has 4 layers."),
	)
	agent, err := aepilot.New(aepilot.Config{Provider: p, Model: "test-model"})
	if err != nil {
		t.Fatal(err)
	}

	session := agent.NewSession("")
	sup := newSupervisor(t, session, StepRunnerFunc(agent.RunTask))

	out, err := sup.Run(context.Background(), "how many layers are there?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.State != StateCompleted || out.Plan.IsFallback {
		t.Errorf("outcome = %+v", out)
	}
	if out.Plan.Steps[0].Output != "There are 4 layers." {
		t.Errorf("step output = %q", out.Plan.Steps[0].Output)
	}
	if out.Summary != "The composition has 4 layers." {
		t.Errorf("Summary = %q", out.Summary)
	}
	if len(p.Requests()) != 4 {
		t.Errorf("requests = %d, want 4", len(p.Requests()))
	}
}

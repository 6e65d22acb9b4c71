package team

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/event"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// DefaultMaxIterations bounds the number of rounds in a run.
const DefaultMaxIterations = 3

// Config holds the workflow's tunables.
type Config struct {
	MaxIterations int
	Policy        Policy
}

// DefaultConfig returns three iterations under DefaultPolicy.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
		Policy:        DefaultPolicy(),
	}
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithExecutor replaces the default executor.
func WithExecutor(e *Executor) Option {
	return func(w *Workflow) {
		w.executor = e
	}
}

// WithBus publishes phase, vote and completion events.
func WithBus(bus *event.Bus) Option {
	return func(w *Workflow) {
		w.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger.WithComponent("team")
		}
	}
}

// WithIDGenerator overrides run ID generation, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(w *Workflow) {
		w.newID = fn
	}
}

// Workflow drives decompose/execute/vote rounds for one objective at a time.
type Workflow struct {
	cfg      Config
	executor *Executor
	bus      *event.Bus
	logger   *logging.Logger
	newID    func() string

	mu    sync.Mutex
	phase Phase
	runID string
}

// NewWorkflow creates a workflow. Without WithExecutor, tasks are scored by
// a StaticAssessor after DefaultTaskDelay.
func NewWorkflow(cfg Config, opts ...Option) *Workflow {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	w := &Workflow{
		cfg:    cfg,
		logger: logging.NopLogger(),
		newID:  uuid.NewString,
		phase:  PhaseForming,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.executor == nil {
		w.executor = NewExecutor(NewStaticAssessor(), WithExecutorBus(w.bus), WithExecutorLogger(w.logger))
	}
	return w
}

// Phase returns the current lifecycle phase.
func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

func (w *Workflow) transition(iteration int, next Phase) error {
	w.mu.Lock()
	prev := w.phase
	if !prev.CanTransitionTo(next) {
		w.mu.Unlock()
		return errors.NewTeamError("invalid phase transition "+prev.String()+" -> "+next.String(), errors.ErrInvalidInput).
			WithIteration(iteration)
	}
	w.phase = next
	runID := w.runID
	w.mu.Unlock()

	w.logger.Debug("phase changed", "run_id", runID, "from", prev.String(), "to", next.String())
	w.bus.Publish(event.NewPhaseChangedEvent(runID, iteration, prev.String(), next.String()))
	return nil
}

// Run works objective until a vote passes or MaxIterations rounds have run.
// A rejected final vote is not an error: the Outcome reports Success=false.
// Errors are returned for an empty objective, a workflow that is already
// running or finished, and cancellation (with the partial Outcome).
func (w *Workflow) Run(ctx context.Context, objective string) (*Outcome, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, errors.NewTeamError("cannot start workflow", errors.ErrEmptyObjective)
	}

	w.mu.Lock()
	if w.phase != PhaseForming {
		phase := w.phase
		w.mu.Unlock()
		return nil, errors.NewTeamError("workflow already in phase "+phase.String(), errors.ErrInvalidInput)
	}
	w.runID = w.newID()
	w.mu.Unlock()

	start := time.Now()
	out := &Outcome{RunID: w.runID, Objective: objective}
	logger := w.logger.WithRun(w.runID)
	logger.Info("team workflow started", "objective", objective, "max_iterations", w.cfg.MaxIterations)

	finish := func(phase Phase, iteration int) {
		_ = w.transition(iteration, phase)
		out.Phase = phase
		out.Success = phase == PhaseDone
		out.Duration = time.Since(start)
		w.bus.Publish(event.NewTeamFinishedEvent(out.RunID, objective, out.Success, out.Iterations))
		logger.Info("team workflow finished", "success", out.Success, "iterations", out.Iterations, "duration", out.Duration.String())
	}

	for iteration := 1; iteration <= w.cfg.MaxIterations; iteration++ {
		out.Iterations = iteration
		round, err := w.round(ctx, iteration, objective)
		if err != nil {
			finish(PhaseFailed, iteration)
			return out, err
		}
		out.Rounds = append(out.Rounds, *round)

		logger.Info("vote tallied", "iteration", iteration, "vote", round.Vote.String())
		if round.Vote.Passed {
			finish(PhaseDone, iteration)
			return out, nil
		}
	}

	finish(PhaseFailed, out.Iterations)
	return out, nil
}

func (w *Workflow) round(ctx context.Context, iteration int, objective string) (*Round, error) {
	round := &Round{Iteration: iteration, StartedAt: time.Now()}

	if err := w.transition(iteration, PhaseWorking); err != nil {
		return nil, err
	}
	tasks, err := Decompose(objective, iteration)
	if err != nil {
		return nil, err
	}
	round.Tasks = tasks

	results, err := w.executor.Execute(ctx, w.runID, tasks)
	if err != nil {
		return nil, errors.NewTeamError("round canceled", err).WithIteration(iteration).WithRetryable(true)
	}
	round.Results = results

	if err := w.transition(iteration, PhaseVoting); err != nil {
		return nil, err
	}
	round.Vote = Vote(results, w.cfg.Policy)
	round.FinishedAt = time.Now()

	w.bus.Publish(event.NewVoteTalliedEvent(w.runID, iteration, round.Vote.Approvals, len(round.Vote.Ballots), round.Vote.Passed))
	return round, nil
}

// Err returns nil for a successful outcome and an error describing the
// final rejected vote otherwise.
func (o *Outcome) Err() error {
	if o.Success {
		return nil
	}
	return errors.NewTeamError("objective not approved: "+o.FinalVote().String(), errors.ErrIterationsExhausted).
		WithIteration(o.Iterations)
}

// ExecuteObjective joins args into an objective and runs it through a new
// workflow. It is the entry point behind "devcrew team".
func ExecuteObjective(ctx context.Context, args []string, cfg Config, opts ...Option) (*Outcome, error) {
	objective := strings.TrimSpace(strings.Join(args, " "))
	if objective == "" {
		return nil, errors.NewTeamError("no objective given", errors.ErrEmptyObjective)
	}
	return NewWorkflow(cfg, opts...).Run(ctx, objective)
}

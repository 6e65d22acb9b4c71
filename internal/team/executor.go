package team

import (
	"context"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/event"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// DefaultTaskDelay is the simulated working time per task.
const DefaultTaskDelay = 500 * time.Millisecond

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTaskDelay sets the simulated working time per task.
func WithTaskDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.delay = d
	}
}

// WithMaxParallel bounds how many tasks run at once. Zero means unbounded.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		e.maxParallel = n
	}
}

// WithExecutorBus publishes a TaskCompletedEvent per task.
func WithExecutorBus(bus *event.Bus) ExecutorOption {
	return func(e *Executor) {
		e.bus = bus
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor runs a round's tasks concurrently.
type Executor struct {
	assessor    QualityAssessor
	delay       time.Duration
	maxParallel int
	bus         *event.Bus
	logger      *logging.Logger
}

// NewExecutor creates an Executor scoring tasks with assessor.
func NewExecutor(assessor QualityAssessor, opts ...ExecutorOption) *Executor {
	e := &Executor{
		assessor: assessor,
		delay:    DefaultTaskDelay,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every task and returns the results in role order. A task
// whose assessment fails yields an unsuccessful result rather than an
// error; Execute itself only fails when ctx is done.
func (e *Executor) Execute(ctx context.Context, runID string, tasks []Task) ([]TaskResult, error) {
	p := pool.NewWithResults[TaskResult]().WithContext(ctx)
	if e.maxParallel > 0 {
		p = p.WithMaxGoroutines(e.maxParallel)
	}

	for _, task := range tasks {
		p.Go(func(ctx context.Context) (TaskResult, error) {
			return e.run(ctx, runID, task)
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Task.Role.rank() < results[j].Task.Role.rank()
	})
	return results, nil
}

func (e *Executor) run(ctx context.Context, runID string, task Task) (TaskResult, error) {
	start := time.Now()
	logger := e.logger.With("task_id", task.ID, "role", task.Role.String())
	logger.Debug("task started", "title", task.Title)

	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return TaskResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	result := TaskResult{Task: task, Success: true}
	metrics, err := e.assessor.Assess(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			return TaskResult{}, ctx.Err()
		}
		teamErr := errors.NewTeamError("assessment failed", err).
			WithTaskID(task.ID).
			WithRole(task.Role.String()).
			WithIteration(task.Iteration)
		result.Success = false
		result.Error = teamErr.Error()
		logger.Warn("task assessment failed", "error", err)
	}
	result.Metrics = metrics
	result.Duration = time.Since(start)

	logger.Debug("task finished", "success", result.Success, "duration", result.Duration.String())
	e.bus.Publish(event.NewTaskCompletedEvent(runID, task.ID, task.Role.String(), result.Success, result.Duration))
	return result, nil
}

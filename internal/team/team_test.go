package team

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/event"
)

func TestPhase_Transitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseForming, PhaseWorking, true},
		{PhaseWorking, PhaseVoting, true},
		{PhaseVoting, PhaseWorking, true},
		{PhaseVoting, PhaseDone, true},
		{PhaseVoting, PhaseFailed, true},
		{PhaseForming, PhaseDone, false},
		{PhaseWorking, PhaseDone, false},
		{PhaseDone, PhaseWorking, false},
		{PhaseFailed, PhaseWorking, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, PhaseDone.IsTerminal())
	assert.True(t, PhaseFailed.IsTerminal())
	assert.False(t, PhaseVoting.IsTerminal())
}

func TestRole_IsValid(t *testing.T) {
	for _, r := range Roles() {
		assert.True(t, r.IsValid(), r)
	}
	assert.False(t, Role("manager").IsValid())
}

func TestDecompose(t *testing.T) {
	tasks, err := Decompose("  add login page ", 1)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	for i, role := range Roles() {
		assert.Equal(t, role, tasks[i].Role)
		assert.Equal(t, 1, tasks[i].Iteration)
		assert.NotContains(t, tasks[i].Title, "improved")
		assert.Contains(t, tasks[i].Title, "add login page")
	}
	assert.Equal(t, "Plan: add login page", tasks[0].Title)

	second, err := Decompose("add login page", 2)
	require.NoError(t, err)
	for _, task := range second {
		assert.True(t, strings.HasSuffix(task.Title, " (improved v2)"), task.Title)
	}
	assert.NotEqual(t, tasks[0].ID, second[0].ID)

	_, err = Decompose("   ", 1)
	assert.ErrorIs(t, err, errors.ErrEmptyObjective)
	_, err = Decompose("x", 0)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestStaticAssessor(t *testing.T) {
	ctx := context.Background()
	a := NewStaticAssessor()

	m1, err := a.Assess(ctx, Task{Role: RoleTester, Iteration: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, m1["test_coverage"], 1e-9)

	m3, err := a.Assess(ctx, Task{Role: RoleTester, Iteration: 3})
	require.NoError(t, err)
	assert.Equal(t, m1, m3, "default scores do not change between iterations")

	improving := &StaticAssessor{Improvement: 0.05}
	m3, err = improving.Assess(ctx, Task{Role: RoleTester, Iteration: 3})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, m3["test_coverage"], 1e-9)
	assert.InDelta(t, 1.0, m3["pass_rate"], 1e-9, "scores are capped at 1")

	custom := &StaticAssessor{Base: map[Role]Metrics{RolePlanner: {"clarity": 0.1}}}
	m, err := custom.Assess(ctx, Task{Role: RolePlanner, Iteration: 1})
	require.NoError(t, err)
	assert.Equal(t, Metrics{"clarity": 0.1}, m)
}

func resultsFor(metrics map[Role]Metrics) []TaskResult {
	var out []TaskResult
	for _, role := range Roles() {
		out = append(out, TaskResult{Task: Task{Role: role}, Success: true, Metrics: metrics[role]})
	}
	return out
}

func TestVote(t *testing.T) {
	good := map[Role]Metrics{}
	for role, m := range baseMetrics {
		good[role] = m
	}

	t.Run("default metrics pass", func(t *testing.T) {
		v := Vote(resultsFor(good), DefaultPolicy())
		assert.True(t, v.Passed)
		assert.Equal(t, 4, v.Approvals)
		assert.True(t, v.MandatoryApproved)
		assert.Equal(t, "4/4 approvals (need 3, tester approved): passed", v.String())
	})

	t.Run("three approvals without the tester fail", func(t *testing.T) {
		m := cloneMetrics(good)
		m[RoleTester] = Metrics{"test_coverage": 0.5, "pass_rate": 0.95}
		v := Vote(resultsFor(m), DefaultPolicy())
		assert.False(t, v.Passed)
		assert.Equal(t, 3, v.Approvals)
		assert.False(t, v.MandatoryApproved)
		assert.Contains(t, v.Ballots[2].Reasons, "test_coverage 0.50 below 0.80")
	})

	t.Run("two approvals fail", func(t *testing.T) {
		m := cloneMetrics(good)
		m[RolePlanner] = Metrics{}
		m[RoleReviewer] = Metrics{"review_score": 0.1}
		v := Vote(resultsFor(m), DefaultPolicy())
		assert.False(t, v.Passed)
		assert.Equal(t, 2, v.Approvals)
		assert.Contains(t, v.Ballots[0].Reasons, "clarity missing")
	})

	t.Run("failed task never approves", func(t *testing.T) {
		results := resultsFor(good)
		results[1].Success = false
		results[1].Error = "boom"
		v := Vote(results, DefaultPolicy())
		assert.False(t, v.Ballots[1].Approve)
		assert.True(t, v.Passed, "three approvals including tester still pass")
	})

	t.Run("no mandatory role", func(t *testing.T) {
		m := cloneMetrics(good)
		m[RoleTester] = Metrics{}
		p := DefaultPolicy()
		p.MandatoryRole = ""
		v := Vote(resultsFor(m), p)
		assert.True(t, v.Passed)
	})
}

func cloneMetrics(in map[Role]Metrics) map[Role]Metrics {
	out := make(map[Role]Metrics, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func TestExecutor_RunsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	assessor := AssessorFunc(func(ctx context.Context, task Task) (Metrics, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		return baseMetrics[task.Role], nil
	})

	tasks, err := Decompose("ship it", 1)
	require.NoError(t, err)

	results, err := NewExecutor(assessor, WithTaskDelay(0)).Execute(context.Background(), "run", tasks)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Greater(t, peak.Load(), int32(1))

	for i, role := range Roles() {
		assert.Equal(t, role, results[i].Task.Role, "results are returned in role order")
		assert.True(t, results[i].Success)
	}
}

func TestExecutor_MaxParallel(t *testing.T) {
	var inFlight, peak atomic.Int32
	assessor := AssessorFunc(func(ctx context.Context, task Task) (Metrics, error) {
		n := inFlight.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	tasks, err := Decompose("ship it", 1)
	require.NoError(t, err)

	_, err = NewExecutor(assessor, WithTaskDelay(0), WithMaxParallel(1)).Execute(context.Background(), "run", tasks)
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestExecutor_AssessmentFailure(t *testing.T) {
	assessor := AssessorFunc(func(ctx context.Context, task Task) (Metrics, error) {
		if task.Role == RoleReviewer {
			return nil, fmt.Errorf("reviewer unavailable")
		}
		return baseMetrics[task.Role], nil
	})
	tasks, err := Decompose("ship it", 1)
	require.NoError(t, err)

	bus := event.NewBus()
	var completed atomic.Int32
	bus.Subscribe(event.TypeTaskCompleted, func(event.Event) { completed.Add(1) })

	results, err := NewExecutor(assessor, WithTaskDelay(time.Millisecond), WithExecutorBus(bus)).
		Execute(context.Background(), "run", tasks)
	require.NoError(t, err)
	assert.False(t, results[3].Success)
	assert.Contains(t, results[3].Error, "role=reviewer")
	assert.Contains(t, results[3].Error, "task="+results[3].Task.ID)
	assert.Contains(t, results[3].Error, "iteration=1")
	assert.True(t, strings.HasSuffix(results[3].Error, "assessment failed: reviewer unavailable"), results[3].Error)
	assert.Equal(t, int32(4), completed.Load())
}

func TestExecutor_Canceled(t *testing.T) {
	tasks, err := Decompose("ship it", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = NewExecutor(NewStaticAssessor(), WithTaskDelay(time.Hour)).Execute(ctx, "run", tasks)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func fastWorkflow(assessor QualityAssessor, bus *event.Bus) *Workflow {
	return NewWorkflow(DefaultConfig(),
		WithBus(bus),
		WithExecutor(NewExecutor(assessor, WithTaskDelay(0), WithExecutorBus(bus))),
		WithIDGenerator(func() string { return "run-1" }),
	)
}

func TestWorkflow_PassesFirstIteration(t *testing.T) {
	bus := event.NewBus()
	var mu sync.Mutex
	var phases []string
	bus.Subscribe(event.TypePhaseChanged, func(e event.Event) {
		pc := e.(event.PhaseChangedEvent)
		mu.Lock()
		phases = append(phases, pc.From+"->"+pc.To)
		mu.Unlock()
	})
	var finished event.TeamFinishedEvent
	bus.Subscribe(event.TypeTeamFinished, func(e event.Event) { finished = e.(event.TeamFinishedEvent) })

	w := fastWorkflow(NewStaticAssessor(), bus)
	out, err := w.Run(context.Background(), "build a todo app")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Iterations)
	assert.Equal(t, PhaseDone, out.Phase)
	assert.Equal(t, PhaseDone, w.Phase())
	assert.Equal(t, "run-1", out.RunID)
	require.Len(t, out.Rounds, 1)
	assert.Len(t, out.Rounds[0].Results, 4)
	assert.NoError(t, out.Err())

	assert.Equal(t, []string{"forming->working", "working->voting", "voting->done"}, phases)
	assert.True(t, finished.Success)
	assert.Equal(t, 1, finished.Iterations)

	_, err = w.Run(context.Background(), "again")
	assert.ErrorIs(t, err, errors.ErrInvalidInput, "a workflow runs once")
}

func TestWorkflow_ImprovesUntilApproved(t *testing.T) {
	// The tester starts below threshold and crosses it on the third iteration.
	assessor := &StaticAssessor{
		Base:        map[Role]Metrics{RoleTester: {"test_coverage": 0.72, "pass_rate": 0.95}},
		Improvement: 0.05,
	}
	out, err := fastWorkflow(assessor, nil).Run(context.Background(), "refactor billing")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Iterations)
	require.Len(t, out.Rounds, 3)
	assert.False(t, out.Rounds[0].Vote.Passed)
	assert.False(t, out.Rounds[1].Vote.Passed)
	assert.True(t, out.Rounds[2].Vote.Passed)
	assert.Contains(t, out.Rounds[2].Tasks[0].Title, "(improved v3)")
}

func TestWorkflow_ExhaustsIterations(t *testing.T) {
	assessor := AssessorFunc(func(ctx context.Context, task Task) (Metrics, error) {
		return Metrics{}, nil
	})
	bus := event.NewBus()
	var votes atomic.Int32
	bus.Subscribe(event.TypeVoteTallied, func(event.Event) { votes.Add(1) })

	out, err := fastWorkflow(assessor, bus).Run(context.Background(), "impossible")
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, 3, out.Iterations)
	assert.Equal(t, PhaseFailed, out.Phase)
	assert.Equal(t, int32(3), votes.Load())
	assert.ErrorIs(t, out.Err(), errors.ErrIterationsExhausted)
	assert.Zero(t, out.FinalVote().Approvals)
}

func TestWorkflow_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorkflow(DefaultConfig(), WithExecutor(NewExecutor(NewStaticAssessor(), WithTaskDelay(time.Hour))))
	out, err := w.Run(ctx, "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseFailed, out.Phase)
	assert.False(t, out.Success)
}

func TestExecuteObjective(t *testing.T) {
	cfg := DefaultConfig()
	exec := NewExecutor(NewStaticAssessor(), WithTaskDelay(0))

	out, err := ExecuteObjective(context.Background(), []string{"add", "dark", "mode"}, cfg, WithExecutor(exec))
	require.NoError(t, err)
	assert.Equal(t, "add dark mode", out.Objective)
	assert.True(t, out.Success)

	_, err = ExecuteObjective(context.Background(), nil, cfg)
	assert.ErrorIs(t, err, errors.ErrEmptyObjective)
	_, err = ExecuteObjective(context.Background(), []string{" ", ""}, cfg)
	assert.ErrorIs(t, err, errors.ErrEmptyObjective)
}

func TestNewWorkflow_DefaultsIterations(t *testing.T) {
	w := NewWorkflow(Config{Policy: DefaultPolicy()})
	assert.Equal(t, DefaultMaxIterations, w.cfg.MaxIterations)
	assert.Equal(t, PhaseForming, w.Phase())
}

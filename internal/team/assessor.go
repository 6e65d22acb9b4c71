package team

import (
	"context"
	"math"
)

// QualityAssessor scores a completed task.
type QualityAssessor interface {
	Assess(ctx context.Context, task Task) (Metrics, error)
}

// AssessorFunc adapts a function to QualityAssessor.
type AssessorFunc func(ctx context.Context, task Task) (Metrics, error)

// Assess implements QualityAssessor.
func (f AssessorFunc) Assess(ctx context.Context, task Task) (Metrics, error) {
	return f(ctx, task)
}

// baseMetrics are the fixed scores StaticAssessor starts from.
var baseMetrics = map[Role]Metrics{
	RolePlanner:   {"completeness": 0.90, "clarity": 0.85},
	RoleDeveloper: {"code_quality": 0.85, "test_coverage": 0.80},
	RoleTester:    {"test_coverage": 0.85, "pass_rate": 0.95},
	RoleReviewer:  {"review_score": 0.88, "consistency": 0.90},
}

// StaticAssessor returns fixed per-role metrics. When Improvement is set,
// each iteration after the first adds it to every score, capped at 1.
type StaticAssessor struct {
	// Base overrides the starting metrics for individual roles.
	Base map[Role]Metrics
	// Improvement is added per iteration beyond the first. Zero keeps the
	// scores constant.
	Improvement float64
}

// NewStaticAssessor returns a StaticAssessor with the default, constant
// scores.
func NewStaticAssessor() *StaticAssessor {
	return &StaticAssessor{}
}

// Assess implements QualityAssessor.
func (a *StaticAssessor) Assess(ctx context.Context, task Task) (Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base, ok := a.Base[task.Role]
	if !ok {
		base = baseMetrics[task.Role]
	}

	bonus := a.Improvement * float64(max(task.Iteration-1, 0))
	out := make(Metrics, len(base))
	for name, v := range base {
		out[name] = math.Min(1, math.Round((v+bonus)*1000)/1000)
	}
	return out, nil
}

package diagnose

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/devcrew/internal/logging"
)

// Runner executes a list of checks.
type Runner struct {
	checks []Check
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// NewRunner creates a Runner for checks. A nil logger discards output.
func NewRunner(checks []Check, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		checks: checks,
		logger: logger.WithComponent("diagnose"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run executes every check concurrently against root and returns the
// report with steps in check order. The only error is ctx's.
func (r *Runner) Run(ctx context.Context, root string) (*Report, error) {
	report := &Report{
		RunID:     r.newID(),
		Root:      root,
		StartedAt: r.now(),
		Steps:     make([]StepResult, len(r.checks)),
	}
	logger := r.logger.WithRun(report.RunID)
	logger.Info("diagnosis started", "root", root, "steps", len(r.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range r.checks {
		g.Go(func() error {
			report.Steps[i] = runCheck(gctx, check, root)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.FinishedAt = r.now()
	report.Passed = len(report.Failed()) == 0
	for _, s := range report.Steps {
		logger.Debug("diagnosis step", "step", s.Name, "status", string(s.Status), "message", s.Message)
	}
	logger.Info("diagnosis finished", "passed", report.Passed, "failed_steps", len(report.Failed()))
	return report, nil
}

// runCheck times a check and turns a panic into a failed step.
func runCheck(ctx context.Context, c Check, root string) (res StepResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = result(c, StatusFail, fmt.Sprintf("check panicked: %v", p), nil)
		}
		res.DurationMS = time.Since(start).Milliseconds()
	}()
	return c.Run(ctx, root)
}

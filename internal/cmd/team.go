package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/team"
	"github.com/Iron-Ham/devcrew/internal/ui"
)

var teamCmd = &cobra.Command{
	Use:   "team <objective...>",
	Short: "Run the simulated team against an objective",
	Long: `Team joins its arguments into an objective and runs it through the
planner, developer, tester and reviewer roles:

1. The objective is decomposed into one task per role.
2. The tasks are executed concurrently.
3. Each role votes on its own result against its quality thresholds.

The run succeeds when enough roles approve (team.required_approvals),
including team.mandatory_role. A rejected vote starts another iteration,
up to team.max_iterations. The command exits non-zero when the objective
is not approved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTeam,
}

var (
	teamJSON          bool
	teamMaxIterations int
)

func init() {
	rootCmd.AddCommand(teamCmd)
	teamCmd.Flags().BoolVar(&teamJSON, "json", false, "Print the outcome as JSON")
	teamCmd.Flags().IntVar(&teamMaxIterations, "max-iterations", 0, "Override team.max_iterations")
}

func runTeam(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}

	cfg := team.Config{
		MaxIterations: a.cfg.Team.MaxIterations,
		Policy:        team.DefaultPolicy(),
	}
	if teamMaxIterations > 0 {
		cfg.MaxIterations = teamMaxIterations
	}
	cfg.Policy.RequiredApprovals = a.cfg.Team.RequiredApprovals
	cfg.Policy.MandatoryRole = team.Role(a.cfg.Team.MandatoryRole)

	executor := team.NewExecutor(team.NewStaticAssessor(),
		team.WithTaskDelay(a.cfg.Team.TaskDelay()),
		team.WithExecutorBus(a.bus),
		team.WithExecutorLogger(a.logger),
	)
	outcome, err := team.ExecuteObjective(cmd.Context(), args, cfg,
		team.WithExecutor(executor),
		team.WithBus(a.bus),
		team.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if teamJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return err
		}
	} else {
		printOutcome(w, outcome)
	}
	return outcome.Err()
}

func printOutcome(w io.Writer, out *team.Outcome) {
	ui.Header(w, "Team run", out.Objective)
	fmt.Fprintln(w)

	for _, round := range out.Rounds {
		verdict := "rejected"
		if round.Vote.Passed {
			verdict = "approved"
		}
		fmt.Fprintf(w, "Iteration %d: %s\n", round.Iteration, ui.Status(verdict, round.Vote.String()))
		for _, res := range round.Results {
			status := "pass"
			if !res.Success {
				status = "fail"
			}
			fmt.Fprintf(w, "  %s %-10s %s %s\n",
				ui.Status(status, symbolFor(res.Success)),
				res.Task.Role,
				formatMetrics(res.Metrics),
				ui.Muted.Render(res.Duration.Round(time.Millisecond).String()))
		}
		for _, ballot := range round.Vote.Ballots {
			if !ballot.Approve && len(ballot.Reasons) > 0 {
				fmt.Fprintf(w, "  %s %s: %s\n", ui.Warning.Render("!"), ballot.Role, strings.Join(ballot.Reasons, "; "))
			}
		}
	}

	fmt.Fprintln(w)
	result := "rejected"
	if out.Success {
		result = "approved"
	}
	ui.KV(w, "Run", out.RunID)
	ui.KV(w, "Iterations", out.Iterations)
	ui.KV(w, "Duration", out.Duration.Round(time.Millisecond))
	ui.KV(w, "Result", ui.Status(result, result))
}

func symbolFor(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// formatMetrics renders scores sorted by name, e.g. "clarity=0.85 completeness=0.90".
func formatMetrics(m team.Metrics) string {
	parts := make([]string, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, fmt.Sprintf("%s=%.2f", name, m[name]))
	}
	return strings.Join(parts, " ")
}

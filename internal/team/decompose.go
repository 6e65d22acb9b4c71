package team

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

type taskTemplate struct {
	title       string
	description string
}

var taskTemplates = map[Role]taskTemplate{
	RolePlanner: {
		title:       "Plan: %s",
		description: "Break the objective into steps, identify affected modules and define acceptance criteria.",
	},
	RoleDeveloper: {
		title:       "Implement: %s",
		description: "Write the code for the planned steps following the project's conventions.",
	},
	RoleTester: {
		title:       "Test: %s",
		description: "Add unit and integration tests covering the acceptance criteria and edge cases.",
	},
	RoleReviewer: {
		title:       "Review: %s",
		description: "Review the change for correctness, readability and consistency with the plan.",
	},
}

// Decompose splits objective into one task per role. From the second
// iteration on, titles carry an " (improved vN)" suffix.
func Decompose(objective string, iteration int) ([]Task, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, errors.NewTeamError("cannot decompose", errors.ErrEmptyObjective)
	}
	if iteration < 1 {
		return nil, errors.NewValidationError("iteration must be at least 1").WithField("iteration").WithValue(iteration)
	}

	suffix := ""
	if iteration > 1 {
		suffix = fmt.Sprintf(" (improved v%d)", iteration)
	}

	tasks := make([]Task, 0, len(Roles()))
	for _, role := range Roles() {
		tmpl := taskTemplates[role]
		tasks = append(tasks, Task{
			ID:          fmt.Sprintf("it%d-%s", iteration, role),
			Role:        role,
			Title:       fmt.Sprintf(tmpl.title, objective) + suffix,
			Description: tmpl.description,
			Iteration:   iteration,
		})
	}
	return tasks, nil
}

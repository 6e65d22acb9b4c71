package team

import (
	"fmt"
	"time"
)

// Phase represents the lifecycle phase of a workflow run.
type Phase string

const (
	// PhaseForming indicates the run has been configured but not yet started.
	PhaseForming Phase = "forming"

	// PhaseWorking indicates the team is executing the current round's tasks.
	PhaseWorking Phase = "working"

	// PhaseVoting indicates the team is voting on the round's results.
	PhaseVoting Phase = "voting"

	// PhaseDone indicates a vote passed.
	PhaseDone Phase = "done"

	// PhaseFailed indicates the run was canceled or ran out of iterations.
	PhaseFailed Phase = "failed"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal returns true if this phase represents a final state.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

var validTransitions = map[Phase][]Phase{
	PhaseForming: {PhaseWorking, PhaseFailed},
	PhaseWorking: {PhaseVoting, PhaseFailed},
	PhaseVoting:  {PhaseWorking, PhaseDone, PhaseFailed},
}

// CanTransitionTo reports whether moving from p to next is allowed.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range validTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Role is a team member's function.
type Role string

const (
	// RolePlanner breaks the objective into a plan.
	RolePlanner Role = "planner"

	// RoleDeveloper implements the plan.
	RoleDeveloper Role = "developer"

	// RoleTester verifies the implementation.
	RoleTester Role = "tester"

	// RoleReviewer reviews the change as a whole.
	RoleReviewer Role = "reviewer"
)

// Roles returns every role in execution order.
func Roles() []Role {
	return []Role{RolePlanner, RoleDeveloper, RoleTester, RoleReviewer}
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if this is a recognized role value.
func (r Role) IsValid() bool {
	switch r {
	case RolePlanner, RoleDeveloper, RoleTester, RoleReviewer:
		return true
	default:
		return false
	}
}

// rank orders roles for stable output.
func (r Role) rank() int {
	for i, role := range Roles() {
		if role == r {
			return i
		}
	}
	return len(Roles())
}

// Task is one role's share of an objective in a given iteration.
type Task struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Iteration   int    `json:"iteration"`
}

// Metrics are named quality scores in [0, 1].
type Metrics map[string]float64

// TaskResult is the outcome of executing one Task.
type TaskResult struct {
	Task     Task          `json:"task"`
	Success  bool          `json:"success"`
	Metrics  Metrics       `json:"metrics,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Ballot is one role's vote.
type Ballot struct {
	Role    Role     `json:"role"`
	Approve bool     `json:"approve"`
	Reasons []string `json:"reasons,omitempty"`
}

// VoteResult is the tally of a round's ballots.
type VoteResult struct {
	Ballots           []Ballot `json:"ballots"`
	Approvals         int      `json:"approvals"`
	Required          int      `json:"required"`
	MandatoryRole     Role     `json:"mandatory_role,omitempty"`
	MandatoryApproved bool     `json:"mandatory_approved"`
	Passed            bool     `json:"passed"`
}

// String summarizes the tally, e.g. "3/4 approvals (need 3, tester approved): passed".
func (v VoteResult) String() string {
	verdict := "rejected"
	if v.Passed {
		verdict = "passed"
	}
	mandatory := ""
	if v.MandatoryRole != "" {
		state := "approved"
		if !v.MandatoryApproved {
			state = "did not approve"
		}
		mandatory = fmt.Sprintf(", %s %s", v.MandatoryRole, state)
	}
	return fmt.Sprintf("%d/%d approvals (need %d%s): %s", v.Approvals, len(v.Ballots), v.Required, mandatory, verdict)
}

// Round records one decompose/execute/vote cycle.
type Round struct {
	Iteration  int          `json:"iteration"`
	Tasks      []Task       `json:"tasks"`
	Results    []TaskResult `json:"results"`
	Vote       VoteResult   `json:"vote"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Outcome is the result of a workflow run.
type Outcome struct {
	RunID      string        `json:"run_id"`
	Objective  string        `json:"objective"`
	Success    bool          `json:"success"`
	Iterations int           `json:"iterations"`
	Phase      Phase         `json:"phase"`
	Rounds     []Round       `json:"rounds"`
	Duration   time.Duration `json:"duration"`
}

// FinalVote returns the last round's vote, or the zero value if no round ran.
func (o *Outcome) FinalVote() VoteResult {
	if len(o.Rounds) == 0 {
		return VoteResult{}
	}
	return o.Rounds[len(o.Rounds)-1].Vote
}

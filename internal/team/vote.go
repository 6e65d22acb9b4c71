package team

import (
	"fmt"
	"sort"
)

// Policy decides how a round's results are voted on.
type Policy struct {
	// RequiredApprovals is the minimum number of approving roles.
	RequiredApprovals int
	// MandatoryRole must approve for the vote to pass. Empty disables it.
	MandatoryRole Role
	// Thresholds are the minimum scores each role requires of its own task.
	Thresholds map[Role]Metrics
}

// DefaultPolicy requires three of four approvals including the tester.
func DefaultPolicy() Policy {
	return Policy{
		RequiredApprovals: 3,
		MandatoryRole:     RoleTester,
		Thresholds: map[Role]Metrics{
			RolePlanner:   {"completeness": 0.80, "clarity": 0.80},
			RoleDeveloper: {"code_quality": 0.80, "test_coverage": 0.75},
			RoleTester:    {"test_coverage": 0.80, "pass_rate": 0.90},
			RoleReviewer:  {"review_score": 0.80},
		},
	}
}

// Vote has each role approve its own task's result when the task succeeded
// and every threshold for the role is met. The vote passes when approvals
// reach RequiredApprovals and the mandatory role approved.
func Vote(results []TaskResult, p Policy) VoteResult {
	res := VoteResult{
		Required:      p.RequiredApprovals,
		MandatoryRole: p.MandatoryRole,
		Ballots:       make([]Ballot, 0, len(results)),
	}

	for _, r := range results {
		b := Ballot{Role: r.Task.Role, Approve: true}
		if !r.Success {
			b.Approve = false
			b.Reasons = append(b.Reasons, "task failed: "+r.Error)
		}

		thresholds := p.Thresholds[r.Task.Role]
		names := make([]string, 0, len(thresholds))
		for name := range thresholds {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			minimum := thresholds[name]
			got, ok := r.Metrics[name]
			switch {
			case !ok:
				b.Approve = false
				b.Reasons = append(b.Reasons, fmt.Sprintf("%s missing", name))
			case got < minimum:
				b.Approve = false
				b.Reasons = append(b.Reasons, fmt.Sprintf("%s %.2f below %.2f", name, got, minimum))
			}
		}

		if b.Approve {
			res.Approvals++
			if b.Role == p.MandatoryRole {
				res.MandatoryApproved = true
			}
		}
		res.Ballots = append(res.Ballots, b)
	}

	if p.MandatoryRole == "" {
		res.MandatoryApproved = true
	}
	res.Passed = res.Approvals >= p.RequiredApprovals && res.MandatoryApproved
	return res
}

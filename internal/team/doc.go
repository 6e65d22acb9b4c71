// Package team simulates a four-role development team working an objective.
//
// A Workflow runs up to MaxIterations rounds. Each round decomposes the
// objective into one Task per Role, executes the tasks concurrently through
// an Executor, and puts the results to a Vote. The vote passes when enough
// roles approve and the mandatory role is among them; otherwise the next
// round starts with "improved" tasks.
//
// Quality is not measured. A QualityAssessor supplies the per-role metric
// maps the vote is evaluated against; StaticAssessor returns fixed values
// that improve slightly with every iteration.
//
// Lifecycle:
//
//	forming -> working -> voting -> done
//	                 ^        |
//	                 +--------+--> failed
package team

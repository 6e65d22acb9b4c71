// Package diagnose runs a fixed checklist against a Go project and reports
// the results as Markdown, JSON or YAML.
//
// The six steps are folder layout, source parsing, test coverage, go.mod
// health, process memory and test inventory. Steps run concurrently but are
// always reported in checklist order. For every failed step, Prompts renders
// an implementation request that can be pasted into an AI coding session.
package diagnose

package diagnose

import (
	"strings"
	"text/template"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

// Prompt is an implementation request for one failed step.
type Prompt struct {
	Step string
	Text string
}

var actions = map[string]string{
	StepFolders:      "Create the missing directories and move the related code into them.",
	StepImports:      "Fix the files that fail to parse so every package builds again.",
	StepCoverage:     "Add tests for the least covered files until total statement coverage reaches the minimum.",
	StepDependencies: "Repair go.mod so it parses and declares the module path and Go version.",
	StepMemory:       "Profile the process and reduce the retained heap.",
	StepTests:        "Add table-driven tests for the packages that have none.",
}

var promptTemplate = template.Must(template.New("prompt").Parse(
	`## Implementation request: {{.Step.Title}}

The self-diagnosis step "{{.Step.Name}}" failed for {{.Root}}.

Problem: {{.Step.Message}}
{{- if .Step.Details}}

Findings:
{{- range $key, $value := .Step.Details}}
- {{$key}}: {{$value}}
{{- end}}
{{- end}}

Task: {{.Action}}
Keep the change focused on this problem and include tests that prove it is fixed.
`))

// Prompts renders one implementation request per failed step, in report order.
func Prompts(report *Report) ([]Prompt, error) {
	var prompts []Prompt
	for _, step := range report.Failed() {
		action, ok := actions[step.Name]
		if !ok {
			action = "Investigate and fix the reported problem."
		}

		var sb strings.Builder
		err := promptTemplate.Execute(&sb, struct {
			Step   StepResult
			Root   string
			Action string
		}{step, report.Root, action})
		if err != nil {
			return nil, errors.NewDiagnosisError("failed to render prompt", err).WithStep(step.Name)
		}
		prompts = append(prompts, Prompt{Step: step.Name, Text: sb.String()})
	}
	return prompts, nil
}

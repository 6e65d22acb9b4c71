package diagnose

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

// Report formats.
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Formats returns every supported format.
func Formats() []string {
	return []string{FormatMarkdown, FormatJSON, FormatYAML}
}

// Render writes report to w in format.
func Render(w io.Writer, report *Report, format string) error {
	switch format {
	case FormatMarkdown:
		return RenderMarkdown(w, report)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.NewDiagnosisError("cannot render report", errors.ErrUnknownFormat).WithStep(format)
	}
}

// RenderMarkdown writes a human-readable report with a summary table and
// one section per step.
func RenderMarkdown(w io.Writer, report *Report) error {
	var sb strings.Builder

	verdict := "PASSED"
	if !report.Passed {
		verdict = fmt.Sprintf("FAILED (%d of %d steps)", len(report.Failed()), len(report.Steps))
	}
	sb.WriteString("# Self-Diagnosis Report\n\n")
	fmt.Fprintf(&sb, "- **Run:** %s\n", report.RunID)
	fmt.Fprintf(&sb, "- **Root:** %s\n", report.Root)
	fmt.Fprintf(&sb, "- **Started:** %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "- **Duration:** %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "- **Result:** %s\n\n", verdict)

	sb.WriteString("## Summary\n\n")
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"#", "Step", "Status", "Message"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for i, s := range report.Steps {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			s.Title,
			fmt.Sprintf("%s %s", s.Status.Symbol(), s.Status),
			strings.ReplaceAll(s.Message, "|", "\\|"),
		})
	}
	table.Render()

	sb.WriteString("\n## Details\n")
	for i, s := range report.Steps {
		fmt.Fprintf(&sb, "\n### %d. %s\n\n", i+1, s.Title)
		fmt.Fprintf(&sb, "- Status: %s\n", s.Status)
		fmt.Fprintf(&sb, "- Message: %s\n", s.Message)
		fmt.Fprintf(&sb, "- Duration: %dms\n", s.DurationMS)
		for _, k := range sortedKeys(s.Details) {
			writeDetail(&sb, k, s.Details[k])
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeDetail(sb *strings.Builder, key string, value any) {
	if list, ok := value.([]string); ok {
		fmt.Fprintf(sb, "- %s:\n", key)
		for _, item := range list {
			fmt.Fprintf(sb, "  - %s\n", item)
		}
		return
	}
	fmt.Fprintf(sb, "- %s: %v\n", key, value)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FileName returns "diagnosis_{timestamp}.{format}" for a report.
func FileName(report *Report, format string) string {
	return fmt.Sprintf("diagnosis_%s.%s", report.StartedAt.Format("20060102_150405"), format)
}

// WriteFiles renders report into dir once per format and returns the paths
// written.
func WriteFiles(report *Report, dir string, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewDiagnosisError("failed to create report directory", err)
	}

	var paths []string
	for _, format := range formats {
		path := filepath.Join(dir, FileName(report, format))
		f, err := os.Create(path)
		if err != nil {
			return paths, errors.NewDiagnosisError("failed to create report file", err).WithStep(format)
		}
		renderErr := Render(f, report, format)
		closeErr := f.Close()
		if renderErr != nil {
			_ = os.Remove(path)
			return paths, renderErr
		}
		if closeErr != nil {
			return paths, errors.NewDiagnosisError("failed to write report file", closeErr).WithStep(format)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

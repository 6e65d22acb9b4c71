package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/diagnose"
	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/ui"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run the project self-diagnosis and write reports",
	Long: `Diagnose runs six checks against the project:

  folders       required directories exist (diagnose.required_dirs)
  imports       every Go file parses
  coverage      the coverage profile meets diagnose.min_coverage
  dependencies  go.mod parses and declares a module and Go version
  memory        a snapshot of this process's memory use
  tests         packages with code have test files

A report is written to the report directory once per format (default:
diagnose.formats). With --prompts, an implementation request is printed
for every failed step, ready to paste into a chat session.

The command exits non-zero when any step fails.`,
	Args: cobra.NoArgs,
	RunE: runDiagnose,
}

var (
	diagnoseFormats []string
	diagnosePrompts bool
	diagnoseNoWrite bool
)

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	diagnoseCmd.Flags().StringSliceVar(&diagnoseFormats, "format", nil, "Report formats to write: "+strings.Join(diagnose.Formats(), ", "))
	diagnoseCmd.Flags().BoolVar(&diagnosePrompts, "prompts", false, "Print an implementation request for each failed step")
	diagnoseCmd.Flags().BoolVar(&diagnoseNoWrite, "no-write", false, "Print the summary without writing report files")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}

	formats := a.cfg.Diagnose.Formats
	if len(diagnoseFormats) > 0 {
		formats = diagnoseFormats
	}
	for _, f := range formats {
		if !slices.Contains(diagnose.Formats(), f) {
			return errors.NewValidationError("unknown report format").WithField("format").WithValue(f)
		}
	}

	checks := diagnose.DefaultChecks(a.cfg.Diagnose.RequiredDirs, a.cfg.Diagnose.CoverageFile, a.cfg.Diagnose.MinCoverage)
	report, err := diagnose.NewRunner(checks, a.logger).Run(cmd.Context(), a.root)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printReport(w, report)

	if !diagnoseNoWrite {
		paths, err := diagnose.WriteFiles(report, a.cfg.ReportDir(a.root), formats)
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		for _, p := range paths {
			ui.KV(w, "Report", p)
		}
	}

	if diagnosePrompts {
		prompts, err := diagnose.Prompts(report)
		if err != nil {
			return err
		}
		for _, p := range prompts {
			fmt.Fprintln(w)
			fmt.Fprint(w, p.Text)
		}
	}

	if !report.Passed {
		names := make([]string, 0, len(report.Failed()))
		for _, s := range report.Failed() {
			names = append(names, s.Name)
		}
		return errors.NewDiagnosisError("diagnosis failed", errors.ErrCheckFailed).WithStep(strings.Join(names, ","))
	}
	return nil
}

func printReport(w io.Writer, report *diagnose.Report) {
	ui.Header(w, "Self-diagnosis", report.Root)
	fmt.Fprintln(w)
	for _, s := range report.Steps {
		fmt.Fprintf(w, "%s %-28s %s\n",
			ui.Status(string(s.Status), s.Status.Symbol()),
			s.Title,
			ui.Muted.Render(s.Message))
	}
	fmt.Fprintln(w)

	verdict := "passed"
	if !report.Passed {
		verdict = "failed"
	}
	ui.KV(w, "Result", ui.Status(verdict, verdict))
	ui.KV(w, "Duration", report.Duration())
}

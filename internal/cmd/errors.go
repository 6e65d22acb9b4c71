package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/ui"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Inspect the error log",
}

var errorsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize recorded errors by severity and category",
	Args:  cobra.NoArgs,
	RunE:  runErrorsSummary,
}

var errorsSummaryJSON bool

func init() {
	rootCmd.AddCommand(errorsCmd)
	errorsCmd.AddCommand(errorsSummaryCmd)
	errorsSummaryCmd.Flags().BoolVar(&errorsSummaryJSON, "json", false, "Print the summary as JSON")
}

func runErrorsSummary(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	sum, err := a.errs.Summary()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if errorsSummaryJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	ui.Header(w, "Error log", a.cfg.ErrorLogFile(a.root))
	fmt.Fprintln(w)
	if sum.Total == 0 {
		fmt.Fprintln(w, "No errors recorded.")
		return nil
	}

	ui.KV(w, "Total", sum.Total)
	ui.KV(w, "Recovered", fmt.Sprintf("%d (%.0f%%)", sum.Recovered, sum.RecoveryRate()*100))
	if sum.Malformed > 0 {
		ui.KV(w, "Malformed lines", ui.Warning.Render(fmt.Sprint(sum.Malformed)))
	}
	ui.KV(w, "First", sum.First.Local().Format("2006-01-02 15:04:05"))
	ui.KV(w, "Last", sum.Last.Local().Format("2006-01-02 15:04:05"))

	fmt.Fprintln(w, "\nBy severity:")
	for s := errors.SeverityCritical; s >= errors.SeverityInfo; s-- {
		if n := sum.BySeverity[s.String()]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", ui.Severity(s.String()), n)
		}
	}

	fmt.Fprintln(w, "\nBy category:")
	for _, c := range errors.Categories() {
		if n := sum.ByCategory[string(c)]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", c, n)
		}
	}
	return nil
}

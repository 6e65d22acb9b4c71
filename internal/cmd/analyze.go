package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/analyzer"
	"github.com/Iron-Ham/devcrew/internal/errors"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the project through the analysis cache",
	Long: `Analyze prints the project analysis as JSON.

A cached result for the current project contents is returned without
re-running the analysis ("analysis_mode": "cached"). A result cached for an
earlier version of the project is passed through ("differential") with the
old and new project hashes. Otherwise, or with --force-refresh, the analysis
runs and its result is cached.

Use --param key=value (repeatable) to cache variants of an operation
separately.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

var (
	analyzeForceRefresh bool
	analyzeOperation    string
	analyzeParams       []string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeForceRefresh, "force-refresh", false, "Ignore cached results and re-run the analysis")
	analyzeCmd.Flags().StringVar(&analyzeOperation, "operation", analyzer.DefaultOperation, "Cache operation name")
	analyzeCmd.Flags().StringArrayVar(&analyzeParams, "param", nil, "Analysis parameter as key=value")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	params, err := parseParams(analyzeParams)
	if err != nil {
		return err
	}
	c, err := a.cache()
	if err != nil {
		return err
	}

	ca := analyzer.NewCachedAnalyzer(analyzer.StaticAnalyzer{}, c, a.logger)
	var result map[string]any
	err = a.guard(cmd.Context(), "analyze", func(ctx context.Context) error {
		var aerr error
		result, aerr = ca.Analyze(ctx, analyzer.Options{
			ForceRefresh: analyzeForceRefresh,
			Operation:    analyzeOperation,
			Params:       params,
		})
		return aerr
	})
	if err != nil {
		return err
	}
	if result == nil {
		return errors.NewCacheError("analysis produced no result", errors.ErrOperationFailed).WithOperation(analyzeOperation)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parseParams turns key=value pairs into analysis parameters.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, errors.NewValidationError("parameter must be key=value").WithField("param").WithValue(p)
		}
		params[key] = value
	}
	return params, nil
}

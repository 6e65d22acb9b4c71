package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print or serve this process's Prometheus metrics",
	Long: `Metrics prints the collectors devcrew registers, in the Prometheus text
exposition format. Counters only cover the current process; use the global
--metrics-out flag to save the metrics of any other command when it exits.

With --serve, the metrics are served over HTTP at /metrics until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

var metricsServe string

func init() {
	rootCmd.AddCommand(metricsCmd)
	metricsCmd.Flags().StringVar(&metricsServe, "serve", "", "Serve metrics on this address (e.g. :9090)")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	if metricsServe == "" {
		return a.metrics.WriteText(cmd.OutOrStdout())
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              metricsServe,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics on %s/metrics (Ctrl+C to stop)\n", metricsServe)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// writeMetricsOut writes the run's metrics to the --metrics-out file, if set.
func writeMetricsOut(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("metrics-out")
	if path == "" || active == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	if err := active.metrics.WriteText(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

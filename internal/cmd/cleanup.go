package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/cleanup"
	"github.com/Iron-Ham/devcrew/internal/ui"
	"github.com/Iron-Ham/devcrew/internal/util"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired cache entries, old backups and rotated logs",
	Long: `Cleanup removes data that has outlived its retention:

- Cache entries older than cache.ttl_days
- Backups older than backup.retention_days
- Rotated debug logs older than --log-max-age

Resources are snapshotted into a job before anything is removed; running the
job only touches what the snapshot captured. Use --background to run the job
in a detached process and --job-status to check on it later.

Use --dry-run to see what would be cleaned up without making changes.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var (
	cleanupDryRun     bool
	cleanupForce      bool
	cleanupBackground bool
	cleanupLogMaxAge  time.Duration
	cleanupJobStatus  string
	cleanupRunJob     string // Internal flag for background job execution
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be cleaned up without making changes")
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupBackground, "background", false, "Run the cleanup job in a detached background process")
	cleanupCmd.Flags().DurationVar(&cleanupLogMaxAge, "log-max-age", 7*24*time.Hour, "Remove rotated logs older than this (0 keeps them)")
	cleanupCmd.Flags().StringVar(&cleanupJobStatus, "job-status", "", "Show status of a specific cleanup job")

	// Internal flag for background job execution (hidden from help)
	cleanupCmd.Flags().StringVar(&cleanupRunJob, "run-job", "", "Internal: run a cleanup job from its job file")
	_ = cleanupCmd.Flags().MarkHidden("run-job")
}

func cleanupTargets(a *app) (cleanup.Targets, error) {
	c, err := a.cache()
	if err != nil {
		return cleanup.Targets{}, err
	}
	m, err := a.backups()
	if err != nil {
		return cleanup.Targets{}, err
	}
	return cleanup.Targets{Cache: c, Backups: m, LogDir: a.cfg.LogDir(a.root)}, nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	dataDir := a.dataDir()
	w := cmd.OutOrStdout()

	if cleanupJobStatus != "" {
		return showJobStatus(w, dataDir, cleanupJobStatus)
	}

	targets, err := cleanupTargets(a)
	if err != nil {
		return err
	}

	// Handle internal --run-job flag (background job execution)
	if cleanupRunJob != "" {
		return cleanup.RunJobFromFile(cmd.Context(), dataDir, cleanupRunJob, targets, a.logger)
	}

	job, err := cleanup.Snapshot(dataDir, targets, cleanup.Policy{
		CacheMaxAge:  a.cfg.Cache.TTL(),
		BackupMaxAge: a.cfg.Backup.Retention(),
		LogMaxAge:    cleanupLogMaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to discover stale resources: %w", err)
	}

	if job.Pending() == 0 {
		fmt.Fprintln(w, "No stale resources found. Nothing to clean up.")
		return nil
	}

	printCleanupSummary(w, job)

	if cleanupDryRun {
		fmt.Fprintln(w, "\nDry run mode - no changes made.")
		return nil
	}

	if !cleanupForce {
		fmt.Fprint(w, "\nProceed with cleanup? [y/N] ")
		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(w, "Cleanup cancelled.")
			return nil
		}
	}

	if cleanupBackground {
		return spawnBackgroundCleanup(w, a.root, job)
	}

	executor, err := cleanup.NewExecutor(job, targets, a.logger)
	if err != nil {
		return err
	}
	if err := executor.Execute(cmd.Context()); err != nil {
		return err
	}
	printJobResults(w, job)
	if _, err := cleanup.CleanupOldJobs(dataDir, 24*time.Hour); err != nil {
		a.logger.Debug("failed to remove old job files", "error", err)
	}
	if job.Status == cleanup.JobStatusFailed {
		return fmt.Errorf("cleanup job %s failed: %s", job.ID, job.Error)
	}
	return nil
}

func printCleanupSummary(w io.Writer, job *cleanup.Job) {
	ui.Header(w, "Cleanup", fmt.Sprintf("%d resources to remove", job.Pending()))

	if n := len(job.ExpiredCacheKeys); n > 0 {
		fmt.Fprintf(w, "\nExpired cache entries (%d):\n", n)
		for _, key := range job.ExpiredCacheKeys {
			fmt.Fprintf(w, "  - %s\n", key)
		}
	}

	if len(job.StaleBackups) > 0 {
		fmt.Fprintf(w, "\nOld backups (%d):\n", len(job.StaleBackups))
		for _, b := range job.StaleBackups {
			fmt.Fprintf(w, "  - %s %s %s\n", b.ID, b.Path,
				ui.Muted.Render(fmt.Sprintf("(%.2f MB, %s old)", b.SizeMB, util.FormatAge(job.CreatedAt.Sub(b.CreatedAt)))))
		}
	}

	if len(job.StaleLogs) > 0 {
		fmt.Fprintf(w, "\nRotated logs (%d):\n", len(job.StaleLogs))
		for _, l := range job.StaleLogs {
			fmt.Fprintf(w, "  - %s %s\n", l.Path, ui.Muted.Render("("+util.FormatBytes(l.Size)+")"))
		}
	}
}

func printJobResults(w io.Writer, job *cleanup.Job) {
	fmt.Fprintln(w)
	ui.KV(w, "Status", ui.Status(string(job.Status), string(job.Status)))
	if job.Results == nil {
		return
	}
	ui.KV(w, "Cache entries", job.Results.CacheEntriesRemoved)
	ui.KV(w, "Backups", job.Results.BackupsRemoved)
	ui.KV(w, "Logs", job.Results.LogsRemoved)
	for _, e := range job.Results.Errors {
		fmt.Fprintf(w, "  %s %s\n", ui.Error.Render("✗"), e)
	}
}

// spawnBackgroundCleanup saves job and starts a detached process to run it.
// Resources created after the snapshot are not affected.
func spawnBackgroundCleanup(w io.Writer, root string, job *cleanup.Job) error {
	if err := job.Save(); err != nil {
		return fmt.Errorf("failed to save cleanup job: %w", err)
	}

	execPath, err := cleanup.GetExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	if err := cleanup.SpawnBackgroundCleanup(execPath, root, job.ID); err != nil {
		// Clean up the job file if spawn fails
		_ = cleanup.RemoveJobFile(job.DataDir, job.ID)
		return fmt.Errorf("failed to spawn background cleanup: %w", err)
	}

	fmt.Fprintf(w, "\nCleanup job %s started in background.\n", job.ID)
	fmt.Fprintf(w, "Resources snapshotted at %s - new resources created after this won't be affected.\n",
		job.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Use 'devcrew cleanup --job-status %s' to check progress.\n", job.ID)

	if cleaned, _ := cleanup.CleanupOldJobs(job.DataDir, 24*time.Hour); cleaned > 0 {
		fmt.Fprintf(w, "Cleaned up %d old job files.\n", cleaned)
	}
	return nil
}

// showJobStatus displays the status of a cleanup job
func showJobStatus(w io.Writer, dataDir, jobID string) error {
	job, err := cleanup.LoadJob(dataDir, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	ui.KV(w, "Cleanup job", job.ID)
	ui.KV(w, "Created", job.CreatedAt.Format(time.RFC3339))
	if !job.StartedAt.IsZero() {
		ui.KV(w, "Started", job.StartedAt.Format(time.RFC3339))
	}
	if !job.EndedAt.IsZero() {
		ui.KV(w, "Ended", job.EndedAt.Format(time.RFC3339))
		ui.KV(w, "Duration", job.EndedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	if job.Error != "" {
		ui.KV(w, "Error", job.Error)
	}
	printJobResults(w, job)
	return nil
}

package cleanup

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/Iron-Ham/devcrew/internal/logging"
)

// RunJobFlag is the hidden cleanup flag a background process is started with.
const RunJobFlag = "--run-job"

// SpawnBackgroundCleanup starts the cleanup job in a detached background process.
// The process will read the job file and execute cleanup using only the snapshotted
// resources, ensuring resources created after the snapshot are not affected.
func SpawnBackgroundCleanup(executablePath, projectRoot, jobID string) error {
	cmd := exec.Command(executablePath, "cleanup", RunJobFlag, jobID)
	cmd.Dir = projectRoot
	detach(cmd)

	// job results are stored in the job file
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start background cleanup: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("failed to release background process: %w", err)
	}
	return nil
}

// GetExecutablePath returns the path to the current executable
func GetExecutablePath() (string, error) {
	return os.Executable()
}

// RunJobFromFile loads and executes a pending cleanup job from its job file.
// This is called by the background process.
func RunJobFromFile(ctx context.Context, dataDir, jobID string, targets Targets, logger *logging.Logger) error {
	job, err := LoadJob(dataDir, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status != JobStatusPending {
		return fmt.Errorf("job %s is not pending (status: %s)", jobID, job.Status)
	}

	executor, err := NewExecutor(job, targets, logger)
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		if saveErr := job.Save(); saveErr != nil {
			return fmt.Errorf("failed to create executor: %w (additionally, failed to save job status: %v)", err, saveErr)
		}
		return fmt.Errorf("failed to create executor: %w", err)
	}

	return executor.Execute(ctx)
}

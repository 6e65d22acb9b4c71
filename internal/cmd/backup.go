package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/devcrew/internal/backup"
	"github.com/Iron-Ham/devcrew/internal/ui"
	"github.com/Iron-Ham/devcrew/internal/util"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list, restore and prune zip backups",
	Long: `Backups are zip archives of project files kept in the backup directory
(default: .devcrew/backups). Each archive is described in backup_info.json,
which keeps the most recent backup.max_records entries; archives that fall
off the list are deleted.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [paths...]",
	Short: "Archive paths inside the project (default: the whole project)",
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded backups, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Extract a backup into the project or --dest",
	Long: `Restore extracts every file of a backup. Existing files are overwritten.
An archive with an entry that would land outside the destination is
rejected before anything is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runBackupPrune,
}

var (
	backupType        string
	backupDescription string
	backupListJSON    bool
	backupRestoreDest string
	backupPruneAge    time.Duration
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupPruneCmd)

	backupCreateCmd.Flags().StringVarP(&backupType, "type", "t", "", "Backup type label (default: full for the whole project, manual otherwise)")
	backupCreateCmd.Flags().StringVarP(&backupDescription, "description", "m", "", "Description stored with the backup")
	backupListCmd.Flags().BoolVar(&backupListJSON, "json", false, "Print records as JSON")
	backupRestoreCmd.Flags().StringVar(&backupRestoreDest, "dest", "", "Directory to restore into (default: the project root)")
	backupPruneCmd.Flags().DurationVar(&backupPruneAge, "max-age", 0, "Delete backups older than this (default: backup.retention_days)")
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	m, err := a.backups()
	if err != nil {
		return err
	}

	opts := backup.Options{
		Sources:     args,
		Type:        backup.Type(backupType),
		Description: backupDescription,
	}
	if len(opts.Sources) == 0 {
		opts.Sources = []string{"."}
		if opts.Type == "" {
			opts.Type = backup.TypeFull
		}
	}

	var rec backup.Record
	err = a.guard(cmd.Context(), "backup create", func(ctx context.Context) error {
		var cerr error
		rec, cerr = m.Create(ctx, opts)
		return cerr
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, ui.Success.Render("Backup created."))
	ui.KV(w, "ID", rec.ID)
	ui.KV(w, "File", rec.FilePath)
	ui.KV(w, "Files", rec.Files)
	ui.KV(w, "Size", fmt.Sprintf("%.2f MB", rec.SizeMB))
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	m, err := a.backups()
	if err != nil {
		return err
	}
	records, err := m.List()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if backupListJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No backups found.")
		return nil
	}

	now := time.Now()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Type", "Age", "Files", "Size (MB)", "Description"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		table.Append([]string{
			r.ID,
			string(r.BackupType),
			util.FormatAge(r.Age(now)),
			fmt.Sprintf("%d", r.Files),
			fmt.Sprintf("%.2f", r.SizeMB),
			util.TruncateString(r.Description, 40),
		})
	}
	table.Render()
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	m, err := a.backups()
	if err != nil {
		return err
	}
	dest := backupRestoreDest
	if dest == "" {
		dest = a.root
	}

	var n int
	err = a.guard(cmd.Context(), "backup restore", func(ctx context.Context) error {
		var rerr error
		n, rerr = m.Restore(ctx, args[0], dest)
		return rerr
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored %d %s from %s into %s.\n", n, plural(n, "file", "files"), args[0], dest)
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	a, err := appFor(cmd)
	if err != nil {
		return err
	}
	m, err := a.backups()
	if err != nil {
		return err
	}
	maxAge := backupPruneAge
	if maxAge <= 0 {
		maxAge = a.cfg.Backup.Retention()
	}

	removed, err := m.Prune(cmd.Context(), maxAge)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, r := range removed {
		fmt.Fprintf(w, "  %s %s\n", ui.Muted.Render("removed"), r.FilePath)
	}
	fmt.Fprintf(w, "Pruned %d %s.\n", len(removed), plural(len(removed), "backup", "backups"))
	return nil
}

package commands

import (
	"fmt"

	"github.com/purestorage-openconnect/hanasnap/internal/config"
	"github.com/purestorage-openconnect/hanasnap/pkg/db"
	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot runs and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.CatalogPath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.CatalogPath)
	if err != nil {
		return errors.Wrap(err, "catalog init failed")
	}
	defer repo.Close()

	runs, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(runs) == 0 {
		fmt.Println("No snapshot runs found")
		return nil
	}

	fmt.Printf("%-12s %-24s %-12s %-14s %-40s %-20s\n",
		"DATABASE", "MODE", "STATUS", "BACKUP ID", "SNAPSHOT", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		backupStr := "-"
		if run.BackupID != 0 {
			backupStr = fmt.Sprintf("%d", run.BackupID)
		}
		snapshot := run.SnapshotName
		if snapshot == "" {
			snapshot = "-"
		}

		fmt.Printf("%-12s %-24s %-12s %-14s %-40s %-20s\n",
			run.Database, run.Mode, run.Status, backupStr, snapshot, run.CreatedAt)
	}

	return nil
}

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Checkpoint and upload the snapshot to the backup store",
		Example: `  aether backup --backup local --backup-dir /mnt/backup
  AETHER_BACKUP=s3 AETHER_BACKUP_BUCKET=my-bucket aether backup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if a.cfg.Backup == "" {
				return errors.New("no backup store configured, set --backup or AETHER_BACKUP")
			}

			ctx := cmd.Context()
			db, err := a.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); err == nil {
					err = cerr
				}
			}()

			if err := db.Checkpoint(ctx); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
			if err := db.Backup(ctx); err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d vectors to %s.\n", db.Len(), a.cfg.Backup)
			return nil
		},
	}
}

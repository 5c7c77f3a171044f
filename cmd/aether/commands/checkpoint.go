package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckpointCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Write a snapshot and truncate the write-ahead log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
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
			st := db.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpointed %d vectors at LSN %d.\n", st.Vectors, st.Persistence.LastLSN)
			return nil
		},
	}
}

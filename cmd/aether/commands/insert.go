package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInsertCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <vector>",
		Short: "Insert a vector and print its ID",
		Example: `  aether insert 1,1,1
  aether insert -- 0.5 0.1 -0.3
  aether insert '[1, 0, 1]'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			vec, err := parseVectorArgs(args)
			if err != nil {
				return err
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

			id, err := db.Insert(ctx, vec)
			if err != nil {
				return fmt.Errorf("inserting: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/aether"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <vector>",
		Short: "Find the stored vectors most similar to a query",
		Example: `  aether search 1,1,0.9
  aether search --limit 10 --json -- 0.5 0.1 -0.3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", limit)
			}
			query, err := parseVectorArgs(args)
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

			matches, err := db.Search(ctx, query, limit)
			if err != nil {
				return fmt.Errorf("searching: %w", err)
			}
			return writeMatches(cmd, matches, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "k", aether.DefaultLimit, "maximum number of matches (0 uses the default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print matches as JSON")
	return cmd
}

type matchJSON struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

func writeMatches(cmd *cobra.Command, matches []aether.Match, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		rows := make([]matchJSON, len(matches))
		for i, m := range matches {
			rows[i] = matchJSON{ID: m.ID, Score: m.Score}
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(out, "%s\n", data)
		return nil
	}

	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tID\tSCORE")
	for i, m := range matches {
		fmt.Fprintf(w, "%d\t%s\t%.6f\n", i+1, m.ID, m.Score)
	}
	return w.Flush()
}

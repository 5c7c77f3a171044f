package commands

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// maxLineBytes bounds one JSONL line, i.e. one vector.
const maxLineBytes = 64 << 20

type importRecord struct {
	Vector []float32 `json:"vector"`
}

func newImportCmd(a *app) *cobra.Command {
	var idsPath string

	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Insert every vector of a JSON Lines file",
		Long: `Insert every vector of a JSON Lines file. Each line is either a JSON
array of numbers or an object with a "vector" field. Blank lines are skipped.`,
		Example: `  aether import vectors.jsonl
  aether import --ids ids.txt vectors.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			var ids io.Writer = io.Discard
			if idsPath != "" {
				idsFile, cerr := os.Create(idsPath)
				if cerr != nil {
					return cerr
				}
				buf := bufio.NewWriter(idsFile)
				defer func() {
					if ferr := buf.Flush(); err == nil && ferr != nil {
						err = fmt.Errorf("writing %s: %w", idsPath, ferr)
					}
					if cerr := idsFile.Close(); err == nil && cerr != nil {
						err = fmt.Errorf("writing %s: %w", idsPath, cerr)
					}
				}()
				ids = buf
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

			bar := pb.New64(info.Size()).Set(pb.Bytes, true).SetWriter(cmd.ErrOrStderr())
			if !a.quiet {
				bar.Start()
			}
			defer bar.Finish()

			scanner := bufio.NewScanner(bar.NewProxyReader(f))
			scanner.Buffer(make([]byte, 0, 1<<20), maxLineBytes)

			count, line := 0, 0
			for scanner.Scan() {
				line++
				vec, ok, err := decodeLine(scanner.Bytes())
				if err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				if !ok {
					continue
				}
				id, err := db.Insert(ctx, vec)
				if err != nil {
					return fmt.Errorf("line %d: inserting: %w", line, err)
				}
				fmt.Fprintln(ids, id)
				count++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			bar.Finish()
			if !a.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d vectors.\n", count)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&idsPath, "ids", "", "write the assigned IDs, one per line, to this file")
	return cmd
}

// decodeLine parses one JSONL line. ok is false for blank lines.
func decodeLine(b []byte) (vec []float32, ok bool, err error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, false, nil
	}
	if b[0] == '[' {
		err = json.Unmarshal(b, &vec)
		return vec, err == nil, err
	}
	var rec importRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, err
	}
	if rec.Vector == nil {
		return nil, false, fmt.Errorf("missing \"vector\" field")
	}
	return rec.Vector, true, nil
}

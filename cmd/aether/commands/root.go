// Package commands implements the aether CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/aether"
	"github.com/hupe1980/aether/internal/config"
)

// app carries the configuration shared by all subcommands.
type app struct {
	envFile string
	cfg     config.Config
	quiet   bool
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}

	cmd := &cobra.Command{
		Use:   "aether",
		Short: "Sharded vector similarity store",
		Long: `aether stores vectors in a sharded, write-ahead logged data directory
and finds the most similar ones by cosine similarity.

Settings come from AETHER_* environment variables, an optional .env file and
the flags below, in increasing order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.envFile, "env-file", ".env", "dotenv file to load (missing files are ignored)")
	f.String("data-dir", a.cfg.DataDir, "data directory")
	f.Int("shards", a.cfg.Shards, "number of shards for a new data directory")
	f.Int("dimension", a.cfg.Dimension, "vector dimension (0 pins it on first insert)")
	f.String("durability", a.cfg.Durability, "log durability: sync or async")
	f.Bool("best-effort", a.cfg.BestEffort, "keep inserts in memory when the log cannot be written")
	f.String("compression", a.cfg.Compression, "snapshot compression: none, lz4 or zstd")
	f.String("log-level", a.cfg.LogLevel, "log level: debug, info, warn or error")
	f.String("backup", a.cfg.Backup, "backup store: local, minio or s3")
	f.String("backup-dir", a.cfg.BackupDir, "directory of a local backup store")
	f.String("backup-bucket", a.cfg.BackupBucket, "bucket of a minio or s3 backup store")
	f.String("backup-prefix", a.cfg.BackupPrefix, "key prefix inside the backup bucket")
	f.BoolVarP(&a.quiet, "quiet", "q", false, "suppress progress output")

	cmd.AddCommand(
		newInsertCmd(a),
		newSearchCmd(a),
		newImportCmd(a),
		newStatsCmd(a),
		newCheckpointCmd(a),
		newBackupCmd(a),
		NewVersionCmd(),
	)
	return cmd
}

// load merges the environment with the flags that were set explicitly.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}

	// Lookups cannot fail: every name below is a registered flag of the
	// matching type.
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	str("data-dir", &cfg.DataDir)
	num("shards", &cfg.Shards)
	num("dimension", &cfg.Dimension)
	str("durability", &cfg.Durability)
	str("compression", &cfg.Compression)
	str("log-level", &cfg.LogLevel)
	str("backup", &cfg.Backup)
	str("backup-dir", &cfg.BackupDir)
	str("backup-bucket", &cfg.BackupBucket)
	str("backup-prefix", &cfg.BackupPrefix)
	if f.Changed("best-effort") {
		cfg.BestEffort, _ = f.GetBool("best-effort")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// open opens the configured data directory. Log output goes to the
// command's error stream.
func (a *app) open(ctx context.Context, cmd *cobra.Command) (*aether.DB, error) {
	backup, err := newBackupStore(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("backup store: %w", err)
	}

	logger := aether.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: a.cfg.SlogLevel(),
	}))

	opts := []aether.Option{
		aether.WithDataDir(a.cfg.DataDir),
		aether.WithShards(a.cfg.Shards),
		aether.WithDimension(a.cfg.Dimension),
		aether.WithDurability(a.cfg.DurabilityMode()),
		aether.WithCompression(a.cfg.CompressionMode()),
		aether.WithCheckpointBytes(a.cfg.CheckpointBytes),
		aether.WithLogger(logger),
		aether.WithResourceLimits(aether.ResourceLimits{
			IOLimitBytesPerSec: a.cfg.BackupRate,
		}),
	}
	if a.cfg.BestEffort {
		opts = append(opts, aether.WithBestEffortDurability())
	}
	if backup != nil {
		opts = append(opts, aether.WithBackup(backup))
	}

	db, err := aether.Open(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.cfg.DataDir, err)
	}
	return db, nil
}

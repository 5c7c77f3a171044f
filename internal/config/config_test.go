package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aether/snapshot"
	"github.com/hupe1980/aether/wal"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	require.NoError(t, c.Validate())
	assert.Equal(t, wal.DurabilitySync, c.DurabilityMode())
	assert.Equal(t, snapshot.CompressionNone, c.CompressionMode())
	assert.Equal(t, slog.LevelInfo, c.SlogLevel())
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		"AETHER_DATA_DIR":         "/var/lib/aether",
		"AETHER_SHARDS":           "3",
		"AETHER_DIMENSION":        " 128 ",
		"AETHER_DURABILITY":       "async",
		"AETHER_BEST_EFFORT":      "true",
		"AETHER_COMPRESSION":      "zstd",
		"AETHER_CHECKPOINT_BYTES": "1024",
		"AETHER_LOG_LEVEL":        "debug",
		"AETHER_BACKUP":           "minio",
		"AETHER_BACKUP_BUCKET":    "snapshots",
		"AETHER_MINIO_SSL":        "1",
		"AETHER_BACKUP_RATE":      "1048576",
	}))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "/var/lib/aether", c.DataDir)
	assert.Equal(t, 3, c.Shards)
	assert.Equal(t, 128, c.Dimension)
	assert.True(t, c.BestEffort)
	assert.Equal(t, int64(1024), c.CheckpointBytes)
	assert.True(t, c.MinioSSL)
	assert.Equal(t, int64(1<<20), c.BackupRate)
	assert.Equal(t, wal.DurabilityAsync, c.DurabilityMode())
	assert.Equal(t, snapshot.CompressionZstd, c.CompressionMode())
	assert.Equal(t, slog.LevelDebug, c.SlogLevel())
}

func TestFromEnvParseErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"AETHER_SHARDS":    "two",
		"AETHER_MINIO_SSL": "maybe",
		"AETHER_DIMENSION": "3",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AETHER_SHARDS")
	assert.Contains(t, err.Error(), "AETHER_MINIO_SSL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"shards", func(c *Config) { c.Shards = 0 }, "shards must be positive"},
		{"dimension", func(c *Config) { c.Dimension = -1 }, "dimension"},
		{"durability", func(c *Config) { c.Durability = "eventually" }, "durability"},
		{"compression", func(c *Config) { c.Compression = "gzip" }, "compression"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"backup kind", func(c *Config) { c.Backup = "ftp" }, "unknown backup kind"},
		{"local dir", func(c *Config) { c.Backup = BackupLocal }, "AETHER_BACKUP_DIR"},
		{"s3 bucket", func(c *Config) { c.Backup = BackupS3 }, "AETHER_BACKUP_BUCKET"},
		{"rate", func(c *Config) { c.BackupRate = -1 }, "backup rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AETHER_TEST_ONLY_SHARDS=7\n"), 0o644))
	t.Setenv("AETHER_TEST_ONLY_SHARDS", "")
	require.NoError(t, os.Unsetenv("AETHER_TEST_ONLY_SHARDS"))

	_, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "7", os.Getenv("AETHER_TEST_ONLY_SHARDS"))
}

// Package config loads the command line tool's settings from the environment
// and optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hupe1980/aether/snapshot"
	"github.com/hupe1980/aether/wal"
)

// Backup kinds.
const (
	BackupNone  = ""
	BackupLocal = "local"
	BackupMinio = "minio"
	BackupS3    = "s3"
)

// Config holds the settings of the aether CLI.
type Config struct {
	DataDir         string
	Shards          int
	Dimension       int
	Durability      string
	BestEffort      bool
	Compression     string
	CheckpointBytes int64
	LogLevel        string

	Backup       string
	BackupBucket string
	BackupPrefix string
	BackupDir    string
	// BackupRate limits backup uploads in bytes per second. 0 is unlimited.
	BackupRate int64

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioSSL       bool
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DataDir:         "./data",
		Shards:          2,
		Durability:      "sync",
		Compression:     "none",
		CheckpointBytes: 64 << 20,
		LogLevel:        "info",
		MinioEndpoint:   "localhost:9000",
	}
}

// Load reads the given .env files (".env" if none), without overriding
// variables that are already set, and builds a Config from the environment.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from the AETHER_* variables returned by lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.str("AETHER_DATA_DIR", &c.DataDir)
	p.int("AETHER_SHARDS", &c.Shards)
	p.int("AETHER_DIMENSION", &c.Dimension)
	p.str("AETHER_DURABILITY", &c.Durability)
	p.bool("AETHER_BEST_EFFORT", &c.BestEffort)
	p.str("AETHER_COMPRESSION", &c.Compression)
	p.int64("AETHER_CHECKPOINT_BYTES", &c.CheckpointBytes)
	p.str("AETHER_LOG_LEVEL", &c.LogLevel)

	p.str("AETHER_BACKUP", &c.Backup)
	p.str("AETHER_BACKUP_BUCKET", &c.BackupBucket)
	p.str("AETHER_BACKUP_PREFIX", &c.BackupPrefix)
	p.str("AETHER_BACKUP_DIR", &c.BackupDir)
	p.int64("AETHER_BACKUP_RATE", &c.BackupRate)

	p.str("AETHER_MINIO_ENDPOINT", &c.MinioEndpoint)
	p.str("AETHER_MINIO_ACCESS_KEY", &c.MinioAccessKey)
	p.str("AETHER_MINIO_SECRET_KEY", &c.MinioSecretKey)
	p.bool("AETHER_MINIO_SSL", &c.MinioSSL)

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return c, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Shards <= 0 {
		errs = append(errs, fmt.Errorf("config: shards must be positive, got %d", c.Shards))
	}
	if c.Dimension < 0 {
		errs = append(errs, fmt.Errorf("config: dimension must not be negative, got %d", c.Dimension))
	}
	if _, err := wal.ParseDurability(c.Durability); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if _, err := snapshot.ParseCompression(c.Compression); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.BackupRate < 0 {
		errs = append(errs, fmt.Errorf("config: backup rate must not be negative, got %d", c.BackupRate))
	}

	switch c.Backup {
	case BackupNone:
	case BackupLocal:
		if c.BackupDir == "" {
			errs = append(errs, errors.New("config: AETHER_BACKUP_DIR is required for local backups"))
		}
	case BackupMinio:
		if c.BackupBucket == "" {
			errs = append(errs, errors.New("config: AETHER_BACKUP_BUCKET is required for minio backups"))
		}
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("config: AETHER_MINIO_ENDPOINT is required for minio backups"))
		}
	case BackupS3:
		if c.BackupBucket == "" {
			errs = append(errs, errors.New("config: AETHER_BACKUP_BUCKET is required for s3 backups"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown backup kind %q", c.Backup))
	}
	return errors.Join(errs...)
}

// DurabilityMode returns the parsed durability.
func (c Config) DurabilityMode() wal.Durability {
	d, _ := wal.ParseDurability(c.Durability)
	return d
}

// CompressionMode returns the parsed compression.
func (c Config) CompressionMode() snapshot.Compression {
	comp, _ := snapshot.ParseCompression(c.Compression)
	return comp
}

// SlogLevel returns the parsed log level, or info if it is invalid.
func (c Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", s)
	}
	return l, nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) get(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) int(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (p *parser) int64(key string, dst *int64) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (p *parser) bool(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = b
	}
}

package audit

import (
	"time"

	"codeberg.org/mutker/syncinterval/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm   = 0o755
	defaultDBPath    = "/var/lib/syncinterval/audit.db"
	defaultBackupDir = "/var/lib/syncinterval/backups"

	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultMaxBuffer     = 10_000
)

type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	DBPath          string        `mapstructure:"db_path"`
	BackupDir       string        `mapstructure:"backup_dir"`
	BackupOnMigrate bool          `mapstructure:"backup_on_migrate"`
	BatchSize       int           `mapstructure:"batch_size"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	// MaxBuffer bounds pending entries; beyond it the oldest are dropped so
	// observers never block resolution.
	MaxBuffer int `mapstructure:"max_buffer"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:         false, // Disabled by default
		DBPath:          defaultDBPath,
		BackupDir:       defaultBackupDir,
		BackupOnMigrate: true,
		BatchSize:       defaultBatchSize,
		FlushInterval:   defaultFlushInterval,
		MaxBuffer:       defaultMaxBuffer,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate storage settings if auditing is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 || c.FlushInterval <= 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize     int
			FlushInterval time.Duration
		}{c.BatchSize, c.FlushInterval})
	}
	if c.MaxBuffer < c.BatchSize {
		return errFactory.WithData(ErrInvalidConfig, "max_buffer must be >= batch_size")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/syncinterval/internal/config"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syncinterval.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[history]
capacity = 10

[calculator]
data_size_threshold_mb = 25
data_size_factor = 3.0

[policies.critical]
base_ms = 2000
min_ms = 500
max_ms = 20000

[data_types]
imaging = "nonEssential"
vitals = "default"

[audit]
enabled = true
db_path = "/tmp/audit.db"
flush_interval = "2s"

[admin]
listen = "0.0.0.0:9000"
`)
	t.Setenv("SYNCINTERVAL_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, logger.DebugLevel, cfg.Level())
	assert.Equal(t, 10, cfg.History.Capacity)
	assert.Equal(t, 25.0, cfg.Calculator.DataSizeThresholdMB)
	assert.Equal(t, 3.0, cfg.Calculator.DataSizeFactor)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "/tmp/audit.db", cfg.Audit.DBPath)
	assert.Equal(t, 2*time.Second, cfg.Audit.FlushInterval)
	assert.Equal(t, "0.0.0.0:9000", cfg.Admin.Listen)
	assert.True(t, cfg.Telemetry.Enabled)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, policy.IntervalPolicy{BaseMs: 2_000, MinMs: 500, MaxMs: 20_000}, ec.Policies[tier.Critical])
	assert.Equal(t, policy.Defaults()[tier.Default], ec.Policies[tier.Default])
	assert.Equal(t, tier.NonEssential, ec.DataTypes["imaging"])
	assert.Equal(t, tier.Default, ec.DataTypes["vitals"])
	assert.Equal(t, tier.Critical, ec.DataTypes["medications"])
	assert.Equal(t, 10, ec.HistoryCapacity)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNCINTERVAL_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 50, cfg.History.Capacity)
	assert.Equal(t, 50.0, cfg.Calculator.DataSizeThresholdMB)
	assert.Equal(t, 2.0, cfg.Calculator.DataSizeFactor)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, "127.0.0.1:8089", cfg.Admin.Listen)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.SuspendRecheck)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, policy.Defaults(), ec.Policies)
	assert.Equal(t, tier.DefaultMapping(), ec.DataTypes)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SYNCINTERVAL_CONFIG", "")
	t.Setenv("SYNCINTERVAL_LOG_LEVEL", "warn")
	t.Setenv("SYNCINTERVAL_HISTORY_CAPACITY", "7")
	t.Setenv("SYNCINTERVAL_POLICIES_NONESSENTIAL_MAX_MS", "7200000")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.History.Capacity)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, uint64(7_200_000), ec.Policies[tier.NonEssential].MaxMs)
}

func TestLoadCustomEnvPrefix(t *testing.T) {
	t.Setenv("SYNCINTERVAL_CONFIG", "")
	t.Setenv("SYNCTEST_LOG_LEVEL", "error")

	cfg, err := config.Load(config.WithEnvPrefix("SYNCTEST"))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[admin]
listen = "0.0.0.0:9000"
`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--log-level", "error"}))

	cfg, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:9000", cfg.Admin.Listen)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.WithConfigFile(filepath.Join(t.TempDir(), "absent.toml")))
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.ErrorCode
	}{
		{"log level", `log_level = "invalid"`, errors.ErrInvalidLogLevel},
		{"policy order", "[policies.critical]\nbase_ms = 100\nmin_ms = 200\nmax_ms = 300", errors.ErrInvalidPolicy},
		{"unknown tier", "[policies.gold]\nbase_ms = 1\nmin_ms = 1\nmax_ms = 1", errors.ErrInvalidTier},
		{"data type tier", "[data_types]\nimaging = \"gold\"", errors.ErrInvalidTier},
		{"history capacity", "[history]\ncapacity = 0", errors.ErrInvalidConfig},
		{"data size factor", "[calculator]\ndata_size_factor = 0", errors.ErrInvalidConfig},
		{"audit path", "[audit]\nenabled = true\ndb_path = \"\"", errors.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.WithConfigFile(writeConfig(t, tt.content)))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

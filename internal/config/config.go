// Package config loads the engine configuration from file, environment
// and flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"codeberg.org/mutker/syncinterval/internal/adminapi"
	"codeberg.org/mutker/syncinterval/internal/audit"
	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/history"
	"codeberg.org/mutker/syncinterval/internal/interval"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/pidfile"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/scheduler"
	"codeberg.org/mutker/syncinterval/internal/telemetry"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel        = "info"
	defaultHistoryCapacity = history.DefaultCapacity
	configName             = "syncinterval"
)

type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	// PIDFile guards against a second serving instance. Empty disables it.
	PIDFile    string                           `mapstructure:"pid_file"`
	History    HistoryConfig                    `mapstructure:"history"`
	Calculator interval.Settings                `mapstructure:"calculator"`
	Policies   map[string]policy.IntervalPolicy `mapstructure:"policies"`
	// DataTypes maps data type names to tier names. Keys are lower-cased
	// by viper.
	DataTypes map[string]string `mapstructure:"data_types"`
	Audit     audit.Config      `mapstructure:"audit"`
	Admin     adminapi.Config   `mapstructure:"admin"`
	Telemetry telemetry.Config  `mapstructure:"telemetry"`
	Scheduler scheduler.Config  `mapstructure:"scheduler"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", pidfile.DefaultPath())
	v.SetDefault("history.capacity", defaultHistoryCapacity)

	calc := interval.DefaultSettings()
	v.SetDefault("calculator.data_size_threshold_mb", calc.DataSizeThresholdMB)
	v.SetDefault("calculator.data_size_factor", calc.DataSizeFactor)

	for t, p := range policy.Defaults() {
		key := "policies." + t.String()
		v.SetDefault(key+".base_ms", p.BaseMs)
		v.SetDefault(key+".min_ms", p.MinMs)
		v.SetDefault(key+".max_ms", p.MaxMs)
	}
	for dt, t := range tier.DefaultMapping() {
		v.SetDefault("data_types."+dt, t.String())
	}

	ac := audit.DefaultConfig()
	v.SetDefault("audit.enabled", ac.Enabled)
	v.SetDefault("audit.db_path", ac.DBPath)
	v.SetDefault("audit.backup_dir", ac.BackupDir)
	v.SetDefault("audit.backup_on_migrate", ac.BackupOnMigrate)
	v.SetDefault("audit.batch_size", ac.BatchSize)
	v.SetDefault("audit.flush_interval", ac.FlushInterval)
	v.SetDefault("audit.max_buffer", ac.MaxBuffer)

	adm := adminapi.DefaultConfig()
	v.SetDefault("admin.enabled", adm.Enabled)
	v.SetDefault("admin.listen", adm.Listen)
	v.SetDefault("admin.shutdown_timeout", adm.ShutdownTimeout)

	tc := telemetry.DefaultConfig()
	v.SetDefault("telemetry.enabled", tc.Enabled)
	v.SetDefault("telemetry.namespace", tc.Namespace)

	sc := scheduler.DefaultConfig()
	v.SetDefault("scheduler.suspend_recheck", sc.SuspendRecheck)
	v.SetDefault("scheduler.run_immediately", sc.RunImmediately)
}

// Load reads configuration in increasing precedence: defaults, config
// file, environment, flags. The result is validated.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for name, key := range flagKeys {
			f := o.flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
		if o.configPath == "" {
			if f := o.flags.Lookup("config"); f != nil && f.Changed {
				o.configPath = f.Value.String()
			}
		}
	}

	if err := readConfigFile(v, o); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, o options) error {
	errFactory := errors.New()

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.WithData(errors.ErrReadConfig, struct {
				Path  string
				Error string
			}{
				Path:  path,
				Error: err.Error(),
			})
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("toml")
	v.AddConfigPath("/etc/syncinterval")
	v.AddConfigPath("$HOME/.config/syncinterval")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}
	return nil
}

// Validate checks every section. Log level errors carry
// invalid_log_level; everything else invalid_configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.History.Capacity <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig,
			fmt.Sprintf("history.capacity must be > 0, got %d", c.History.Capacity))
	}
	if _, err := c.EngineConfig(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	for _, check := range []func() error{
		c.Calculator.Validate,
		c.Audit.Validate,
		c.Admin.Validate,
		c.Telemetry.Validate,
	} {
		if err := check(); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	return nil
}

// Level returns the parsed log level. Load has already validated it.
func (c *Config) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// EngineConfig converts the loaded sections into an engine.Config.
// Tiers missing from Policies keep their defaults.
func (c *Config) EngineConfig() (engine.Config, error) {
	errFactory := errors.New()

	policies := policy.Defaults()
	for name, p := range c.Policies {
		t, ok := tier.Parse(name)
		if !ok {
			return engine.Config{}, errFactory.WithData(errors.ErrInvalidTier, name)
		}
		policies[t] = p
	}
	if err := policies.Validate(); err != nil {
		return engine.Config{}, err
	}

	mapping := make(map[string]tier.Tier, len(c.DataTypes))
	for dt, name := range c.DataTypes {
		t, ok := tier.Parse(name)
		if !ok {
			return engine.Config{}, errFactory.WithData(errors.ErrInvalidTier, fmt.Sprintf("%s: %s", dt, name))
		}
		mapping[dt] = t
	}

	return engine.Config{
		Policies:        policies,
		DataTypes:       mapping,
		Calculator:      c.Calculator,
		HistoryCapacity: c.History.Capacity,
	}, nil
}

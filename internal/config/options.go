package config

import "github.com/spf13/pflag"

const defaultEnvPrefix = "SYNCINTERVAL"

// Option defines a configuration option that can be passed to Load
type Option func(*options)

type options struct {
	configPath string
	envPrefix  string
	flags      *pflag.FlagSet
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "SYNCINTERVAL".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithFlags overlays flags registered by BindFlags. Only flags the user
// actually set override file and environment values.
func WithFlags(fs *pflag.FlagSet) Option {
	return func(o *options) {
		o.flags = fs
	}
}

// Flag names and the keys they override.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"pid-file":         "pid_file",
	"history-capacity": "history.capacity",
	"admin-listen":     "admin.listen",
	"audit":            "audit.enabled",
	"audit-db":         "audit.db_path",
	"telemetry":        "telemetry.enabled",
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("pid-file", "", "PID file guarding the serve command")
	fs.Int("history-capacity", defaultHistoryCapacity, "Decisions kept per data type")
	fs.String("admin-listen", "", "Admin API listen address")
	fs.Bool("audit", false, "Persist decisions to the audit database")
	fs.String("audit-db", "", "Audit database path")
	fs.Bool("telemetry", true, "Expose Prometheus metrics")
}

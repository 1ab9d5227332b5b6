package telemetry

import "codeberg.org/mutker/syncinterval/internal/errors"

const defaultNamespace = "syncinterval"

type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: defaultNamespace,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return errors.New().WithMessage(ErrInvalidConfig, "telemetry namespace is required")
	}
	return nil
}

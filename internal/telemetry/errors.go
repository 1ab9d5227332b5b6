package telemetry

import "codeberg.org/mutker/syncinterval/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrRegistryFailed = errors.ErrorCode("telemetry_registry_failed")
)

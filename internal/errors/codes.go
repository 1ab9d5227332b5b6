package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrReadConfig    ErrorCode = "read_config_failed"
	ErrBindFlags     ErrorCode = "bind_flags_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Policy and mode errors
	ErrInvalidPolicy ErrorCode = "invalid_policy"
	ErrInvalidMode   ErrorCode = "invalid_mode"
	ErrInvalidTier   ErrorCode = "invalid_tier"

	// Export/import errors
	ErrEncodeConfig       ErrorCode = "encode_config_failed"
	ErrDecodeConfig       ErrorCode = "decode_config_failed"
	ErrUnsupportedVersion ErrorCode = "unsupported_config_version"

	// Operation errors
	ErrTimeout    ErrorCode = "operation_timeout"
	ErrSyncFailed ErrorCode = "sync_failed"

	// Audit errors
	ErrInitAudit  ErrorCode = "init_audit_failed"
	ErrCloseAudit ErrorCode = "close_audit_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:           "Internal error occurred",
	ErrInvalidArgument:    "Invalid argument provided",
	ErrUnavailable:        "Service unavailable",
	ErrInvalidConfig:      "Invalid configuration",
	ErrReadConfig:         "Failed to read configuration",
	ErrBindFlags:          "Failed to bind flags",
	ErrInvalidLogLevel:    "Invalid log level",
	ErrInitFailed:         "Initialization failed",
	ErrShutdownFailed:     "Shutdown failed",
	ErrAlreadyRunning:     "Another instance is already running",
	ErrInvalidPolicy:      "Invalid interval policy",
	ErrInvalidMode:        "Invalid mode transition",
	ErrInvalidTier:        "Unknown tier",
	ErrEncodeConfig:       "Failed to encode configuration snapshot",
	ErrDecodeConfig:       "Failed to decode configuration snapshot",
	ErrUnsupportedVersion: "Unsupported configuration snapshot version",
	ErrTimeout:            "Operation timed out",
	ErrSyncFailed:         "Sync attempt failed",
	ErrInitAudit:          "Failed to initialize audit log",
	ErrCloseAudit:         "Failed to close audit log",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}

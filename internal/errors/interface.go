package errors

// ErrorCode identifies a class of failure. Codes are stable and appear in
// logs and in admin API responses.
type ErrorCode string

// Error is a coded error carrying optional message and data.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	// Data returns the value attached with WithData, typically the
	// offending tier, field or data type.
	Data() any
	Unwrap() error
}

// Factory creates coded errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// State store errors
	ErrItemNotFound     = fmt.Errorf("media item not found")
	ErrStoreUnavailable = fmt.Errorf("state store unavailable")

	// Transient transfer errors, safe to retry
	ErrNetwork            = fmt.Errorf("network error")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrRateLimited        = fmt.Errorf("rate limit exceeded")
	ErrConnection         = fmt.Errorf("connection failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Permanent transfer errors, never retried
	ErrAuthFailed        = fmt.Errorf("authentication failed")
	ErrNotFound          = fmt.Errorf("resource not found")
	ErrValidation        = fmt.Errorf("validation failed")
	ErrQuotaExceeded     = fmt.Errorf("storage quota exceeded")
	ErrUnsupportedFormat = fmt.Errorf("unsupported file format")
	ErrFileTooLarge      = fmt.Errorf("file exceeds size limit")
	ErrPermissionDenied  = fmt.Errorf("permission denied")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

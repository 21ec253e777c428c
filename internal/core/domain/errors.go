package domain

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Domain errors - used across all layers.
// Wrap them with goerr.Wrap so callers can match the kind with errors.Is
// while logs keep the structured values.
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = goerr.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = goerr.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = goerr.New("invalid input")

	// ErrConfiguration indicates required configuration is missing or malformed
	ErrConfiguration = goerr.New("configuration error")

	// ErrSchemaMismatch indicates a live index mapping disagrees with the registry
	ErrSchemaMismatch = goerr.New("schema mismatch")

	// ErrValidation indicates a document failed local validation before write
	ErrValidation = goerr.New("validation failed")

	// ErrInvalidEnumValue indicates an enumerated field holds an unknown value
	ErrInvalidEnumValue = goerr.New("invalid enum value")

	// ErrUnsupportedIndex indicates the operation needs a capability the index lacks
	ErrUnsupportedIndex = goerr.New("unsupported index")

	// ErrClusterUnhealthy indicates the search cluster reported red status or is unreachable
	ErrClusterUnhealthy = goerr.New("cluster unhealthy")

	// ErrIndexNotReady indicates an index is absent or empty when data is expected
	ErrIndexNotReady = goerr.New("index not ready")

	// ErrTimeout indicates a network call exceeded its bound
	ErrTimeout = goerr.New("timeout")

	// ErrTransient indicates a retryable cluster or network failure (429, 502-504, connection reset)
	ErrTransient = goerr.New("transient failure")

	// ErrServiceUnavailable indicates an external service could not be reached
	ErrServiceUnavailable = goerr.New("service unavailable")
)

// Context keys for error values
const (
	IndexKey        = "index"
	FieldKey        = "field"
	ValueKey        = "value"
	AllowedKey      = "allowed"
	DocumentIDKey   = "document_id"
	ExpectedDimsKey = "expected_dims"
	ActualDimsKey   = "actual_dims"
	ExpectedTypeKey = "expected_type"
	ActualTypeKey   = "actual_type"
	MissingKeysKey  = "missing_keys"
	StatusCodeKey   = "status_code"
	AttemptKey      = "attempt"
)

// IsRetryable reports whether err is a transient failure or timeout.
// Validation, configuration and schema errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

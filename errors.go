package cryptstream

import (
	"errors"
	"fmt"
)

// Error types represent the different failure categories of an operation

// ArgumentError represents an invalid construction argument or parameter.
// Argument errors are raised before any stream or cipher is touched.
type ArgumentError struct {
	Field   string // The argument or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("argument error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("argument error: %s", e.Message)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// FormatError represents a malformed or unsupported container header.
// Format errors are always raised before key derivation is attempted.
type FormatError struct {
	Field   string // The header field that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("format error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("format error: %s", e.Message)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// DecryptionError represents a failed integrity check on decrypt. It signals
// a wrong password or corrupted ciphertext, never a malformed header.
type DecryptionError struct {
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption error: %s", e.Message)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrBadMagic           = errors.New("bad magic sequence")
	ErrUnsupportedVersion = errors.New("unsupported container version")
	ErrInvalidPadding     = errors.New("invalid padding")
	ErrNilCipher          = errors.New("cipher cannot be nil")
	ErrNilSecret          = errors.New("secret cannot be nil")
	ErrNilSource          = errors.New("source stream cannot be nil")
	ErrNilDestination     = errors.New("destination stream cannot be nil")
	ErrSecretDestroyed    = errors.New("secret has been destroyed")
	ErrEngineClosed       = errors.New("engine has been closed")
	ErrOperationActive    = errors.New("operation already in progress on this engine")
)

// Helper functions for creating structured errors

func newArgumentError(field string, value any, message string) error {
	return &ArgumentError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

func newFormatError(field string, err error) error {
	return &FormatError{
		Field:   field,
		Message: err.Error(),
		Err:     err,
	}
}

func newDecryptionError(err error) error {
	return &DecryptionError{
		Message: err.Error(),
		Err:     err,
	}
}

// Error checking helpers

// IsArgumentError checks if an error is an argument error
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsFormatError checks if an error is a format error
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsDecryptionError checks if an error is a decryption error
func IsDecryptionError(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de)
}

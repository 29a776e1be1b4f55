// Package errs implements the error taxonomy from SPEC_FULL.md §7:
// ConnectionError, RuntimeError, ConcurrencyError, StoreError, and
// DeserializationError, each checkable with errors.Is against the
// corresponding sentinel regardless of the message attached to it.
package errs

import "github.com/cockroachdb/errors"

var (
	// ErrConnection marks a transport failure reaching a peer or endpoint.
	ErrConnection = errors.New("connection error")

	// ErrRuntime marks malformed input, an unknown key, or a precondition
	// failure such as a duplicate content submission.
	ErrRuntime = errors.New("runtime error")

	// ErrConcurrency marks an attempt to initialize a create-once resource
	// twice.
	ErrConcurrency = errors.New("concurrency error")

	// ErrStore marks an underlying key-value store failure.
	ErrStore = errors.New("store error")

	// ErrDeserialization marks an inbound message that failed schema.
	ErrDeserialization = errors.New("deserialization error")
)

// Connection wraps cause as a ConnectionError.
func Connection(cause error, msg string) error {
	return errors.Mark(errors.Wrap(cause, msg), ErrConnection)
}

// Runtime builds a RuntimeError from a message, with no underlying cause.
func Runtime(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrRuntime)
}

// Concurrency builds a ConcurrencyError from a message.
func Concurrency(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConcurrency)
}

// Store wraps cause as a StoreError.
func Store(cause error, msg string) error {
	return errors.Mark(errors.Wrap(cause, msg), ErrStore)
}

// Deserialization wraps cause as a DeserializationError.
func Deserialization(cause error, msg string) error {
	return errors.Mark(errors.Wrap(cause, msg), ErrDeserialization)
}

package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ValidationKind discriminates construction-time validation failures.
type ValidationKind int

const (
	// InvalidValue marks a malformed type string or any semantically
	// out-of-domain value.
	InvalidValue ValidationKind = iota
	// ValueTooLong marks a type string exceeding MaxTypeLen.
	ValueTooLong
	// CannotIncrementId marks identifier-space exhaustion while deriving a
	// successor identifier.
	CannotIncrementId
)

func (k ValidationKind) String() string {
	switch k {
	case InvalidValue:
		return "invalid value"
	case ValueTooLong:
		return "value too long"
	case CannotIncrementId:
		return "cannot increment id"
	}
	return "unknown validation failure"
}

// ValidationError is returned only by value constructors. It never performs
// I/O and never crosses the Datastore boundary: inputs are validated before a
// storage call is attempted.
type ValidationError struct {
	Kind ValidationKind
}

func (e *ValidationError) Error() string { return e.Kind.String() }

// IsValidation reports whether err is a construction-time validation failure
// of the given kind.
func IsValidation(err error, kind ValidationKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}

// ErrorKind discriminates operational failures. Every Datastore operation
// returns exactly one of these kinds, regardless of which backend produced it.
type ErrorKind int

const (
	// ErrorSerialization marks a malformed request or response payload.
	ErrorSerialization ErrorKind = iota
	// ErrorStorage marks a backend failure; the opaque cause is preserved.
	ErrorStorage
	// ErrorIdTaken marks a create_vertex against an already-bound identifier.
	ErrorIdTaken
)

var errorKindNames = map[ErrorKind]string{
	ErrorSerialization: "serialization",
	ErrorStorage:       "storage",
	ErrorIdTaken:       "id_taken",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON renders the kind as its wire tag.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON parses a wire tag back into a kind. Unrecognized tags decode
// as ErrorStorage so a newer peer's failure still surfaces as a failure.
func (k *ErrorKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for kind, name := range errorKindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	*k = ErrorStorage
	return nil
}

// Error is the single operational result error: every backend maps its
// internal failures into one of its kinds before returning, so no
// backend-specific error type escapes the Datastore boundary.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// StorageError wraps an opaque backend failure.
func StorageError(cause error) *Error {
	return &Error{Kind: ErrorStorage, Cause: cause}
}

// SerializationError wraps a malformed-payload failure.
func SerializationError(cause error) *Error {
	return &Error{Kind: ErrorSerialization, Cause: cause}
}

// IdTakenError marks an identifier collision on vertex creation.
func IdTakenError() *Error {
	return &Error{Kind: ErrorIdTaken}
}

// KindOf extracts the operational kind from err. The second return is false
// when err is not an operational error.
func KindOf(err error) (ErrorKind, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return 0, false
}

// IsIdTaken reports whether err is an identifier-collision failure.
func IsIdTaken(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrorIdTaken
}

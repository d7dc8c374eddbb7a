// Package ocflerr defines the error taxonomy shared by every internal
// package and re-exported by pkg/ocfl, so a caller checking errors.As
// against pkg/ocfl.Error works no matter which layer raised it.
package ocflerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, independent of which
// package raised the error.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota
	// NotFound: missing object, version, or logical path.
	NotFound
	// AlreadyExists: import collides with an existing object.
	AlreadyExists
	// ObjectOutOfSync: caller's HEAD expectation violated; a
	// concurrent writer won.
	ObjectOutOfSync
	// OcflState: invariant violation detected at runtime, e.g. a
	// mutable head is active when the caller expected none.
	OcflState
	// FixityCheck: computed digest does not equal declared digest.
	FixityCheck
	// CorruptObject: missing sidecar, malformed inventory, dangling
	// manifest entry.
	CorruptObject
	// LockError: lock acquisition exceeded its timeout.
	LockError
	// OcflIO: underlying I/O failure.
	OcflIO
	// OcflInput: caller supplied an invalid argument.
	OcflInput
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case ObjectOutOfSync:
		return "ObjectOutOfSync"
	case OcflState:
		return "OcflState"
	case FixityCheck:
		return "FixityCheck"
	case CorruptObject:
		return "CorruptObject"
	case LockError:
		return "LockError"
	case OcflIO:
		return "OcflIO"
	case OcflInput:
		return "OcflInput"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy-tagged error every package in this module
// returns for expected failure modes. Unexpected failures (bugs) are
// left as plain errors.
type Error struct {
	Kind    Kind
	Op      string
	Object  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Op, prefix)
	}
	if e.Object != "" {
		prefix = fmt.Sprintf("%s(%s)", prefix, e.Object)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, &ocflerr.Error{Kind: ocflerr.NotFound}) matches any
// NotFound error regardless of its Op, Object or Message. A bare Kind
// is not an error value and cannot be used as the target.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, op, object, message string) *Error {
	return &Error{Kind: kind, Op: op, Object: object, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, op, object string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Object: object, Message: cause.Error(), Err: cause}
}

// OfKind reports whether err (or something it wraps) is an *Error of
// the given kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

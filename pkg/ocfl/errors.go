package ocfl

import "ocfl/internal/ocflerr"

// Kind classifies why an operation failed. See internal/ocflerr for
// the full taxonomy this re-exports.
type Kind = ocflerr.Kind

// Error is the taxonomy-tagged error every Repository operation
// returns for expected failure modes.
type Error = ocflerr.Error

// Kind values every Repository operation may raise.
const (
	NotFound        = ocflerr.NotFound
	AlreadyExists   = ocflerr.AlreadyExists
	ObjectOutOfSync = ocflerr.ObjectOutOfSync
	OcflState       = ocflerr.OcflState
	FixityCheck     = ocflerr.FixityCheck
	CorruptObject   = ocflerr.CorruptObject
	LockError       = ocflerr.LockError
	OcflIO          = ocflerr.OcflIO
	OcflInput       = ocflerr.OcflInput
)

// IsKind reports whether err (or something it wraps) is an *Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	return ocflerr.OfKind(err, kind)
}

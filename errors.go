package dustdata

import (
	"errors"

	"github.com/rustbase/dustdata/internal/dderr"
)

// Kind classifies what went wrong with an operation.
type Kind = dderr.Kind

const (
	KindIO             = dderr.KindIO
	KindDeadlock       = dderr.KindDeadlock
	KindDatabaseLocked = dderr.KindDatabaseLocked
	KindAlreadyExists  = dderr.KindAlreadyExists
	KindNotFound       = dderr.KindNotFound
	KindCorruptedData  = dderr.KindCorruptedData
	KindOther          = dderr.KindOther
)

// Error is returned for the failures DustData classifies by Kind. Use
// errors.As to recover it, or one of the Is* helpers below. Some failures
// are returned as plain wrapped errors instead of *Error: creating a
// database or collection directory, opening the lock file, codec
// failures, and using a transaction in the wrong state.
type Error = dderr.Error

// IsNotFound reports whether err is a DustData NotFound error.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsAlreadyExists reports whether err is a DustData AlreadyExists error.
func IsAlreadyExists(err error) bool { return hasKind(err, KindAlreadyExists) }

// IsCorruptedData reports whether err is a DustData CorruptedData error.
func IsCorruptedData(err error) bool { return hasKind(err, KindCorruptedData) }

// IsDeadlock reports whether err is a DustData Deadlock error.
func IsDeadlock(err error) bool { return hasKind(err, KindDeadlock) }

// IsDatabaseLocked reports whether err is a DustData DatabaseLocked error.
func IsDatabaseLocked(err error) bool { return hasKind(err, KindDatabaseLocked) }

// DatabaseLockedError reports that dir's lock file is already held.
func DatabaseLockedError(dir string) error {
	return dderr.DatabaseLocked(dir)
}

func hasKind(err error, kind Kind) bool {
	var dde *Error
	if !errors.As(err, &dde) {
		return false
	}
	return dde.Kind == kind
}

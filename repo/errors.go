package repo

import (
	"errors"
	"fmt"

	"github.com/jacentio/lanyards/record"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("lanyards: record not found")

	// ErrAlreadyExists is returned when creating a record under a key that is taken.
	ErrAlreadyExists = errors.New("lanyards: record already exists")

	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("lanyards: record was modified concurrently")

	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("lanyards: transport failure")
)

// ConflictError is returned when a write's expected CommitRef no longer
// matches the store. Current is the store's CommitRef at the time of the
// failed write.
type ConflictError struct {
	ID      record.ID
	Current record.CommitRef
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lanyards: conflict on %s: current commit is %s", e.ID, e.Current)
}

// Is makes every ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransportError wraps a failure to reach the store or a fault reported by it.
type TransportError struct {
	Op  string
	Err error

	// Temporary marks failures worth retrying (timeouts, throttling, 5xx).
	Temporary bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lanyards: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsTemporary reports whether err is a transport failure worth retrying.
func IsTemporary(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Temporary
}

// IsLogical reports whether err is a caller-resolvable store outcome.
func IsLogical(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrConflict)
}

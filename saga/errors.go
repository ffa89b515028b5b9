package saga

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jacentio/lanyards/record"
)

var (
	// ErrDuplicateTarget is returned when a Unit names the same record twice.
	ErrDuplicateTarget = errors.New("lanyards: record targeted twice in one unit of work")

	// ErrInvalidOp is returned for an Op with an unknown kind or missing payload.
	ErrInvalidOp = errors.New("lanyards: invalid unit of work operation")

	// ErrPartialFailure is matched by every *PartialFailure.
	ErrPartialFailure = errors.New("lanyards: unit of work partially applied")
)

// PartialFailure reports a unit of work that left the store in a mixed state.
type PartialFailure struct {
	// Committed lists records left in their new state.
	Committed []record.ID

	// RolledBack lists records restored to their snapshot.
	RolledBack []record.ID

	// Unknown lists records whose write was interrupted by cancellation and
	// may or may not have been applied.
	Unknown []record.ID

	// Cause is the error that stopped the unit.
	Cause error

	// CompensationErrors holds one error per failed undo.
	CompensationErrors []error
}

func (e *PartialFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lanyards: unit of work partially applied: %d committed, %d rolled back",
		len(e.Committed), len(e.RolledBack))
	if len(e.Unknown) > 0 {
		fmt.Fprintf(&b, ", %d unknown", len(e.Unknown))
	}
	fmt.Fprintf(&b, ": %v", e.Cause)
	for _, err := range e.CompensationErrors {
		fmt.Fprintf(&b, "; undo: %v", err)
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *PartialFailure) Unwrap() error { return e.Cause }

// Is makes every PartialFailure match ErrPartialFailure.
func (e *PartialFailure) Is(target error) bool { return target == ErrPartialFailure }

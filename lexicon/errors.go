package lexicon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jacentio/lanyards/record"
)

var (
	// ErrUnknownSchema is returned when no schema is registered for a collection or revision.
	ErrUnknownSchema = errors.New("lanyards: unknown schema")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("lanyards: payload failed validation")

	// ErrInvalidDescriptor is returned when a schema source is malformed.
	ErrInvalidDescriptor = errors.New("lanyards: invalid schema descriptor")

	// ErrDuplicateRevision is returned when two sources register the same collection revision.
	ErrDuplicateRevision = errors.New("lanyards: duplicate schema revision")
)

// Violation is a single failed constraint.
type Violation struct {
	// Path locates the offending value ("$" is the record root).
	Path    string
	Message string
}

// ValidationError lists every constraint a payload failed.
type ValidationError struct {
	Collection record.CollectionName
	Revision   int
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Path + ": " + v.Message
	}
	return fmt.Sprintf("lanyards: %s@%d: %s", e.Collection, e.Revision, strings.Join(parts, "; "))
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

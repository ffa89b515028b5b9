package record

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidID is returned when an actor, collection, or record key is malformed.
	ErrInvalidID = errors.New("lanyards: invalid record identifier")

	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("lanyards: cannot decode record")

	// ErrNotCanonical is returned when a value has no canonical encoding (floats, nulls, foreign types).
	ErrNotCanonical = errors.New("lanyards: value has no canonical encoding")
)

// DecodeError reports stored data this process cannot interpret. It indicates
// corruption or schema skew and is never retried.
type DecodeError struct {
	// Collection and Revision identify the schema the data was checked against, when known.
	Collection CollectionName
	Revision   int

	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "lanyards: decode"
	if e.Collection != "" {
		msg = fmt.Sprintf("%s %s@%d", msg, e.Collection, e.Revision)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes every DecodeError match ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

package repo

import (
	"github.com/google/uuid"

	"github.com/jacentio/lanyards/record"
)

// NewKey returns a fresh time-ordered record key. Keys created later sort
// after keys created earlier, so a store that lists in descending key order
// returns newest records first.
func NewKey() record.RecordKey {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 fails only when the random source does.
		id = uuid.New()
	}
	return record.RecordKey(id.String())
}

// newCommit derives the commit token for a write of w to id.
func newCommit(id record.ID, w record.Wire) record.CommitRef {
	return record.NewCommitRef(id, w, uuid.NewString())
}

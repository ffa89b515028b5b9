package saga

import (
	"github.com/jacentio/lanyards/record"
)

// Kind is the type of write an Op performs.
type Kind int

const (
	// KindPut creates the record or replaces it, whichever applies.
	KindPut Kind = iota + 1
	// KindUpdate replaces an existing record.
	KindUpdate
	// KindCreate creates a record that must not exist yet.
	KindCreate
	// KindDelete removes an existing record.
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindPut:
		return "put"
	case KindUpdate:
		return "update"
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	}
	return "unknown"
}

// Op is one write in a Unit.
type Op struct {
	Kind  Kind
	ID    record.ID
	Value map[string]any

	// Expect, when set on an update or delete, is the commit the record must
	// still be at. A mismatch fails the unit before any write.
	Expect record.CommitRef
}

// Unit is the set of writes that make up one logical change. Each record may
// appear at most once.
type Unit []Op

// Put creates or replaces the record at id.
func Put(id record.ID, value map[string]any) Op {
	return Op{Kind: KindPut, ID: id, Value: value}
}

// Update replaces the existing record at id. expect may be empty.
func Update(id record.ID, value map[string]any, expect record.CommitRef) Op {
	return Op{Kind: KindUpdate, ID: id, Value: value, Expect: expect}
}

// Create creates the record at id, which must not exist.
func Create(id record.ID, value map[string]any) Op {
	return Op{Kind: KindCreate, ID: id, Value: value}
}

// Delete removes the existing record at id. expect may be empty.
func Delete(id record.ID, expect record.CommitRef) Op {
	return Op{Kind: KindDelete, ID: id, Expect: expect}
}

// Result is the outcome of a fully applied Unit.
type Result struct {
	// Records holds the new state of every created or replaced record, in
	// write order.
	Records []record.Record

	// Deleted lists the removed records, in write order.
	Deleted []record.ID
}

package repo

import (
	"context"

	"github.com/jacentio/lanyards/record"
)

// Transport is the contract a record store must satisfy. Every method acts on
// one record atomically.
//
// Implementations report logical outcomes with ErrNotFound, ErrAlreadyExists
// and *ConflictError, and wrap everything else in *TransportError so the
// client can tell retryable faults apart.
type Transport interface {
	// CreateRecord stores a new record, failing with ErrAlreadyExists when the
	// key is taken.
	CreateRecord(ctx context.Context, req CreateRequest) error

	// GetRecord returns the stored record, or ErrNotFound.
	GetRecord(ctx context.Context, id record.ID) (StoredRecord, error)

	// PutRecord replaces a record whose current commit equals req.Swap.
	PutRecord(ctx context.Context, req PutRequest) error

	// DeleteRecord removes a record whose current commit equals req.Swap.
	DeleteRecord(ctx context.Context, req DeleteRequest) error

	// ListRecords returns one page of an actor's collection in store order.
	ListRecords(ctx context.Context, req ListRequest) (ListPage, error)
}

// CreateRequest stores Wire under ID with Commit as its first commit.
type CreateRequest struct {
	ID     record.ID
	Wire   record.Wire
	Commit record.CommitRef
}

// PutRequest replaces the record at ID if its commit is still Swap.
type PutRequest struct {
	ID     record.ID
	Wire   record.Wire
	Commit record.CommitRef
	Swap   record.CommitRef
}

// DeleteRequest removes the record at ID if its commit is still Swap.
type DeleteRequest struct {
	ID   record.ID
	Swap record.CommitRef
}

// StoredRecord is a record as held by the store, before decoding.
type StoredRecord struct {
	ID     record.ID
	Wire   record.Wire
	Commit record.CommitRef
}

// ListRequest asks for up to Limit records after Cursor.
type ListRequest struct {
	Actor      record.ActorIdentity
	Collection record.CollectionName
	Cursor     string
	Limit      int
}

// ListPage is one page of records. An empty Cursor means there are no more pages.
type ListPage struct {
	Records []StoredRecord
	Cursor  string
}

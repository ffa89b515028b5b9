// Package memory provides an in-process record store implementing
// repo.Transport. It is used by tests and the CLI's local mode.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

// Op names a transport operation, for interception.
type Op string

const (
	OpCreate Op = "create"
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// Call describes one transport call seen by an Interceptor.
type Call struct {
	Op Op

	// ID is the target record. For OpList only Actor and Collection are set.
	ID record.ID
}

// Interceptor runs before every call, outside the store lock. A non-nil
// error aborts the call and is returned to the client unchanged.
type Interceptor func(ctx context.Context, call Call) error

type entry struct {
	wire   record.Wire
	commit record.CommitRef
}

type partition struct {
	actor      record.ActorIdentity
	collection record.CollectionName
}

// Store is a thread-safe in-memory record store.
type Store struct {
	mu sync.RWMutex
	// Structure: [actor, collection][key]entry
	data      map[partition]map[record.RecordKey]entry
	intercept Interceptor
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[partition]map[record.RecordKey]entry)}
}

// Intercept installs fn as the store's interceptor, replacing any previous one.
// Pass nil to remove it.
func (s *Store) Intercept(fn Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

func (s *Store) before(ctx context.Context, op Op, id record.ID) error {
	s.mu.RLock()
	fn := s.intercept
	s.mu.RUnlock()
	if fn != nil {
		if err := fn(ctx, Call{Op: op, ID: id}); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// CreateRecord implements repo.Transport.
func (s *Store) CreateRecord(ctx context.Context, req repo.CreateRequest) error {
	if err := s.before(ctx, OpCreate, req.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := partition{req.ID.Actor, req.ID.Collection}
	if _, ok := s.data[p][req.ID.Key]; ok {
		return repo.ErrAlreadyExists
	}
	if s.data[p] == nil {
		s.data[p] = make(map[record.RecordKey]entry)
	}
	s.data[p][req.ID.Key] = entry{wire: clone(req.Wire), commit: req.Commit}
	return nil
}

// GetRecord implements repo.Transport.
func (s *Store) GetRecord(ctx context.Context, id record.ID) (repo.StoredRecord, error) {
	if err := s.before(ctx, OpGet, id); err != nil {
		return repo.StoredRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[partition{id.Actor, id.Collection}][id.Key]
	if !ok {
		return repo.StoredRecord{}, repo.ErrNotFound
	}
	return repo.StoredRecord{ID: id, Wire: clone(e.wire), Commit: e.commit}, nil
}

// PutRecord implements repo.Transport.
func (s *Store) PutRecord(ctx context.Context, req repo.PutRequest) error {
	if err := s.before(ctx, OpPut, req.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := partition{req.ID.Actor, req.ID.Collection}
	e, ok := s.data[p][req.ID.Key]
	if !ok {
		return repo.ErrNotFound
	}
	if e.commit != req.Swap {
		return &repo.ConflictError{ID: req.ID, Current: e.commit}
	}
	s.data[p][req.ID.Key] = entry{wire: clone(req.Wire), commit: req.Commit}
	return nil
}

// DeleteRecord implements repo.Transport.
func (s *Store) DeleteRecord(ctx context.Context, req repo.DeleteRequest) error {
	if err := s.before(ctx, OpDelete, req.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := partition{req.ID.Actor, req.ID.Collection}
	e, ok := s.data[p][req.ID.Key]
	if !ok {
		return repo.ErrNotFound
	}
	if e.commit != req.Swap {
		return &repo.ConflictError{ID: req.ID, Current: e.commit}
	}
	delete(s.data[p], req.ID.Key)
	if len(s.data[p]) == 0 {
		delete(s.data, p)
	}
	return nil
}

// ListRecords implements repo.Transport. Records are returned in descending
// key order; the cursor is the last key of the previous page.
func (s *Store) ListRecords(ctx context.Context, req repo.ListRequest) (repo.ListPage, error) {
	if err := s.before(ctx, OpList, record.ID{Actor: req.Actor, Collection: req.Collection}); err != nil {
		return repo.ListPage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.data[partition{req.Actor, req.Collection}]
	keys := make([]record.RecordKey, 0, len(records))
	for k := range records {
		if req.Cursor == "" || string(k) < req.Cursor {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b record.RecordKey) int { return strings.Compare(string(b), string(a)) })

	var page repo.ListPage
	for _, k := range keys {
		if req.Limit > 0 && len(page.Records) == req.Limit {
			page.Cursor = string(page.Records[len(page.Records)-1].ID.Key)
			break
		}
		e := records[k]
		page.Records = append(page.Records, repo.StoredRecord{
			ID:     record.NewID(req.Actor, req.Collection, k),
			Wire:   clone(e.wire),
			Commit: e.commit,
		})
	}
	return page, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, records := range s.data {
		n += len(records)
	}
	return n
}

func clone(w record.Wire) record.Wire {
	return append(record.Wire(nil), w...)
}

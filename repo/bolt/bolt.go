// Package bolt provides a durable single-process record store on bbolt,
// implementing repo.Transport.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jacentio/lanyards/internal/keys"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

var bucketRecords = []byte("records")

// Store implements repo.Transport using bbolt. Each actor's collection is a
// nested bucket keyed by record key; values hold the commit and wire form.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNoSync disables fsync per transaction. Use only in tests.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  s.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening record database: %w", err)
	}
	s.db = db

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", bucketRecords, err)
	}

	s.logger.Debug("opened record database", "path", path, "noSync", s.noSync)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRecord implements repo.Transport.
func (s *Store) CreateRecord(ctx context.Context, req repo.CreateRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketRecords).CreateBucketIfNotExists(partitionKey(req.ID))
		if err != nil {
			return err
		}
		if b.Get([]byte(req.ID.Key)) != nil {
			return repo.ErrAlreadyExists
		}
		return b.Put([]byte(req.ID.Key), encodeEntry(req.Commit, req.Wire))
	})
	return s.wrap("create", err)
}

// GetRecord implements repo.Transport.
func (s *Store) GetRecord(ctx context.Context, id record.ID) (repo.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return repo.StoredRecord{}, err
	}
	var out repo.StoredRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords).Bucket(partitionKey(id))
		if b == nil {
			return repo.ErrNotFound
		}
		val := b.Get([]byte(id.Key))
		if val == nil {
			return repo.ErrNotFound
		}
		commit, wire, err := decodeEntry(val)
		if err != nil {
			return err
		}
		out = repo.StoredRecord{ID: id, Wire: wire, Commit: commit}
		return nil
	})
	return out, s.wrap("get", err)
}

// PutRecord implements repo.Transport.
func (s *Store) PutRecord(ctx context.Context, req repo.PutRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.swap(tx, req.ID, req.Swap)
		if err != nil {
			return err
		}
		return b.Put([]byte(req.ID.Key), encodeEntry(req.Commit, req.Wire))
	})
	return s.wrap("put", err)
}

// DeleteRecord implements repo.Transport.
func (s *Store) DeleteRecord(ctx context.Context, req repo.DeleteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.swap(tx, req.ID, req.Swap)
		if err != nil {
			return err
		}
		return b.Delete([]byte(req.ID.Key))
	})
	return s.wrap("delete", err)
}

// ListRecords implements repo.Transport. Records are returned in descending
// key order; the cursor is the last key of the previous page.
func (s *Store) ListRecords(ctx context.Context, req repo.ListRequest) (repo.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return repo.ListPage{}, err
	}
	var page repo.ListPage
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords).Bucket([]byte(keys.Partition(req.Actor, req.Collection)))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		var k, v []byte
		if req.Cursor == "" {
			k, v = c.Last()
		} else {
			// Seek lands on the cursor key or the first key after it.
			k, v = c.Seek([]byte(req.Cursor))
			if k == nil {
				k, v = c.Last()
			}
			for k != nil && bytes.Compare(k, []byte(req.Cursor)) >= 0 {
				k, v = c.Prev()
			}
		}

		for ; k != nil; k, v = c.Prev() {
			if req.Limit > 0 && len(page.Records) == req.Limit {
				page.Cursor = string(page.Records[len(page.Records)-1].ID.Key)
				break
			}
			commit, wire, err := decodeEntry(v)
			if err != nil {
				return err
			}
			page.Records = append(page.Records, repo.StoredRecord{
				ID:     record.NewID(req.Actor, req.Collection, record.RecordKey(k)),
				Wire:   wire,
				Commit: commit,
			})
		}
		return nil
	})
	return page, s.wrap("list", err)
}

// swap returns the partition bucket if the record exists with commit expect.
func (s *Store) swap(tx *bbolt.Tx, id record.ID, expect record.CommitRef) (*bbolt.Bucket, error) {
	b := tx.Bucket(bucketRecords).Bucket(partitionKey(id))
	if b == nil {
		return nil, repo.ErrNotFound
	}
	val := b.Get([]byte(id.Key))
	if val == nil {
		return nil, repo.ErrNotFound
	}
	current, _, err := decodeEntry(val)
	if err != nil {
		return nil, err
	}
	if current != expect {
		return nil, &repo.ConflictError{ID: id, Current: current}
	}
	return b, nil
}

// wrap passes logical outcomes through and marks everything else as a
// permanent transport failure.
func (s *Store) wrap(op string, err error) error {
	if err == nil || repo.IsLogical(err) {
		return err
	}
	if errors.Is(err, bbolt.ErrTimeout) {
		return &repo.TransportError{Op: "bolt " + op, Err: err, Temporary: true}
	}
	return &repo.TransportError{Op: "bolt " + op, Err: err}
}

func partitionKey(id record.ID) []byte {
	return []byte(keys.Partition(id.Actor, id.Collection))
}

// encodeEntry stores the commit and wire form separated by a zero byte.
// Commits are hex digests and never contain one.
func encodeEntry(commit record.CommitRef, w record.Wire) []byte {
	out := make([]byte, 0, len(commit)+1+len(w))
	out = append(out, commit...)
	out = append(out, 0)
	return append(out, w...)
}

// decodeEntry copies out of bbolt-owned memory, which is only valid inside the transaction.
func decodeEntry(val []byte) (record.CommitRef, record.Wire, error) {
	i := bytes.IndexByte(val, 0)
	if i < 0 {
		return "", nil, fmt.Errorf("corrupt record entry")
	}
	return record.CommitRef(val[:i]), append(record.Wire(nil), val[i+1:]...), nil
}

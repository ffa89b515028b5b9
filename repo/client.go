package repo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/jacentio/lanyards/lexicon"
	"github.com/jacentio/lanyards/record"
)

// ErrNoCommit is returned when Update or Delete is given a record that was
// never read from or written to the store.
var ErrNoCommit = errors.New("lanyards: record has no commit ref")

// Client provides typed, schema-validated access to a record store.
type Client struct {
	transport Transport
	schemas   *lexicon.Registry
	config    Config
	logger    *slog.Logger

	mu        sync.RWMutex
	observers []func(record.ID)
}

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the client configuration.
func WithConfig(config Config) Option {
	return func(c *Client) { c.config = config }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithObserver registers fn to be called after every successful write.
func WithObserver(fn func(record.ID)) Option {
	return func(c *Client) { c.observers = append(c.observers, fn) }
}

// New creates a Client over transport, validating against schemas.
func New(transport Transport, schemas *lexicon.Registry, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		schemas:   schemas,
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config.validate()
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Schemas returns the registry the client validates against.
func (c *Client) Schemas() *lexicon.Registry {
	return c.schemas
}

// Observe registers fn to be called with the ID of every record this client
// successfully creates, updates or deletes. Observers run synchronously on the
// writing goroutine and must not block.
func (c *Client) Observe(fn func(record.ID)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Client) notify(id record.ID) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.observers {
		fn(id)
	}
}

// CreateOption configures a Create call.
type CreateOption func(*createOptions)

type createOptions struct {
	key record.RecordKey
}

// WithKey creates the record under an explicit key instead of a generated one.
func WithKey(key record.RecordKey) CreateOption {
	return func(o *createOptions) { o.key = key }
}

// Create validates value against the collection's active schema and stores it
// as a new record. Returns ErrAlreadyExists if the key is taken.
func (c *Client) Create(ctx context.Context, actor record.ActorIdentity, collection record.CollectionName, value map[string]any, opts ...CreateOption) (record.Record, error) {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	desc, err := c.schemas.Resolve(collection)
	if err != nil {
		observeRejected("create", err)
		return record.Record{}, err
	}
	payload, err := desc.Validate(value)
	if err != nil {
		observeRejected("create", err)
		return record.Record{}, err
	}
	key, err := desc.KeyFor(o.key)
	if err != nil {
		observeRejected("create", err)
		return record.Record{}, err
	}
	if key == "" {
		key = NewKey()
	}
	id := record.NewID(actor, collection, key)
	if err := id.Validate(); err != nil {
		return record.Record{}, err
	}

	w, err := record.Encode(payload)
	if err != nil {
		return record.Record{}, err
	}
	commit := newCommit(id, w)

	ambiguous, err := c.call(ctx, "create", func(ctx context.Context) error {
		return c.transport.CreateRecord(ctx, CreateRequest{ID: id, Wire: w, Commit: commit})
	})
	if err != nil {
		if !ambiguous || !errors.Is(err, ErrAlreadyExists) || !c.holdsCommit(ctx, id, commit) {
			return record.Record{}, err
		}
	}

	c.notify(id)
	return record.Record{ID: id, Revision: payload.Revision, Value: payload.Value, Commit: commit}, nil
}

// Get reads a record. Returns ErrNotFound if it does not exist.
func (c *Client) Get(ctx context.Context, id record.ID) (record.Record, error) {
	if err := id.Validate(); err != nil {
		return record.Record{}, err
	}
	if _, err := c.schemas.Resolve(id.Collection); err != nil {
		observeRejected("get", err)
		return record.Record{}, err
	}

	var stored StoredRecord
	_, err := c.call(ctx, "get", func(ctx context.Context) error {
		var err error
		stored, err = c.transport.GetRecord(ctx, id)
		return err
	})
	if err != nil {
		return record.Record{}, err
	}
	return c.decode(ctx, stored)
}

// Update replaces rec's value, provided rec.Commit is still the record's
// current commit. A stale commit fails with *ConflictError and is never
// retried; the caller must re-read and resubmit.
func (c *Client) Update(ctx context.Context, rec record.Record, value map[string]any) (record.Record, error) {
	if rec.Commit == "" {
		return record.Record{}, fmt.Errorf("%w: %s", ErrNoCommit, rec.ID)
	}
	if err := rec.ID.Validate(); err != nil {
		return record.Record{}, err
	}
	payload, err := c.schemas.Validate(rec.Collection, value)
	if err != nil {
		observeRejected("update", err)
		return record.Record{}, err
	}

	w, err := record.Encode(payload)
	if err != nil {
		return record.Record{}, err
	}
	commit := newCommit(rec.ID, w)

	ambiguous, err := c.call(ctx, "update", func(ctx context.Context) error {
		return c.transport.PutRecord(ctx, PutRequest{ID: rec.ID, Wire: w, Commit: commit, Swap: rec.Commit})
	})
	if err != nil {
		// A retried write that landed on an earlier attempt reports our own commit as current.
		var ce *ConflictError
		if !ambiguous || !errors.As(err, &ce) || ce.Current != commit {
			return record.Record{}, err
		}
	}

	c.notify(rec.ID)
	return record.Record{ID: rec.ID, Revision: payload.Revision, Value: payload.Value, Commit: commit}, nil
}

// Delete removes rec, provided rec.Commit is still the record's current commit.
// When an attempt failed without a response and the retry finds the record
// gone, Delete reports success even if another writer removed it.
func (c *Client) Delete(ctx context.Context, rec record.Record) error {
	if rec.Commit == "" {
		return fmt.Errorf("%w: %s", ErrNoCommit, rec.ID)
	}
	if err := rec.ID.Validate(); err != nil {
		return err
	}

	ambiguous, err := c.call(ctx, "delete", func(ctx context.Context) error {
		return c.transport.DeleteRecord(ctx, DeleteRequest{ID: rec.ID, Swap: rec.Commit})
	})
	if err != nil && !(ambiguous && errors.Is(err, ErrNotFound)) {
		return err
	}

	c.notify(rec.ID)
	return nil
}

// List returns a lazy sequence over an actor's records in a collection, in
// store order. Pages are fetched on demand; ranging over the result again
// starts a fresh listing. Iteration ends after the first error.
func (c *Client) List(ctx context.Context, actor record.ActorIdentity, collection record.CollectionName) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		if err := actor.Validate(); err != nil {
			yield(record.Record{}, err)
			return
		}
		if _, err := c.schemas.Resolve(collection); err != nil {
			observeRejected("list", err)
			yield(record.Record{}, err)
			return
		}

		cursor := ""
		for {
			var page ListPage
			_, err := c.call(ctx, "list", func(ctx context.Context) error {
				var err error
				page, err = c.transport.ListRecords(ctx, ListRequest{
					Actor:      actor,
					Collection: collection,
					Cursor:     cursor,
					Limit:      c.config.PageSize,
				})
				return err
			})
			if err != nil {
				yield(record.Record{}, err)
				return
			}

			for _, stored := range page.Records {
				rec, err := c.decode(ctx, stored)
				if err != nil {
					yield(record.Record{}, err)
					return
				}
				if !yield(rec, nil) {
					return
				}
			}

			if page.Cursor == "" {
				return
			}
			cursor = page.Cursor
		}
	}
}

// ListAll drains List into a slice.
func (c *Client) ListAll(ctx context.Context, actor record.ActorIdentity, collection record.CollectionName) ([]record.Record, error) {
	var out []record.Record
	for rec, err := range c.List(ctx, actor, collection) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// decode resolves the schema revision recorded in the stored wire form and
// decodes against it, so records written under older revisions stay readable.
func (c *Client) decode(ctx context.Context, stored StoredRecord) (record.Record, error) {
	rec, err := c.decodeStored(stored)
	if err != nil {
		c.logger.WarnContext(ctx, "undecodable record",
			"record", stored.ID.String(),
			"error", err,
		)
		observeRejected("decode", err)
		return record.Record{}, err
	}
	return rec, nil
}

func (c *Client) decodeStored(stored StoredRecord) (record.Record, error) {
	collection, revision, err := record.PeekHeader(stored.Wire)
	if err != nil {
		return record.Record{}, err
	}
	if collection != stored.ID.Collection {
		return record.Record{}, &record.DecodeError{
			Collection: stored.ID.Collection,
			Revision:   revision,
			Reason:     fmt.Sprintf("record at %s is typed %s", stored.ID, collection),
		}
	}
	desc, err := c.schemas.ResolveVersion(collection, revision)
	if err != nil {
		return record.Record{}, &record.DecodeError{
			Collection: collection,
			Revision:   revision,
			Reason:     "recorded schema revision is not registered",
			Err:        err,
		}
	}
	payload, err := record.Decode(stored.Wire, desc)
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{ID: stored.ID, Revision: payload.Revision, Value: payload.Value, Commit: stored.Commit}, nil
}

// holdsCommit reports whether the record at id currently carries commit.
func (c *Client) holdsCommit(ctx context.Context, id record.ID, commit record.CommitRef) bool {
	var stored StoredRecord
	_, err := c.call(ctx, "get", func(ctx context.Context) error {
		var err error
		stored, err = c.transport.GetRecord(ctx, id)
		return err
	})
	return err == nil && stored.Commit == commit
}

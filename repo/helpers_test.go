package repo_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacentio/lanyards/lexicon"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
	"github.com/jacentio/lanyards/repo/memory"
)

const (
	alice record.ActorIdentity = "did:plc:alice"

	noteCollection    record.CollectionName = "app.test.note"
	profileCollection record.CollectionName = "app.test.profile"
)

func testRegistry(t *testing.T) *lexicon.Registry {
	t.Helper()
	text := &lexicon.Field{Type: lexicon.TypeString}
	reg, err := lexicon.NewRegistry(
		lexicon.Descriptor{
			Collection: noteCollection,
			Revision:   1,
			Key:        lexicon.KeyTID,
			Record: &lexicon.Field{
				Type:       lexicon.TypeObject,
				Required:   []string{"text"},
				Properties: map[string]*lexicon.Field{"text": text},
			},
		},
		lexicon.Descriptor{
			Collection: profileCollection,
			Revision:   1,
			Key:        lexicon.KeySelf,
			Record: &lexicon.Field{
				Type:       lexicon.TypeObject,
				Properties: map[string]*lexicon.Field{"name": text},
			},
		},
		lexicon.Descriptor{
			Collection: profileCollection,
			Revision:   2,
			Key:        lexicon.KeySelf,
			Record: &lexicon.Field{
				Type:       lexicon.TypeObject,
				Required:   []string{"name"},
				Properties: map[string]*lexicon.Field{"name": text, "bio": text},
			},
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func fastConfig() repo.Config {
	cfg := repo.DefaultConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 4 * time.Millisecond
	cfg.MaxAttempts = 3
	return cfg
}

func newClient(t *testing.T, opts ...repo.Option) (*repo.Client, *memory.Store) {
	t.Helper()
	store := memory.New()
	opts = append([]repo.Option{repo.WithConfig(fastConfig())}, opts...)
	return repo.New(store, testRegistry(t), opts...), store
}

// callCounter counts transport calls by op.
type callCounter struct {
	mu    sync.Mutex
	calls map[memory.Op]int
}

func countCalls(store *memory.Store) *callCounter {
	c := &callCounter{calls: make(map[memory.Op]int)}
	store.Intercept(func(_ context.Context, call memory.Call) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls[call.Op]++
		return nil
	})
	return c
}

func (c *callCounter) count(op memory.Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *callCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// failFirst fails the first n calls of op with err.
func failFirst(store *memory.Store, op memory.Op, n int, err error) *atomic.Int32 {
	var seen atomic.Int32
	store.Intercept(func(_ context.Context, call memory.Call) error {
		if call.Op != op {
			return nil
		}
		if int(seen.Add(1)) <= n {
			return err
		}
		return nil
	})
	return &seen
}

// lossyTransport applies writes but reports a temporary failure for the
// first write of each kind, as a store does when a response is lost.
type lossyTransport struct {
	*memory.Store
	lostCreate atomic.Bool
	lostPut    atomic.Bool
	lostDelete atomic.Bool
}

func lost(flag *atomic.Bool, err error) error {
	if err == nil && flag.CompareAndSwap(false, true) {
		return &repo.TransportError{Op: "lossy", Err: context.DeadlineExceeded, Temporary: true}
	}
	return err
}

func (l *lossyTransport) CreateRecord(ctx context.Context, req repo.CreateRequest) error {
	return lost(&l.lostCreate, l.Store.CreateRecord(ctx, req))
}

func (l *lossyTransport) PutRecord(ctx context.Context, req repo.PutRequest) error {
	return lost(&l.lostPut, l.Store.PutRecord(ctx, req))
}

func (l *lossyTransport) DeleteRecord(ctx context.Context, req repo.DeleteRequest) error {
	return lost(&l.lostDelete, l.Store.DeleteRecord(ctx, req))
}

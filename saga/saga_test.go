package saga_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jacentio/lanyards/lexicon"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
	"github.com/jacentio/lanyards/repo/memory"
	"github.com/jacentio/lanyards/saga"
	"github.com/jacentio/lanyards/schemas"
)

const alice record.ActorIdentity = "did:plc:alice"

type fixture struct {
	store  *memory.Store
	client *repo.Client
	orch   *saga.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := repo.DefaultConfig()
	cfg.MaxAttempts = 1
	store := memory.New()
	client := repo.New(store, schemas.MustLoad(), repo.WithConfig(cfg))
	return &fixture{store: store, client: client, orch: saga.New(client)}
}

func (f *fixture) affiliation(t *testing.T, key record.RecordKey, institution string) record.Record {
	t.Helper()
	rec, err := f.client.Create(context.Background(), alice, schemas.Affiliation, map[string]any{"institution": institution}, repo.WithKey(key))
	if err != nil {
		t.Fatalf("create %s: %v", key, err)
	}
	return rec
}

func (f *fixture) get(t *testing.T, id record.ID) (record.Record, bool) {
	t.Helper()
	rec, err := f.client.Get(context.Background(), id)
	if errors.Is(err, repo.ErrNotFound) {
		return record.Record{}, false
	}
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rec, true
}

// failOn makes the n-th call of op against id fail with err.
func (f *fixture) failOn(op memory.Op, id record.ID, n int, err error) {
	var mu sync.Mutex
	seen := 0
	f.store.Intercept(func(_ context.Context, call memory.Call) error {
		if call.Op != op || call.ID != id {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen == n {
			return err
		}
		return nil
	})
}

func affiliationID(key record.RecordKey) record.ID {
	return record.NewID(alice, schemas.Affiliation, key)
}

func TestExecute_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r1 := f.affiliation(t, "r1", "Acme")
	r3 := f.affiliation(t, "r3", "Initech")

	res, err := f.orch.Execute(ctx, saga.Unit{
		saga.Update(r1.ID, map[string]any{"institution": "Acme Corp"}, r1.Commit),
		saga.Create(affiliationID("r2"), map[string]any{"institution": "Globex"}),
		saga.Delete(r3.ID, ""),
		saga.Put(affiliationID("r4"), map[string]any{"institution": "Hooli"}),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(res.Records) != 3 || len(res.Deleted) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	wantOrder := []record.RecordKey{"r1", "r2", "r4"}
	for i, rec := range res.Records {
		if rec.Key != wantOrder[i] {
			t.Errorf("position %d: expected %s, got %s", i, wantOrder[i], rec.Key)
		}
	}

	if got, _ := f.get(t, r1.ID); got.Value["institution"] != "Acme Corp" {
		t.Errorf("expected r1 updated, got %v", got.Value)
	}
	if _, ok := f.get(t, affiliationID("r2")); !ok {
		t.Errorf("expected r2 created")
	}
	if _, ok := f.get(t, r3.ID); ok {
		t.Errorf("expected r3 deleted")
	}
}

func TestExecute_WritesInKeyOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, k := range []record.RecordKey{"b", "a", "c"} {
		f.affiliation(t, k, "x")
	}

	var mu sync.Mutex
	var order []record.RecordKey
	f.store.Intercept(func(_ context.Context, call memory.Call) error {
		if call.Op == memory.OpPut {
			mu.Lock()
			order = append(order, call.ID.Key)
			mu.Unlock()
		}
		return nil
	})

	_, err := f.orch.Execute(ctx, saga.Unit{
		saga.Update(affiliationID("c"), map[string]any{"institution": "y"}, ""),
		saga.Update(affiliationID("a"), map[string]any{"institution": "y"}, ""),
		saga.Update(affiliationID("b"), map[string]any{"institution": "y"}, ""),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected writes in key order, got %v", order)
	}
}

func TestExecute_ConflictIsRolledBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r1 := f.affiliation(t, "r1", "Acme")
	r2 := f.affiliation(t, "r2", "Globex")

	// Another writer moves r2 between the snapshot and the write.
	f.failOn(memory.OpPut, r2.ID, 1, &repo.ConflictError{ID: r2.ID, Current: "elsewhere"})

	_, err := f.orch.Execute(ctx, saga.Unit{
		saga.Update(r1.ID, map[string]any{"institution": "Acme Corp"}, ""),
		saga.Update(r2.ID, map[string]any{"institution": "Globex Corp"}, ""),
	})

	var ce *repo.ConflictError
	if !errors.As(err, &ce) || ce.ID != r2.ID || ce.Current != "elsewhere" {
		t.Fatalf("expected clean conflict on r2, got %v", err)
	}
	if errors.Is(err, saga.ErrPartialFailure) {
		t.Errorf("expected no partial failure when the undo succeeds")
	}

	got, _ := f.get(t, r1.ID)
	if got.Value["institution"] != "Acme" {
		t.Errorf("expected r1 rolled back, got %v", got.Value)
	}
}

func TestExecute_CompensationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r1 := f.affiliation(t, "r1", "Acme")
	r2 := f.affiliation(t, "r2", "Globex")

	var mu sync.Mutex
	puts := map[record.RecordKey]int{}
	f.store.Intercept(func(_ context.Context, call memory.Call) error {
		if call.Op != memory.OpPut {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		puts[call.ID.Key]++
		switch {
		case call.ID.Key == "r2":
			return &repo.ConflictError{ID: call.ID, Current: "elsewhere"}
		case call.ID.Key == "r1" && puts["r1"] == 2:
			// The revert of r1 loses to yet another writer.
			return &repo.ConflictError{ID: call.ID, Current: "third"}
		}
		return nil
	})

	_, err := f.orch.Execute(ctx, saga.Unit{
		saga.Update(r1.ID, map[string]any{"institution": "Acme Corp"}, ""),
		saga.Update(r2.ID, map[string]any{"institution": "Globex Corp"}, ""),
	})

	var pf *saga.PartialFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected *PartialFailure, got %v", err)
	}
	if len(pf.Committed) != 1 || pf.Committed[0] != r1.ID {
		t.Errorf("expected r1 committed, got %v", pf.Committed)
	}
	if len(pf.RolledBack) != 0 {
		t.Errorf("expected nothing rolled back, got %v", pf.RolledBack)
	}
	if len(pf.CompensationErrors) != 1 {
		t.Errorf("expected one compensation error, got %v", pf.CompensationErrors)
	}
	if !errors.Is(pf.Cause, repo.ErrConflict) {
		t.Errorf("expected conflict cause, got %v", pf.Cause)
	}
	if !errors.Is(err, saga.ErrPartialFailure) {
		t.Errorf("expected error to match ErrPartialFailure")
	}

	if got, _ := f.get(t, r1.ID); got.Value["institution"] != "Acme Corp" {
		t.Errorf("expected r1 left at the new value, got %v", got.Value)
	}
	if got, _ := f.get(t, r2.ID); got.Value["institution"] != "Globex" {
		t.Errorf("expected r2 untouched, got %v", got.Value)
	}
}

// faultyStore applies writes to failKey and then reports a transport fault,
// as a store does when the response is lost after the write landed.
type faultyStore struct {
	*memory.Store
	failKey record.RecordKey
}

func (s *faultyStore) PutRecord(ctx context.Context, req repo.PutRequest) error {
	if err := s.Store.PutRecord(ctx, req); err != nil {
		return err
	}
	if req.ID.Key == s.failKey {
		return &repo.TransportError{Op: "put", Err: errors.New("connection reset"), Temporary: true}
	}
	return nil
}

func TestExecute_TransportFaultIsReported(t *testing.T) {
	tests := []struct {
		name           string
		failKey        record.RecordKey
		wantRolledBack []record.RecordKey
	}{
		{name: "after earlier writes", failKey: "b", wantRolledBack: []record.RecordKey{"a"}},
		{name: "on first write", failKey: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := repo.DefaultConfig()
			cfg.MaxAttempts = 1
			store := &faultyStore{Store: memory.New()}
			client := repo.New(store, schemas.MustLoad(), repo.WithConfig(cfg))
			orch := saga.New(client)

			f := &fixture{store: store.Store, client: client, orch: orch}
			a := f.affiliation(t, "a", "Acme")
			b := f.affiliation(t, "b", "Initech")
			store.failKey = tt.failKey

			_, err := orch.Execute(ctx, saga.Unit{
				saga.Update(a.ID, map[string]any{"institution": "A2"}, ""),
				saga.Update(b.ID, map[string]any{"institution": "B2"}, ""),
			})

			var pf *saga.PartialFailure
			if !errors.As(err, &pf) {
				t.Fatalf("expected *PartialFailure, got %v", err)
			}
			if !errors.Is(pf.Cause, repo.ErrTransport) {
				t.Errorf("expected transport cause, got %v", pf.Cause)
			}
			if len(pf.Unknown) != 1 || pf.Unknown[0].Key != tt.failKey {
				t.Errorf("expected %s unknown, got %v", tt.failKey, pf.Unknown)
			}
			if len(pf.Committed) != 0 {
				t.Errorf("expected nothing committed, got %v", pf.Committed)
			}
			if len(pf.RolledBack) != len(tt.wantRolledBack) {
				t.Fatalf("expected rolled back %v, got %v", tt.wantRolledBack, pf.RolledBack)
			}
			for i, key := range tt.wantRolledBack {
				if pf.RolledBack[i].Key != key {
					t.Errorf("expected %s rolled back, got %v", key, pf.RolledBack[i])
				}
			}

			// The faulted write landed; nothing after it ran.
			if got, _ := f.get(t, a.ID); tt.failKey == "b" && got.Value["institution"] != "Acme" {
				t.Errorf("expected a rolled back, got %v", got.Value)
			}
			failed := record.NewID(alice, schemas.Affiliation, tt.failKey)
			if got, _ := f.get(t, failed); got.Value["institution"] == "Acme" || got.Value["institution"] == "Initech" {
				t.Errorf("expected %s to hold the new value, got %v", tt.failKey, got.Value)
			}
			if got, _ := f.get(t, b.ID); tt.failKey == "a" && got.Value["institution"] != "Initech" {
				t.Errorf("expected b untouched, got %v", got.Value)
			}
		})
	}
}

func TestExecute_UndoesEveryKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.affiliation(t, "a", "Acme")
	b := f.affiliation(t, "b", "Initech")
	z := f.affiliation(t, "z", "Globex")

	// a is updated, b deleted, c created, then z fails.
	f.failOn(memory.OpPut, z.ID, 1, &repo.ConflictError{ID: z.ID, Current: "elsewhere"})

	_, err := f.orch.Execute(ctx, saga.Unit{
		saga.Update(a.ID, map[string]any{"institution": "changed"}, ""),
		saga.Delete(b.ID, ""),
		saga.Create(affiliationID("c"), map[string]any{"institution": "new"}),
		saga.Update(z.ID, map[string]any{"institution": "changed"}, ""),
	})
	if !errors.Is(err, repo.ErrConflict) || errors.Is(err, saga.ErrPartialFailure) {
		t.Fatalf("expected clean conflict, got %v", err)
	}

	if got, _ := f.get(t, a.ID); got.Value["institution"] != "Acme" {
		t.Errorf("expected a reverted, got %v", got.Value)
	}
	if got, ok := f.get(t, b.ID); !ok || got.Value["institution"] != "Initech" {
		t.Errorf("expected b recreated, got %v %v", got.Value, ok)
	}
	if _, ok := f.get(t, affiliationID("c")); ok {
		t.Errorf("expected c removed again")
	}
	if f.store.Len() != 3 {
		t.Errorf("expected 3 records, got %d", f.store.Len())
	}
}

func TestExecute_FailsBeforeWriting(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		unit    func(r1 record.Record) saga.Unit
		wantErr error
	}{
		{"invalid payload", func(r1 record.Record) saga.Unit {
			return saga.Unit{
				saga.Update(r1.ID, map[string]any{"institution": "ok"}, ""),
				saga.Create(affiliationID("r2"), map[string]any{"role": "missing institution"}),
			}
		}, lexicon.ErrValidation},
		{"unknown collection", func(r1 record.Record) saga.Unit {
			return saga.Unit{saga.Delete(record.NewID(alice, "app.test.unknown", "k"), "")}
		}, lexicon.ErrUnknownSchema},
		{"stale expectation", func(r1 record.Record) saga.Unit {
			return saga.Unit{
				saga.Create(affiliationID("r0"), map[string]any{"institution": "ok"}),
				saga.Update(r1.ID, map[string]any{"institution": "ok"}, "stale"),
			}
		}, repo.ErrConflict},
		{"update missing", func(r1 record.Record) saga.Unit {
			return saga.Unit{saga.Update(affiliationID("nope"), map[string]any{"institution": "ok"}, "")}
		}, repo.ErrNotFound},
		{"delete missing", func(r1 record.Record) saga.Unit {
			return saga.Unit{saga.Delete(affiliationID("nope"), "")}
		}, repo.ErrNotFound},
		{"create existing", func(r1 record.Record) saga.Unit {
			return saga.Unit{saga.Create(r1.ID, map[string]any{"institution": "ok"})}
		}, repo.ErrAlreadyExists},
		{"duplicate target", func(r1 record.Record) saga.Unit {
			return saga.Unit{
				saga.Update(r1.ID, map[string]any{"institution": "a"}, ""),
				saga.Delete(r1.ID, ""),
			}
		}, saga.ErrDuplicateTarget},
		{"missing value", func(r1 record.Record) saga.Unit {
			return saga.Unit{{Kind: saga.KindPut, ID: r1.ID}}
		}, saga.ErrInvalidOp},
		{"unknown kind", func(r1 record.Record) saga.Unit {
			return saga.Unit{{Kind: 42, ID: r1.ID}}
		}, saga.ErrInvalidOp},
		{"invalid id", func(r1 record.Record) saga.Unit {
			return saga.Unit{saga.Delete(record.NewID("", schemas.Affiliation, "k"), "")}
		}, record.ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r1 := f.affiliation(t, "r1", "Acme")

			writes := 0
			f.store.Intercept(func(_ context.Context, call memory.Call) error {
				if call.Op != memory.OpGet && call.Op != memory.OpList {
					writes++
				}
				return nil
			})

			_, err := f.orch.Execute(ctx, tt.unit(r1))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if writes != 0 {
				t.Errorf("expected no writes, got %d", writes)
			}
		})
	}
}

func TestExecute_CancelBeforeWrites(t *testing.T) {
	f := newFixture(t)
	r1 := f.affiliation(t, "r1", "Acme")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Execute(ctx, saga.Unit{saga.Update(r1.ID, map[string]any{"institution": "x"}, "")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, saga.ErrPartialFailure) {
		t.Errorf("expected no partial failure without writes")
	}
}

func TestExecute_CancelAfterPartialWrites(t *testing.T) {
	f := newFixture(t)
	r1 := f.affiliation(t, "r1", "Acme")
	r2 := f.affiliation(t, "r2", "Globex")

	ctx, cancel := context.WithCancel(context.Background())
	f.store.Intercept(func(_ context.Context, call memory.Call) error {
		// Cancel once r1 has been written, before r2 is attempted.
		if call.Op == memory.OpPut && call.ID == r1.ID {
			defer cancel()
		}
		return nil
	})

	_, err := f.orch.Execute(ctx, saga.Unit{
		saga.Update(r1.ID, map[string]any{"institution": "Acme Corp"}, ""),
		saga.Update(r2.ID, map[string]any{"institution": "Globex Corp"}, ""),
	})

	var pf *saga.PartialFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected *PartialFailure, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation cause, got %v", pf.Cause)
	}
	if len(pf.RolledBack) != 0 {
		t.Errorf("cancellation must not roll back, got %v", pf.RolledBack)
	}
	if len(pf.Committed)+len(pf.Unknown) != 1 {
		t.Errorf("expected r1 reported, got committed=%v unknown=%v", pf.Committed, pf.Unknown)
	}

	if got, _ := f.get(t, r2.ID); got.Value["institution"] != "Globex" {
		t.Errorf("expected r2 untouched, got %v", got.Value)
	}
}

func TestExecute_IndependentUnitsRunConcurrently(t *testing.T) {
	f := newFixture(t)
	a := f.affiliation(t, "a", "Acme")
	b := f.affiliation(t, "b", "Globex")

	// Each unit's write waits until the other unit has reached its write.
	arrived := make(chan struct{}, 2)
	f.store.Intercept(func(ctx context.Context, call memory.Call) error {
		if call.Op != memory.OpPut {
			return nil
		}
		arrived <- struct{}{}
		deadline := time.After(2 * time.Second)
		for len(arrived) < 2 {
			select {
			case <-deadline:
				return errors.New("units were serialized")
			case <-time.After(time.Millisecond):
			}
		}
		return nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, rec := range []record.Record{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.orch.Execute(ctx, saga.Unit{saga.Update(rec.ID, map[string]any{"institution": "x"}, "")})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("unit %d: %v", i, err)
		}
	}
}

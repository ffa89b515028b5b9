package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
	"github.com/jacentio/lanyards/repo/memory"
	"github.com/jacentio/lanyards/repo/repotest"
)

func noteID(key string) record.ID {
	return record.NewID("did:plc:alice", "app.test.note", record.RecordKey(key))
}

func TestStore_CAS(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	id := noteID("a")

	if err := s.CreateRecord(ctx, repo.CreateRequest{ID: id, Wire: record.Wire(`{}`), Commit: "c1"}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if err := s.CreateRecord(ctx, repo.CreateRequest{ID: id, Wire: record.Wire(`{}`), Commit: "c9"}); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	if err := s.PutRecord(ctx, repo.PutRequest{ID: id, Wire: record.Wire(`{"v":2}`), Commit: "c2", Swap: "c1"}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	err := s.PutRecord(ctx, repo.PutRequest{ID: id, Wire: record.Wire(`{"v":3}`), Commit: "c3", Swap: "c1"})
	var ce *repo.ConflictError
	if !errors.As(err, &ce) || ce.Current != "c2" {
		t.Fatalf("expected conflict with current c2, got %v", err)
	}

	got, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Commit != "c2" || string(got.Wire) != `{"v":2}` {
		t.Errorf("stale put must not mutate the store, got %s %s", got.Commit, got.Wire)
	}

	if err := s.DeleteRecord(ctx, repo.DeleteRequest{ID: id, Swap: "c1"}); !errors.Is(err, repo.ErrConflict) {
		t.Errorf("expected conflict on stale delete, got %v", err)
	}
	if err := s.DeleteRecord(ctx, repo.DeleteRequest{ID: id, Swap: "c2"}); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := s.GetRecord(ctx, id); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteRecord(ctx, repo.DeleteRequest{ID: id, Swap: "c2"}); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.PutRecord(ctx, repo.PutRequest{ID: id, Commit: "c4", Swap: "c2"}); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound on put of deleted record, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d records", s.Len())
	}
}

func TestStore_ListRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := 0; i < 5; i++ {
		id := noteID(fmt.Sprintf("k%d", i))
		if err := s.CreateRecord(ctx, repo.CreateRequest{ID: id, Wire: record.Wire(`{}`), Commit: "c"}); err != nil {
			t.Fatal(err)
		}
	}
	other := record.NewID("did:plc:bob", "app.test.note", "k9")
	if err := s.CreateRecord(ctx, repo.CreateRequest{ID: other, Wire: record.Wire(`{}`), Commit: "c"}); err != nil {
		t.Fatal(err)
	}

	var keys []record.RecordKey
	cursor := ""
	pages := 0
	for {
		page, err := s.ListRecords(ctx, repo.ListRequest{Actor: "did:plc:alice", Collection: "app.test.note", Cursor: cursor, Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		pages++
		for _, r := range page.Records {
			keys = append(keys, r.ID.Key)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	want := []record.RecordKey{"k4", "k3", "k2", "k1", "k0"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}

	page, err := s.ListRecords(ctx, repo.ListRequest{Actor: "did:plc:carol", Collection: "app.test.note"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 0 || page.Cursor != "" {
		t.Errorf("expected empty page, got %+v", page)
	}
}

func TestStore_Intercept(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	boom := errors.New("boom")

	var calls []memory.Call
	s.Intercept(func(_ context.Context, call memory.Call) error {
		calls = append(calls, call)
		if call.Op == memory.OpPut {
			return boom
		}
		return nil
	})

	id := noteID("a")
	if err := s.CreateRecord(ctx, repo.CreateRequest{ID: id, Wire: record.Wire(`{}`), Commit: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutRecord(ctx, repo.PutRequest{ID: id, Commit: "c2", Swap: "c1"}); !errors.Is(err, boom) {
		t.Errorf("expected interceptor error, got %v", err)
	}
	if len(calls) != 2 || calls[0].Op != memory.OpCreate || calls[1].ID != id {
		t.Errorf("unexpected calls %+v", calls)
	}

	s.Intercept(nil)
	if err := s.PutRecord(ctx, repo.PutRequest{ID: id, Commit: "c2", Swap: "c1"}); err != nil {
		t.Errorf("expected put to succeed after removing interceptor, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.GetRecord(cancelled, id); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStore_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repo.Transport { return memory.New() })
}

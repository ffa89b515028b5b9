// Package repotest provides a conformance suite for repo.Transport
// implementations.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

// Run exercises the compare-and-swap and listing contract of the transport
// returned by newTransport. Each subtest gets a fresh transport.
func Run(t *testing.T, newTransport func(t *testing.T) repo.Transport) {
	t.Helper()

	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, newTransport(t)) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, newTransport(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newTransport(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newTransport(t)) })
}

func id(actor, key string) record.ID {
	return record.NewID(record.ActorIdentity(actor), "app.test.note", record.RecordKey(key))
}

func wire(n int) record.Wire {
	return record.Wire(fmt.Sprintf(`{"$rev":1,"$type":"app.test.note","n":%d}`, n))
}

func testCreateGet(t *testing.T, tr repo.Transport) {
	ctx := context.Background()
	target := id("did:plc:alice", "a")

	if _, err := tr.GetRecord(ctx, target); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before create, got %v", err)
	}
	if err := tr.CreateRecord(ctx, repo.CreateRequest{ID: target, Wire: wire(1), Commit: "c1"}); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	got, err := tr.GetRecord(ctx, target)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.ID != target || got.Commit != "c1" || string(got.Wire) != string(wire(1)) {
		t.Errorf("unexpected record %+v", got)
	}

	err = tr.CreateRecord(ctx, repo.CreateRequest{ID: target, Wire: wire(2), Commit: "c2"})
	if !errors.Is(err, repo.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if got, _ := tr.GetRecord(ctx, target); got.Commit != "c1" {
		t.Errorf("failed create must not overwrite, got commit %s", got.Commit)
	}

	other := id("did:plc:bob", "a")
	if _, err := tr.GetRecord(ctx, other); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("records must be scoped by actor, got %v", err)
	}
}

func testCompareAndSwap(t *testing.T, tr repo.Transport) {
	ctx := context.Background()
	target := id("did:plc:alice", "a")

	if err := tr.PutRecord(ctx, repo.PutRequest{ID: target, Wire: wire(1), Commit: "c1", Swap: "c0"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
	if err := tr.CreateRecord(ctx, repo.CreateRequest{ID: target, Wire: wire(1), Commit: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.PutRecord(ctx, repo.PutRequest{ID: target, Wire: wire(2), Commit: "c2", Swap: "c1"}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	err := tr.PutRecord(ctx, repo.PutRequest{ID: target, Wire: wire(3), Commit: "c3", Swap: "c1"})
	var ce *repo.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if ce.Current != "c2" {
		t.Errorf("expected current c2, got %s", ce.Current)
	}

	got, err := tr.GetRecord(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if got.Commit != "c2" || string(got.Wire) != string(wire(2)) {
		t.Errorf("stale swap must not mutate, got %s %s", got.Commit, got.Wire)
	}
}

func testDelete(t *testing.T, tr repo.Transport) {
	ctx := context.Background()
	target := id("did:plc:alice", "a")

	if err := tr.DeleteRecord(ctx, repo.DeleteRequest{ID: target, Swap: "c1"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := tr.CreateRecord(ctx, repo.CreateRequest{ID: target, Wire: wire(1), Commit: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.DeleteRecord(ctx, repo.DeleteRequest{ID: target, Swap: "stale"}); !errors.Is(err, repo.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if err := tr.DeleteRecord(ctx, repo.DeleteRequest{ID: target, Swap: "c1"}); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := tr.GetRecord(ctx, target); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// The key is free again.
	if err := tr.CreateRecord(ctx, repo.CreateRequest{ID: target, Wire: wire(2), Commit: "c2"}); err != nil {
		t.Errorf("expected re-create to succeed, got %v", err)
	}
}

func testList(t *testing.T, tr repo.Transport) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := tr.CreateRecord(ctx, repo.CreateRequest{ID: id("did:plc:alice", fmt.Sprintf("k%d", i)), Wire: wire(i), Commit: "c"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.CreateRecord(ctx, repo.CreateRequest{ID: id("did:plc:bob", "k9"), Wire: wire(9), Commit: "c"}); err != nil {
		t.Fatal(err)
	}

	var keys []record.RecordKey
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("listing did not terminate")
		}
		page, err := tr.ListRecords(ctx, repo.ListRequest{Actor: "did:plc:alice", Collection: "app.test.note", Cursor: cursor, Limit: 2})
		if err != nil {
			t.Fatalf("ListRecords: %v", err)
		}
		for _, r := range page.Records {
			keys = append(keys, r.ID.Key)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	want := "[k4 k3 k2 k1 k0]"
	if fmt.Sprint(keys) != want {
		t.Errorf("expected %s, got %v", want, keys)
	}

	page, err := tr.ListRecords(ctx, repo.ListRequest{Actor: "did:plc:carol", Collection: "app.test.note", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Records) != 0 || page.Cursor != "" {
		t.Errorf("expected an empty page, got %+v", page)
	}
}

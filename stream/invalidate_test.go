package stream_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lanyards/projection"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo/dynamo"
	"github.com/jacentio/lanyards/stream"
)

var _ stream.Invalidator = (*projection.Cache)(nil)

type recorder struct {
	ids []record.ID
}

func (r *recorder) Invalidate(id record.ID) { r.ids = append(r.ids, id) }

func streamKey(pk, sk string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute(pk),
		"sk": events.NewStringAttribute(sk),
	}
}

func image(commit string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{"commit": events.NewStringAttribute(commit)}
}

func TestNewHandler(t *testing.T) {
	// Test with nil logger (should not panic)
	h := stream.NewHandler(&recorder{}, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleRecordChanges(t *testing.T) {
	const pk = "did:plc:alice#app.lanyards.actor.profile"
	want := record.NewID("did:plc:alice", "app.lanyards.actor.profile", "self")

	tests := []struct {
		name       string
		record     events.DynamoDBEventRecord
		invalidate bool
	}{
		{"insert", events.DynamoDBEventRecord{
			EventName: "INSERT",
			Change:    events.DynamoDBStreamRecord{Keys: streamKey(pk, "self"), NewImage: image("c1")},
		}, true},
		{"modify", events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change:    events.DynamoDBStreamRecord{Keys: streamKey(pk, "self"), OldImage: image("c1"), NewImage: image("c2")},
		}, true},
		{"modify without images", events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change:    events.DynamoDBStreamRecord{Keys: streamKey(pk, "self")},
		}, true},
		{"modify keeping commit", events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change:    events.DynamoDBStreamRecord{Keys: streamKey(pk, "self"), OldImage: image("c1"), NewImage: image("c1")},
		}, false},
		{"remove", events.DynamoDBEventRecord{
			EventName: "REMOVE",
			Change:    events.DynamoDBStreamRecord{Keys: streamKey(pk, "self"), OldImage: image("c1")},
		}, true},
		{"unknown event", events.DynamoDBEventRecord{
			EventName: "UNKNOWN",
			Change:    events.DynamoDBStreamRecord{Keys: streamKey(pk, "self")},
		}, false},
		{"foreign key", events.DynamoDBEventRecord{
			EventName: "INSERT",
			Change:    events.DynamoDBStreamRecord{Keys: streamKey("not-a-partition", "self")},
		}, false},
		{"missing sort key", events.DynamoDBEventRecord{
			EventName: "INSERT",
			Change: events.DynamoDBStreamRecord{Keys: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute(pk),
			}},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			h := stream.NewHandler(rec, nil)

			err := h.HandleRecordChanges(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{tt.record}})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !tt.invalidate {
				if len(rec.ids) != 0 {
					t.Errorf("expected no invalidation, got %v", rec.ids)
				}
				return
			}
			if len(rec.ids) != 1 || rec.ids[0] != want {
				t.Errorf("expected %s invalidated, got %v", want, rec.ids)
			}
		})
	}
}

func TestHandleRecordChanges_Batch(t *testing.T) {
	rec := &recorder{}
	h := stream.NewHandler(rec, nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: "INSERT", Change: events.DynamoDBStreamRecord{Keys: streamKey("did:plc:alice#app.lanyards.actor.biography.link", "3k1")}},
		{EventName: "INSERT", Change: events.DynamoDBStreamRecord{Keys: streamKey("bogus", "x")}},
		{EventName: "REMOVE", Change: events.DynamoDBStreamRecord{Keys: streamKey("did:plc:bob#app.lanyards.actor.status", "self")}},
	}}
	if err := h.HandleRecordChanges(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if len(rec.ids) != 2 || rec.ids[0].Actor != "did:plc:alice" || rec.ids[1].Actor != "did:plc:bob" {
		t.Errorf("expected the two valid records in order, got %v", rec.ids)
	}
}

func TestConvertStreamKey(t *testing.T) {
	streamKey := map[string]events.DynamoDBAttributeValue{
		"pk":      events.NewStringAttribute("did:plc:alice#app.test.note"),
		"sk":      events.NewStringAttribute("k1"),
		"version": events.NewNumberAttribute("42"),
		"raw":     events.NewBinaryAttribute([]byte{1, 2}),
	}

	pk := stream.ConvertStreamKey(streamKey)
	if v, ok := pk["pk"].(*types.AttributeValueMemberS); !ok || v.Value != "did:plc:alice#app.test.note" {
		t.Error("expected pk to be a string")
	}
	if v, ok := pk["version"].(*types.AttributeValueMemberN); !ok || v.Value != "42" {
		t.Error("expected version to be '42'")
	}
	if v, ok := pk["raw"].(*types.AttributeValueMemberB); !ok || len(v.Value) != 2 {
		t.Error("expected raw to be binary")
	}

	id, err := dynamo.IDFromKey(pk)
	if err != nil || id.Key != "k1" {
		t.Errorf("expected key k1, got %v (%v)", id, err)
	}
}

func TestConvertStreamKey_Empty(t *testing.T) {
	pk := stream.ConvertStreamKey(map[string]events.DynamoDBAttributeValue{})
	if pk == nil {
		t.Fatal("expected non-nil PK for empty input")
	}
	if len(pk) != 0 {
		t.Errorf("expected empty PK, got %d keys", len(pk))
	}
}

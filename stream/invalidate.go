// Package stream provides DynamoDB Streams handlers that keep process-local
// projections in step with writes made by other processes.
package stream

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo/dynamo"
)

// Invalidator drops derived state that depends on a record.
// *projection.Cache implements it.
type Invalidator interface {
	Invalidate(id record.ID)
}

// Handler processes DynamoDB stream events of the record table.
type Handler struct {
	invalidator Invalidator
	logger      *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(inv Invalidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		invalidator: inv,
		logger:      logger,
	}
}

// HandleRecordChanges invalidates every record changed in the event.
// This function is designed to be used as an AWS Lambda handler.
//
// Records with keys outside the table layout are logged and skipped;
// retrying them could never succeed.
func (h *Handler) HandleRecordChanges(ctx context.Context, event events.DynamoDBEvent) error {
	invalidated := 0
	for i := range event.Records {
		if h.processRecord(ctx, &event.Records[i]) {
			invalidated++
		}
	}
	h.logger.DebugContext(ctx, "processed record changes",
		"records", len(event.Records),
		"invalidated", invalidated,
	)
	return nil
}

// processRecord reports whether the stream record caused an invalidation.
func (h *Handler) processRecord(ctx context.Context, rec *events.DynamoDBEventRecord) bool {
	switch rec.EventName {
	case "INSERT", "REMOVE":
	case "MODIFY":
		// Rewrites that keep the commit (none today) do not change the value.
		old := getStringAttr(rec.Change.OldImage, dynamo.AttrCommit)
		if old != "" && old == getStringAttr(rec.Change.NewImage, dynamo.AttrCommit) {
			return false
		}
	default:
		return false
	}

	id, err := dynamo.IDFromKey(ConvertStreamKey(rec.Change.Keys))
	if err != nil {
		h.logger.WarnContext(ctx, "skipping stream record with foreign key",
			"eventID", rec.EventID,
			"error", err,
		)
		return false
	}

	h.invalidator.Invalidate(id)
	return true
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// ConvertStreamKey converts a DynamoDB stream key to a dynamo.PK.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) dynamo.PK {
	result := make(dynamo.PK)
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}

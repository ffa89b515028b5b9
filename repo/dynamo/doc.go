// Package dynamo implements repo.Transport on a single DynamoDB table.
//
// # Table Layout
//
// Every record is one item:
//
//	pk          S  "<actor>#<collection>"   (partition key)
//	sk          S  "<record key>"           (sort key)
//	wire        B  canonical record bytes
//	commit      S  current commit ref
//	created_at  S  RFC 3339
//	updated_at  S  RFC 3339
//
// Listing a collection is a single-partition Query in descending sort key
// order. Time-ordered record keys therefore list newest first.
//
// # Compare-and-Swap
//
// Creates are conditioned on attribute_not_exists(pk). Updates and deletes
// are conditioned on the stored commit equalling the caller's swap value and
// ask DynamoDB to return the old item on failure, so a conflict reports the
// current commit without a second read.
//
// # Streams
//
// [CreateTable] enables a NEW_AND_OLD_IMAGES stream; the stream package turns
// its change records into projection invalidations.
package dynamo

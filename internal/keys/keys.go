// Package keys provides partition key generation shared by the persistent
// record stores.
package keys

import (
	"fmt"
	"strings"

	"github.com/jacentio/lanyards/record"
)

// Separator joins the parts of a partition key. Actor identities and
// collection names never contain it.
const Separator = "#"

// Partition computes the partition key holding every record of one actor's
// collection.
func Partition(actor record.ActorIdentity, collection record.CollectionName) string {
	return string(actor) + Separator + string(collection)
}

// ParsePartition splits a partition key produced by Partition.
func ParsePartition(pk string) (record.ActorIdentity, record.CollectionName, error) {
	actor, collection, ok := strings.Cut(pk, Separator)
	if !ok || actor == "" || collection == "" {
		return "", "", fmt.Errorf("%w: malformed partition key %q", record.ErrInvalidID, pk)
	}
	return record.ActorIdentity(actor), record.CollectionName(collection), nil
}

// RecordID rebuilds a record ID from a partition key and sort key.
func RecordID(pk, sk string) (record.ID, error) {
	actor, collection, err := ParsePartition(pk)
	if err != nil {
		return record.ID{}, err
	}
	id := record.NewID(actor, collection, record.RecordKey(sk))
	if err := id.Validate(); err != nil {
		return record.ID{}, err
	}
	return id, nil
}

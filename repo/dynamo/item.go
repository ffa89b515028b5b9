package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lanyards/internal/keys"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

// Attribute names of a record item.
const (
	AttrPK        = "pk"
	AttrSK        = "sk"
	AttrWire      = "wire"
	AttrCommit    = "commit"
	AttrCreatedAt = "created_at"
	AttrUpdatedAt = "updated_at"
)

type item struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	Wire      []byte `dynamodbav:"wire"`
	Commit    string `dynamodbav:"commit"`
	CreatedAt string `dynamodbav:"created_at,omitempty"`
	UpdatedAt string `dynamodbav:"updated_at,omitempty"`
}

// PK is a DynamoDB primary key.
type PK = map[string]types.AttributeValue

func keyOf(id record.ID) PK {
	return PK{
		AttrPK: &types.AttributeValueMemberS{Value: keys.Partition(id.Actor, id.Collection)},
		AttrSK: &types.AttributeValueMemberS{Value: string(id.Key)},
	}
}

func unmarshalRecord(raw map[string]types.AttributeValue) (repo.StoredRecord, error) {
	var it item
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return repo.StoredRecord{}, &record.DecodeError{Reason: "malformed record item", Err: err}
	}
	id, err := keys.RecordID(it.PK, it.SK)
	if err != nil {
		return repo.StoredRecord{}, &record.DecodeError{Reason: "malformed record key", Err: err}
	}
	return repo.StoredRecord{ID: id, Wire: record.Wire(it.Wire), Commit: record.CommitRef(it.Commit)}, nil
}

// commitOf extracts the commit attribute from an item returned on a failed condition.
func commitOf(raw map[string]types.AttributeValue) (record.CommitRef, bool) {
	v, ok := raw[AttrCommit].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return record.CommitRef(v.Value), true
}

// IDFromKey rebuilds the record ID addressed by a primary key, such as the
// Keys of a stream record.
func IDFromKey(key PK) (record.ID, error) {
	pk, _ := key[AttrPK].(*types.AttributeValueMemberS)
	sk, _ := key[AttrSK].(*types.AttributeValueMemberS)
	if pk == nil || sk == nil {
		return record.ID{}, fmt.Errorf("%w: key needs string %s and %s", record.ErrInvalidID, AttrPK, AttrSK)
	}
	return keys.RecordID(pk.Value, sk.Value)
}

package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/lanyards/internal/keys"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

// API is the subset of the DynamoDB client the Store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store implements repo.Transport on DynamoDB.
type Store struct {
	client API
	config Config
	now    func() time.Time
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Table returns the name of the records table.
func (s *Store) Table() string {
	return s.config.Table
}

// CreateRecord implements repo.Transport.
func (s *Store) CreateRecord(ctx context.Context, req repo.CreateRequest) error {
	nowISO := s.now().UTC().Format(time.RFC3339)
	av, err := attributevalue.MarshalMap(item{
		PK:        keys.Partition(req.ID.Actor, req.ID.Collection),
		SK:        string(req.ID.Key),
		Wire:      req.Wire,
		Commit:    string(req.Commit),
		CreatedAt: nowISO,
		UpdatedAt: nowISO,
	})
	if err != nil {
		return fmt.Errorf("marshal record item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.Table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return repo.ErrAlreadyExists
		}
		return wrap("create", err)
	}
	return nil
}

// GetRecord implements repo.Transport.
func (s *Store) GetRecord(ctx context.Context, id record.ID) (repo.StoredRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            keyOf(id),
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return repo.StoredRecord{}, wrap("get", err)
	}
	if result.Item == nil {
		return repo.StoredRecord{}, repo.ErrNotFound
	}
	return unmarshalRecord(result.Item)
}

// PutRecord implements repo.Transport.
func (s *Store) PutRecord(ctx context.Context, req repo.PutRequest) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 keyOf(req.ID),
		UpdateExpression:    aws.String("SET #wire = :wire, #commit = :commit, #updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(pk) AND #commit = :swap"),
		ExpressionAttributeNames: map[string]string{
			"#wire":       AttrWire,
			"#commit":     AttrCommit,
			"#updated_at": AttrUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":wire":       &types.AttributeValueMemberB{Value: req.Wire},
			":commit":     &types.AttributeValueMemberS{Value: string(req.Commit)},
			":swap":       &types.AttributeValueMemberS{Value: string(req.Swap)},
			":updated_at": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if mapped := mapConditionError(err, req.ID); mapped != nil {
			return mapped
		}
		return wrap("put", err)
	}
	return nil
}

// DeleteRecord implements repo.Transport.
func (s *Store) DeleteRecord(ctx context.Context, req repo.DeleteRequest) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 keyOf(req.ID),
		ConditionExpression: aws.String("attribute_exists(pk) AND #commit = :swap"),
		ExpressionAttributeNames: map[string]string{
			"#commit": AttrCommit,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":swap": &types.AttributeValueMemberS{Value: string(req.Swap)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if mapped := mapConditionError(err, req.ID); mapped != nil {
			return mapped
		}
		return wrap("delete", err)
	}
	return nil
}

// ListRecords implements repo.Transport. The cursor is the sort key of the
// last record returned.
func (s *Store) ListRecords(ctx context.Context, req repo.ListRequest) (repo.ListPage, error) {
	pk := keys.Partition(req.Actor, req.Collection)
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.config.Table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(s.config.ConsistentRead),
	}
	if req.Limit > 0 {
		input.Limit = aws.Int32(int32(req.Limit))
	}
	if req.Cursor != "" {
		input.ExclusiveStartKey = PK{
			AttrPK: &types.AttributeValueMemberS{Value: pk},
			AttrSK: &types.AttributeValueMemberS{Value: req.Cursor},
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return repo.ListPage{}, wrap("list", err)
	}

	page := repo.ListPage{Records: make([]repo.StoredRecord, 0, len(result.Items))}
	for _, raw := range result.Items {
		rec, err := unmarshalRecord(raw)
		if err != nil {
			return repo.ListPage{}, err
		}
		page.Records = append(page.Records, rec)
	}
	if sk, ok := result.LastEvaluatedKey[AttrSK].(*types.AttributeValueMemberS); ok {
		page.Cursor = sk.Value
	}
	return page, nil
}

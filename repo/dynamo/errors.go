package dynamo

import (
	"context"
	"errors"
	"net"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

// Error codes DynamoDB returns for requests that may succeed when retried.
var temporaryCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"ThrottlingException":                    true,
	"TransactionConflictException":           true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"LimitExceededException":                 true,
}

// mapConditionError maps a failed CAS condition to NotFound or Conflict using
// the old item DynamoDB returned with the failure. It returns nil when err is
// not a condition failure.
func mapConditionError(err error, id record.ID) error {
	var condErr *types.ConditionalCheckFailedException
	if !errors.As(err, &condErr) {
		return nil
	}
	current, ok := commitOf(condErr.Item)
	if !ok {
		return repo.ErrNotFound
	}
	return &repo.ConflictError{ID: id, Current: current}
}

// wrap classifies an SDK error as a transport failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &repo.TransportError{Op: "dynamodb " + op, Err: err, Temporary: isTemporary(err)}
}

func isTemporary(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return temporaryCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

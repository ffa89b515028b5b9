package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/lanyards/record"
)

// Revert writes prior's value back to the record under prior's schema
// revision, provided current.Commit is still the record's commit. It undoes
// an update without upgrading the record to the active schema.
func (c *Client) Revert(ctx context.Context, current, prior record.Record) (record.Record, error) {
	if current.ID != prior.ID {
		return record.Record{}, fmt.Errorf("lanyards: revert %s with a snapshot of %s", current.ID, prior.ID)
	}
	if current.Commit == "" {
		return record.Record{}, fmt.Errorf("%w: %s", ErrNoCommit, current.ID)
	}
	payload, err := c.schemas.ValidateVersion(prior.Collection, prior.Revision, prior.Value)
	if err != nil {
		observeRejected("revert", err)
		return record.Record{}, err
	}
	w, err := record.Encode(payload)
	if err != nil {
		return record.Record{}, err
	}
	commit := newCommit(prior.ID, w)

	ambiguous, err := c.call(ctx, "revert", func(ctx context.Context) error {
		return c.transport.PutRecord(ctx, PutRequest{ID: prior.ID, Wire: w, Commit: commit, Swap: current.Commit})
	})
	if err != nil {
		var ce *ConflictError
		if !ambiguous || !errors.As(err, &ce) || ce.Current != commit {
			return record.Record{}, err
		}
	}

	c.notify(prior.ID)
	return record.Record{ID: prior.ID, Revision: payload.Revision, Value: payload.Value, Commit: commit}, nil
}

// Recreate stores a deleted record again under its original key and schema
// revision. The recreated record gets a new commit; prior.Commit is ignored.
func (c *Client) Recreate(ctx context.Context, prior record.Record) (record.Record, error) {
	if err := prior.ID.Validate(); err != nil {
		return record.Record{}, err
	}
	payload, err := c.schemas.ValidateVersion(prior.Collection, prior.Revision, prior.Value)
	if err != nil {
		observeRejected("recreate", err)
		return record.Record{}, err
	}
	w, err := record.Encode(payload)
	if err != nil {
		return record.Record{}, err
	}
	commit := newCommit(prior.ID, w)

	ambiguous, err := c.call(ctx, "recreate", func(ctx context.Context) error {
		return c.transport.CreateRecord(ctx, CreateRequest{ID: prior.ID, Wire: w, Commit: commit})
	})
	if err != nil {
		if !ambiguous || !errors.Is(err, ErrAlreadyExists) || !c.holdsCommit(ctx, prior.ID, commit) {
			return record.Record{}, err
		}
	}

	c.notify(prior.ID)
	return record.Record{ID: prior.ID, Revision: payload.Revision, Value: payload.Value, Commit: commit}, nil
}

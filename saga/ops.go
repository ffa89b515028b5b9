package saga

import (
	"context"
	"fmt"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/schemas"
)

// SetProfile creates or replaces the actor's profile record.
func (o *Orchestrator) SetProfile(ctx context.Context, actor record.ActorIdentity, value map[string]any) (record.Record, error) {
	res, err := o.Execute(ctx, Unit{Put(record.NewID(actor, schemas.Profile, record.SelfKey), value)})
	if err != nil {
		return record.Record{}, err
	}
	return res.Records[0], nil
}

// ReplaceCollection makes values the complete contents of the actor's
// collection: every existing record is deleted and each value is created
// under a newly assigned key. Either the whole replacement applies or, failing that,
// the orchestrator undoes what it wrote.
func (o *Orchestrator) ReplaceCollection(ctx context.Context, actor record.ActorIdentity, collection record.CollectionName, values []map[string]any) (Result, error) {
	existing, err := o.repo.ListAll(ctx, actor, collection)
	if err != nil {
		return Result{}, fmt.Errorf("list %s: %w", collection, err)
	}

	u := make(Unit, 0, len(existing)+len(values))
	for _, rec := range existing {
		u = append(u, Delete(rec.ID, rec.Commit))
	}
	for _, value := range values {
		// The key is assigned during planning, following the collection's key kind.
		u = append(u, Create(record.NewID(actor, collection, ""), value))
	}
	return o.Execute(ctx, u)
}

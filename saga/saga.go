package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/jacentio/lanyards/lexicon"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

// Repository is the subset of *repo.Client the orchestrator uses.
type Repository interface {
	Schemas() *lexicon.Registry
	Get(ctx context.Context, id record.ID) (record.Record, error)
	Create(ctx context.Context, actor record.ActorIdentity, collection record.CollectionName, value map[string]any, opts ...repo.CreateOption) (record.Record, error)
	Update(ctx context.Context, rec record.Record, value map[string]any) (record.Record, error)
	Delete(ctx context.Context, rec record.Record) error
	Revert(ctx context.Context, current, prior record.Record) (record.Record, error)
	Recreate(ctx context.Context, prior record.Record) (record.Record, error)
	ListAll(ctx context.Context, actor record.ActorIdentity, collection record.CollectionName) ([]record.Record, error)
}

// Orchestrator executes units of work against a Repository.
type Orchestrator struct {
	repo          Repository
	logger        *slog.Logger
	snapshotLimit int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSnapshotConcurrency bounds the parallel reads of the snapshot step.
// Default: 8
func WithSnapshotConcurrency(n int) Option {
	return func(o *Orchestrator) { o.snapshotLimit = n }
}

// New creates an Orchestrator.
func New(r Repository, opts ...Option) *Orchestrator {
	o := &Orchestrator{repo: r, snapshotLimit: 8}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.snapshotLimit < 1 {
		o.snapshotLimit = 1
	}
	return o
}

// step is one planned write with its snapshot.
type step struct {
	op     Op
	before *record.Record // nil when the record does not exist
}

// applied is a write that reached the store.
type applied struct {
	step
	after record.Record // zero for deletes
}

// Execute applies u. See the package documentation for the algorithm.
func (o *Orchestrator) Execute(ctx context.Context, u Unit) (Result, error) {
	steps, err := o.plan(u)
	if err != nil {
		return Result{}, err
	}
	if err := o.validate(steps); err != nil {
		return Result{}, err
	}
	if err := o.snapshot(ctx, steps); err != nil {
		return Result{}, err
	}

	slices.SortFunc(steps, func(a, b step) int {
		switch {
		case a.op.ID.Less(b.op.ID):
			return -1
		case b.op.ID.Less(a.op.ID):
			return 1
		}
		return 0
	})

	var done []applied
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return Result{}, o.cancelled(ctx, done, nil, err)
		}

		after, err := o.write(ctx, s)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return Result{}, o.cancelled(ctx, done, &s.op.ID, err)
			}
			var unknown *record.ID
			if !repo.IsLogical(err) {
				// The write may have reached the store before the fault.
				unknown = &s.op.ID
			}
			return Result{}, o.compensate(ctx, done, unknown, err)
		}
		done = append(done, applied{step: s, after: after})
	}

	var res Result
	for _, a := range done {
		if a.op.Kind == KindDelete {
			res.Deleted = append(res.Deleted, a.op.ID)
			continue
		}
		res.Records = append(res.Records, a.after)
	}
	return res, nil
}

// plan checks the unit's shape and resolves keys for creates without one.
func (o *Orchestrator) plan(u Unit) ([]step, error) {
	steps := make([]step, 0, len(u))
	seen := make(map[record.ID]bool, len(u))
	for _, op := range u {
		switch op.Kind {
		case KindPut, KindUpdate, KindCreate:
			if op.Value == nil {
				return nil, fmt.Errorf("%w: %s of %s has no value", ErrInvalidOp, op.Kind, op.ID)
			}
		case KindDelete:
		default:
			return nil, fmt.Errorf("%w: kind %d", ErrInvalidOp, op.Kind)
		}

		if op.ID.Key == "" && op.Kind == KindCreate {
			desc, err := o.repo.Schemas().Resolve(op.ID.Collection)
			if err != nil {
				return nil, err
			}
			key, err := desc.KeyFor("")
			if err != nil {
				return nil, err
			}
			if key == "" {
				key = repo.NewKey()
			}
			op.ID.Key = key
		}
		if err := op.ID.Validate(); err != nil {
			return nil, err
		}
		if seen[op.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, op.ID)
		}
		seen[op.ID] = true
		steps = append(steps, step{op: op})
	}
	return steps, nil
}

// validate checks every payload against the active schema and reports all failures.
func (o *Orchestrator) validate(steps []step) error {
	var errs []error
	for _, s := range steps {
		if s.op.Kind == KindDelete {
			if _, err := o.repo.Schemas().Resolve(s.op.ID.Collection); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if _, err := o.repo.Schemas().Validate(s.op.ID.Collection, s.op.Value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.op.ID, err))
		}
	}
	return errors.Join(errs...)
}

// snapshot reads every target in parallel and checks each op's expectations.
func (o *Orchestrator) snapshot(ctx context.Context, steps []step) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.snapshotLimit)
	for i := range steps {
		g.Go(func() error {
			rec, err := o.repo.Get(gctx, steps[i].op.ID)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return nil
			case err != nil:
				return err
			}
			steps[i].before = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, s := range steps {
		op := s.op
		switch op.Kind {
		case KindCreate:
			if s.before != nil {
				return fmt.Errorf("%w: %s", repo.ErrAlreadyExists, op.ID)
			}
		case KindUpdate, KindDelete:
			if s.before == nil {
				return fmt.Errorf("%w: %s", repo.ErrNotFound, op.ID)
			}
			if op.Expect != "" && op.Expect != s.before.Commit {
				return &repo.ConflictError{ID: op.ID, Current: s.before.Commit}
			}
		}
	}
	return nil
}

func (o *Orchestrator) write(ctx context.Context, s step) (record.Record, error) {
	id := s.op.ID
	switch {
	case s.op.Kind == KindDelete:
		return record.Record{}, o.repo.Delete(ctx, *s.before)
	case s.before == nil:
		return o.repo.Create(ctx, id.Actor, id.Collection, s.op.Value, repo.WithKey(id.Key))
	default:
		return o.repo.Update(ctx, *s.before, s.op.Value)
	}
}

// compensate undoes done in reverse order after cause stopped the unit.
// unknown is the failed write when its outcome could not be observed; it is
// never undone and always reported.
func (o *Orchestrator) compensate(ctx context.Context, done []applied, unknown *record.ID, cause error) error {
	pf := &PartialFailure{Cause: cause}
	if unknown != nil {
		pf.Unknown = []record.ID{*unknown}
	}
	if len(done) == 0 {
		if unknown == nil {
			return cause
		}
		return pf
	}
	o.logger.InfoContext(ctx, "compensating unit of work",
		"writes", len(done),
		"cause", cause,
	)

	for i := len(done) - 1; i >= 0; i-- {
		a := done[i]
		var err error
		switch {
		case a.op.Kind == KindDelete:
			_, err = o.repo.Recreate(ctx, *a.before)
		case a.before == nil:
			err = o.repo.Delete(ctx, a.after)
		default:
			_, err = o.repo.Revert(ctx, a.after, *a.before)
		}

		if err != nil {
			o.logger.WarnContext(ctx, "compensating write failed",
				"record", a.op.ID.String(),
				"kind", a.op.Kind.String(),
				"error", err,
			)
			pf.Committed = append(pf.Committed, a.op.ID)
			pf.CompensationErrors = append(pf.CompensationErrors, fmt.Errorf("%s: %w", a.op.ID, err))
			continue
		}
		o.logger.DebugContext(ctx, "compensated write",
			"record", a.op.ID.String(),
			"kind", a.op.Kind.String(),
		)
		pf.RolledBack = append(pf.RolledBack, a.op.ID)
	}

	if len(pf.Committed) == 0 && len(pf.Unknown) == 0 {
		return cause
	}
	o.logger.ErrorContext(ctx, "unit of work left partially applied",
		"committed", len(pf.Committed),
		"rolled_back", len(pf.RolledBack),
		"unknown", len(pf.Unknown),
		"cause", cause,
	)
	return pf
}

// cancelled reports a unit stopped by its context. Nothing is rolled back.
func (o *Orchestrator) cancelled(ctx context.Context, done []applied, inFlight *record.ID, cause error) error {
	if len(done) == 0 && inFlight == nil {
		return cause
	}
	pf := &PartialFailure{Cause: cause}
	for _, a := range done {
		pf.Committed = append(pf.Committed, a.op.ID)
	}
	if inFlight != nil {
		pf.Unknown = []record.ID{*inFlight}
	}
	o.logger.WarnContext(ctx, "unit of work cancelled after partial writes",
		"committed", len(pf.Committed),
		"unknown", len(pf.Unknown),
	)
	return pf
}

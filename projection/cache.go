package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
	"github.com/jacentio/lanyards/schemas"
)

// ErrProfileNotFound is returned when the actor has no root profile record.
var ErrProfileNotFound = errors.New("lanyards: profile not found")

// Source is the read side of the repository a Cache builds from.
type Source interface {
	Get(ctx context.Context, id record.ID) (record.Record, error)
	ListAll(ctx context.Context, actor record.ActorIdentity, collection record.CollectionName) ([]record.Record, error)
}

// Cache serves profiles, rebuilding them from a Source on miss.
// It is safe for concurrent use.
type Cache struct {
	source Source
	config Config
	logger *slog.Logger
	now    func() time.Time

	slots  *xsync.MapOf[record.ActorIdentity, slot]
	builds singleflight.Group
}

// slot is the cache state of one actor. epoch advances on every
// invalidation so that a build which started earlier is not stored.
type slot struct {
	epoch   uint64
	profile *Profile
	expires time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithConfig sets the cache configuration.
func WithConfig(config Config) Option {
	return func(c *Cache) { c.config = config }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a Cache reading from source. If source can report its writes
// (as *repo.Client does), the cache subscribes to them.
func New(source Source, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		config: DefaultConfig(),
		now:    time.Now,
		slots:  xsync.NewMapOf[record.ActorIdentity, slot](),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config.validate()
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if o, ok := source.(interface{ Observe(func(record.ID)) }); ok {
		o.Observe(c.Invalidate)
	}
	return c
}

// GetProfile returns the actor's profile, from cache when possible. The
// returned Profile is shared and must not be modified.
func (c *Cache) GetProfile(ctx context.Context, actor record.ActorIdentity) (*Profile, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	s, _ := c.slots.Load(actor)
	if s.profile != nil && (s.expires.IsZero() || c.now().Before(s.expires)) {
		hits.Inc()
		return s.profile, nil
	}
	misses.Inc()

	// Concurrent misses within one epoch share a build. It runs detached from
	// the first caller's cancellation; every repository call still has its
	// own timeout.
	key := fmt.Sprintf("%s@%d", actor, s.epoch)
	ch := c.builds.DoChan(key, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), actor, s.epoch)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Profile), nil
	}
}

// Invalidate drops the cached profile that depends on id, if any.
func (c *Cache) Invalidate(id record.ID) {
	if !dependsOn(id) {
		return
	}
	c.slots.Compute(id.Actor, func(old slot, _ bool) (slot, bool) {
		return slot{epoch: old.epoch + 1}, false
	})
	invalidations.Inc()
	c.logger.Debug("profile invalidated",
		"actor", string(id.Actor),
		"record", id.String(),
	)
}

// Purge drops every cached profile.
func (c *Cache) Purge() {
	c.slots.Range(func(actor record.ActorIdentity, _ slot) bool {
		c.slots.Compute(actor, func(old slot, _ bool) (slot, bool) {
			return slot{epoch: old.epoch + 1}, false
		})
		return true
	})
}

// dependsOn reports whether a write to id can change a profile. Single-record
// sections match on their exact key; list sections match any key.
func dependsOn(id record.ID) bool {
	switch id.Collection {
	case schemas.Profile, schemas.Status:
		return id.Key == record.SelfKey
	case schemas.Affiliation, schemas.Link:
		return true
	}
	return false
}

// fill builds the profile and stores it unless the actor's epoch moved on.
func (c *Cache) fill(ctx context.Context, actor record.ActorIdentity, epoch uint64) (*Profile, error) {
	start := time.Now()
	p, err := c.build(ctx, actor)
	observeBuild(start, err)
	if err != nil {
		return nil, err
	}

	var expires time.Time
	if c.config.TTL > 0 {
		expires = c.now().Add(c.config.TTL)
	}
	c.slots.Compute(actor, func(old slot, _ bool) (slot, bool) {
		if old.epoch != epoch {
			// A source changed while building; serve this result once but
			// leave the slot empty.
			return old, false
		}
		return slot{epoch: epoch, profile: p, expires: expires}, false
	})
	return p, nil
}

func (c *Cache) build(ctx context.Context, actor record.ActorIdentity) (*Profile, error) {
	var (
		root         record.Record
		status       *record.Record
		affiliations []record.Record
		links        []record.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := c.source.Get(gctx, record.NewID(actor, schemas.Profile, record.SelfKey))
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, actor)
		}
		root = rec
		return err
	})
	g.Go(func() error {
		rec, err := c.source.Get(gctx, record.NewID(actor, schemas.Status, record.SelfKey))
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		status = &rec
		return nil
	})
	g.Go(func() error {
		var err error
		affiliations, err = c.source.ListAll(gctx, actor, schemas.Affiliation)
		return err
	})
	g.Go(func() error {
		var err error
		links, err = c.source.ListAll(gctx, actor, schemas.Link)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := &Profile{
		Actor:        actor,
		Affiliations: make([]Affiliation, 0, len(affiliations)),
		Links:        make([]Link, 0, len(links)),
		Commits:      make(map[record.ID]record.CommitRef, 2+len(affiliations)+len(links)),
		BuiltAt:      c.now(),
	}
	p.Commits[root.ID] = root.Commit
	if err := decodeSection(root, &p.Record); err != nil {
		return nil, err
	}
	p.Record.Revision = root.Revision

	if status != nil {
		p.Commits[status.ID] = status.Commit
		p.Status = &Status{}
		if err := decodeSection(*status, p.Status); err != nil {
			return nil, err
		}
	}
	for _, rec := range affiliations {
		p.Commits[rec.ID] = rec.Commit
		a := Affiliation{Key: rec.Key}
		if err := decodeSection(rec, &a); err != nil {
			return nil, err
		}
		p.Affiliations = append(p.Affiliations, a)
	}
	for _, rec := range links {
		p.Commits[rec.ID] = rec.Commit
		l := Link{Key: rec.Key}
		if err := decodeSection(rec, &l); err != nil {
			return nil, err
		}
		p.Links = append(p.Links, l)
	}
	return p, nil
}

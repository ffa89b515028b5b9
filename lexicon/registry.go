package lexicon

import (
	"fmt"
	"sort"

	"github.com/jacentio/lanyards/record"
)

// Registry holds every known schema revision, indexed by collection.
// It is built once at process start and never mutated afterwards, so it is
// safe for concurrent use.
type Registry struct {
	byCollection map[record.CollectionName][]Descriptor // ascending by revision
}

// NewRegistry creates a Registry from descriptors. The highest revision of each
// collection becomes its active revision for writes.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byCollection: make(map[record.CollectionName][]Descriptor)}
	for _, d := range descs {
		if err := d.check(); err != nil {
			return nil, err
		}
		for _, existing := range r.byCollection[d.Collection] {
			if existing.Revision == d.Revision {
				return nil, fmt.Errorf("%w: %s@%d", ErrDuplicateRevision, d.Collection, d.Revision)
			}
		}
		r.byCollection[d.Collection] = append(r.byCollection[d.Collection], d)
	}
	for _, revs := range r.byCollection {
		sort.Slice(revs, func(i, j int) bool { return revs[i].Revision < revs[j].Revision })
	}
	return r, nil
}

// Resolve returns the active revision of a collection's schema.
func (r *Registry) Resolve(collection record.CollectionName) (Descriptor, error) {
	revs := r.byCollection[collection]
	if len(revs) == 0 {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownSchema, collection)
	}
	return revs[len(revs)-1], nil
}

// ResolveVersion returns a specific revision, for reading records written
// under an older schema.
func (r *Registry) ResolveVersion(collection record.CollectionName, revision int) (Descriptor, error) {
	for _, d := range r.byCollection[collection] {
		if d.Revision == revision {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s@%d", ErrUnknownSchema, collection, revision)
}

// Validate checks a payload against the collection's active schema.
func (r *Registry) Validate(collection record.CollectionName, value map[string]any) (record.Payload, error) {
	d, err := r.Resolve(collection)
	if err != nil {
		return record.Payload{}, err
	}
	return d.Validate(value)
}

// ValidateVersion checks a payload against an explicit schema revision.
func (r *Registry) ValidateVersion(collection record.CollectionName, revision int, value map[string]any) (record.Payload, error) {
	d, err := r.ResolveVersion(collection, revision)
	if err != nil {
		return record.Payload{}, err
	}
	return d.Validate(value)
}

// Versions returns the registered revisions of a collection in ascending order.
func (r *Registry) Versions(collection record.CollectionName) []int {
	revs := r.byCollection[collection]
	out := make([]int, len(revs))
	for i, d := range revs {
		out[i] = d.Revision
	}
	return out
}

// Collections returns every registered collection, sorted.
func (r *Registry) Collections() []record.CollectionName {
	out := make([]record.CollectionName, 0, len(r.byCollection))
	for c := range r.byCollection {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package record

import (
	"fmt"
	"strings"
)

// ActorIdentity is the stable identifier of a record owner (e.g. a DID).
type ActorIdentity string

// CollectionName is a namespaced record type (e.g. "app.lanyards.actor.profile").
type CollectionName string

// RecordKey identifies one record within an actor's collection.
type RecordKey string

// CommitRef is an opaque compare-and-swap token for a record's last known state.
type CommitRef string

// SelfKey is the record key used by collections that hold exactly one record per actor.
const SelfKey RecordKey = "self"

// ID addresses a single record.
type ID struct {
	Actor      ActorIdentity
	Collection CollectionName
	Key        RecordKey
}

// NewID builds an ID from its parts.
func NewID(actor ActorIdentity, collection CollectionName, key RecordKey) ID {
	return ID{Actor: actor, Collection: collection, Key: key}
}

// String renders the ID as an at:// URI.
func (id ID) String() string {
	return fmt.Sprintf("at://%s/%s/%s", id.Actor, id.Collection, id.Key)
}

// Less orders IDs by collection, then key, then actor.
func (id ID) Less(other ID) bool {
	if id.Collection != other.Collection {
		return id.Collection < other.Collection
	}
	if id.Key != other.Key {
		return id.Key < other.Key
	}
	return id.Actor < other.Actor
}

// Validate reports whether every part of the ID is well formed.
func (id ID) Validate() error {
	if err := id.Actor.Validate(); err != nil {
		return err
	}
	if err := id.Collection.Validate(); err != nil {
		return err
	}
	return id.Key.Validate()
}

// ParseID parses an at:// URI produced by ID.String.
func ParseID(uri string) (ID, error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return ID{}, fmt.Errorf("%w: missing at:// scheme in %q", ErrInvalidID, uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return ID{}, fmt.Errorf("%w: expected actor/collection/key in %q", ErrInvalidID, uri)
	}
	id := NewID(ActorIdentity(parts[0]), CollectionName(parts[1]), RecordKey(parts[2]))
	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Validate reports whether the actor identity is usable.
func (a ActorIdentity) Validate() error {
	if a == "" {
		return fmt.Errorf("%w: empty actor", ErrInvalidID)
	}
	if strings.ContainsAny(string(a), "/ \t\n#") {
		return fmt.Errorf("%w: actor %q contains reserved characters", ErrInvalidID, a)
	}
	return nil
}

// Validate reports whether the collection is a well-formed NSID.
func (c CollectionName) Validate() error {
	if len(c) == 0 || len(c) > 317 {
		return fmt.Errorf("%w: collection %q has invalid length", ErrInvalidID, c)
	}
	segments := strings.Split(string(c), ".")
	if len(segments) < 3 {
		return fmt.Errorf("%w: collection %q needs at least three segments", ErrInvalidID, c)
	}
	for _, seg := range segments {
		if !validSegment(seg) {
			return fmt.Errorf("%w: collection %q has invalid segment %q", ErrInvalidID, c, seg)
		}
	}
	return nil
}

// Authority returns the collection's namespace without its final name segment.
func (c CollectionName) Authority() string {
	i := strings.LastIndexByte(string(c), '.')
	if i < 0 {
		return ""
	}
	return string(c[:i])
}

// Validate reports whether the key is a legal record key.
func (k RecordKey) Validate() error {
	if len(k) == 0 || len(k) > 512 {
		return fmt.Errorf("%w: record key %q has invalid length", ErrInvalidID, k)
	}
	if k == "." || k == ".." {
		return fmt.Errorf("%w: record key %q is reserved", ErrInvalidID, k)
	}
	for _, r := range k {
		if !isKeyRune(r) {
			return fmt.Errorf("%w: record key %q contains %q", ErrInvalidID, k, r)
		}
	}
	return nil
}

func validSegment(seg string) bool {
	if seg == "" || len(seg) > 63 {
		return false
	}
	for i, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == ':', r == '~', r == '-':
		return true
	}
	return false
}

// Payload is a record value that has passed schema validation, tagged with
// the collection and schema revision it satisfies.
type Payload struct {
	Collection CollectionName
	Revision   int
	Value      map[string]any
}

// Record is a stored record as observed by this process.
type Record struct {
	ID

	// Revision is the schema revision the value was written under.
	Revision int

	// Value is the validated payload.
	Value map[string]any

	// Commit is the CAS token from the read or write that produced this Record.
	Commit CommitRef
}

// Payload returns the record's value as a validated payload.
func (r Record) Payload() Payload {
	return Payload{Collection: r.Collection, Revision: r.Revision, Value: r.Value}
}

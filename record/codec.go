package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Header member names carried by every wire form.
const (
	TypeField     = "$type"
	RevisionField = "$rev"
)

// Domain prefixes for content hashing. The version suffix allows future algorithm changes.
const (
	DomainRecord = "lanyards/record/v1"
	DomainCommit = "lanyards/commit/v1"
)

// Wire is the canonical serialized form of a record as held by the store.
type Wire []byte

// Schema is the part of a schema descriptor the codec needs to decode a record.
type Schema interface {
	// SchemaID returns the collection and revision the schema describes.
	SchemaID() (CollectionName, int)

	// Conform validates a decoded value and returns its normalized form.
	Conform(value map[string]any) (map[string]any, error)
}

// Encode renders a validated payload as canonical JSON.
func Encode(p Payload) (Wire, error) {
	if p.Collection == "" {
		return nil, fmt.Errorf("%w: payload has no collection", ErrNotCanonical)
	}
	doc := make(map[string]any, len(p.Value)+2)
	for k, v := range p.Value {
		if k == TypeField || k == RevisionField {
			return nil, fmt.Errorf("%w: reserved member %q in payload", ErrNotCanonical, k)
		}
		doc[k] = v
	}
	doc[TypeField] = string(p.Collection)
	doc[RevisionField] = int64(p.Revision)

	data, err := MarshalCanonical(doc)
	if err != nil {
		return nil, err
	}
	return Wire(data), nil
}

// PeekHeader returns the collection and schema revision recorded in a wire form
// so a reader can resolve the matching schema before decoding.
func PeekHeader(w Wire) (CollectionName, int, error) {
	doc, err := parseWire(w)
	if err != nil {
		return "", 0, err
	}
	return readHeader(doc)
}

// Decode parses a wire form and validates it against s. It never returns a
// partially decoded value: any failure yields a *DecodeError and a zero Payload.
func Decode(w Wire, s Schema) (Payload, error) {
	collection, revision := s.SchemaID()

	doc, err := parseWire(w)
	if err != nil {
		return Payload{}, withSchema(err, collection, revision)
	}
	gotCollection, gotRevision, err := readHeader(doc)
	if err != nil {
		return Payload{}, withSchema(err, collection, revision)
	}
	if gotCollection != collection || gotRevision != revision {
		return Payload{}, &DecodeError{
			Collection: collection,
			Revision:   revision,
			Reason:     fmt.Sprintf("wire header is %s@%d", gotCollection, gotRevision),
		}
	}

	delete(doc, TypeField)
	delete(doc, RevisionField)

	value, err := s.Conform(doc)
	if err != nil {
		return Payload{}, &DecodeError{
			Collection: collection,
			Revision:   revision,
			Reason:     "stored value does not satisfy schema",
			Err:        err,
		}
	}
	return Payload{Collection: collection, Revision: revision, Value: value}, nil
}

// CID returns the content hash of a wire form.
func CID(w Wire) string {
	return hashWithDomain(DomainRecord, w)
}

// NewCommitRef derives a commit token for a write of w to id. The nonce makes
// every write distinct even when the same content is written twice.
func NewCommitRef(id ID, w Wire, nonce string) CommitRef {
	doc := map[string]any{
		"actor":      string(id.Actor),
		"collection": string(id.Collection),
		"key":        string(id.Key),
		"cid":        CID(w),
		"nonce":      nonce,
	}
	data, err := MarshalCanonical(doc)
	if err != nil {
		// Unreachable: every member is a string.
		panic(err)
	}
	return CommitRef(hashWithDomain(DomainCommit, data))
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func parseWire(w Wire) (map[string]any, error) {
	if len(w) == 0 {
		return nil, &DecodeError{Reason: "empty wire form"}
	}
	dec := json.NewDecoder(bytes.NewReader(w))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Reason: "trailing data after record"}
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &DecodeError{Reason: fmt.Sprintf("record is %T, not an object", raw)}
	}
	value, err := fromJSON(obj)
	if err != nil {
		return nil, &DecodeError{Reason: "unrepresentable value", Err: err}
	}
	return value.(map[string]any), nil
}

func readHeader(doc map[string]any) (CollectionName, int, error) {
	t, ok := doc[TypeField].(string)
	if !ok || t == "" {
		return "", 0, &DecodeError{Reason: "missing " + TypeField}
	}
	rev, ok := doc[RevisionField].(int64)
	if !ok || rev < 1 {
		return "", 0, &DecodeError{Reason: "missing or invalid " + RevisionField}
	}
	return CollectionName(t), int(rev), nil
}

// fromJSON converts decoder output into codec values, rejecting floats and nulls.
func fromJSON(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: null", ErrNotCanonical)
	case string, bool:
		return val, nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %s", ErrNotCanonical, val)
		}
		return n, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			c, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			c, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrNotCanonical, v)
	}
}

func withSchema(err error, collection CollectionName, revision int) error {
	var de *DecodeError
	if errors.As(err, &de) && de.Collection == "" {
		de.Collection = collection
		de.Revision = revision
	}
	return err
}

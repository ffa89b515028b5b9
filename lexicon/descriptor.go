package lexicon

import (
	"fmt"

	"github.com/jacentio/lanyards/record"
)

// Field types understood by the validator.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// String formats understood by the validator.
const (
	FormatURI        = "uri"
	FormatDatetime   = "datetime"
	FormatDID        = "did"
	FormatHandle     = "handle"
	FormatLanguage   = "language"
	FormatNSID       = "nsid"
	FormatRecordKey  = "record-key"
	FormatIdentifier = "at-identifier"
)

// Record key kinds.
const (
	// KeyTID collections hold many records under time-ordered keys.
	KeyTID = "tid"
	// KeySelf collections hold exactly one record per actor, under record.SelfKey.
	KeySelf = "literal:self"
	// KeyAny collections accept any caller-chosen key.
	KeyAny = "any"
)

// Descriptor is one revision of a collection's schema.
type Descriptor struct {
	// Collection is the NSID the schema describes.
	Collection record.CollectionName `json:"id" yaml:"id"`

	// Revision numbers schema versions of one collection, starting at 1.
	Revision int `json:"revision" yaml:"revision"`

	// Key is the record key kind (KeyTID, KeySelf or KeyAny).
	Key string `json:"key" yaml:"key"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Record is the object schema of the record value.
	Record *Field `json:"record" yaml:"record"`
}

// Field is a structural constraint on one value.
type Field struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Object constraints.
	Required   []string          `json:"required,omitempty" yaml:"required,omitempty"`
	Properties map[string]*Field `json:"properties,omitempty" yaml:"properties,omitempty"`
	Open       bool              `json:"open,omitempty" yaml:"open,omitempty"`

	// Array constraints. MinLength and MaxLength count elements for arrays and
	// UTF-8 bytes for strings.
	Items     *Field `json:"items,omitempty" yaml:"items,omitempty"`
	MinLength *int   `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`

	// String constraints.
	MaxGraphemes *int     `json:"maxGraphemes,omitempty" yaml:"maxGraphemes,omitempty"`
	Format       string   `json:"format,omitempty" yaml:"format,omitempty"`
	Enum         []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Const        string   `json:"const,omitempty" yaml:"const,omitempty"`

	// Integer constraints.
	Minimum *int64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum *int64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
}

// SchemaID implements record.Schema.
func (d Descriptor) SchemaID() (record.CollectionName, int) {
	return d.Collection, d.Revision
}

// Conform implements record.Schema. It validates value and returns the
// normalized copy, leaving value untouched.
func (d Descriptor) Conform(value map[string]any) (map[string]any, error) {
	v := &validator{}
	out := v.object(d.Record, value, "")
	if len(v.violations) > 0 {
		return nil, &ValidationError{Collection: d.Collection, Revision: d.Revision, Violations: v.violations}
	}
	return out, nil
}

// Validate checks value against the descriptor and returns the validated payload.
func (d Descriptor) Validate(value map[string]any) (record.Payload, error) {
	out, err := d.Conform(value)
	if err != nil {
		return record.Payload{}, err
	}
	return record.Payload{Collection: d.Collection, Revision: d.Revision, Value: out}, nil
}

// KeyFor returns the record key a new record receives. An empty explicit key
// means the store assigns one, except for KeySelf collections.
func (d Descriptor) KeyFor(explicit record.RecordKey) (record.RecordKey, error) {
	switch d.Key {
	case KeySelf:
		if explicit != "" && explicit != record.SelfKey {
			return "", &ValidationError{
				Collection: d.Collection,
				Revision:   d.Revision,
				Violations: []Violation{{Path: "$key", Message: fmt.Sprintf("key must be %q", record.SelfKey)}},
			}
		}
		return record.SelfKey, nil
	case KeyAny:
		if explicit == "" {
			return "", &ValidationError{
				Collection: d.Collection,
				Revision:   d.Revision,
				Violations: []Violation{{Path: "$key", Message: "collection requires an explicit key"}},
			}
		}
	}
	if explicit != "" {
		if err := explicit.Validate(); err != nil {
			return "", err
		}
	}
	return explicit, nil
}

// check reports structural problems in the descriptor itself.
func (d Descriptor) check() error {
	if err := d.Collection.Validate(); err != nil {
		return err
	}
	if d.Revision < 1 {
		return fmt.Errorf("%w: %s revision %d must be positive", ErrInvalidDescriptor, d.Collection, d.Revision)
	}
	switch d.Key {
	case KeyTID, KeySelf, KeyAny:
	default:
		return fmt.Errorf("%w: %s@%d has unknown key kind %q", ErrInvalidDescriptor, d.Collection, d.Revision, d.Key)
	}
	if d.Record == nil || d.Record.Type != TypeObject {
		return fmt.Errorf("%w: %s@%d record must be an object", ErrInvalidDescriptor, d.Collection, d.Revision)
	}
	if err := d.Record.check(""); err != nil {
		return fmt.Errorf("%w: %s@%d %v", ErrInvalidDescriptor, d.Collection, d.Revision, err)
	}
	return nil
}

func (f *Field) check(path string) error {
	if f == nil {
		return fmt.Errorf("%s: missing field definition", displayPath(path))
	}
	switch f.Type {
	case TypeString:
		switch f.Format {
		case "", FormatURI, FormatDatetime, FormatDID, FormatHandle, FormatLanguage, FormatNSID, FormatRecordKey, FormatIdentifier:
		default:
			return fmt.Errorf("%s: unknown format %q", displayPath(path), f.Format)
		}
	case TypeInteger, TypeBoolean:
	case TypeArray:
		if err := f.Items.check(path + "[]"); err != nil {
			return err
		}
	case TypeObject:
		for _, name := range f.Required {
			if _, ok := f.Properties[name]; !ok {
				return fmt.Errorf("%s: required property %q is not defined", displayPath(path), name)
			}
		}
		for name, prop := range f.Properties {
			if err := prop.check(joinPath(path, name)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%s: unknown type %q", displayPath(path), f.Type)
	}
	return nil
}

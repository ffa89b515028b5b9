package lexicon_test

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jacentio/lanyards/lexicon"
)

const cueSource = `
#Name: {type: "string", maxGraphemes: 64}

lexicon: {
	id:       "app.test.card"
	revision: 1
	key:      "tid"
	record: {
		type: "object"
		required: ["name"]
		properties: {
			name: #Name
			rank: {type: "integer", minimum: 1}
		}
	}
}
`

const yamlSource = `
lexicons:
  - id: app.test.badge
    revision: 1
    key: literal:self
    record:
      type: object
      properties:
        label: {type: string}
  - id: app.test.badge
    revision: 2
    key: literal:self
    record:
      type: object
      required: [label]
      properties:
        label: {type: string}
`

func TestLoadCUE(t *testing.T) {
	descs, err := lexicon.LoadCUE("card.cue", []byte(cueSource))
	if err != nil {
		t.Fatalf("LoadCUE: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descs))
	}

	d := descs[0]
	if d.Collection != "app.test.card" || d.Revision != 1 || d.Key != lexicon.KeyTID {
		t.Errorf("unexpected descriptor header %s@%d key=%s", d.Collection, d.Revision, d.Key)
	}
	name := d.Record.Properties["name"]
	if name == nil || name.MaxGraphemes == nil || *name.MaxGraphemes != 64 {
		t.Errorf("expected definition to be unified into name, got %+v", name)
	}
	if rank := d.Record.Properties["rank"]; rank == nil || rank.Minimum == nil || *rank.Minimum != 1 {
		t.Errorf("expected rank minimum 1, got %+v", rank)
	}
}

func TestLoadCUE_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `lexicon: {`},
		{"not concrete", `lexicon: {id: string, revision: 1, key: "tid", record: {type: "object"}}`},
		{"conflict", `lexicon: {id: "app.test.x", id: "app.test.y"}`},
		{"no lexicon", `other: 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := lexicon.LoadCUE("bad.cue", []byte(tt.src)); !errors.Is(err, lexicon.ErrInvalidDescriptor) {
				t.Errorf("expected ErrInvalidDescriptor, got %v", err)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	descs, err := lexicon.LoadYAML("badge.yaml", []byte(yamlSource))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
	if descs[1].Revision != 2 || descs[1].Key != lexicon.KeySelf {
		t.Errorf("unexpected second descriptor %+v", descs[1])
	}

	_, err = lexicon.LoadYAML("typo.yaml", []byte("lexicon:\n  id: app.test.x\n  revison: 1\n"))
	if !errors.Is(err, lexicon.ErrInvalidDescriptor) {
		t.Errorf("expected unknown key to be rejected, got %v", err)
	}
}

func TestNewRegistryFS(t *testing.T) {
	fsys := fstest.MapFS{
		"cards/card.cue":   {Data: []byte(cueSource)},
		"badges/badge.yml": {Data: []byte(yamlSource)},
		"README.md":        {Data: []byte("ignored")},
	}

	reg, err := lexicon.NewRegistryFS(fsys)
	if err != nil {
		t.Fatalf("NewRegistryFS: %v", err)
	}
	if got := reg.Collections(); len(got) != 2 {
		t.Fatalf("expected 2 collections, got %v", got)
	}

	if _, err := reg.Validate("app.test.badge", map[string]any{}); !errors.Is(err, lexicon.ErrValidation) {
		t.Errorf("revision 2 requires label, got %v", err)
	}
	if _, err := reg.ValidateVersion("app.test.badge", 1, map[string]any{}); err != nil {
		t.Errorf("revision 1 accepts an empty badge, got %v", err)
	}
	if _, err := reg.Validate("app.test.card", map[string]any{"name": "ace", "rank": 0}); !errors.Is(err, lexicon.ErrValidation) {
		t.Errorf("expected rank minimum to apply, got %v", err)
	}
}

func TestNewRegistryFS_Duplicate(t *testing.T) {
	fsys := fstest.MapFS{
		"a.cue": {Data: []byte(cueSource)},
		"b.cue": {Data: []byte(cueSource)},
	}
	if _, err := lexicon.NewRegistryFS(fsys); !errors.Is(err, lexicon.ErrDuplicateRevision) {
		t.Errorf("expected ErrDuplicateRevision, got %v", err)
	}
}

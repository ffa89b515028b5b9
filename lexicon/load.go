package lexicon

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// sourceDoc is the shape of a schema source file: a single `lexicon` or a
// list under `lexicons`.
type sourceDoc struct {
	Lexicon  *Descriptor  `json:"lexicon,omitempty" yaml:"lexicon,omitempty"`
	Lexicons []Descriptor `json:"lexicons,omitempty" yaml:"lexicons,omitempty"`
}

func (d sourceDoc) descriptors() []Descriptor {
	out := append([]Descriptor(nil), d.Lexicons...)
	if d.Lexicon != nil {
		out = append(out, *d.Lexicon)
	}
	return out
}

// LoadCUE compiles a CUE schema source. Definitions (#Name) may be used to
// share field shapes; the exported `lexicon`/`lexicons` values must be concrete.
func LoadCUE(filename string, src []byte) ([]Descriptor, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidDescriptor, filename, formatCUEError(err))
	}

	var doc sourceDoc
	for _, name := range []string{"lexicon", "lexicons"} {
		field := v.LookupPath(cue.ParsePath(name))
		if !field.Exists() {
			continue
		}
		if err := field.Validate(cue.Concrete(true)); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidDescriptor, filename, formatCUEError(err))
		}
		var target any = &doc.Lexicons
		if name == "lexicon" {
			doc.Lexicon = &Descriptor{}
			target = doc.Lexicon
		}
		if err := field.Decode(target); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidDescriptor, filename, formatCUEError(err))
		}
	}

	descs := doc.descriptors()
	if len(descs) == 0 {
		return nil, fmt.Errorf("%w: %s declares no lexicon", ErrInvalidDescriptor, filename)
	}
	return descs, nil
}

// LoadYAML parses a YAML (or JSON) schema source. Unknown keys are rejected.
func LoadYAML(filename string, src []byte) ([]Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var doc sourceDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, filename, err)
	}
	descs := doc.descriptors()
	if len(descs) == 0 {
		return nil, fmt.Errorf("%w: %s declares no lexicon", ErrInvalidDescriptor, filename)
	}
	return descs, nil
}

// LoadFS loads every .cue, .yaml, .yml and .json file under fsys in lexical
// path order.
func LoadFS(fsys fs.FS) ([]Descriptor, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch path.Ext(p) {
		case ".cue", ".yaml", ".yml", ".json":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan schema sources: %w", err)
	}
	sort.Strings(files)

	var all []Descriptor
	for _, p := range files {
		src, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		var descs []Descriptor
		if path.Ext(p) == ".cue" {
			descs, err = LoadCUE(p, src)
		} else {
			descs, err = LoadYAML(p, src)
		}
		if err != nil {
			return nil, err
		}
		all = append(all, descs...)
	}
	return all, nil
}

// NewRegistryFS loads every schema source under fsys into a Registry.
func NewRegistryFS(fsys fs.FS) (*Registry, error) {
	descs, err := LoadFS(fsys)
	if err != nil {
		return nil, err
	}
	return NewRegistry(descs...)
}

func formatCUEError(err error) string {
	return cueerrors.Details(err, nil)
}

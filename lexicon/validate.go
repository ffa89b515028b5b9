package lexicon

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/jacentio/lanyards/record"
)

// validator walks a value against a field tree, collecting every violation
// and building the normalized copy as it goes.
type validator struct {
	violations []Violation
}

func (v *validator) fail(path, format string, args ...any) {
	v.violations = append(v.violations, Violation{Path: displayPath(path), Message: fmt.Sprintf(format, args...)})
}

func (v *validator) value(f *Field, raw any, path string) any {
	switch f.Type {
	case TypeString:
		return v.string(f, raw, path)
	case TypeInteger:
		return v.integer(f, raw, path)
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			v.fail(path, "expected boolean, got %s", typeName(raw))
			return nil
		}
		return b
	case TypeArray:
		return v.array(f, raw, path)
	case TypeObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			v.fail(path, "expected object, got %s", typeName(raw))
			return nil
		}
		return v.object(f, obj, path)
	}
	v.fail(path, "unsupported schema type %q", f.Type)
	return nil
}

func (v *validator) object(f *Field, obj map[string]any, path string) map[string]any {
	out := make(map[string]any, len(obj))
	for _, name := range f.Required {
		if _, ok := obj[name]; !ok {
			v.fail(joinPath(path, name), "required field is missing")
		}
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := obj[name]
		prop, known := f.Properties[name]
		if !known {
			if !f.Open {
				v.fail(joinPath(path, name), "unknown field")
				continue
			}
			key := norm.NFC.String(name)
			if key != name {
				if _, clash := obj[key]; clash || f.Properties[key] != nil {
					v.fail(joinPath(path, name), "collides with %q after normalization", key)
					continue
				}
			}
			c, err := openValue(raw)
			if err != nil {
				v.fail(joinPath(path, name), "%v", err)
				continue
			}
			out[key] = c
			continue
		}
		if raw == nil {
			v.fail(joinPath(path, name), "null is not allowed")
			continue
		}
		if c := v.value(prop, raw, joinPath(path, name)); c != nil {
			out[name] = c
		}
	}
	return out
}

func (v *validator) array(f *Field, raw any, path string) []any {
	var elems []any
	switch val := raw.(type) {
	case []any:
		elems = val
	case []string:
		elems = make([]any, len(val))
		for i, s := range val {
			elems[i] = s
		}
	case []map[string]any:
		elems = make([]any, len(val))
		for i, m := range val {
			elems[i] = m
		}
	default:
		v.fail(path, "expected array, got %s", typeName(raw))
		return nil
	}

	if f.MinLength != nil && len(elems) < *f.MinLength {
		v.fail(path, "must have at least %d items, has %d", *f.MinLength, len(elems))
	}
	if f.MaxLength != nil && len(elems) > *f.MaxLength {
		v.fail(path, "must have at most %d items, has %d", *f.MaxLength, len(elems))
	}

	out := make([]any, 0, len(elems))
	for i, elem := range elems {
		p := path + "[" + strconv.Itoa(i) + "]"
		if elem == nil {
			v.fail(p, "null is not allowed")
			continue
		}
		if c := v.value(f.Items, elem, p); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (v *validator) string(f *Field, raw any, path string) any {
	s, ok := raw.(string)
	if !ok {
		v.fail(path, "expected string, got %s", typeName(raw))
		return nil
	}
	s = norm.NFC.String(s)

	if f.MinLength != nil && len(s) < *f.MinLength {
		v.fail(path, "must be at least %d bytes", *f.MinLength)
	}
	if f.MaxLength != nil && len(s) > *f.MaxLength {
		v.fail(path, "must be at most %d bytes", *f.MaxLength)
	}
	if f.MaxGraphemes != nil && utf8.RuneCountInString(s) > *f.MaxGraphemes {
		v.fail(path, "must be at most %d characters", *f.MaxGraphemes)
	}
	if f.Const != "" && s != f.Const {
		v.fail(path, "must equal %q", f.Const)
	}
	if len(f.Enum) > 0 && !contains(f.Enum, s) {
		v.fail(path, "must be one of %s", strings.Join(f.Enum, ", "))
	}
	if f.Format != "" {
		if err := checkFormat(f.Format, s); err != nil {
			v.fail(path, "invalid %s: %v", f.Format, err)
		}
	}
	return s
}

func (v *validator) integer(f *Field, raw any, path string) any {
	n, ok := toInt64(raw)
	if !ok {
		v.fail(path, "expected integer, got %s", typeName(raw))
		return nil
	}
	if f.Minimum != nil && n < *f.Minimum {
		v.fail(path, "must be >= %d", *f.Minimum)
	}
	if f.Maximum != nil && n > *f.Maximum {
		v.fail(path, "must be <= %d", *f.Maximum)
	}
	return n
}

// openValue normalizes a value under an open object, where no schema applies.
func openValue(raw any) (any, error) {
	switch val := raw.(type) {
	case nil:
		return nil, fmt.Errorf("null is not allowed")
	case string:
		return norm.NFC.String(val), nil
	case bool:
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			c, err := openValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			key := norm.NFC.String(k)
			if _, clash := val[key]; key != k && clash {
				return nil, fmt.Errorf("member %q collides with %q after normalization", k, key)
			}
			c, err := openValue(elem)
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	}
	if n, ok := toInt64(raw); ok {
		return n, nil
	}
	return nil, fmt.Errorf("unsupported value %s", typeName(raw))
}

func toInt64(raw any) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func checkFormat(format, s string) error {
	switch format {
	case FormatURI:
		u, err := url.Parse(s)
		if err != nil {
			return err
		}
		if u.Scheme == "" {
			return fmt.Errorf("missing scheme")
		}
		if u.Host == "" && u.Opaque == "" && u.Path == "" {
			return fmt.Errorf("missing authority or path")
		}
	case FormatDatetime:
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("not RFC 3339")
		}
	case FormatDID:
		return checkDID(s)
	case FormatHandle:
		return checkHandle(s)
	case FormatIdentifier:
		if strings.HasPrefix(s, "did:") {
			return checkDID(s)
		}
		return checkHandle(s)
	case FormatLanguage:
		if _, err := language.Parse(s); err != nil {
			return fmt.Errorf("not a BCP-47 tag")
		}
	case FormatNSID:
		return record.CollectionName(s).Validate()
	case FormatRecordKey:
		return record.RecordKey(s).Validate()
	}
	return nil
}

func checkDID(s string) error {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[2] == "" {
		return fmt.Errorf("expected did:<method>:<id>")
	}
	for _, r := range parts[1] {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("method must be lowercase letters")
		}
	}
	if parts[1] == "" {
		return fmt.Errorf("empty method")
	}
	return nil
}

func checkHandle(s string) error {
	if len(s) > 253 {
		return fmt.Errorf("too long")
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return fmt.Errorf("needs at least two labels")
	}
	for i, label := range labels {
		if label == "" || len(label) > 63 {
			return fmt.Errorf("label %q has invalid length", label)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("label %q starts or ends with a hyphen", label)
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return fmt.Errorf("label %q contains %q", label, r)
			}
		}
		if i == len(labels)-1 && label[0] >= '0' && label[0] <= '9' {
			return fmt.Errorf("top-level label starts with a digit")
		}
	}
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toInt64(v); ok {
		return "integer"
	}
	return fmt.Sprintf("%T", v)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

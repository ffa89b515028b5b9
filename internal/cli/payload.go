package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jacentio/lanyards/record"
)

// readPayload reads a JSON object from path, or from in when path is "-".
// Numbers stay json.Number so integers survive exactly.
func readPayload(path string, in io.Reader) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read payload", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value map[string]any
	if err := dec.Decode(&value); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse payload", err)
	}
	if value == nil {
		return nil, NewExitError(ExitCommandError, "payload must be a JSON object")
	}
	return value, nil
}

// recordView is the printable form of a record.
type recordView struct {
	URI      string         `json:"uri"`
	Revision int            `json:"revision"`
	Commit   string         `json:"commit"`
	Value    map[string]any `json:"value"`
}

func viewOf(rec record.Record) recordView {
	return recordView{URI: rec.ID.String(), Revision: rec.Revision, Commit: string(rec.Commit), Value: rec.Value}
}

func (r recordView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (revision %d)\ncommit: %s\n", r.URI, r.Revision, r.Commit)
	if data, err := record.MarshalCanonical(r.Value); err == nil {
		b.Write(data)
	}
	return b.String()
}

// listView prints one record per line.
type listView []recordView

func (l listView) String() string {
	lines := make([]string, len(l))
	for i, r := range l {
		lines[i] = fmt.Sprintf("%s\t%s", r.URI, r.Commit)
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

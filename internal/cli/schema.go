package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/schemas"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the registered schemas and validate payloads",
	}
	cmd.AddCommand(newSchemaListCommand(rootOpts))
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	return cmd
}

type schemaView struct {
	Collection string `json:"collection"`
	Revisions  []int  `json:"revisions"`
	Key        string `json:"key"`
}

type schemaListView []schemaView

func (l schemaListView) String() string {
	lines := make([]string, len(l))
	for i, s := range l {
		revs := make([]string, len(s.Revisions))
		for j, r := range s.Revisions {
			revs[j] = fmt.Sprint(r)
		}
		lines[i] = fmt.Sprintf("%s\trevisions %s\tkey %s", s.Collection, strings.Join(revs, ","), s.Key)
	}
	return strings.Join(lines, "\n")
}

func newSchemaListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered collections and their revisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			reg, err := schemas.Load()
			if err != nil {
				return fail(f, err)
			}

			var out schemaListView
			for _, c := range reg.Collections() {
				desc, err := reg.Resolve(c)
				if err != nil {
					return fail(f, err)
				}
				out = append(out, schemaView{Collection: string(c), Revisions: reg.Versions(c), Key: desc.Key})
			}
			return f.Success(out)
		},
	}
}

type validationView struct {
	Collection string         `json:"collection"`
	Revision   int            `json:"revision"`
	Value      map[string]any `json:"value"`
}

func (v validationView) String() string {
	data, _ := record.MarshalCanonical(v.Value)
	return fmt.Sprintf("valid against %s@%d\n%s", v.Collection, v.Revision, data)
}

func newSchemaValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var revision int

	cmd := &cobra.Command{
		Use:   "validate <collection> <payload.json|->",
		Short: "Validate a payload and print its normalized form",
		Long: `Validate a JSON payload against a collection's active schema, or an
explicit --revision, without touching any store. The normalized value
is printed in canonical form.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			reg, err := schemas.Load()
			if err != nil {
				return fail(f, err)
			}
			value, err := readPayload(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}

			collection := record.CollectionName(args[0])
			if revision == 0 {
				desc, err := reg.Resolve(collection)
				if err != nil {
					return fail(f, err)
				}
				revision = desc.Revision
			}
			payload, err := reg.ValidateVersion(collection, revision, value)
			if err != nil {
				return fail(f, err)
			}
			f.VerboseLog("validated %d field(s): %s", len(payload.Value), strings.Join(sortedKeys(payload.Value), ", "))
			return f.Success(validationView{Collection: string(payload.Collection), Revision: payload.Revision, Value: payload.Value})
		},
	}
	cmd.Flags().IntVar(&revision, "revision", 0, "schema revision to validate against (default: active)")
	return cmd
}

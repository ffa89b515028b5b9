package cli

import (
	"github.com/spf13/cobra"

	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
)

// NewRecordCommand creates the record command group.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Read and write individual records",
	}
	cmd.PersistentFlags().String("actor", "", "actor identity that owns the records (did:...)")

	cmd.AddCommand(newRecordCreateCommand(rootOpts))
	cmd.AddCommand(newRecordGetCommand(rootOpts))
	cmd.AddCommand(newRecordUpdateCommand(rootOpts))
	cmd.AddCommand(newRecordDeleteCommand(rootOpts))
	cmd.AddCommand(newRecordListCommand(rootOpts))
	return cmd
}

// withSession opens the backend, runs fn and closes the backend again.
func withSession(rootOpts *RootOptions, cmd *cobra.Command, fn func(*session, *OutputFormatter) error) error {
	s, err := rootOpts.open(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s, rootOpts.formatter(cmd))
}

func (o *RootOptions) actor() (record.ActorIdentity, error) {
	actor := record.ActorIdentity(o.v.GetString("actor"))
	if actor == "" {
		return "", NewExitError(ExitCommandError, "--actor is required")
	}
	return actor, nil
}

func newRecordCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "create <collection> <payload.json|->",
		Short: "Create a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := rootOpts.actor()
			if err != nil {
				return err
			}
			value, err := readPayload(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session, f *OutputFormatter) error {
				var opts []repo.CreateOption
				if key != "" {
					opts = append(opts, repo.WithKey(record.RecordKey(key)))
				}
				rec, err := s.client.Create(cmd.Context(), actor, record.CollectionName(args[0]), value, opts...)
				if err != nil {
					return fail(f, err)
				}
				return f.Success(viewOf(rec))
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "explicit record key (default: generated)")
	return cmd
}

func newRecordGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <at-uri>",
		Short: "Read a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session, f *OutputFormatter) error {
				id, err := record.ParseID(args[0])
				if err != nil {
					return fail(f, err)
				}
				rec, err := s.client.Get(cmd.Context(), id)
				if err != nil {
					return fail(f, err)
				}
				return f.Success(viewOf(rec))
			})
		},
	}
}

// current reads the record at uri. A non-empty expect replaces the commit
// read, so the write that follows is checked against it.
func current(cmd *cobra.Command, s *session, uri, expect string) (record.Record, error) {
	id, err := record.ParseID(uri)
	if err != nil {
		return record.Record{}, err
	}
	rec, err := s.client.Get(cmd.Context(), id)
	if err != nil {
		return record.Record{}, err
	}
	if expect != "" {
		rec.Commit = record.CommitRef(expect)
	}
	return rec, nil
}

func newRecordUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var expect string

	cmd := &cobra.Command{
		Use:   "update <at-uri> <payload.json|->",
		Short: "Replace a record's value",
		Long: `Replace a record's value. Without --expect the commit just read is
used; with it, the write fails with a conflict unless the record is
still at that commit.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := readPayload(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session, f *OutputFormatter) error {
				rec, err := current(cmd, s, args[0], expect)
				if err != nil {
					return fail(f, err)
				}
				updated, err := s.client.Update(cmd.Context(), rec, value)
				if err != nil {
					return fail(f, err)
				}
				return f.Success(viewOf(updated))
			})
		},
	}
	cmd.Flags().StringVar(&expect, "expect", "", "commit the record must still be at")
	return cmd
}

type deletedView struct {
	URI string `json:"uri"`
}

func (d deletedView) String() string { return "deleted " + d.URI }

func newRecordDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var expect string

	cmd := &cobra.Command{
		Use:   "delete <at-uri>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session, f *OutputFormatter) error {
				rec, err := current(cmd, s, args[0], expect)
				if err != nil {
					return fail(f, err)
				}
				if err := s.client.Delete(cmd.Context(), rec); err != nil {
					return fail(f, err)
				}
				return f.Success(deletedView{URI: rec.ID.String()})
			})
		},
	}
	cmd.Flags().StringVar(&expect, "expect", "", "commit the record must still be at")
	return cmd
}

func newRecordListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "List an actor's records in a collection, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := rootOpts.actor()
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session, f *OutputFormatter) error {
				out := listView{}
				for rec, err := range s.client.List(cmd.Context(), actor, record.CollectionName(args[0])) {
					if err != nil {
						return fail(f, err)
					}
					out = append(out, viewOf(rec))
					if limit > 0 && len(out) == limit {
						break
					}
				}
				return f.Success(out)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many records (default: all)")
	return cmd
}

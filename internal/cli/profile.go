package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/lanyards/projection"
)

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Build and edit actor profiles",
	}
	cmd.PersistentFlags().String("actor", "", "actor identity (did:...)")

	cmd.AddCommand(newProfileGetCommand(rootOpts))
	cmd.AddCommand(newProfileSetCommand(rootOpts))
	return cmd
}

// profileView prints a profile for humans; JSON output uses the Profile as is.
type profileView struct {
	*projection.Profile
}

func (p profileView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", p.Record.DisplayName, p.Actor)
	if p.Record.Pronouns != "" {
		fmt.Fprintf(&b, "pronouns: %s\n", p.Record.Pronouns)
	}
	if p.Record.Description != "" {
		fmt.Fprintf(&b, "%s\n", p.Record.Description)
	}
	if p.Status != nil {
		fmt.Fprintf(&b, "status: %s %s\n", p.Status.Kind, p.Status.Text)
	}
	for _, a := range p.Affiliations {
		fmt.Fprintf(&b, "affiliation: %s", a.Institution)
		if a.Role != "" {
			fmt.Fprintf(&b, " (%s)", a.Role)
		}
		b.WriteString("\n")
	}
	for _, l := range p.Links {
		fmt.Fprintf(&b, "link: %s\n", l.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newProfileGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Assemble an actor's profile from its records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := rootOpts.actor()
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session, f *OutputFormatter) error {
				cache := projection.New(s.client, projection.WithLogger(rootOpts.logger(cmd)))
				p, err := cache.GetProfile(cmd.Context(), actor)
				if err != nil {
					return fail(f, err)
				}
				return f.Success(profileView{p})
			})
		},
	}
}

func newProfileSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <payload.json|->",
		Short: "Create or replace an actor's root profile record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := rootOpts.actor()
			if err != nil {
				return err
			}
			value, err := readPayload(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(s *session, f *OutputFormatter) error {
				rec, err := s.orchestrator(rootOpts, cmd).SetProfile(cmd.Context(), actor, value)
				if err != nil {
					return fail(f, err)
				}
				return f.Success(viewOf(rec))
			})
		},
	}
}

// Package cli implements the lanyards operator command line.
package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the CLI reads; the flag
// --dynamo-table is read from LANYARDS_DYNAMO_TABLE.
const EnvPrefix = "lanyards"

// RootOptions holds global settings for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// v merges flags, environment and the optional config file.
	v *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lanyards CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "lanyards",
		Short: "lanyards - schema-validated personal records",
		Long: `Operate a lanyards record store: validate payloads against the
registered schemas, read and write records with compare-and-swap, and
build actor profiles.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("backend", "memory", "record store backend (memory|bolt|dynamo)")
	flags.String("bolt-path", "lanyards.db", "database file of the bolt backend")
	flags.String("dynamo-table", "lanyards_records", "table of the dynamo backend")
	flags.String("aws-profile", "", "shared AWS config profile of the dynamo backend")
	flags.Duration("timeout", 0, "per-call timeout (default 5s)")
	flags.Int("retries", 0, "attempts per call including the first (default 4)")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))

	return cmd
}

// init loads .env files, binds flags and reads the config file.
func (o *RootOptions) init(cmd *cobra.Command) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	o.v.SetEnvPrefix(EnvPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()
	if err := o.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if path := o.v.GetString("config"); path != "" {
		o.v.SetConfigFile(path)
		if err := o.v.ReadInConfig(); err != nil {
			return WrapExitError(ExitCommandError, "read config", err)
		}
	}

	o.Format = o.v.GetString("format")
	o.Verbose = o.v.GetBool("verbose")
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	return nil
}

// logger writes diagnostics to stderr, at debug level when verbose.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

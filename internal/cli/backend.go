package cli

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	"github.com/jacentio/lanyards/lexicon"
	"github.com/jacentio/lanyards/projection"
	"github.com/jacentio/lanyards/record"
	"github.com/jacentio/lanyards/repo"
	"github.com/jacentio/lanyards/repo/bolt"
	"github.com/jacentio/lanyards/repo/dynamo"
	"github.com/jacentio/lanyards/repo/memory"
	"github.com/jacentio/lanyards/saga"
	"github.com/jacentio/lanyards/schemas"
)

// Backends lists the supported --backend values.
var Backends = []string{"memory", "bolt", "dynamo"}

// session is an opened repository for one command invocation.
type session struct {
	client *repo.Client
	close  func() error
}

func (o *RootOptions) repoConfig() repo.Config {
	cfg := repo.DefaultConfig()
	if d := o.v.GetDuration("timeout"); d > 0 {
		cfg.CallTimeout = d
	}
	if n := o.v.GetInt("retries"); n > 0 {
		cfg.MaxAttempts = n
	}
	return cfg
}

// open connects to the configured backend.
func (o *RootOptions) open(cmd *cobra.Command) (*session, error) {
	reg, err := schemas.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load schemas", err)
	}
	logger := o.logger(cmd)

	var (
		transport repo.Transport
		closer    = func() error { return nil }
	)
	switch backend := o.v.GetString("backend"); backend {
	case "memory":
		transport = memory.New()
	case "bolt":
		s, err := bolt.Open(o.v.GetString("bolt-path"), bolt.WithLogger(logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "open bolt backend", err)
		}
		transport, closer = s, s.Close
	case "dynamo":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if p := o.v.GetString("aws-profile"); p != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(p))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context(), loadOpts...)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load AWS config", err)
		}
		cfg := dynamo.DefaultConfig()
		cfg.Table = o.v.GetString("dynamo-table")
		transport = dynamo.New(dynamodb.NewFromConfig(awsCfg), cfg)
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid backend %q: must be one of %v", backend, Backends))
	}

	client := repo.New(transport, reg, repo.WithConfig(o.repoConfig()), repo.WithLogger(logger))
	return &session{client: client, close: closer}, nil
}

func (s *session) orchestrator(o *RootOptions, cmd *cobra.Command) *saga.Orchestrator {
	return saga.New(s.client, saga.WithLogger(o.logger(cmd)))
}

// fail reports err through the formatter and returns the matching ExitError.
func fail(f *OutputFormatter, err error) error {
	code, exit := classify(err)

	var details any
	var ve *lexicon.ValidationError
	var ce *repo.ConflictError
	var pf *saga.PartialFailure
	switch {
	case errors.As(err, &ve):
		details = ve.Violations
	case errors.As(err, &ce):
		details = map[string]string{"current": string(ce.Current)}
	case errors.As(err, &pf):
		details = partialFailureView(pf)
	}

	_ = f.Error(code, err.Error(), details)
	e := WrapExitError(exit, code, err)
	e.Reported = true
	return e
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, saga.ErrPartialFailure):
		return "partial_failure", ExitFailure
	case errors.Is(err, projection.ErrProfileNotFound):
		return "profile_not_found", ExitFailure
	case errors.Is(err, repo.ErrNotFound):
		return "not_found", ExitFailure
	case errors.Is(err, repo.ErrAlreadyExists):
		return "already_exists", ExitFailure
	case errors.Is(err, repo.ErrConflict):
		return "conflict", ExitFailure
	case errors.Is(err, lexicon.ErrValidation):
		return "validation", ExitFailure
	case errors.Is(err, record.ErrDecode):
		return "decode", ExitFailure
	case errors.Is(err, lexicon.ErrUnknownSchema):
		return "unknown_schema", ExitCommandError
	case errors.Is(err, record.ErrInvalidID):
		return "invalid_id", ExitCommandError
	case errors.Is(err, repo.ErrTransport):
		return "transport", ExitCommandError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled", ExitCommandError
	}
	return "error", ExitCommandError
}

func partialFailureView(pf *saga.PartialFailure) map[string][]string {
	out := map[string][]string{}
	for name, ids := range map[string][]record.ID{
		"committed":   pf.Committed,
		"rolled_back": pf.RolledBack,
		"unknown":     pf.Unknown,
	} {
		for _, id := range ids {
			out[name] = append(out[name], id.String())
		}
	}
	return out
}

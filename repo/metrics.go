package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/jacentio/lanyards/lexicon"
	"github.com/jacentio/lanyards/record"
)

// Metrics are registered in the default VictoriaMetrics set; expose them with
// metrics.WritePrometheus.

func observeCall(op string, start time.Time, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`lanyards_repo_calls_total{op=%q,outcome=%q}`, op, outcome(err))).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`lanyards_repo_call_duration_seconds{op=%q}`, op)).UpdateDuration(start)
}

func observeRetry(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`lanyards_repo_retries_total{op=%q}`, op)).Inc()
}

func observeRejected(op string, err error) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`lanyards_repo_rejected_total{op=%q,reason=%q}`, op, outcome(err))).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, record.ErrDecode):
		return "decode"
	case errors.Is(err, lexicon.ErrValidation):
		return "validation"
	case errors.Is(err, lexicon.ErrUnknownSchema):
		return "unknown_schema"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "error"
}

package repo

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// call runs fn with a per-attempt timeout, retrying temporary transport
// failures and timeouts with exponential backoff. ambiguous reports whether
// an earlier attempt failed in a way that may still have reached the store.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) (ambiguous bool, err error) {
	start := time.Now()
	defer func() { observeCall(op, start, err) }()

	delay := c.config.BaseDelay
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		err = fn(callCtx)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err == nil || IsLogical(err) {
			return ambiguous, err
		}
		if ctx.Err() != nil {
			return ambiguous, ctx.Err()
		}
		if timedOut && !errors.Is(err, ErrTransport) {
			err = &TransportError{Op: op, Err: err, Temporary: true}
		}
		if !IsTemporary(err) {
			return ambiguous, err
		}

		ambiguous = true
		if attempt >= c.config.MaxAttempts {
			return ambiguous, err
		}

		c.logger.DebugContext(ctx, "retrying store call",
			"op", op,
			"attempt", attempt,
			"error", err,
		)
		observeRetry(op)

		if err := sleep(ctx, withJitter(delay)); err != nil {
			return ambiguous, err
		}
		delay = min(delay*2, c.config.MaxDelay)
	}
}

// withJitter spreads d by +-10%.
func withJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.9 + 0.2*rand.Float64()))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

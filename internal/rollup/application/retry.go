package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solarops/internal/vendorapi"
)

// Retry defaults: one initial attempt plus two retries, fixed backoff.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 2 * time.Second
)

// RetryPolicy bounds retries on upstream "busy" responses. Only
// vendorapi.ErrUpstreamBusy is retried; any other error is final
// immediately.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultRetryAttempts
	}
	return p.MaxAttempts
}

// do runs op, retrying busy responses with a fixed backoff. sleep is
// injected so tests do not wait wall-clock time.
func (p RetryPolicy) do(ctx context.Context, sleep func(context.Context, time.Duration) error, op func() error) error {
	attempts := p.attempts()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, vendorapi.ErrUpstreamBusy) {
			return err
		}
		if attempt < attempts {
			if sleepErr := sleep(ctx, p.Backoff); sleepErr != nil {
				return sleepErr
			}
		}
	}
	// Exhausted retries: the busy condition becomes an ordinary fetch error.
	return fmt.Errorf("rollup: upstream busy after %d attempts: %w", attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

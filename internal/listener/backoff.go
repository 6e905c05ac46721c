package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"

	DefaultReconnectDelay    = 10 * time.Second
	DefaultReconnectMaxDelay = 2 * time.Minute
)

// NewBackOff builds the reconnect policy. Exponential back-off never gives up;
// it grows from delay up to maxDelay.
func NewBackOff(policy string, delay, maxDelay time.Duration) (backoff.BackOff, error) {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if maxDelay < delay {
		maxDelay = delay
	}

	switch policy {
	case PolicyFixed:
		return backoff.NewConstantBackOff(delay), nil
	case PolicyExponential, "":
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = delay
		b.MaxInterval = maxDelay
		b.MaxElapsedTime = 0
		b.RandomizationFactor = 0.2
		b.Reset()
		return b, nil
	default:
		return nil, fmt.Errorf("unknown reconnect policy %q", policy)
	}
}

// sleep waits for delay, returning early with false when ctx ends or wake fires.
func sleep(ctx context.Context, delay time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return false
	case <-timer.C:
		return true
	}
}

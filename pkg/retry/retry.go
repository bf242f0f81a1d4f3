// Package retry runs operations under a failsafe-go retry policy
package retry

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// RetryPolicy defines how to retry an operation
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is a sensible default retry policy
var DefaultPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc defines if an error is transient and should be retried
type IsTransientFunc func(error) bool

// NewPolicy builds a retry policy that returns the last failure unwrapped
// once attempts are exhausted.
func NewPolicy[R any](policy RetryPolicy, isTransient IsTransientFunc) retrypolicy.RetryPolicy[R] {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := retrypolicy.NewBuilder[R]().
		HandleIf(func(_ R, err error) bool {
			return err != nil && isTransient(err)
		}).
		WithMaxAttempts(attempts).
		ReturnLastFailure()

	switch {
	case policy.InitialBackoff > 0 && policy.MaxBackoff > policy.InitialBackoff:
		b = b.WithBackoff(policy.InitialBackoff, policy.MaxBackoff)
	case policy.InitialBackoff > 0:
		b = b.WithDelay(policy.InitialBackoff)
	}
	return b.Build()
}

// Do executes a function with retries according to the policy
func Do(ctx context.Context, policy RetryPolicy, isTransient IsTransientFunc, fn func() error) error {
	return failsafe.With[any](NewPolicy[any](policy, isTransient)).WithContext(ctx).Run(fn)
}

// Get is Do for functions that return a value
func Get[R any](ctx context.Context, policy RetryPolicy, isTransient IsTransientFunc, fn func() (R, error)) (R, error) {
	return failsafe.With[R](NewPolicy[R](policy, isTransient)).WithContext(ctx).Get(fn)
}

package resilience

import (
	"context"
)

// Policy composes a circuit breaker with a retry loop for one upstream
// target. The retry loop runs inside a single breaker-visible attempt:
// the breaker counts the aggregate outcome of the whole sequence as one
// success or failure, and no retries happen at all while the breaker is
// open.
type Policy struct {
	breaker *Breaker
	retry   RetryConfig
}

// NewPolicy wires a breaker and retry config together.
func NewPolicy(breaker *Breaker, retry RetryConfig) *Policy {
	return &Policy{breaker: breaker, retry: retry}
}

// Breaker exposes the underlying breaker, mainly for inspection.
func (p *Policy) Breaker() *Breaker {
	return p.breaker
}

// Execute runs fn with retries under breaker protection.
func (p *Policy) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := p.breaker.Allow(); err != nil {
		return err
	}
	err := Retry(ctx, p.retry, fn)
	if err != nil {
		p.breaker.RecordFailure()
		return err
	}
	p.breaker.RecordSuccess()
	return nil
}

// ExecuteResult is Execute for a value-returning fn.
func ExecuteResult[T any](p *Policy, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		var ferr error
		out, ferr = fn(ctx)
		return ferr
	})
	return out, err
}

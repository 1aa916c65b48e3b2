package agent

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/resilience"
)

// Client wraps a provider with the resilience layer: every call runs
// under the breaker for target "ai:<provider>" with bounded retries.
type Client struct {
	provider Provider
	policy   *resilience.Policy
}

// NewClient wires a provider to the shared breaker registry.
func NewClient(provider Provider, breakers *resilience.BreakerRegistry, retry resilience.RetryConfig) *Client {
	breaker := breakers.Get("ai:" + provider.Provider())
	return &Client{
		provider: provider,
		policy:   resilience.NewPolicy(breaker, retry),
	}
}

// Provider returns the wrapped provider's name.
func (c *Client) Provider() string {
	return c.provider.Provider()
}

// Call runs one model call with breaker and retry protection.
func (c *Client) Call(ctx context.Context, request Request) (*Response, error) {
	resp, err := resilience.ExecuteResult(c.policy, ctx, func(ctx context.Context) (*Response, error) {
		return c.provider.Call(ctx, request)
	})
	if err != nil {
		log.Warn().Str("provider", c.provider.Provider()).Err(err).Msg("Model call failed")
		return nil, err
	}
	return resp, nil
}

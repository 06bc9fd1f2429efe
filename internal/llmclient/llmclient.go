// Package llmclient provides provider-specific implementations of the
// schemas.LLMClient interface. All clients share the same contract: retries
// with exponential backoff on transient errors, a hard stop on permanent
// ones, and a client-side rate limit on outgoing requests.
package llmclient

import (
	"errors"

	"golang.org/x/time/rate"
)

// ErrProviderRefused marks responses where the provider declined to answer
// (safety block, empty candidate set). Callers treat it as a refusal, not an
// infrastructure failure.
var ErrProviderRefused = errors.New("llm provider refused to generate")

// newLimiter builds a per-client request limiter. A non-positive rps value
// disables client-side throttling.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

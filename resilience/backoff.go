package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig parameterizes ComputeBackoff.
type BackoffConfig struct {
	Base       time.Duration
	Cap        time.Duration
	JitterFrac float64 // fraction of delay added as uniform jitter, e.g. 0.5
}

// DefaultBackoffConfig matches the provider gateway's defaults: 1s base,
// 30s cap, half-delay jitter. The retry count is not part of
// BackoffConfig; the gateway takes it from BudgetConfig.MaxRetries.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Base: time.Second, Cap: 30 * time.Second, JitterFrac: 0.5}
}

// ComputeBackoff returns the delay before the given retry attempt
// (0-indexed: attempt 0 is the first retry after the initial failure).
// delay = min(base * 2^attempt, cap) + uniform(0, delay*jitterFrac).
//
// Grounded on _examples/original_source/shared/providers/llm_gateway.py's
// retry loop: a deterministic-shape exponential curve with the jitter
// spread proportional to the computed delay, not a fixed wobble.
func ComputeBackoff(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.Base <= 0 {
		cfg = DefaultBackoffConfig()
	}
	exp := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(cfg.Base) * exp)
	if delay > cfg.Cap || delay <= 0 {
		delay = cfg.Cap
	}
	if cfg.JitterFrac <= 0 {
		return delay
	}
	var jitter float64
	if rng != nil {
		jitter = rng.Float64()
	} else {
		jitter = rand.Float64()
	}
	return delay + time.Duration(jitter*cfg.JitterFrac*float64(delay))
}

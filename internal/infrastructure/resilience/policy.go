package resilience

import "time"

// Config tunes how broker publishes, object store calls and search index
// writes are retried and when their breakers trip. Zero fields fall back to
// DefaultConfig.
type Config struct {
	// RetryMaxAttempts counts the first call. One disables retries.
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	// RetryMaxBackoff caps a single wait.
	RetryMaxBackoff time.Duration
	RetryMultiplier float64
	// RetryJitter spreads each backoff by up to this fraction, clamped to [0,1].
	RetryJitter float64

	// Breakers are keyed by operation name, e.g. "nats.publish" or
	// "minio.get", so a failing search index never blocks uploads.
	BreakerEnabled bool
	// BreakerMinRequests is the sample size before the failure ratio counts.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	// BreakerOpenTimeout is how long an open breaker rejects calls before
	// letting BreakerHalfOpenMaxCalls trial calls through.
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	// OnStateChange, when set, is told about every breaker transition.
	OnStateChange func(operation, state string)
}

// DefaultConfig keeps the total backoff of one call under two seconds.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,
		RetryJitter:         0.2,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      15 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	out.RetryMaxBackoff = max(out.RetryMaxBackoff, out.RetryInitialBackoff)
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	out.RetryJitter = min(max(out.RetryJitter, 0), 1)

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}

package resilience

import (
	"testing"
	"time"
)

func TestNormalizeFillsDefaultsAndClamps(t *testing.T) {
	got := Config{
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     10 * time.Millisecond,
		RetryMultiplier:     0.5,
		RetryJitter:         3,
		BreakerFailureRatio: 1.5,
	}.normalize()
	def := DefaultConfig()

	if got.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("expected default attempts %d, got %d", def.RetryMaxAttempts, got.RetryMaxAttempts)
	}
	if got.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not sit below the initial backoff, got %s", got.RetryMaxBackoff)
	}
	if got.RetryMultiplier != def.RetryMultiplier {
		t.Fatalf("expected default multiplier, got %v", got.RetryMultiplier)
	}
	if got.RetryJitter != 1 {
		t.Fatalf("expected jitter clamped to 1, got %v", got.RetryJitter)
	}
	if got.BreakerFailureRatio != def.BreakerFailureRatio || got.BreakerMinRequests != def.BreakerMinRequests {
		t.Fatalf("expected breaker defaults, got ratio=%v min=%d", got.BreakerFailureRatio, got.BreakerMinRequests)
	}
}

func TestDefaultBackoffStaysUnderTwoSeconds(t *testing.T) {
	exec := NewExecutor(DefaultConfig())

	var total time.Duration
	for attempt := 1; attempt < exec.cfg.RetryMaxAttempts; attempt++ {
		total += exec.backoff(attempt)
	}
	if total >= 2*time.Second {
		t.Fatalf("expected total backoff under 2s, got %s", total)
	}
}

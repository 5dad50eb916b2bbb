package resilience

import (
	"math/rand/v2"
	"time"
)

// Policy bounds how a collaborator call is retried and when its breaker
// opens. Serving and indexing binaries derive theirs from DefaultPolicy.
type Policy struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryJitter spreads each wait by up to this fraction in either
	// direction so workers retrying one Ollama instance do not align.
	RetryJitter float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultPolicy() Policy {
	return Policy{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,
		RetryJitter:         0.2,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// ForServing allows a single attempt and trips the breaker sooner. A query
// that loses one signal is answered from the other rather than waiting on
// backoff.
func (p Policy) ForServing() Policy {
	p.RetryMaxAttempts = 1
	if p.BreakerMinRequests == 0 || p.BreakerMinRequests > 5 {
		p.BreakerMinRequests = 5
	}
	return p
}

func (p Policy) normalize() Policy {
	out := p
	def := DefaultPolicy()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.RetryJitter < 0 || out.RetryJitter >= 1 {
		out.RetryJitter = 0
	}

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

// backoff returns the wait after the given failed attempt (1-based).
func (p Policy) backoff(attempt int) time.Duration {
	wait := float64(p.RetryInitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= p.RetryMultiplier
		if wait >= float64(p.RetryMaxBackoff) {
			wait = float64(p.RetryMaxBackoff)
			break
		}
	}
	if p.RetryJitter > 0 {
		wait *= 1 + p.RetryJitter*(2*rand.Float64()-1)
	}
	if wait > float64(p.RetryMaxBackoff) {
		wait = float64(p.RetryMaxBackoff)
	}
	return time.Duration(wait)
}

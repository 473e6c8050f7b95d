// Package backoff computes exponential delays between backend call attempts.
package backoff

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// InitialMs is the delay after the first failed attempt, in milliseconds.
	InitialMs float64 `yaml:"initial_ms" json:"initial_ms"`
	// MaxMs caps any single delay, in milliseconds.
	MaxMs float64 `yaml:"max_ms" json:"max_ms"`
	// Factor is the exponential factor applied to each attempt.
	Factor float64 `yaml:"factor" json:"factor"`
	// Jitter is the randomization factor (0.0 to 1.0) added on top of the base delay.
	Jitter float64 `yaml:"jitter" json:"jitter"`
}

// Generation is the policy used around text generation calls: two seconds,
// doubling, capped at one minute.
func Generation() Policy {
	return Policy{InitialMs: 2000, MaxMs: 60000, Factor: 2, Jitter: 0.1}
}

// Aggressive retries quickly. Mostly useful for local or mocked backends.
func Aggressive() Policy {
	return Policy{InitialMs: 50, MaxMs: 5000, Factor: 1.5, Jitter: 0.05}
}

// Conservative backs off slowly for heavily rate limited accounts.
func Conservative() Policy {
	return Policy{InitialMs: 5000, MaxMs: 120000, Factor: 2.5, Jitter: 0.2}
}

// Named resolves a policy name used in configuration files.
func Named(name string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "generation":
		return Generation(), true
	case "aggressive":
		return Aggressive(), true
	case "conservative":
		return Conservative(), true
	default:
		return Policy{}, false
	}
}

// WithDefaults fills unset fields from Generation.
func (p Policy) WithDefaults() Policy {
	def := Generation()
	if p.InitialMs <= 0 {
		p.InitialMs = def.InitialMs
	}
	if p.MaxMs <= 0 {
		p.MaxMs = def.MaxMs
	}
	if p.Factor <= 0 {
		p.Factor = def.Factor
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Delay returns the wait before attempt+1, where attempt counts the failed
// attempts so far and starts at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand is Delay with a caller supplied random value in [0, 1).
//
// base = initial * factor^(attempt-1), result = min(max, base + base*jitter*r)
func (p Policy) DelayWithRand(attempt int, r float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMs * math.Pow(p.Factor, exp)
	total := math.Min(p.MaxMs, base+base*p.Jitter*r)
	return time.Duration(math.Round(total)) * time.Millisecond
}

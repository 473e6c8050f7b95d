// Package ratelimit provides token bucket rate limiting for backend calls
// and inbound HTTP requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/textgen/internal/backoff"
)

// maxKeys bounds the number of buckets a Limiter keeps before pruning idle ones.
const maxKeys = 10000

// Config configures rate limiting behavior.
type Config struct {
	// RequestsPerSecond is the sustained refill rate.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	// BurstSize is the bucket capacity. Default: twice RequestsPerSecond.
	BurstSize int `yaml:"burst_size" json:"burst_size"`
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns 10 requests per second with a burst of 20.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		BurstSize:         20,
		Enabled:           true,
	}
}

// Bucket is a token bucket refilled continuously at a fixed rate.
type Bucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	updated  time.Time
}

// NewBucket creates a full bucket. Non-positive rates fall back to
// DefaultConfig.
func NewBucket(config Config) *Bucket {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = int(config.RequestsPerSecond * 2)
	}
	capacity := float64(config.BurstSize)
	return &Bucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     config.RequestsPerSecond,
		updated:  time.Now(),
	}
}

// Allow takes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(time.Now())
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the tokens currently available.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(time.Now())
	return b.tokens
}

// WaitTime returns how long until one token is available.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(time.Now())
	return b.deficit()
}

// Wait blocks until a token is taken or ctx is done.
func (b *Bucket) Wait(ctx context.Context) error {
	for !b.Allow() {
		if err := backoff.Sleep(ctx, b.WaitTime()); err != nil {
			return err
		}
	}
	return nil
}

// advance credits tokens for the time since the last update. Caller holds mu.
func (b *Bucket) advance(now time.Time) {
	b.tokens += now.Sub(b.updated).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.updated = now
}

// deficit converts the missing fraction of a token into time. Caller holds mu.
func (b *Bucket) deficit() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// Limiter keeps one bucket per key, such as a provider name or a client
// address.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	config  Config
}

// NewLimiter creates a keyed limiter.
func NewLimiter(config Config) *Limiter {
	return &Limiter{buckets: make(map[string]*Bucket), config: config}
}

// Allow reports whether a request for key may proceed now, taking a token
// if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.config.Enabled {
		return true
	}
	return l.bucket(key).Allow()
}

// Wait blocks until a request for key is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil || !l.config.Enabled {
		return ctx.Err()
	}
	return l.bucket(key).Wait(ctx)
}

// WaitTime returns how long a request for key would have to wait.
func (l *Limiter) WaitTime(key string) time.Duration {
	if l == nil || !l.config.Enabled {
		return 0
	}
	return l.bucket(key).WaitTime()
}

// Status is a point-in-time view of one key's bucket.
type Status struct {
	Enabled         bool    `json:"enabled"`
	TokensRemaining float64 `json:"tokens_remaining"`
	Capacity        float64 `json:"capacity"`
	WaitMs          int64   `json:"wait_ms"`
}

// Peek reports the state of key without taking a token. Keys that were
// never used report a full bucket and are not created.
func (l *Limiter) Peek(key string) Status {
	if l == nil || !l.config.Enabled {
		return Status{}
	}

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		fresh := NewBucket(l.config)
		return Status{Enabled: true, TokensRemaining: fresh.capacity, Capacity: fresh.capacity}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(time.Now())
	return Status{
		Enabled:         true,
		TokensRemaining: b.tokens,
		Capacity:        b.capacity,
		WaitMs:          b.deficit().Milliseconds(),
	}
}

// bucket returns the bucket for key, creating it on first use.
func (l *Limiter) bucket(key string) *Bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= maxKeys {
		l.prune()
	}
	b = NewBucket(l.config)
	l.buckets[key] = b
	return b
}

// prune drops buckets that have refilled to near capacity. Caller holds mu.
func (l *Limiter) prune() {
	for key, b := range l.buckets {
		if b.Tokens() >= b.capacity*0.9 {
			delete(l.buckets, key)
		}
	}
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBucket_Allow(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 10, BurstSize: 5, Enabled: true})

	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}
	if bucket.Allow() {
		t.Error("request after burst should be denied")
	}
}

func TestBucket_Refill(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 100, BurstSize: 2, Enabled: true})
	bucket.Allow()
	bucket.Allow()
	if bucket.Allow() {
		t.Fatal("should be denied after exhausting tokens")
	}

	time.Sleep(50 * time.Millisecond)
	if !bucket.Allow() {
		t.Error("should be allowed after refill")
	}
}

func TestBucket_WaitTime(t *testing.T) {
	bucket := NewBucket(Config{RequestsPerSecond: 10, BurstSize: 1, Enabled: true})
	if bucket.WaitTime() != 0 {
		t.Error("should not wait when tokens available")
	}

	bucket.Allow()
	if wait := bucket.WaitTime(); wait <= 0 || wait > 100*time.Millisecond {
		t.Errorf("WaitTime() = %v, want (0, 100ms]", wait)
	}
}

func TestNewBucketDefaults(t *testing.T) {
	tests := []struct {
		name         string
		config       Config
		wantCapacity float64
	}{
		{"zero config", Config{}, 20},
		{"burst from rate", Config{RequestsPerSecond: 3}, 6},
		{"explicit burst", Config{RequestsPerSecond: 3, BurstSize: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := NewBucket(tt.config)
			if bucket.capacity != tt.wantCapacity || bucket.Tokens() != tt.wantCapacity {
				t.Errorf("capacity = %v, tokens = %v, want %v", bucket.capacity, bucket.Tokens(), tt.wantCapacity)
			}
		})
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 10, BurstSize: 3, Enabled: true})

	for i := 0; i < 3; i++ {
		if !limiter.Allow("openai") {
			t.Errorf("openai request %d should be allowed", i)
		}
	}
	if limiter.Allow("openai") {
		t.Error("openai should be rate limited")
	}
	if !limiter.Allow("anthropic") {
		t.Error("anthropic should be allowed")
	}
}

func TestLimiter_DisabledOrNil(t *testing.T) {
	var nilLimiter *Limiter
	disabled := NewLimiter(Config{RequestsPerSecond: 1, BurstSize: 1, Enabled: false})

	for name, limiter := range map[string]*Limiter{"nil": nilLimiter, "disabled": disabled} {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				if !limiter.Allow("k") {
					t.Fatal("Allow() = false")
				}
				if err := limiter.Wait(context.Background(), "k"); err != nil {
					t.Fatalf("Wait() = %v", err)
				}
			}
			if limiter.WaitTime("k") != 0 {
				t.Error("WaitTime() should be zero")
			}
			if status := limiter.Peek("k"); status.Enabled {
				t.Errorf("Peek() = %+v", status)
			}
		})
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 100, BurstSize: 1, Enabled: true})
	ctx := context.Background()

	if err := limiter.Wait(ctx, "openai"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	start := time.Now()
	if err := limiter.Wait(ctx, "openai"); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("second Wait() returned after %v, expected to block for a refill", elapsed)
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 0.01, BurstSize: 1, Enabled: true})
	limiter.Allow("anthropic")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "anthropic"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestLimiter_Peek(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 0.01, BurstSize: 2, Enabled: true})

	status := limiter.Peek("openai")
	if !status.Enabled || status.TokensRemaining != 2 || status.Capacity != 2 || status.WaitMs != 0 {
		t.Errorf("unused key Peek() = %+v", status)
	}
	if len(limiter.buckets) != 0 {
		t.Error("Peek() created a bucket")
	}

	limiter.Allow("openai")
	limiter.Allow("openai")
	status = limiter.Peek("openai")
	if status.TokensRemaining >= 1 || status.WaitMs <= 0 {
		t.Errorf("exhausted Peek() = %+v", status)
	}
	if limiter.Allow("openai") {
		t.Error("Peek() must not refill the bucket")
	}
}

func TestLimiter_PrunesWhenFull(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 10, BurstSize: 3, Enabled: true})

	// Idle keys keep a full bucket and are pruned once the map is at capacity.
	for i := 0; i < maxKeys; i++ {
		limiter.bucket(fmt.Sprintf("idle-%d", i))
	}
	if !limiter.Allow("brand-new-key") {
		t.Fatal("new key should be allowed after prune")
	}
	if n := len(limiter.buckets); n != 1 {
		t.Errorf("buckets after prune = %d, want 1", n)
	}
}

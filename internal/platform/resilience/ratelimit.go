package resilience

import (
	"sync"
	"time"
)

// Limiter is the admission gate shared by the token-bucket and
// sliding-window implementations.
type Limiter interface {
	TryAcquire() bool
	// Wait blocks until a permit is available or the deadline passes.
	// It returns false on deadline expiry.
	Wait(deadline time.Time) bool
}

// TokenBucket refills at refillRate tokens per second up to maxTokens.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

func NewTokenBucket(maxTokens int, refillRate float64) *TokenBucket {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if refillRate <= 0 {
		refillRate = 1
	}
	b := &TokenBucket{
		tokens:     float64(maxTokens),
		maxTokens:  float64(maxTokens),
		refillRate: refillRate,
		now:        time.Now,
	}
	b.lastRefill = b.now()
	return b
}

func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *TokenBucket) Wait(deadline time.Time) bool {
	for {
		if b.TryAcquire() {
			return true
		}
		if !b.now().Before(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// SlidingWindow admits at most maxRequests within the trailing window.
type SlidingWindow struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	stamps      []time.Time
	now         func() time.Time
}

func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	if maxRequests < 1 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindow{
		window:      window,
		maxRequests: maxRequests,
		stamps:      make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

func (w *SlidingWindow) TryAcquire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	cutoff := now.Add(-w.window)
	kept := w.stamps[:0]
	for _, t := range w.stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.stamps = kept
	if len(w.stamps) >= w.maxRequests {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

func (w *SlidingWindow) Wait(deadline time.Time) bool {
	for {
		if w.TryAcquire() {
			return true
		}
		if !w.now().Before(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

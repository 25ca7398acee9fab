package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scigraph/scigraph-backend/internal/platform/envutil"
	"github.com/scigraph/scigraph-backend/internal/platform/logger"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Guard composes a limiter and a circuit breaker in front of one outbound
// endpoint: limiter first, then breaker, then the call. One Guard per
// endpoint, shared across goroutines.
type Guard struct {
	name    string
	log     *logger.Logger
	limiter Limiter
	breaker *CircuitBreaker
}

func NewGuard(name string, log *logger.Logger, limiter Limiter, breaker *CircuitBreaker) *Guard {
	return &Guard{
		name:    name,
		log:     log.With("guard", name),
		limiter: limiter,
		breaker: breaker,
	}
}

// NewGuardFromEnv builds a Guard for an endpoint using <PREFIX>_* tuning
// variables. Algorithm selection: <PREFIX>_LIMITER = token_bucket | sliding_window.
func NewGuardFromEnv(name, prefix string, log *logger.Logger) *Guard {
	var limiter Limiter
	switch envutil.String(prefix+"_LIMITER", "token_bucket") {
	case "sliding_window":
		limiter = NewSlidingWindow(
			envutil.Int(prefix+"_MAX_REQUESTS", 60),
			envutil.Seconds(prefix+"_WINDOW_SECONDS", time.Minute),
		)
	default:
		limiter = NewTokenBucket(
			envutil.Int(prefix+"_MAX_TOKENS", 10),
			envutil.Float(prefix+"_REFILL_RATE", 2),
		)
	}
	breaker := NewCircuitBreaker(
		envutil.Int(prefix+"_FAILURE_THRESHOLD", 5),
		envutil.Seconds(prefix+"_RESET_TIMEOUT_SECONDS", 30*time.Second),
	)
	return NewGuard(name, log, limiter, breaker)
}

// Do runs fn behind the limiter and breaker. Limiter exhaustion blocks up to
// the context deadline (or a short default) before failing; breaker rejection
// fails fast with ErrCircuitOpen.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if !g.limiter.Wait(deadline) {
		return fmt.Errorf("%s: %w", g.name, ErrRateLimited)
	}
	if !g.breaker.Allow() {
		return fmt.Errorf("%s: %w", g.name, ErrCircuitOpen)
	}
	err := fn(ctx)
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case ctx.Err() != nil:
		// Cancellation is not endpoint evidence, but a held probe slot
		// must be released or the breaker never leaves half-open.
		g.breaker.RecordCancellation()
	default:
		g.breaker.RecordFailure()
		g.log.Warn("guarded call failed", "state", g.breaker.State().String(), "error", err)
	}
	return err
}

func (g *Guard) BreakerState() BreakerState {
	if g == nil {
		return StateClosed
	}
	return g.breaker.State()
}

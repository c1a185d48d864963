package limiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfchat/internal/completion"
	"github.com/local/pdfchat/internal/metrics"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	}
	return "closed"
}

// Breaker stops calling the completion endpoint after repeated transient
// failures. The cooldown doubles with each failure while open, up to MaxBackoff.
type Breaker struct {
	Threshold   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	retryAt  time.Time
	now      func() time.Time
}

func NewBreaker(threshold int, base, maxBackoff time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if base <= 0 {
		base = 5 * time.Second
	}
	if maxBackoff < base {
		maxBackoff = base
	}
	return &Breaker{Threshold: threshold, BaseBackoff: base, MaxBackoff: maxBackoff, now: time.Now}
}

// Allow reports whether a request may be sent. An expired cooldown lets one
// probe through in the half-open state.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		if b.now().Before(b.retryAt) {
			return false
		}
		b.state = stateHalfOpen
		log.Info().Msg("completion circuit half-open")
		return true
	case stateHalfOpen:
		return false
	}
	return true
}

// Record feeds the outcome of an allowed request back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || !IsTransient(err) {
		if b.state != stateClosed {
			log.Info().Msg("completion circuit closed")
		}
		b.state = stateClosed
		b.failures = 0
		return
	}
	b.failures++
	if b.state == stateClosed && b.failures < b.Threshold {
		return
	}
	backoff := b.BaseBackoff
	for i := b.Threshold; i < b.failures && backoff < b.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > b.MaxBackoff {
		backoff = b.MaxBackoff
	}
	b.state = stateOpen
	b.retryAt = b.now().Add(backoff)
	metrics.IncBreakerOpen()
	log.Warn().Err(err).Int("failures", b.failures).Dur("cooldown", backoff).Msg("completion circuit opened")
}

// abandon hands a cancelled probe's slot to the next request.
func (b *Breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.retryAt = b.now()
	}
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// Wrap returns a Starter that fails fast with completion.ErrUnavailable while
// the breaker is open.
func (b *Breaker) Wrap(next Starter) Starter {
	return &guarded{next: next, b: b}
}

type guarded struct {
	next Starter
	b    *Breaker
}

func (g *guarded) Start(ctx context.Context, req completion.Request) *completion.Future {
	return completion.Async(func() (string, error) {
		if !g.b.Allow() {
			return "", fmt.Errorf("%w: circuit open", completion.ErrUnavailable)
		}
		text, err := g.next.Start(ctx, req).Wait()
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			g.b.abandon()
			return text, err
		}
		g.b.Record(err)
		return text, err
	})
}

// IsTransient reports whether err points at the endpoint being unhealthy
// rather than at the request: timeouts, 429, 5xx and transport failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if httpErr, ok := completion.IsHTTPError(err); ok {
		switch {
		case httpErr.StatusCode == completion.NoResponseStatus:
			return true
		case httpErr.StatusCode == 429:
			return true
		case httpErr.StatusCode >= 500 && httpErr.StatusCode < 600:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout")
}

package limiter

import (
	"context"

	"github.com/local/pdfchat/internal/completion"
	"github.com/local/pdfchat/internal/metrics"
)

// Starter starts a completion. *completion.Client satisfies it.
type Starter interface {
	Start(ctx context.Context, req completion.Request) *completion.Future
}

// Inflight bounds how many completions run at once across all sessions.
// Each session already sends at most one request; this caps the sum.
type Inflight struct {
	sem chan struct{}
}

func New(maxInflight int) *Inflight {
	if maxInflight <= 0 {
		maxInflight = 8
	}
	return &Inflight{sem: make(chan struct{}, maxInflight)}
}

// Acquire blocks for a slot and returns its release function.
func (l *Inflight) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InUse reports the number of held slots.
func (l *Inflight) InUse() int { return len(l.sem) }

// Wrap returns a Starter whose calls first wait for a slot.
func (l *Inflight) Wrap(next Starter) Starter {
	return &limited{next: next, lim: l}
}

type limited struct {
	next Starter
	lim  *Inflight
}

func (c *limited) Start(ctx context.Context, req completion.Request) *completion.Future {
	return completion.Async(func() (string, error) {
		release, err := c.lim.Acquire(ctx)
		if err != nil {
			return "", err
		}
		metrics.SetInflight(c.lim.InUse())
		defer func() {
			release()
			metrics.SetInflight(c.lim.InUse())
		}()
		return c.next.Start(ctx, req).Wait()
	})
}

package llm

import (
	"context"

	"github.com/finbrain/finbrain/internal/ratelimit"
)

// LimitedCompleter admits every completion through a shared rate limiter.
type LimitedCompleter struct {
	next    Completer
	limiter *ratelimit.Limiter
}

func NewLimitedCompleter(next Completer, limiter *ratelimit.Limiter) *LimitedCompleter {
	return &LimitedCompleter{next: next, limiter: limiter}
}

func (c *LimitedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return ratelimit.Execute(ctx, c.limiter, func(ctx context.Context) (string, error) {
		return c.next.Complete(ctx, prompt)
	})
}

package ai

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimitedGenerator struct {
	next    IGenerator
	limiter *rate.Limiter
}

// WrapRateLimit blocks each call until the shared limiter grants a token.
func WrapRateLimit(next IGenerator, limiter *rate.Limiter) IGenerator {
	if limiter == nil {
		return next
	}
	return &rateLimitedGenerator{next: next, limiter: limiter}
}

func (g *rateLimitedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.next.Generate(ctx, prompt)
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Sleeper replaces the timer wait, tests use it to skip delays.
	Sleeper func(time.Duration)
}

type retryGenerator struct {
	next IGenerator
	cfg  RetryConfig
}

// WrapRetry retries transient failures: 408, 429, 5xx, network timeouts and empty replies.
func WrapRetry(next IGenerator, cfg RetryConfig) IGenerator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultRetryAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	} else if cfg.BaseDelay == 0 {
		cfg.BaseDelay = defaultRetryBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultRetryMaxDelay
	}
	return &retryGenerator{next: next, cfg: cfg}
}

func (g *retryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.Attempts; attempt++ {
		res, err := g.next.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		delay, retry := g.retryDelay(ctx, err, attempt)
		if !retry {
			return "", err
		}
		logutil.GetLogger(ctx).Warn("llm call failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", g.cfg.Attempts, lastErr)
}

func (g *retryGenerator) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= g.cfg.Attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var emptyErr *EmptyContentError
	if errors.As(err, &emptyErr) {
		return g.backoff(attempt), true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return g.capDelay(statusErr.RetryAfter), true
			}
			return g.backoff(attempt), true
		default:
			return 0, false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return g.backoff(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return g.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles from BaseDelay per attempt: base, base*2, base*4, ...
func (g *retryGenerator) backoff(attempt int) time.Duration {
	delay := g.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay > g.cfg.MaxDelay/2 {
			return g.cfg.MaxDelay
		}
		delay *= 2
	}
	return g.capDelay(delay)
}

func (g *retryGenerator) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if delay > g.cfg.MaxDelay {
		return g.cfg.MaxDelay
	}
	return delay
}

func (g *retryGenerator) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if g.cfg.Sleeper != nil {
		g.cfg.Sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultWaitTimeout = 30 * time.Second
	// retryAfterMargin pads a server-suggested wait so the retried call lands
	// safely past the server's window.
	retryAfterMargin = 500 * time.Millisecond
)

// Gateway wraps one logical inference-service call with token acquisition and
// a bounded retry policy for rate-limit failures. Any other failure
// propagates immediately.
type Gateway struct {
	limiter *Limiter

	maxRetries  int
	baseDelay   time.Duration
	waitTimeout time.Duration
}

type GatewayOption func(*Gateway)

// WithMaxRetries bounds the retry budget; total attempts are maxRetries + 1.
func WithMaxRetries(maxRetries int) GatewayOption {
	return func(g *Gateway) {
		if maxRetries >= 0 {
			g.maxRetries = maxRetries
		}
	}
}

// WithBaseDelay sets the base backoff delay between attempts.
func WithBaseDelay(delay time.Duration) GatewayOption {
	return func(g *Gateway) {
		if delay > 0 {
			g.baseDelay = delay
		}
	}
}

// WithWaitTimeout bounds how long each attempt may wait for a request token.
func WithWaitTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) {
		if timeout > 0 {
			g.waitTimeout = timeout
		}
	}
}

// NewGateway creates a gateway pacing calls through limiter.
func NewGateway(limiter *Limiter, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		limiter:     limiter,
		maxRetries:  3,
		baseDelay:   time.Second,
		waitTimeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do executes op with rate limiting and retries. Each attempt first blocks on
// token acquisition; a wait timeout is retried with a linearly growing delay
// and surfaced as ErrTokenWaitTimeout once the budget is spent. A
// RateLimitError from op is retried after the server-suggested wait (plus a
// safety margin) or an exponential backoff; exhaustion surfaces the last
// cause wrapped in ErrRetriesExhausted.
func (g *Gateway) Do(ctx context.Context, op func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "execute with retry")
	defer span.End()

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if !g.limiter.WaitForToken(ctx, g.waitTimeout) {
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			if attempt == g.maxRetries {
				span.RecordError(ErrTokenWaitTimeout)
				span.SetStatus(codes.Error, ErrTokenWaitTimeout.Error())
				return ErrTokenWaitTimeout
			}

			delay := g.baseDelay * time.Duration(attempt+1)
			logger.Warn("token wait timed out, delaying next attempt",
				"attempt", attempt+1, "delay", delay.String())
			if !sleepContext(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		err := op(ctx)
		if err == nil {
			span.SetAttributes(attribute.Int("gateway.attempts", attempt+1))
			return nil
		}

		var rateErr *RateLimitError
		if !errors.As(err, &rateErr) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if attempt == g.maxRetries {
			err = fmt.Errorf("%w: %w", ErrRetriesExhausted, rateErr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		wait := g.backoff(rateErr, attempt)
		logger.Warn("rate limited by inference service, backing off",
			"attempt", attempt+1, "max_retries", g.maxRetries, "wait", wait.String())
		span.AddEvent("rate limited", trace.WithAttributes(
			attribute.Int("attempt", attempt+1),
			attribute.Float64("wait_seconds", wait.Seconds()),
		))
		if !sleepContext(ctx, wait) {
			return ctx.Err()
		}
	}

	return ErrRetriesExhausted
}

func (g *Gateway) backoff(rateErr *RateLimitError, attempt int) time.Duration {
	if rateErr.RetryAfter > 0 {
		return rateErr.RetryAfter + retryAfterMargin
	}
	if suggested, ok := retryAfterHint(rateErr.Message); ok {
		return suggested + retryAfterMargin
	}
	return max(g.baseDelay, g.baseDelay<<attempt)
}

// Execute runs op through the gateway's retry policy and returns its result.
func Execute[T any](ctx context.Context, g *Gateway, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := g.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

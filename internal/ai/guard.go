package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"pdf-rag-chat/internal/logger"
	"pdf-rag-chat/internal/telemetry"
	"pdf-rag-chat/models"
)

// Guarded wraps a Provider with a circuit breaker and an optional client side
// rate limit. Only the opening of a stream passes through the breaker.
type Guarded struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuarded wraps p. A requestsPerSecond of zero disables rate limiting.
func NewGuarded(p Provider, requestsPerSecond float64, metrics *telemetry.Metrics) *Guarded {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// A caller going away says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}

	return &Guarded{inner: p, breaker: breaker, limiter: limiter}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) Close() error { return g.inner.Close() }

func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.run(ctx, models.ErrEmbeddingService, func() (interface{}, error) {
		return g.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return res.([]float32), nil
}

func (g *Guarded) Generate(ctx context.Context, prompt string) (string, error) {
	res, err := g.run(ctx, models.ErrGenerationService, func() (interface{}, error) {
		return g.inner.Generate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (g *Guarded) GenerateStream(ctx context.Context, prompt string) (TokenStream, error) {
	res, err := g.run(ctx, models.ErrGenerationService, func() (interface{}, error) {
		return g.inner.GenerateStream(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return res.(TokenStream), nil
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() string {
	return g.breaker.State().String()
}

func (g *Guarded) run(ctx context.Context, sentinel error, fn func() (interface{}, error)) (interface{}, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", sentinel, err)
		}
	}

	res, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s unavailable: %w", sentinel, g.inner.Name(), err)
	}
	return res, err
}

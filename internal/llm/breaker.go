package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while a provider's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker wraps a Provider with a circuit breaker that trips after five
// consecutive failures and probes again after thirty seconds.
type Breaker struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreaker wraps p. logger may be nil.
func NewBreaker(p Provider, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit changed state",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{provider: p, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the wrapped provider's name.
func (b *Breaker) Name() string { return b.provider.Name() }

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string { return b.cb.State().String() }

// Complete calls the wrapped provider unless the circuit is open.
func (b *Breaker) Complete(ctx context.Context, req Request) (Response, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.provider.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Response{}, fmt.Errorf("%s: %w", b.provider.Name(), ErrCircuitOpen)
		}
		return Response{}, err
	}
	return out.(Response), nil
}

var _ Provider = (*Breaker)(nil)

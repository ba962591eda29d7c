package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type SessionCreator interface {
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
}

// Breaker fails fast while the gateway keeps failing. It never retries.
type Breaker struct {
	next SessionCreator
	cb   *gobreaker.CircuitBreaker[string]
}

// NewBreaker opens after maxFailures consecutive failures and probes again
// after cooldown.
func NewBreaker(next SessionCreator, maxFailures uint32, cooldown time.Duration, logger *slog.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "snap",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	url, err := b.cb.Execute(func() (string, error) {
		return b.next.CreateSession(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", &GatewayError{Message: "temporarily unavailable", Err: err}
	}
	return url, err
}

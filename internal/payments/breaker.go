package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerGateway stops calling a failing provider for Timeout after FailureThreshold
// consecutive errors. While open, calls fail fast with gobreaker.ErrOpenState.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker[*Intent]
}

func NewBreakerGateway(next Gateway, settings BreakerSettings, logger *slog.Logger) *BreakerGateway {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	st := gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment gateway circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerGateway{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[*Intent](st),
	}
}

func (b *BreakerGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	return b.breaker.Execute(func() (*Intent, error) {
		return b.next.CreateIntent(ctx, amountMinor, currency, metadata)
	})
}

func (b *BreakerGateway) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	return b.breaker.Execute(func() (*Intent, error) {
		return b.next.GetIntent(ctx, intentID)
	})
}

func (b *BreakerGateway) State() gobreaker.State {
	return b.breaker.State()
}

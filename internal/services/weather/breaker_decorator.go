package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

// BreakerClient wraps a provider client in a circuit breaker so a flaky
// provider is skipped quickly instead of delaying the whole alert pass.
type BreakerClient struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	wrapped client
}

func NewBreakerClient(name string, wrapped client,
	interval, timeout time.Duration, consecutiveFailures uint32,
) *BreakerClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	}
	return &BreakerClient{
		name:    name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		wrapped: wrapped,
	}
}

func (b *BreakerClient) Fetch(ctx context.Context, zipCode string) (models.WeatherData, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.Fetch(ctx, zipCode)
	})
	if err != nil {
		return models.WeatherData{}, fmt.Errorf("%s unavailable: %w", b.name, err)
	}
	res, ok := result.(models.WeatherData)
	if !ok {
		return models.WeatherData{}, fmt.Errorf("%s returned unexpected result type", b.name)
	}
	return res, nil
}

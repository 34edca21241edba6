package hebcal

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

type timesFetcher interface {
	Fetch(ctx context.Context, zipCode string) (models.ShabbatTimes, error)
}

// BreakerClient shields the pass from a misbehaving Hebcal endpoint.
type BreakerClient struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	wrapped timesFetcher
}

func NewBreakerClient(name string, wrapped timesFetcher,
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

func (b *BreakerClient) Fetch(ctx context.Context, zipCode string) (models.ShabbatTimes, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.Fetch(ctx, zipCode)
	})
	if err != nil {
		return models.ShabbatTimes{}, fmt.Errorf("%s unavailable: %w", b.name, err)
	}
	res, ok := result.(models.ShabbatTimes)
	if !ok {
		return models.ShabbatTimes{}, fmt.Errorf("%s returned unexpected result type", b.name)
	}
	return res, nil
}

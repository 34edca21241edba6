package decorators

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

type weatherGetterService interface {
	GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error)
}

type cacheClient[T any] interface {
	Set(ctx context.Context, key string, value T) error
	Get(ctx context.Context, key string) (T, error)
}

// CachedService serves recent weather reports from Redis so one pass does
// not hit the providers once per subscriber city sharing a zip code.
type CachedService struct {
	inner  weatherGetterService
	cache  cacheClient[models.WeatherData]
	logger zerolog.Logger
}

func NewCachedService(
	inner weatherGetterService,
	cache cacheClient[models.WeatherData],
	logger zerolog.Logger,
) *CachedService {
	logger = logger.With().Str("component", "CachedWeatherService").Logger()
	return &CachedService{inner: inner, cache: cache, logger: logger}
}

func (s *CachedService) GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error) {
	key := fmt.Sprintf("weather:%s", zipCode)

	weather, err := s.cache.Get(ctx, key)
	if err == nil {
		s.logger.Debug().
			Ctx(ctx).
			Str("zip", zipCode).
			Str("key", key).
			Msg("cache hit")
		return weather, nil
	}
	s.logger.Debug().
		Ctx(ctx).
		Str("zip", zipCode).
		Str("key", key).
		Err(err).
		Msg("cache miss")

	weather, err = s.inner.GetByZip(ctx, zipCode)
	if err != nil {
		return models.WeatherData{}, err
	}

	if err := s.cache.Set(ctx, key, weather); err != nil {
		s.logger.Error().
			Ctx(ctx).
			Str("zip", zipCode).
			Str("key", key).
			Err(err).
			Msg("cache set failed")
	}

	return weather, nil
}

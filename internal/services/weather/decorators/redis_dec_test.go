//go:build unit

package decorators_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
	"github.com/eruvnet/eruv-alerts-api/internal/services/weather/decorators"
	"github.com/eruvnet/eruv-alerts-api/pkg/logger"
)

type mockWeatherService struct {
	mock.Mock
}

func (m *mockWeatherService) GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error) {
	args := m.Called(ctx, zipCode)
	return args.Get(0).(models.WeatherData), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Set(ctx context.Context, key string, value models.WeatherData) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *mockCache) Get(ctx context.Context, key string) (models.WeatherData, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(models.WeatherData), args.Error(1)
}

func newService(t *testing.T, inner *mockWeatherService, cache *mockCache) *decorators.CachedService {
	t.Helper()

	log, err := logger.New("", "decorators-test")
	require.NoError(t, err)

	t.Cleanup(func() {
		inner.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	return decorators.NewCachedService(inner, cache, log)
}

func Test_CachedService_HitSkipsProviders(t *testing.T) {
	cached := models.WeatherData{ZipCode: "07666", TempF: 72}

	inner := new(mockWeatherService)
	cache := new(mockCache)
	cache.On("Get", mock.Anything, "weather:07666").Return(cached, nil).Once()

	svc := newService(t, inner, cache)

	data, err := svc.GetByZip(context.Background(), "07666")
	require.NoError(t, err)
	assert.Equal(t, cached, data)
	inner.AssertNotCalled(t, "GetByZip", mock.Anything, mock.Anything)
}

func Test_CachedService_MissFetchesAndStores(t *testing.T) {
	fresh := models.WeatherData{ZipCode: "07666", TempF: 65, Conditions: []string{"Rain"}}

	inner := new(mockWeatherService)
	cache := new(mockCache)
	cache.On("Get", mock.Anything, "weather:07666").
		Return(models.WeatherData{}, errors.New("redis: nil")).Once()
	inner.On("GetByZip", mock.Anything, "07666").Return(fresh, nil).Once()
	cache.On("Set", mock.Anything, "weather:07666", fresh).Return(nil).Once()

	svc := newService(t, inner, cache)

	data, err := svc.GetByZip(context.Background(), "07666")
	require.NoError(t, err)
	assert.Equal(t, fresh, data)
}

func Test_CachedService_SetFailureIsNotFatal(t *testing.T) {
	fresh := models.WeatherData{ZipCode: "07666"}

	inner := new(mockWeatherService)
	cache := new(mockCache)
	cache.On("Get", mock.Anything, "weather:07666").
		Return(models.WeatherData{}, errors.New("redis: nil")).Once()
	inner.On("GetByZip", mock.Anything, "07666").Return(fresh, nil).Once()
	cache.On("Set", mock.Anything, "weather:07666", fresh).
		Return(errors.New("connection refused")).Once()

	svc := newService(t, inner, cache)

	data, err := svc.GetByZip(context.Background(), "07666")
	require.NoError(t, err)
	assert.Equal(t, fresh, data)
}

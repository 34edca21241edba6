package weather

import (
	"context"
	"errors"
	"net/http"
	"path"
	"reflect"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

// ErrAllProvidersFailed is returned when every configured provider failed
// for a zip code. Callers treat weather as optional enrichment, so this is
// non-fatal to an alert pass.
var ErrAllProvidersFailed = errors.New("all weather API clients failed")

type client interface {
	Fetch(ctx context.Context, zipCode string) (models.WeatherData, error)
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ServiceProvider tries each weather client in order and returns the
// first successful report.
type ServiceProvider struct {
	logger  zerolog.Logger
	clients []client
}

func NewService(logger zerolog.Logger, clients ...client) *ServiceProvider {
	logger = logger.With().Str("component", "WeatherService").Logger()
	return &ServiceProvider{clients: clients, logger: logger}
}

func getFuncName(fn interface{}) string {
	pc := reflect.ValueOf(fn).Pointer()
	return path.Base(runtime.FuncForPC(pc).Name())
}

func (s *ServiceProvider) GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error) {
	for _, cl := range s.clients {
		s.logger.Debug().
			Ctx(ctx).
			Str("client", getFuncName(cl.Fetch)).
			Str("zip", zipCode).
			Msg("calling Fetch")
		data, err := cl.Fetch(ctx, zipCode)
		if err != nil {
			s.logger.Error().
				Ctx(ctx).
				Str("client", getFuncName(cl.Fetch)).
				Err(err).
				Msg("fetch failed")
			continue
		}
		return data, nil
	}

	s.logger.Error().
		Ctx(ctx).
		Str("zip", zipCode).
		Msg("GetByZip giving up")
	return models.WeatherData{}, ErrAllProvidersFailed
}

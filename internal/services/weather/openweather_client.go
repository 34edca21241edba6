package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

type owmResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// ClientOpenWeatherMap fetches current conditions by US zip code from the
// OpenWeatherMap API.
type ClientOpenWeatherMap struct {
	APIKey string
	apiURL string
	client HTTPClient
	logger zerolog.Logger
}

func NewClientOpenWeatherMap(apiKey, apiURL string,
	httpClient HTTPClient, logger zerolog.Logger,
) *ClientOpenWeatherMap {
	logger = logger.With().Str("component", "OpenWeatherMapClient").Logger()
	return &ClientOpenWeatherMap{APIKey: apiKey, apiURL: apiURL, client: httpClient, logger: logger}
}

func (s *ClientOpenWeatherMap) Fetch(ctx context.Context, zipCode string) (models.WeatherData, error) {
	start := time.Now()
	url := fmt.Sprintf("%s?zip=%s,us&appid=%s&units=imperial", s.apiURL, zipCode, s.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("zip", zipCode).
			Msg("failed to create HTTP request")
		return models.WeatherData{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("zip", zipCode).
			Msg("error sending HTTP request to OpenWeatherMap")
		return models.WeatherData{}, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Error().
				Err(cerr).
				Str("zip", zipCode).
				Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		s.logger.Error().
			Str("zip", zipCode).
			Str("status", resp.Status).
			Msg("OpenWeatherMap API returned non-200 status")
		return models.WeatherData{}, fmt.Errorf("OpenWeatherMap error: status %s", resp.Status)
	}

	var raw owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		s.logger.Error().
			Err(err).
			Str("zip", zipCode).
			Msg("failed to decode OpenWeatherMap response")
		return models.WeatherData{}, err
	}

	if len(raw.Weather) == 0 {
		return models.WeatherData{}, fmt.Errorf("OpenWeatherMap returned no conditions for zip %s", zipCode)
	}

	data := models.WeatherData{
		ZipCode:     zipCode,
		TempF:       int(math.Round(raw.Main.Temp)),
		Humidity:    raw.Main.Humidity,
		Description: raw.Weather[0].Main,
	}
	for _, w := range raw.Weather {
		data.Conditions = append(data.Conditions, w.Description)
	}

	s.logger.Info().
		Str("zip", zipCode).
		Dur("duration", time.Since(start)).
		Msg("successfully fetched weather data")

	return data, nil
}

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

type weatherBitResponse struct {
	Data []struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"rh"`
		Weather  struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"data"`
}

// ClientWeatherBit is the fallback provider behind OpenWeatherMap.
type ClientWeatherBit struct {
	APIKey string
	apiURL string
	client HTTPClient
	logger zerolog.Logger
}

func NewClientWeatherBit(apiKey, apiURL string,
	httpClient HTTPClient, logger zerolog.Logger,
) *ClientWeatherBit {
	logger = logger.With().Str("component", "WeatherBitClient").Logger()
	return &ClientWeatherBit{APIKey: apiKey, apiURL: apiURL, client: httpClient, logger: logger}
}

func (s *ClientWeatherBit) Fetch(ctx context.Context, zipCode string) (models.WeatherData, error) {
	start := time.Now()
	url := fmt.Sprintf("%s?postal_code=%s&country=US&key=%s&units=I", s.apiURL, zipCode, s.APIKey)

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
			Msg("error sending HTTP request to WeatherBit")
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
			Msg("WeatherBit API returned non-200 status")
		return models.WeatherData{}, fmt.Errorf("WeatherBit error: status %s", resp.Status)
	}

	var raw weatherBitResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		s.logger.Error().
			Err(err).
			Str("zip", zipCode).
			Msg("failed to decode WeatherBit response")
		return models.WeatherData{}, err
	}

	if len(raw.Data) == 0 {
		return models.WeatherData{}, fmt.Errorf("WeatherBit returned no data for zip %s", zipCode)
	}

	data := models.WeatherData{
		ZipCode:     zipCode,
		TempF:       int(math.Round(raw.Data[0].Temp)),
		Humidity:    int(math.Round(raw.Data[0].Humidity)),
		Conditions:  []string{raw.Data[0].Weather.Description},
		Description: raw.Data[0].Weather.Description,
	}

	s.logger.Info().
		Str("zip", zipCode).
		Dur("duration", time.Since(start)).
		Msg("successfully fetched weather data")

	return data, nil
}

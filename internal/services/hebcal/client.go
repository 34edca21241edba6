package hebcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

const (
	categoryCandles  = "candles"
	categoryHavdalah = "havdalah"
	categoryParashat = "parashat"

	// Closing used when no parsha is listed for the week.
	holidayGreeting = "Chag Somayach!"
)

type feedResponse struct {
	Items []struct {
		Title    string `json:"title"`
		Category string `json:"category"`
	} `json:"items"`
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches candle-lighting, havdalah and parsha entries for a zip
// code from the Hebcal shabbat feed.
type Client struct {
	apiURL       string
	havdalahMins int
	client       HTTPClient
	logger       zerolog.Logger
}

func NewClient(apiURL string, havdalahMins int,
	httpClient HTTPClient, logger zerolog.Logger,
) *Client {
	logger = logger.With().Str("component", "HebcalClient").Logger()
	return &Client{apiURL: apiURL, havdalahMins: havdalahMins, client: httpClient, logger: logger}
}

func (c *Client) Fetch(ctx context.Context, zipCode string) (models.ShabbatTimes, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/?cfg=json&zip=%s&m=%d&a=on", c.apiURL, zipCode, c.havdalahMins)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("zip", zipCode).
			Msg("failed to create HTTP request")
		return models.ShabbatTimes{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("zip", zipCode).
			Msg("error sending HTTP request to Hebcal")
		return models.ShabbatTimes{}, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Error().
				Err(cerr).
				Str("zip", zipCode).
				Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().
			Str("zip", zipCode).
			Str("status", resp.Status).
			Msg("Hebcal API returned non-200 status")
		return models.ShabbatTimes{}, fmt.Errorf("hebcal error: status %s", resp.Status)
	}

	var raw feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.logger.Error().
			Err(err).
			Str("zip", zipCode).
			Msg("failed to decode Hebcal response")
		return models.ShabbatTimes{}, err
	}

	times := parseFeed(raw)
	if times.CandleLighting == "" {
		return models.ShabbatTimes{}, fmt.Errorf("no candle-lighting entry for zip %s", zipCode)
	}
	if times.Havdalah == "" {
		c.logger.Warn().
			Str("zip", zipCode).
			Msg("no havdalah entry in Hebcal feed")
	}

	c.logger.Info().
		Str("zip", zipCode).
		Bool("holiday", times.Holiday).
		Dur("duration", time.Since(start)).
		Msg("fetched shabbat times")

	return times, nil
}

// parseFeed picks the first candle-lighting, havdalah and parsha items
// out of the feed. A week without a parsha entry is a holiday week.
func parseFeed(raw feedResponse) models.ShabbatTimes {
	var times models.ShabbatTimes

	for _, item := range raw.Items {
		switch item.Category {
		case categoryCandles:
			if times.CandleLighting == "" {
				times.CandleLighting = item.Title
			}
		case categoryHavdalah:
			if times.Havdalah == "" {
				times.Havdalah = item.Title
			}
		case categoryParashat:
			if times.Parsha == "" {
				times.Parsha = item.Title + "."
			}
		}
	}

	if times.Parsha == "" {
		times.Parsha = holidayGreeting
		times.Holiday = true
	}

	return times
}

package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type sendResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TwilioClient sends SMS through the Twilio Messages API.
type TwilioClient struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     HTTPClient
	logger     zerolog.Logger
}

func NewTwilioClient(accountSID, authToken, from, baseURL string,
	httpClient HTTPClient, logger zerolog.Logger,
) *TwilioClient {
	logger = logger.With().Str("component", "TwilioClient").Logger()
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    baseURL,
		client:     httpClient,
		logger:     logger,
	}
}

// Send delivers one SMS and returns the provider message SID.
func (c *TwilioClient) Send(ctx context.Context, to, body string) (string, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("to", to).
			Msg("failed to create HTTP request")
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("to", to).
			Msg("error sending HTTP request to Twilio")
		return "", err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Error().
				Err(cerr).
				Str("to", to).
				Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr errorResponse
		if derr := json.NewDecoder(resp.Body).Decode(&apiErr); derr == nil && apiErr.Message != "" {
			c.logger.Error().
				Str("to", to).
				Str("status", resp.Status).
				Int("twilio_code", apiErr.Code).
				Str("twilio_message", apiErr.Message).
				Msg("Twilio rejected the message")
			return "", fmt.Errorf("twilio error %d: %s", apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("twilio error: status %s", resp.Status)
	}

	var raw sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.logger.Error().
			Err(err).
			Str("to", to).
			Msg("failed to decode Twilio response")
		return "", err
	}

	c.logger.Info().
		Str("to", to).
		Str("sid", raw.Sid).
		Str("twilio_status", raw.Status).
		Dur("duration", time.Since(start)).
		Msg("SMS sent")

	return raw.Sid, nil
}

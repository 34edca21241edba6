package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/eruvnet/eruv-alerts-api/internal/config"
	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

// statusHeaderRows is the number of header rows above the first data row
// in every worksheet; sheet row numbers are 1-based.
const statusHeaderRows = 1

// Client reads the three worksheets of the alerts spreadsheet and writes
// the last-notified status back.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	subscribers   string
	communities   string
	status        string
	logger        zerolog.Logger
}

// New builds a client authenticated with a service-account credentials
// file.
func New(ctx context.Context, cfg config.Sheets, logger zerolog.Logger) (*Client, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}
	return NewWithService(svc, cfg, logger), nil
}

// NewWithService wires an already-built sheets service; tests use it with
// an httptest endpoint.
func NewWithService(svc *sheets.Service, cfg config.Sheets, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "SheetsClient").Logger()
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		subscribers:   cfg.SubscribersSheet,
		communities:   cfg.CommunitiesSheet,
		status:        cfg.StatusSheet,
		logger:        logger,
	}
}

// Subscribers reads the Subscribers worksheet: timestamp, phone and a
// comma-separated city list per row.
func (c *Client) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := c.values(ctx, c.subscribers+"!A2:C")
	if err != nil {
		return nil, err
	}

	var subs []models.Subscriber
	for _, row := range rows {
		phone := cellString(row, 1)
		if phone == "" {
			continue
		}
		var cities []string
		for _, city := range strings.Split(cellString(row, 2), ",") {
			if city = strings.TrimSpace(city); city != "" {
				cities = append(cities, city)
			}
		}
		subs = append(subs, models.Subscriber{Phone: phone, Cities: cities})
	}

	c.logger.Info().Int("count", len(subs)).Msg("loaded subscribers")
	return subs, nil
}

// Communities reads the Communities worksheet: contact, city, zip code.
func (c *Client) Communities(ctx context.Context) ([]models.Community, error) {
	rows, err := c.values(ctx, c.communities+"!A2:C")
	if err != nil {
		return nil, err
	}

	var communities []models.Community
	for _, row := range rows {
		city := cellString(row, 1)
		if city == "" {
			continue
		}
		communities = append(communities, models.Community{
			Contact: cellString(row, 0),
			City:    city,
			ZipCode: cellString(row, 2),
		})
	}

	c.logger.Info().Int("count", len(communities)).Msg("loaded communities")
	return communities, nil
}

// Statuses reads the Status worksheet: city, current status and the
// last-notified status. Row carries the sheet row for the write-back.
func (c *Client) Statuses(ctx context.Context) ([]models.CityStatus, error) {
	rows, err := c.values(ctx, c.status+"!A2:C")
	if err != nil {
		return nil, err
	}

	var statuses []models.CityStatus
	for i, row := range rows {
		city := cellString(row, 0)
		if city == "" {
			continue
		}
		statuses = append(statuses, models.CityStatus{
			Row:          i + statusHeaderRows + 1,
			City:         city,
			Status:       cellString(row, 1),
			LastNotified: cellString(row, 2),
		})
	}

	c.logger.Info().Int("count", len(statuses)).Msg("loaded city statuses")
	return statuses, nil
}

// UpdateLastNotified writes the status that was just announced into the
// LastNotified column of the given sheet row.
func (c *Client) UpdateLastNotified(ctx context.Context, row int, status string) error {
	start := time.Now()
	cell := fmt.Sprintf("%s!C%d", c.status, row)

	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("cell", cell).
			Str("status", status).
			Msg("failed to write last-notified status")
		return fmt.Errorf("updating %s: %w", cell, err)
	}

	c.logger.Info().
		Str("cell", cell).
		Str("status", status).
		Dur("duration", time.Since(start)).
		Msg("last-notified status written back")
	return nil
}

func (c *Client) values(ctx context.Context, readRange string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("range", readRange).
			Msg("failed to read worksheet")
		return nil, fmt.Errorf("reading %s: %w", readRange, err)
	}
	return resp.Values, nil
}

func cellString(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, ok := row[idx].(string)
	if !ok {
		return fmt.Sprintf("%v", row[idx])
	}
	return strings.TrimSpace(s)
}

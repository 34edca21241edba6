package status

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

// ErrNoZipCode means a city whose status changed has no community row
// with a zip code, so neither candle-lighting nor weather can be looked
// up. The original sheet is misconfigured; the pass aborts.
var ErrNoZipCode = errors.New("no zip code configured for city")

// CityAlert is one unit of work for the notifier: a changed city, the
// zip code to enrich with, and the phones to notify.
type CityAlert struct {
	Status     models.CityStatus
	ZipCode    string
	Recipients []string
}

// Plan is the outcome of diffing the Status sheet against the
// last-notified column.
type Plan struct {
	Alerts    []CityAlert
	Pending   []string
	Unchanged []string
}

// Service decides which cities need an alert. An alert is planned if and
// only if the current status differs from the last-notified one.
type Service struct {
	logger zerolog.Logger
}

func NewService(logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "StatusService").Logger()
	return &Service{logger: logger}
}

func (s *Service) Plan(
	statuses []models.CityStatus,
	communities []models.Community,
	subscribers []models.Subscriber,
) (Plan, error) {
	zips := make(map[string]string, len(communities))
	for _, community := range communities {
		if _, ok := zips[community.City]; !ok {
			zips[community.City] = community.ZipCode
		}
	}

	recipients := make(map[string][]string)
	for _, sub := range subscribers {
		for _, city := range sub.Cities {
			recipients[city] = append(recipients[city], sub.Phone)
		}
	}

	var plan Plan
	for _, cs := range statuses {
		if cs.Status == models.StatusPending {
			plan.Pending = append(plan.Pending, cs.City)
			continue
		}
		if !cs.Changed() {
			plan.Unchanged = append(plan.Unchanged, cs.City)
			continue
		}

		zip, ok := zips[cs.City]
		if !ok || zip == "" {
			s.logger.Error().
				Str("city", cs.City).
				Msg("changed city has no community zip code")
			return Plan{}, fmt.Errorf("%w: %s", ErrNoZipCode, cs.City)
		}

		plan.Alerts = append(plan.Alerts, CityAlert{
			Status:     cs,
			ZipCode:    zip,
			Recipients: recipients[cs.City],
		})
	}

	s.logger.Info().
		Int("alerts", len(plan.Alerts)).
		Int("pending", len(plan.Pending)).
		Int("unchanged", len(plan.Unchanged)).
		Msg("alert plan built")

	return plan, nil
}

package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/metrics"
	"github.com/eruvnet/eruv-alerts-api/internal/models"
	"github.com/eruvnet/eruv-alerts-api/internal/services/status"
	"github.com/eruvnet/eruv-alerts-api/internal/sms"
)

const (
	TriggerCron   = "cron"
	TriggerManual = "manual"

	resultSent   = "sent"
	resultDryRun = "dry_run"
	resultError  = "error"

	// passTimeout bounds a detached manual pass; with send pacing a large
	// city list can take minutes.
	passTimeout = 15 * time.Minute
)

// ErrPassInProgress is returned when a pass is requested while another
// one is still running. Overlapping passes would both see the same
// un-acknowledged statuses and text every subscriber twice.
var ErrPassInProgress = errors.New("alert pass already running")

type sheetSource interface {
	Statuses(ctx context.Context) ([]models.CityStatus, error)
	Communities(ctx context.Context) ([]models.Community, error)
	Subscribers(ctx context.Context) ([]models.Subscriber, error)
	UpdateLastNotified(ctx context.Context, row int, status string) error
}

type planner interface {
	Plan(
		statuses []models.CityStatus,
		communities []models.Community,
		subscribers []models.Subscriber,
	) (status.Plan, error)
}

type timesGetter interface {
	Fetch(ctx context.Context, zipCode string) (models.ShabbatTimes, error)
}

type weatherGetter interface {
	GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error)
}

type alertComposer interface {
	Compose(city, status string, times models.ShabbatTimes, weather *models.WeatherData) (string, error)
}

type smsSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

type deliveryStore interface {
	RecordDelivery(ctx context.Context, d models.Delivery) error
	UpsertCityStatus(ctx context.Context, cs models.CityStatus) error
}

// Options tune one alert pass.
type Options struct {
	// Schedule is a six-field cron spec (with seconds).
	Schedule string
	// MaxSendDelay is the upper bound, in seconds, of the random pause
	// between sends. Pacing reduces the chance of the provider flagging
	// the burst as spam.
	MaxSendDelay int
	// DryRun composes and records everything but sends nothing and
	// leaves the sheet untouched.
	DryRun bool
}

// Notifier runs the alert pass: diff the Status sheet, enrich changed
// cities with shabbat times and weather, SMS every subscriber, then write
// the announced status back.
type Notifier struct {
	sheet    sheetSource
	planner  planner
	times    timesGetter
	weather  weatherGetter
	composer alertComposer
	sender   smsSender
	store    deliveryStore
	logger   zerolog.Logger
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	runMu    sync.Mutex
	m        *metrics.Metrics
	opts     Options
}

func New(
	sheet sheetSource,
	pl planner,
	times timesGetter,
	weather weatherGetter,
	composer alertComposer,
	sender smsSender,
	store deliveryStore,
	logger zerolog.Logger,
	opts Options,
	m *metrics.Metrics,
) *Notifier {
	logger = logger.With().Str("component", "Notifier").Logger()
	c := cron.New(cron.WithSeconds())
	return &Notifier{
		sheet:    sheet,
		planner:  pl,
		times:    times,
		weather:  weather,
		composer: composer,
		sender:   sender,
		store:    store,
		logger:   logger,
		cron:     c,
		m:        m,
		opts:     opts,
	}
}

// Start schedules the recurring alert pass.
func (n *Notifier) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.ctx = ctx
	n.cancel = cancel

	if _, err := n.cron.AddFunc(n.opts.Schedule, func() {
		n.m.PassJob(TriggerCron, func() {
			if err := n.RunPass(ctx, TriggerCron); err != nil {
				n.logger.Error().Err(err).Msg("scheduled alert pass finished with errors")
			}
		})
	}); err != nil {
		n.logger.Error().Err(err).Msg("failed to schedule alert pass")
		n.m.TechnicalErrors.WithLabelValues("cron_schedule_error", "critical").Inc()
		return
	}

	n.cron.Start()
	n.logger.Info().Str("schedule", n.opts.Schedule).Msg("Eruv alert notifier started")
}

// Stop halts the cron scheduler and cancels any running pass, then waits
// for an in-flight job to finish before returning.
func (n *Notifier) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	<-n.cron.Stop().Done()
	n.logger.Info().Msg("Eruv alert notifier stopped")
}

// RunOnce triggers a single pass outside the schedule.
func (n *Notifier) RunOnce(ctx context.Context) error {
	var err error
	n.m.PassJob(TriggerManual, func() {
		err = n.RunPass(ctx, TriggerManual)
	})
	return err
}

// RunDetached starts a manual pass in the background, bounded by the pass
// timeout and cancelled when the notifier stops. It fails fast with
// ErrPassInProgress instead of queueing behind a running pass.
func (n *Notifier) RunDetached() error {
	if !n.runMu.TryLock() {
		return ErrPassInProgress
	}

	go func() {
		defer n.runMu.Unlock()

		ctx, cancel := context.WithTimeout(n.passContext(), passTimeout)
		defer cancel()
		n.m.PassJob(TriggerManual, func() {
			if err := n.runPass(ctx, TriggerManual); err != nil {
				n.logger.Error().Err(err).Msg("manual alert pass finished with errors")
			}
		})
	}()

	return nil
}

// RunPass executes one full alert pass, or returns ErrPassInProgress when
// one is already running.
func (n *Notifier) RunPass(ctx context.Context, trigger string) error {
	if !n.runMu.TryLock() {
		n.logger.Warn().Str("trigger", trigger).Msg("alert pass already running, skipping")
		return ErrPassInProgress
	}
	defer n.runMu.Unlock()

	return n.runPass(ctx, trigger)
}

// passContext is the parent of detached passes; before Start it falls
// back to the background context.
func (n *Notifier) passContext() context.Context {
	if n.ctx != nil {
		return n.ctx
	}
	return context.Background()
}

// runPass is one full alert pass. Per-city failures are collected rather
// than aborting the remaining cities. Callers hold runMu.
func (n *Notifier) runPass(ctx context.Context, trigger string) error {
	start := time.Now()
	n.logger.Info().Str("trigger", trigger).Bool("dry_run", n.opts.DryRun).Msg("alert pass starting")

	statuses, err := n.sheet.Statuses(ctx)
	if err != nil {
		n.m.TechnicalErrors.WithLabelValues("sheet_read_error", "critical").Inc()
		return fmt.Errorf("loading statuses: %w", err)
	}
	communities, err := n.sheet.Communities(ctx)
	if err != nil {
		n.m.TechnicalErrors.WithLabelValues("sheet_read_error", "critical").Inc()
		return fmt.Errorf("loading communities: %w", err)
	}
	subscribers, err := n.sheet.Subscribers(ctx)
	if err != nil {
		n.m.TechnicalErrors.WithLabelValues("sheet_read_error", "critical").Inc()
		return fmt.Errorf("loading subscribers: %w", err)
	}

	// Keep the local snapshot fresh even for cities that need no alert.
	for _, cs := range statuses {
		if err := n.store.UpsertCityStatus(ctx, cs); err != nil {
			n.logger.Error().Err(err).Str("city", cs.City).Msg("failed to mirror city status")
		}
	}

	plan, err := n.planner.Plan(statuses, communities, subscribers)
	if err != nil {
		n.m.BusinessErrors.WithLabelValues("plan_error", "critical").Inc()
		return fmt.Errorf("planning pass: %w", err)
	}

	n.m.CitiesSkipped.WithLabelValues("pending").Add(float64(len(plan.Pending)))
	n.m.CitiesSkipped.WithLabelValues("unchanged").Add(float64(len(plan.Unchanged)))

	var passErrs []error
	for _, alert := range plan.Alerts {
		if err := n.notifyCity(ctx, alert); err != nil {
			n.logger.Error().Err(err).
				Str("city", alert.Status.City).
				Msg("city alert failed")
			passErrs = append(passErrs, fmt.Errorf("%s: %w", alert.Status.City, err))
		}
	}

	n.logger.Info().
		Str("trigger", trigger).
		Int("alerted_cities", len(plan.Alerts)-len(passErrs)).
		Int("failed_cities", len(passErrs)).
		Dur("duration", time.Since(start)).
		Msg("alert pass finished")

	return errors.Join(passErrs...)
}

// notifyCity sends the alert for one changed city. The sheet write-back
// happens only after every subscriber send succeeded, so a failed city is
// retried whole on the next pass.
func (n *Notifier) notifyCity(ctx context.Context, alert status.CityAlert) error {
	city := alert.Status.City

	times, err := n.times.Fetch(ctx, alert.ZipCode)
	if err != nil {
		n.m.TechnicalErrors.WithLabelValues("hebcal_fetch_error", "critical").Inc()
		return fmt.Errorf("fetching shabbat times: %w", err)
	}

	// Weather is enrichment only; a dark provider chain must not block
	// the alert.
	var weather *models.WeatherData
	if data, werr := n.weather.GetByZip(ctx, alert.ZipCode); werr != nil {
		n.logger.Warn().Err(werr).
			Str("city", city).
			Str("zip", alert.ZipCode).
			Msg("weather lookup failed, sending without it")
		n.m.TechnicalErrors.WithLabelValues("weather_fetch_error", "warning").Inc()
	} else {
		weather = &data
	}

	body, err := n.composer.Compose(city, alert.Status.Status, times, weather)
	if err != nil {
		n.m.BusinessErrors.WithLabelValues("compose_error", "critical").Inc()
		return err
	}

	population := 0
	for _, phone := range alert.Recipients {
		to := sms.NormalizePhone(phone)

		if n.opts.DryRun {
			n.logger.Info().
				Str("city", city).
				Str("to", to).
				Str("body", body).
				Msg("dry run, not sending")
			n.m.AlertsSent.WithLabelValues(city, resultDryRun).Inc()
			n.recordDelivery(ctx, city, to, alert.Status.Status, body, true)
			population++
			continue
		}

		if _, err := n.sender.Send(ctx, to, body); err != nil {
			n.m.AlertsSent.WithLabelValues(city, resultError).Inc()
			n.m.TechnicalErrors.WithLabelValues("sms_send_error", "critical").Inc()
			return fmt.Errorf("sending to %s: %w", to, err)
		}
		n.m.AlertsSent.WithLabelValues(city, resultSent).Inc()
		n.recordDelivery(ctx, city, to, alert.Status.Status, body, false)
		population++

		if err := n.pace(ctx); err != nil {
			return err
		}
	}

	n.logger.Info().
		Str("city", city).
		Int("population", population).
		Bool("dry_run", n.opts.DryRun).
		Msg("subscribers notified")

	if n.opts.DryRun {
		return nil
	}

	if err := n.sheet.UpdateLastNotified(ctx, alert.Status.Row, alert.Status.Status); err != nil {
		n.m.TechnicalErrors.WithLabelValues("sheet_write_error", "critical").Inc()
		return fmt.Errorf("writing back status: %w", err)
	}

	updated := alert.Status
	updated.LastNotified = updated.Status
	if err := n.store.UpsertCityStatus(ctx, updated); err != nil {
		n.logger.Error().Err(err).Str("city", city).Msg("failed to mirror updated status")
	}

	return nil
}

func (n *Notifier) recordDelivery(ctx context.Context, city, phone, cityStatus, body string, dryRun bool) {
	err := n.store.RecordDelivery(ctx, models.Delivery{
		City:   city,
		Phone:  phone,
		Status: cityStatus,
		Body:   body,
		DryRun: dryRun,
		SentAt: time.Now(),
	})
	if err != nil {
		n.logger.Error().Err(err).
			Str("city", city).
			Str("phone", phone).
			Msg("failed to record delivery")
	}
}

// pace sleeps a random interval between sends.
func (n *Notifier) pace(ctx context.Context) error {
	if n.opts.MaxSendDelay <= 0 {
		return nil
	}
	delay := time.Duration(rand.Intn(n.opts.MaxSendDelay+1)) * time.Second
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

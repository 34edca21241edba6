package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/metrics"
	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

// DeliveryRepository is the local audit store: every sent (or dry-run)
// SMS is recorded here, together with a mirror of the city statuses the
// admin API serves without hitting the spreadsheet.
type DeliveryRepository struct {
	DB  *sql.DB
	log zerolog.Logger
	m   *metrics.Metrics
}

func NewDeliveryRepository(db *sql.DB, logger zerolog.Logger, m *metrics.Metrics) *DeliveryRepository {
	logger = logger.With().Str("component", "DeliveryRepository").Logger()
	return &DeliveryRepository{DB: db, log: logger, m: m}
}

// RecordDelivery appends one delivery to the log.
func (r *DeliveryRepository) RecordDelivery(ctx context.Context, d models.Delivery) error {
	start := time.Now()

	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO deliveries (city, phone, status, body, dry_run, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.City, d.Phone, d.Status, d.Body, d.DryRun, d.SentAt,
	)
	dur := time.Since(start)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).
			Str("city", d.City).
			Str("phone", d.Phone).
			Msg("failed to insert delivery")
		r.m.TechnicalErrors.WithLabelValues("db_insert_error", "critical").Inc()
		return err
	}

	r.log.Debug().Ctx(ctx).
		Str("city", d.City).
		Str("phone", d.Phone).
		Dur("duration", dur).
		Msg("delivery recorded")
	return nil
}

// RecentDeliveries returns the newest entries of the delivery log.
func (r *DeliveryRepository) RecentDeliveries(ctx context.Context, limit int) ([]models.Delivery, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, city, phone, status, body, dry_run, sent_at
		FROM deliveries
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).
			Msg("failed to query deliveries")
		r.m.TechnicalErrors.WithLabelValues("db_query_error", "critical").Inc()
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if cerr := rows.Close(); cerr != nil {
			r.log.Error().Err(cerr).Ctx(ctx).Msg("failed to close rows")
		}
	}(rows)

	var deliveries []models.Delivery
	for rows.Next() {
		var d models.Delivery
		if err := rows.Scan(&d.ID, &d.City, &d.Phone, &d.Status, &d.Body, &d.DryRun, &d.SentAt); err != nil {
			r.log.Error().Err(err).Ctx(ctx).
				Msg("failed to scan delivery row")
			r.m.TechnicalErrors.WithLabelValues("db_scan_error", "critical").Inc()
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		r.log.Error().Err(err).Ctx(ctx).Msg("row iteration error")
		r.m.TechnicalErrors.WithLabelValues("db_rows_error", "critical").Inc()
		return nil, err
	}

	return deliveries, nil
}

// UpsertCityStatus mirrors one Status-sheet row into the local snapshot.
func (r *DeliveryRepository) UpsertCityStatus(ctx context.Context, cs models.CityStatus) error {
	start := time.Now()

	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO city_statuses (city, status, last_notified, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(city) DO UPDATE SET
		     status = excluded.status,
		     last_notified = excluded.last_notified,
		     updated_at = excluded.updated_at`,
		cs.City, cs.Status, cs.LastNotified, time.Now(),
	)
	dur := time.Since(start)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).
			Str("city", cs.City).
			Msg("failed to upsert city status")
		r.m.TechnicalErrors.WithLabelValues("db_upsert_error", "critical").Inc()
		return err
	}

	r.log.Debug().Ctx(ctx).
		Str("city", cs.City).
		Str("status", cs.Status).
		Dur("duration", dur).
		Msg("city status mirrored")
	return nil
}

// CityStatuses returns the local snapshot of the Status sheet.
func (r *DeliveryRepository) CityStatuses(ctx context.Context) ([]models.CityStatus, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT city, status, last_notified
		FROM city_statuses
		ORDER BY city`,
	)
	if err != nil {
		r.log.Error().Err(err).Ctx(ctx).
			Msg("failed to query city statuses")
		r.m.TechnicalErrors.WithLabelValues("db_query_error", "critical").Inc()
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if cerr := rows.Close(); cerr != nil {
			r.log.Error().Err(cerr).Ctx(ctx).Msg("failed to close rows")
		}
	}(rows)

	var statuses []models.CityStatus
	for rows.Next() {
		var cs models.CityStatus
		if err := rows.Scan(&cs.City, &cs.Status, &cs.LastNotified); err != nil {
			r.log.Error().Err(err).Ctx(ctx).
				Msg("failed to scan city status row")
			r.m.TechnicalErrors.WithLabelValues("db_scan_error", "critical").Inc()
			return nil, err
		}
		statuses = append(statuses, cs)
	}

	return statuses, rows.Err()
}

package alerts

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
	"github.com/eruvnet/eruv-alerts-api/internal/notifier"
)

const (
	queryTimeout = 10 * time.Second

	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 500
)

type statusStore interface {
	CityStatuses(ctx context.Context) ([]models.CityStatus, error)
	RecentDeliveries(ctx context.Context, limit int) ([]models.Delivery, error)
}

type passRunner interface {
	RunDetached() error
}

// Handler serves the admin API for the alerts service.
type Handler struct {
	store  statusStore
	runner passRunner
	logger zerolog.Logger
}

func NewHandler(store statusStore, runner passRunner, logger zerolog.Logger) *Handler {
	logger = logger.With().Str("component", "AlertsHandler").Logger()
	return &Handler{store: store, runner: runner, logger: logger}
}

// Statuses
// @Summary List city statuses
// @Description Returns the mirrored Status sheet: every city with its current and last-notified eruv status.
// @Tags alerts
// @Produce json
// @Success 200
// @Failure 500
// @Router /statuses [get]
func (h *Handler) Statuses(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	statuses, err := h.store.CityStatuses(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load city statuses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

// Deliveries
// @Summary List recent deliveries
// @Description Returns the newest entries of the SMS delivery log.
// @Tags alerts
// @Produce json
// @Param limit query int false "Maximum entries to return" default(50)
// @Success 200
// @Failure 400
// @Failure 500
// @Router /deliveries [get]
func (h *Handler) Deliveries(c *gin.Context) {
	limit := defaultDeliveryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxDeliveryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	deliveries, err := h.store.RecentDeliveries(ctx, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load deliveries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

// Run
// @Summary Trigger an alert pass
// @Description Starts an alert pass outside the cron schedule. The pass runs in the background.
// @Tags alerts
// @Produce json
// @Success 202
// @Failure 409
// @Router /run [post]
func (h *Handler) Run(c *gin.Context) {
	// The pass can take minutes with send pacing, so it runs detached
	// from the request.
	if err := h.runner.RunDetached(); err != nil {
		if errors.Is(err, notifier.ErrPassInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "an alert pass is already running"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to start manual alert pass")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Alert pass started"})
}

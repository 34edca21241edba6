package weather

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eruvnet/eruv-alerts-api/internal/models"
)

const timeoutDuration = 10 * time.Second

type WeatherServicer interface {
	GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error)
}

// Handler exposes the weather provider chain for debugging which report
// a city's alert would carry.
type Handler struct {
	Service WeatherServicer
}

func NewHandler(svc WeatherServicer) *Handler {
	return &Handler{Service: svc}
}

// GetWeather
// @Summary Get current weather
// @Description Returns the current conditions for a US zip code as seen by the provider chain.
// @Tags weather
// @Produce json
// @Param zip query string true "US zip code"
// @Success 200 {object} models.WeatherData
// @Failure 400
// @Failure 500
// @Router /weather [get]
func (h *Handler) GetWeather(c *gin.Context) {
	zip := c.Query("zip")
	if zip == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zip query parameter is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeoutDuration)
	defer cancel()

	data, err := h.Service.GetByZip(ctx, zip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, data)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/artpro/etftracker/pkg/models"
	"github.com/artpro/etftracker/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// CheckRunner triggers one scheduler pass on demand
type CheckRunner interface {
	RunCheck()
}

// PortfolioHandler serves the dashboard summary and alert history
type PortfolioHandler struct {
	db        *gorm.DB
	logger    zerolog.Logger
	portfolio *services.PortfolioService
	checker   CheckRunner
}

// NewPortfolioHandler creates a new portfolio handler. checker may be nil
// when no scheduler is running (serverless mode).
func NewPortfolioHandler(db *gorm.DB, logger zerolog.Logger, portfolio *services.PortfolioService, checker CheckRunner) *PortfolioHandler {
	return &PortfolioHandler{
		db:        db,
		logger:    logger,
		portfolio: portfolio,
		checker:   checker,
	}
}

// GetPortfolioSummary returns current holdings, P/L and YTD performance
func (h *PortfolioHandler) GetPortfolioSummary(c *gin.Context) {
	summary, err := h.portfolio.Calculate(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to calculate portfolio")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate portfolio"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// AlertHistoryEntry is one row of the alert history, with the drop computed
// against the ATH snapshotted at alert time
type AlertHistoryEntry struct {
	ID          uint      `json:"id"`
	Ticker      string    `json:"ticker"`
	Price       float64   `json:"price"`
	ATHPrice    float64   `json:"ath_price"`
	DropPercent float64   `json:"drop_percent"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetAlerts returns the alert history, newest first
func (h *PortfolioHandler) GetAlerts(c *gin.Context) {
	var entries []AlertHistoryEntry
	err := h.db.Table("alerts").
		Select("alerts.id, etfs.ticker, alerts.price, alerts.ath_price, alerts.created_at").
		Joins("JOIN etfs ON etfs.id = alerts.etf_id").
		Order("alerts.created_at DESC").
		Limit(100).
		Scan(&entries).Error
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts"})
		return
	}

	for i := range entries {
		if entries[i].ATHPrice > 0 {
			entries[i].DropPercent = (entries[i].ATHPrice - entries[i].Price) / entries[i].ATHPrice * 100
		}
	}

	c.JSON(http.StatusOK, entries)
}

// DeleteAlert deletes one alert record
func (h *PortfolioHandler) DeleteAlert(c *gin.Context) {
	if err := h.db.Delete(&models.Alert{}, c.Param("id")).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to delete alert")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted successfully"})
}

// RunCheck triggers a price-check pass outside the regular schedule
func (h *PortfolioHandler) RunCheck(c *gin.Context) {
	if h.checker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not available"})
		return
	}

	go h.checker.RunCheck()
	c.JSON(http.StatusAccepted, gin.H{"message": "Price check started"})
}

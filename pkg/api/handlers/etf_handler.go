package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/artpro/etftracker/pkg/config"
	"github.com/artpro/etftracker/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ETFHandler handles ETF CRUD and alert-state administration
type ETFHandler struct {
	db     *gorm.DB
	cfg    *config.Config
	logger zerolog.Logger
}

// NewETFHandler creates a new ETF handler
func NewETFHandler(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) *ETFHandler {
	return &ETFHandler{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateETFRequest represents the request to register a ticker
type CreateETFRequest struct {
	Ticker        string  `json:"ticker" binding:"required"`
	DropThreshold float64 `json:"drop_threshold" binding:"gte=0"`
}

// UpdateETFRequest represents the request to change an ETF's threshold
type UpdateETFRequest struct {
	DropThreshold float64 `json:"drop_threshold" binding:"required,gt=0"`
}

// GetAllETFs returns all tracked ETFs
func (h *ETFHandler) GetAllETFs(c *gin.Context) {
	var etfs []models.ETF
	if err := h.db.Order("ticker ASC").Find(&etfs).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch ETFs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ETFs"})
		return
	}

	c.JSON(http.StatusOK, etfs)
}

// GetETF returns a single ETF with its purchases
func (h *ETFHandler) GetETF(c *gin.Context) {
	var etf models.ETF
	if err := h.db.Preload("Purchases").First(&etf, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ETF not found"})
		return
	}

	c.JSON(http.StatusOK, etf)
}

// CreateETF registers a new ticker. The ATH stays unset until the first
// scheduler pass fetches it.
func (h *ETFHandler) CreateETF(c *gin.Context) {
	var req CreateETFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	threshold := req.DropThreshold
	if threshold == 0 {
		threshold = 5.0
	}

	etf := models.ETF{
		Ticker:        strings.ToUpper(strings.TrimSpace(req.Ticker)),
		DropThreshold: threshold,
	}

	if err := h.db.Create(&etf).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "ETF with this ticker already exists"})
		return
	}

	h.logger.Info().Str("ticker", etf.Ticker).Msg("ETF created")
	c.JSON(http.StatusCreated, etf)
}

// UpdateETF changes the drop threshold
func (h *ETFHandler) UpdateETF(c *gin.Context) {
	var req UpdateETFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var etf models.ETF
	if err := h.db.First(&etf, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ETF not found"})
		return
	}

	etf.DropThreshold = req.DropThreshold
	if err := h.db.Save(&etf).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to update ETF")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update ETF"})
		return
	}

	c.JSON(http.StatusOK, etf)
}

// DeleteETF removes a ticker and its alerts. Rejected while purchases exist.
func (h *ETFHandler) DeleteETF(c *gin.Context) {
	var etf models.ETF
	if err := h.db.First(&etf, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ETF not found"})
		return
	}

	var purchaseCount int64
	if err := h.db.Model(&models.Purchase{}).Where("etf_id = ?", etf.ID).Count(&purchaseCount).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to count purchases")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete ETF"})
		return
	}
	if purchaseCount > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ETF cannot be deleted because it has purchases"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("etf_id = ?", etf.ID).Delete(&models.Alert{}).Error; err != nil {
			return err
		}
		return tx.Delete(&etf).Error
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to delete ETF")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete ETF"})
		return
	}

	h.logger.Info().Str("ticker", etf.Ticker).Msg("ETF deleted")
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": etf.ID})
}

// ResetAlertState clears the alert-sent flag, stamps the manual reset time
// and drops the ETF's alert history
func (h *ETFHandler) ResetAlertState(c *gin.Context) {
	var etf models.ETF
	if err := h.db.First(&etf, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ETF not found"})
		return
	}

	now := time.Now().UTC()
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("etf_id = ?", etf.ID).Delete(&models.Alert{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ETF{}).Where("id = ?", etf.ID).Updates(map[string]interface{}{
			"ath_alert_sent":  false,
			"manual_reset_at": now,
		}).Error
	})
	if err != nil {
		h.logger.Error().Err(err).Str("ticker", etf.Ticker).Msg("Failed to reset alert state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset alert state"})
		return
	}

	h.logger.Info().Str("ticker", etf.Ticker).Msg("Alert state manually reset")
	c.JSON(http.StatusOK, gin.H{"status": "reset", "id": etf.ID})
}

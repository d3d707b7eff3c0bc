package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/artpro/etftracker/pkg/models"
	"github.com/artpro/etftracker/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PurchaseHandler handles buy/sell lot CRUD. Every mutation invalidates the
// current year's YTD baseline so the next portfolio read recomputes it.
type PurchaseHandler struct {
	db        *gorm.DB
	logger    zerolog.Logger
	portfolio *services.PortfolioService
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(db *gorm.DB, logger zerolog.Logger, portfolio *services.PortfolioService) *PurchaseHandler {
	return &PurchaseHandler{
		db:        db,
		logger:    logger,
		portfolio: portfolio,
	}
}

// PurchaseRequest represents a buy or sell lot submission. ETFID is taken
// from the body on create and from the existing row on update.
type PurchaseRequest struct {
	ETFID       uint    `json:"etf_id"`
	Side        string  `json:"side" binding:"required,oneof=BUY SELL"`
	Units       float64 `json:"units" binding:"required,gt=0"`
	Price       float64 `json:"price" binding:"required,gt=0"`
	PurchasedAt string  `json:"purchased_at" binding:"required"`
	Currency    string  `json:"currency"`
	Comment     string  `json:"comment"`
}

func parsePurchaseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid purchased_at %q", value)
	}
	return t.UTC(), nil
}

// signedUnits validates a sell against the units held as of its date and
// returns the signed unit count to persist. A sell may never drive the
// cumulative position negative.
func (h *PurchaseHandler) signedUnits(req *PurchaseRequest, purchasedAt time.Time, excludeID uint) (float64, error) {
	if req.Side != "SELL" {
		return req.Units, nil
	}

	available, err := services.AvailableUnits(h.db, req.ETFID, purchasedAt, excludeID)
	if err != nil {
		return 0, err
	}
	if req.Units > available {
		return 0, fmt.Errorf("cannot sell %g, only %g available", req.Units, available)
	}
	return -req.Units, nil
}

// ListPurchases returns all purchases, optionally filtered by etf_id
func (h *PurchaseHandler) ListPurchases(c *gin.Context) {
	query := h.db.Order("purchased_at ASC")
	if etfID := c.Query("etf_id"); etfID != "" {
		query = query.Where("etf_id = ?", etfID)
	}

	var purchases []models.Purchase
	if err := query.Find(&purchases).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to fetch purchases")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch purchases"})
		return
	}

	c.JSON(http.StatusOK, purchases)
}

// GetPurchase returns a single purchase
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	var purchase models.Purchase
	if err := h.db.First(&purchase, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		return
	}

	c.JSON(http.StatusOK, purchase)
}

// CreatePurchase records a new buy or sell lot
func (h *PurchaseHandler) CreatePurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var etf models.ETF
	if err := h.db.First(&etf, req.ETFID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ETF not found"})
		return
	}

	purchasedAt, err := parsePurchaseDate(req.PurchasedAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	units, err := h.signedUnits(&req, purchasedAt, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "EUR"
	}

	purchase := models.Purchase{
		ETFID:       req.ETFID,
		Units:       units,
		Price:       req.Price,
		PurchasedAt: purchasedAt,
		Currency:    currency,
		Comment:     req.Comment,
	}

	if err := h.db.Create(&purchase).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to create purchase")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create purchase"})
		return
	}

	h.invalidateYTD()
	c.JSON(http.StatusCreated, purchase)
}

// UpdatePurchase edits an existing lot, re-validating the sell invariant
// with the edited lot excluded from the running sum
func (h *PurchaseHandler) UpdatePurchase(c *gin.Context) {
	var purchase models.Purchase
	if err := h.db.First(&purchase, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	req.ETFID = purchase.ETFID

	purchasedAt, err := parsePurchaseDate(req.PurchasedAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	units, err := h.signedUnits(&req, purchasedAt, purchase.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	purchase.Units = units
	purchase.Price = req.Price
	purchase.PurchasedAt = purchasedAt
	if req.Currency != "" {
		purchase.Currency = strings.ToUpper(req.Currency)
	}
	purchase.Comment = req.Comment

	if err := h.db.Save(&purchase).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to update purchase")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update purchase"})
		return
	}

	h.invalidateYTD()
	c.JSON(http.StatusOK, purchase)
}

// DeletePurchase removes a lot
func (h *PurchaseHandler) DeletePurchase(c *gin.Context) {
	var purchase models.Purchase
	if err := h.db.First(&purchase, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		return
	}

	if err := h.db.Delete(&purchase).Error; err != nil {
		h.logger.Error().Err(err).Msg("Failed to delete purchase")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete purchase"})
		return
	}

	h.invalidateYTD()
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": purchase.ID})
}

func (h *PurchaseHandler) invalidateYTD() {
	year := time.Now().UTC().Year()
	if err := h.portfolio.InvalidateYTD(year); err != nil {
		h.logger.Error().Err(err).Int("year", year).Msg("Failed to invalidate YTD baseline")
	}
}

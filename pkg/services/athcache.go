package services

import (
	"context"
	"time"

	"github.com/artpro/etftracker/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ATHCache lazily maintains the all-time-high close price per ETF.
// Every write of the ATH also clears the alert-sent flag and the manual
// reset marker, which is what reopens alerting for the new cycle.
type ATHCache struct {
	db     *gorm.DB
	prices PriceSource
	logger zerolog.Logger
}

// NewATHCache creates a new ATH cache
func NewATHCache(db *gorm.DB, prices PriceSource, logger zerolog.Logger) *ATHCache {
	return &ATHCache{
		db:     db,
		prices: prices,
		logger: logger,
	}
}

// GetOrCreate returns the stored ATH without any I/O when it is already set.
// Otherwise it fetches the all-time high from the price source, persists it,
// and returns it. When the source has no data the ETF row is left untouched
// so the next cycle retries.
func (c *ATHCache) GetOrCreate(ctx context.Context, etf *models.ETF) (float64, error) {
	if etf.ATHPrice != nil {
		return *etf.ATHPrice, nil
	}

	ath, err := c.prices.AllTimeHigh(ctx, etf.Ticker)
	if err != nil {
		return 0, err
	}

	if err := c.persistATH(etf, ath); err != nil {
		return 0, err
	}

	c.logger.Info().Str("ticker", etf.Ticker).Float64("ath", ath).Msg("ATH cache initialized")
	return ath, nil
}

// UpdateIfNew persists the current price as the new ATH when it exceeds the
// stored one (or none is stored yet). Returns true when a new ATH cycle
// has begun.
func (c *ATHCache) UpdateIfNew(ctx context.Context, etf *models.ETF, currentPrice float64) (bool, error) {
	if etf.ATHPrice != nil && currentPrice <= *etf.ATHPrice {
		return false, nil
	}

	if err := c.persistATH(etf, currentPrice); err != nil {
		return false, err
	}

	c.logger.Info().Str("ticker", etf.Ticker).Float64("ath", currentPrice).Msg("New ATH recorded")
	return true, nil
}

// persistATH writes the ATH and atomically resets the alert state
func (c *ATHCache) persistATH(etf *models.ETF, price float64) error {
	now := time.Now().UTC()

	err := c.db.Model(&models.ETF{}).Where("id = ?", etf.ID).Updates(map[string]interface{}{
		"ath_price":       price,
		"ath_updated_at":  now,
		"ath_alert_sent":  false,
		"manual_reset_at": nil,
	}).Error
	if err != nil {
		return err
	}

	etf.ATHPrice = &price
	etf.ATHUpdatedAt = &now
	etf.ATHAlertSent = false
	etf.ManualResetAt = nil
	return nil
}

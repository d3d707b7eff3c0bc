package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/artpro/etftracker/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const unitsEpsilon = 1e-9

// PortfolioRow is one ETF position in the portfolio summary
type PortfolioRow struct {
	Ticker       string  `json:"ticker"`
	Units        float64 `json:"units"`
	AvgBuy       float64 `json:"avg_buy"`
	Invested     float64 `json:"invested"`
	CurrentPrice float64 `json:"current_price"`
	CurrentValue float64 `json:"current_value"`
	PLEur        float64 `json:"pl_eur"`
	PLPercent    float64 `json:"pl_percent"`
	Allocation   float64 `json:"allocation"`
}

// PortfolioTotals aggregates all rows plus year-to-date performance
type PortfolioTotals struct {
	Invested     float64 `json:"invested"`
	CurrentValue float64 `json:"current_value"`
	PLEur        float64 `json:"pl_eur"`
	PLPercent    float64 `json:"pl_percent"`
	YTDEur       float64 `json:"ytd_eur"`
	YTDPercent   float64 `json:"ytd_percent"`
}

// PortfolioSummary is the dashboard payload: per-ETF rows and totals
type PortfolioSummary struct {
	Rows   []PortfolioRow  `json:"rows"`
	Totals PortfolioTotals `json:"totals"`
}

// PortfolioService aggregates purchase lots into holdings, valuation and
// P/L, and maintains the cached start-of-year baseline for YTD figures
type PortfolioService struct {
	db     *gorm.DB
	prices PriceSource
	logger zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(db *gorm.DB, prices PriceSource, logger zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		db:     db,
		prices: prices,
		logger: logger,
	}
}

// Calculate builds the portfolio summary. A failed price fetch values the
// position at zero instead of failing the whole computation.
func (s *PortfolioService) Calculate(ctx context.Context) (*PortfolioSummary, error) {
	year := time.Now().UTC().Year()
	if err := s.EnsureYTD(ctx, year); err != nil {
		s.logger.Warn().Err(err).Int("year", year).Msg("Failed to ensure YTD baseline")
	}
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	var etfs []models.ETF
	if err := s.db.Preload("Purchases").Find(&etfs).Error; err != nil {
		return nil, err
	}

	rows := make([]PortfolioRow, 0, len(etfs))
	totalCurrentValue := 0.0
	totalInvested := 0.0
	cashFlowsYTD := 0.0

	for _, etf := range etfs {
		units := 0.0
		invested := 0.0
		for _, p := range etf.Purchases {
			units += p.Units
			invested += p.Units * p.Price
			if !p.PurchasedAt.Before(yearStart) {
				cashFlowsYTD += p.Units * p.Price
			}
		}

		if math.Abs(units) < unitsEpsilon {
			continue
		}

		currentPrice, err := s.prices.CurrentPrice(ctx, etf.Ticker)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", etf.Ticker).Msg("Price unavailable, valuing position at zero")
			currentPrice = 0
		}
		currentValue := units * currentPrice

		totalCurrentValue += currentValue
		totalInvested += invested

		rows = append(rows, PortfolioRow{
			Ticker:       etf.Ticker,
			Units:        units,
			AvgBuy:       invested / units,
			Invested:     invested,
			CurrentPrice: currentPrice,
			CurrentValue: currentValue,
		})
	}

	for i := range rows {
		rows[i].PLEur = rows[i].CurrentValue - rows[i].Invested
		if rows[i].Invested > 0 {
			rows[i].PLPercent = rows[i].PLEur / rows[i].Invested * 100
		}
		if totalCurrentValue > 0 {
			rows[i].Allocation = rows[i].CurrentValue / totalCurrentValue * 100
		}
	}

	totals := PortfolioTotals{
		Invested:     totalInvested,
		CurrentValue: totalCurrentValue,
		PLEur:        totalCurrentValue - totalInvested,
	}
	if totalInvested > 0 {
		totals.PLPercent = totals.PLEur / totalInvested * 100
	}

	var ytdRow models.PortfolioYTD
	startValue := 0.0
	if err := s.db.Where("year = ?", year).First(&ytdRow).Error; err == nil {
		startValue = ytdRow.StartValue
	}

	// New money in during the year is subtracted out so YTD isolates
	// market-driven gain
	totals.YTDEur = totalCurrentValue - startValue - cashFlowsYTD
	if startValue > 0 {
		totals.YTDPercent = totals.YTDEur / startValue * 100
	}

	return &PortfolioSummary{Rows: rows, Totals: totals}, nil
}

// EnsureYTD computes and caches the portfolio's start-of-year value for the
// given year, once. Holdings are the net units from purchases dated strictly
// before January 1, valued at the close on (or latest before) that date.
func (s *PortfolioService) EnsureYTD(ctx context.Context, year int) error {
	var existing models.PortfolioYTD
	err := s.db.Where("year = ?", year).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)

	var etfs []models.ETF
	if err := s.db.Preload("Purchases").Find(&etfs).Error; err != nil {
		return err
	}

	startValue := 0.0
	for _, etf := range etfs {
		units := 0.0
		for _, p := range etf.Purchases {
			if p.PurchasedAt.Before(yearStart) {
				units += p.Units
			}
		}
		if math.Abs(units) < unitsEpsilon {
			continue
		}

		price, err := s.prices.HistoricalPrice(ctx, etf.Ticker, yearStart)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", etf.Ticker).Msg("No historical price for YTD baseline")
			continue
		}

		startValue += units * price
	}

	return s.db.Create(&models.PortfolioYTD{
		Year:       year,
		StartValue: startValue,
	}).Error
}

// InvalidateYTD deletes the cached baseline for the year. Called after every
// purchase mutation so the next read recomputes with up-to-date lot history.
func (s *PortfolioService) InvalidateYTD(year int) error {
	return s.db.Where("year = ?", year).Delete(&models.PortfolioYTD{}).Error
}

// AvailableUnits returns the cumulative units held for an ETF as of the
// given date. excludeID skips one purchase row, for edits of an existing lot.
func AvailableUnits(db *gorm.DB, etfID uint, until time.Time, excludeID uint) (float64, error) {
	query := db.Model(&models.Purchase{}).
		Where("etf_id = ? AND purchased_at <= ?", etfID, until)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var total float64
	err := query.Select("COALESCE(SUM(units), 0)").Scan(&total).Error
	return total, err
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/artpro/etftracker/pkg/config"
	"github.com/artpro/etftracker/pkg/models"
	"github.com/artpro/etftracker/pkg/services"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Per-ETF budget covering one current-price fetch plus a possible
// all-time-high backfill
const etfTimeout = 30 * time.Second

// Scheduler runs the periodic price-check pass over all tracked ETFs.
// Passes never overlap: the cron job runs in singleton mode and manual
// triggers serialize on the same mutex.
type Scheduler struct {
	db       *gorm.DB
	cfg      *config.Config
	logger   zerolog.Logger
	prices   services.PriceSource
	mailer   services.AlertMailer
	athCache *services.ATHCache
	cron     *gocron.Scheduler

	checkMu sync.Mutex
}

// New creates a scheduler with injected dependencies. Start must be called
// to begin periodic checks.
func New(db *gorm.DB, cfg *config.Config, logger zerolog.Logger, prices services.PriceSource, mailer services.AlertMailer) *Scheduler {
	return &Scheduler{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		prices:   prices,
		mailer:   mailer,
		athCache: services.NewATHCache(db, prices, logger),
		cron:     gocron.NewScheduler(time.UTC),
	}
}

// Start begins the periodic price-check job
func (s *Scheduler) Start() error {
	interval := s.cfg.CheckIntervalMinutes

	_, err := s.cron.Every(interval).Minutes().SingletonMode().Do(s.RunCheck)
	if err != nil {
		return fmt.Errorf("schedule price check: %w", err)
	}

	s.cron.StartAsync()
	s.logger.Info().Int("interval_minutes", interval).Msg("Scheduler started")
	return nil
}

// Stop halts the periodic job; a pass already in flight runs to completion
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunCheck executes one price-check pass over all tracked ETFs. Each ETF is
// processed independently; a failure is logged and never aborts the pass.
// If any alerts triggered, exactly one batched email is sent at the end.
func (s *Scheduler) RunCheck() {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	s.logger.Info().Msg("ETF price check started")

	var etfs []models.ETF
	if err := s.db.Find(&etfs).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch ETFs for price check")
		return
	}

	var triggered []services.TriggeredAlert
	for i := range etfs {
		if err := s.processETF(&etfs[i], &triggered); err != nil {
			s.logger.Warn().Err(err).Str("ticker", etfs[i].Ticker).Msg("Skipping ETF this cycle")
		}
	}

	if len(triggered) > 0 {
		if err := s.mailer.SendDropSummary(triggered); err != nil {
			// Alerts are already persisted; delivery failure is not retried
			s.logger.Error().Err(err).Msg("Failed to send alert summary email")
		}
	}

	s.logger.Info().Int("etfs", len(etfs)).Int("alerts", len(triggered)).Msg("ETF price check finished")
}

// processETF runs steps of one pass for a single ETF: fetch price, ensure
// ATH, update ATH, evaluate drop, gate, record alert
func (s *Scheduler) processETF(etf *models.ETF, triggered *[]services.TriggeredAlert) error {
	ctx, cancel := context.WithTimeout(context.Background(), etfTimeout)
	defer cancel()

	currentPrice, err := s.prices.CurrentPrice(ctx, etf.Ticker)
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}

	if _, err := s.athCache.GetOrCreate(ctx, etf); err != nil {
		return fmt.Errorf("ensure ath: %w", err)
	}

	isNewATH, err := s.athCache.UpdateIfNew(ctx, etf, currentPrice)
	if err != nil {
		return fmt.Errorf("update ath: %w", err)
	}
	if isNewATH {
		// Alert state was just reset; no alert may fire on the same pass
		return nil
	}

	drop, ok := services.DropPercent(etf, currentPrice)
	if !ok || drop < etf.DropThreshold {
		return nil
	}

	if !services.IsAlertAllowed(etf, time.Now().UTC()) {
		return nil
	}

	if err := services.RecordAlert(s.db, etf, currentPrice); err != nil {
		return err
	}

	s.logger.Info().
		Str("ticker", etf.Ticker).
		Float64("price", currentPrice).
		Float64("drop", drop).
		Msg("Drop alert triggered")

	*triggered = append(*triggered, services.TriggeredAlert{
		Ticker: etf.Ticker,
		ATH:    *etf.ATHPrice,
		Price:  currentPrice,
		Drop:   drop,
	})
	return nil
}

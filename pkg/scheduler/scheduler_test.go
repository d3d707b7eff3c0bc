package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpro/etftracker/pkg/config"
	"github.com/artpro/etftracker/pkg/models"
	"github.com/artpro/etftracker/pkg/services"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.ETF{}, &models.Purchase{}, &models.Alert{}, &models.PortfolioYTD{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type fakeSource struct {
	current map[string]float64
	ath     map[string]float64
}

func (f *fakeSource) CurrentPrice(_ context.Context, ticker string) (float64, error) {
	if v, ok := f.current[ticker]; ok {
		return v, nil
	}
	return 0, services.ErrNoData
}

func (f *fakeSource) HistoricalPrice(_ context.Context, ticker string, _ time.Time) (float64, error) {
	return 0, services.ErrNoData
}

func (f *fakeSource) AllTimeHigh(_ context.Context, ticker string) (float64, error) {
	if v, ok := f.ath[ticker]; ok {
		return v, nil
	}
	return 0, services.ErrNoData
}

type fakeMailer struct {
	sends [][]services.TriggeredAlert
}

func (m *fakeMailer) SendDropSummary(alerts []services.TriggeredAlert) error {
	m.sends = append(m.sends, alerts)
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestScheduler(db *gorm.DB, src services.PriceSource, mailer services.AlertMailer) *Scheduler {
	cfg := &config.Config{CheckIntervalMinutes: 15}
	return New(db, cfg, zerolog.Nop(), src, mailer)
}

func alertCount(t *testing.T, db *gorm.DB, etfID uint) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Alert{}).Where("etf_id = ?", etfID).Count(&count).Error; err != nil {
		t.Fatalf("count alerts: %v", err)
	}
	return count
}

func TestRunCheckFiresAlertOncePerCycle(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10, ATHPrice: floatPtr(100)}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}

	src := &fakeSource{current: map[string]float64{"VWCE": 85}}
	mailer := &fakeMailer{}
	s := newTestScheduler(db, src, mailer)

	s.RunCheck()

	if got := alertCount(t, db, etf.ID); got != 1 {
		t.Fatalf("expected 1 alert after first pass, got %d", got)
	}
	if len(mailer.sends) != 1 || len(mailer.sends[0]) != 1 {
		t.Fatalf("expected one batched email with one entry, got %+v", mailer.sends)
	}
	entry := mailer.sends[0][0]
	if entry.Ticker != "VWCE" || entry.ATH != 100 || entry.Price != 85 || entry.Drop != 15 {
		t.Fatalf("unexpected triggered entry: %+v", entry)
	}

	var stored models.ETF
	if err := db.First(&stored, etf.ID).Error; err != nil {
		t.Fatalf("reload etf: %v", err)
	}
	if !stored.ATHAlertSent {
		t.Fatalf("expected ath_alert_sent after alert")
	}

	// A deeper drop in the same ATH cycle must not create a second alert
	src.current["VWCE"] = 80
	s.RunCheck()

	if got := alertCount(t, db, etf.ID); got != 1 {
		t.Fatalf("expected still 1 alert after second pass, got %d", got)
	}
	if len(mailer.sends) != 1 {
		t.Fatalf("expected no second email, got %d sends", len(mailer.sends))
	}
}

func TestRunCheckNewATHSuppressesAlertSamePass(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10, ATHPrice: floatPtr(100), ATHAlertSent: true}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}

	mailer := &fakeMailer{}
	s := newTestScheduler(db, &fakeSource{current: map[string]float64{"VWCE": 120}}, mailer)

	s.RunCheck()

	var stored models.ETF
	if err := db.First(&stored, etf.ID).Error; err != nil {
		t.Fatalf("reload etf: %v", err)
	}
	if stored.ATHPrice == nil || *stored.ATHPrice != 120 {
		t.Fatalf("expected ath raised to 120, got %v", stored.ATHPrice)
	}
	if stored.ATHAlertSent {
		t.Fatalf("expected alert state reset by new ATH")
	}
	if got := alertCount(t, db, etf.ID); got != 0 {
		t.Fatalf("no alert may fire on the pass a new ATH appears, got %d", got)
	}
	if len(mailer.sends) != 0 {
		t.Fatalf("expected no email, got %d sends", len(mailer.sends))
	}
}

func TestRunCheckInitializesATHAndCanAlert(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}

	mailer := &fakeMailer{}
	s := newTestScheduler(db, &fakeSource{
		current: map[string]float64{"VWCE": 50},
		ath:     map[string]float64{"VWCE": 100},
	}, mailer)

	s.RunCheck()

	var stored models.ETF
	if err := db.First(&stored, etf.ID).Error; err != nil {
		t.Fatalf("reload etf: %v", err)
	}
	if stored.ATHPrice == nil || *stored.ATHPrice != 100 {
		t.Fatalf("expected backfilled ath 100, got %v", stored.ATHPrice)
	}
	if got := alertCount(t, db, etf.ID); got != 1 {
		t.Fatalf("expected alert for 50%% drop, got %d", got)
	}
}

func TestRunCheckIsolatesFailingETFs(t *testing.T) {
	db := openTestDB(t)
	broken := models.ETF{Ticker: "NODATA", DropThreshold: 10, ATHPrice: floatPtr(100)}
	healthy := models.ETF{Ticker: "VWCE", DropThreshold: 10, ATHPrice: floatPtr(100)}
	for _, e := range []*models.ETF{&broken, &healthy} {
		if err := db.Create(e).Error; err != nil {
			t.Fatalf("create etf: %v", err)
		}
	}

	mailer := &fakeMailer{}
	s := newTestScheduler(db, &fakeSource{current: map[string]float64{"VWCE": 85}}, mailer)

	s.RunCheck()

	if got := alertCount(t, db, broken.ID); got != 0 {
		t.Fatalf("unavailable ticker must be skipped, got %d alerts", got)
	}
	if got := alertCount(t, db, healthy.ID); got != 1 {
		t.Fatalf("healthy ticker must still alert, got %d alerts", got)
	}
	if len(mailer.sends) != 1 || len(mailer.sends[0]) != 1 {
		t.Fatalf("expected one email with one entry, got %+v", mailer.sends)
	}
}

func TestRunCheckSkipsBelowThreshold(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10, ATHPrice: floatPtr(100)}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}

	mailer := &fakeMailer{}
	s := newTestScheduler(db, &fakeSource{current: map[string]float64{"VWCE": 95}}, mailer)

	s.RunCheck()

	if got := alertCount(t, db, etf.ID); got != 0 {
		t.Fatalf("5%% drop below 10%% threshold must not alert, got %d", got)
	}
	if len(mailer.sends) != 0 {
		t.Fatalf("expected no email, got %d sends", len(mailer.sends))
	}
}

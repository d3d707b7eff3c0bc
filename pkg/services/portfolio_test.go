package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/artpro/etftracker/pkg/models"
	"github.com/rs/zerolog"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCalculateSingleHolding(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}

	year := time.Now().UTC().Year()
	purchase := models.Purchase{
		ETFID:       etf.ID,
		Units:       10,
		Price:       100,
		PurchasedAt: time.Date(year, time.March, 15, 0, 0, 0, 0, time.UTC),
		Currency:    "EUR",
	}
	if err := db.Create(&purchase).Error; err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	svc := NewPortfolioService(db, &fakeSource{current: map[string]float64{"VWCE": 120}}, zerolog.Nop())

	summary, err := svc.Calculate(context.Background())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if len(summary.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(summary.Rows))
	}
	row := summary.Rows[0]
	if !almostEqual(row.Invested, 1000) || !almostEqual(row.CurrentValue, 1200) {
		t.Fatalf("invested=%v current=%v, want 1000/1200", row.Invested, row.CurrentValue)
	}
	if !almostEqual(row.PLEur, 200) || !almostEqual(row.PLPercent, 20) {
		t.Fatalf("pl=%v plpct=%v, want 200/20", row.PLEur, row.PLPercent)
	}
	if !almostEqual(row.Allocation, 100) || !almostEqual(row.AvgBuy, 100) {
		t.Fatalf("allocation=%v avg=%v, want 100/100", row.Allocation, row.AvgBuy)
	}

	// No holdings before January 1, so the baseline is zero and the whole
	// position counts as this year's cash flow
	if !almostEqual(summary.Totals.YTDEur, 200) {
		t.Fatalf("ytd_eur=%v, want 200", summary.Totals.YTDEur)
	}
	if !almostEqual(summary.Totals.YTDPercent, 0) {
		t.Fatalf("ytd_percent=%v, want 0 with zero baseline", summary.Totals.YTDPercent)
	}
}

func TestCalculateTreatsMissingPriceAsZero(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}
	year := time.Now().UTC().Year()
	if err := db.Create(&models.Purchase{
		ETFID:       etf.ID,
		Units:       10,
		Price:       100,
		PurchasedAt: time.Date(year, time.February, 1, 0, 0, 0, 0, time.UTC),
	}).Error; err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	svc := NewPortfolioService(db, &fakeSource{}, zerolog.Nop())

	summary, err := svc.Calculate(context.Background())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(summary.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(summary.Rows))
	}
	if !almostEqual(summary.Rows[0].CurrentValue, 0) || !almostEqual(summary.Rows[0].PLEur, -1000) {
		t.Fatalf("unexpected row with missing price: %+v", summary.Rows[0])
	}
}

func TestCalculateSkipsClosedPositions(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}
	year := time.Now().UTC().Year()
	buyAt := time.Date(year, time.February, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []models.Purchase{
		{ETFID: etf.ID, Units: 10, Price: 100, PurchasedAt: buyAt},
		{ETFID: etf.ID, Units: -10, Price: 110, PurchasedAt: buyAt.AddDate(0, 1, 0)},
	} {
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("create purchase: %v", err)
		}
	}

	svc := NewPortfolioService(db, &fakeSource{current: map[string]float64{"VWCE": 120}}, zerolog.Nop())

	summary, err := svc.Calculate(context.Background())
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(summary.Rows) != 0 {
		t.Fatalf("closed position must not produce a row, got %+v", summary.Rows)
	}
}

func TestEnsureYTDComputedOnceUntilInvalidated(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}

	year := time.Now().UTC().Year()
	if err := db.Create(&models.Purchase{
		ETFID:       etf.ID,
		Units:       5,
		Price:       50,
		PurchasedAt: time.Date(year-1, time.June, 1, 0, 0, 0, 0, time.UTC),
	}).Error; err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	src := &fakeSource{historical: map[string]float64{"VWCE": 80}}
	svc := NewPortfolioService(db, src, zerolog.Nop())

	if err := svc.EnsureYTD(context.Background(), year); err != nil {
		t.Fatalf("ensure ytd: %v", err)
	}

	var row models.PortfolioYTD
	if err := db.Where("year = ?", year).First(&row).Error; err != nil {
		t.Fatalf("load ytd row: %v", err)
	}
	if !almostEqual(row.StartValue, 400) {
		t.Fatalf("start_value=%v, want 400", row.StartValue)
	}

	// A changed historical price must not affect the cached baseline
	src.historical["VWCE"] = 100
	if err := svc.EnsureYTD(context.Background(), year); err != nil {
		t.Fatalf("ensure ytd again: %v", err)
	}
	if err := db.Where("year = ?", year).First(&row).Error; err != nil {
		t.Fatalf("reload ytd row: %v", err)
	}
	if !almostEqual(row.StartValue, 400) {
		t.Fatalf("baseline changed without invalidation: %v", row.StartValue)
	}

	if err := svc.InvalidateYTD(year); err != nil {
		t.Fatalf("invalidate ytd: %v", err)
	}
	if err := svc.EnsureYTD(context.Background(), year); err != nil {
		t.Fatalf("ensure ytd after invalidate: %v", err)
	}
	// The recreated row has a new primary key; reuse of the struct would
	// otherwise pin the query to the deleted row's ID
	row = models.PortfolioYTD{}
	if err := db.Where("year = ?", year).First(&row).Error; err != nil {
		t.Fatalf("reload ytd row: %v", err)
	}
	if !almostEqual(row.StartValue, 500) {
		t.Fatalf("start_value=%v after recompute, want 500", row.StartValue)
	}
}

func TestAvailableUnits(t *testing.T) {
	db := openTestDB(t)
	etf := models.ETF{Ticker: "VWCE", DropThreshold: 10}
	if err := db.Create(&etf).Error; err != nil {
		t.Fatalf("create etf: %v", err)
	}

	day := func(d int) time.Time {
		return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
	}

	sell := models.Purchase{ETFID: etf.ID, Units: -10, Price: 105, PurchasedAt: day(2)}
	for _, p := range []*models.Purchase{
		{ETFID: etf.ID, Units: 30, Price: 100, PurchasedAt: day(1)},
		&sell,
		{ETFID: etf.ID, Units: 50, Price: 110, PurchasedAt: day(10)},
	} {
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("create purchase: %v", err)
		}
	}

	got, err := AvailableUnits(db, etf.ID, day(5), 0)
	if err != nil {
		t.Fatalf("available units: %v", err)
	}
	if !almostEqual(got, 20) {
		t.Fatalf("units as of day 5 = %v, want 20", got)
	}

	got, err = AvailableUnits(db, etf.ID, day(10), 0)
	if err != nil {
		t.Fatalf("available units: %v", err)
	}
	if !almostEqual(got, 70) {
		t.Fatalf("units as of day 10 = %v, want 70", got)
	}

	// Excluding a lot is how edits re-validate without counting themselves
	got, err = AvailableUnits(db, etf.ID, day(5), sell.ID)
	if err != nil {
		t.Fatalf("available units: %v", err)
	}
	if !almostEqual(got, 30) {
		t.Fatalf("units excluding sell = %v, want 30", got)
	}
}

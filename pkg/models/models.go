package models

import (
	"time"
)

// User represents the admin user
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Username  string    `gorm:"unique;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"` // Password hash, never expose in JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ETF represents a tracked instrument with its ATH and alert state.
// Any write of ATHPrice also clears ATHAlertSent and ManualResetAt,
// opening a new alert cycle.
type ETF struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	Ticker        string     `gorm:"unique;not null;index" json:"ticker"`
	ATHPrice      *float64   `json:"ath_price"`                       // Highest observed close, nil until first fetch
	DropThreshold float64    `gorm:"default:5" json:"drop_threshold"` // Percent fall from ATH that triggers an alert
	ATHAlertSent  bool       `gorm:"default:false" json:"ath_alert_sent"`
	ManualResetAt *time.Time `json:"manual_reset_at"`
	ATHUpdatedAt  *time.Time `json:"ath_updated_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Purchases []Purchase `gorm:"constraint:OnDelete:CASCADE" json:"purchases,omitempty"`
	Alerts    []Alert    `gorm:"constraint:OnDelete:CASCADE" json:"alerts,omitempty"`
}

// Purchase is a single signed lot: positive units for a buy, negative for a sell
type Purchase struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	ETFID       uint      `gorm:"not null;index" json:"etf_id"`
	Units       float64   `gorm:"not null" json:"units"`
	Price       float64   `gorm:"not null" json:"price"`
	PurchasedAt time.Time `gorm:"index" json:"purchased_at"`
	Currency    string    `json:"currency"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Alert is an immutable record of one drop-detected event within an ATH cycle.
// ATHPrice is snapshotted at alert time so history stays correct after a new
// ATH supersedes the one the alert fired against.
type Alert struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	ETFID     uint      `gorm:"not null;index" json:"etf_id"`
	Price     float64   `gorm:"not null" json:"price"`
	ATHPrice  float64   `json:"ath_price"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// PortfolioYTD caches the portfolio's start-of-year valuation, one row per year
type PortfolioYTD struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Year       int       `gorm:"unique;not null" json:"year"`
	StartValue float64   `gorm:"not null" json:"start_value"`
	CreatedAt  time.Time `json:"created_at"`
}

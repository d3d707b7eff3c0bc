package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/artpro/etftracker/pkg/config"
	"github.com/artpro/etftracker/pkg/models"
	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gorm.io/gorm"
)

// manualResetCooldown suppresses alerts for a window after an admin reset,
// so a reset during a deep drop does not immediately re-fire the same alert
const manualResetCooldown = 24 * time.Hour

// IsAlertAllowed reports whether a drop alert may fire for the ETF.
// False while the current ATH cycle already produced an alert, and within
// the cooldown window after a manual reset.
func IsAlertAllowed(etf *models.ETF, now time.Time) bool {
	if etf.ATHAlertSent {
		return false
	}

	if etf.ManualResetAt != nil && now.Sub(*etf.ManualResetAt) < manualResetCooldown {
		return false
	}

	return true
}

// DropPercent returns the percentage fall from ATH to the current price.
// The second return is false when no ATH is recorded or it is not positive.
func DropPercent(etf *models.ETF, currentPrice float64) (float64, bool) {
	if etf.ATHPrice == nil || *etf.ATHPrice <= 0 {
		return 0, false
	}
	return (*etf.ATHPrice - currentPrice) / *etf.ATHPrice * 100, true
}

// TriggeredAlert is one entry of a scheduler pass's batched notification
type TriggeredAlert struct {
	Ticker string
	ATH    float64
	Price  float64
	Drop   float64
}

// RecordAlert persists the alert row together with the alert-sent flag in
// one transaction: once committed the cycle counts as fired, regardless of
// whether the notification email later succeeds. The drop percentage is not
// stored; the ATH is snapshotted so history survives later ATH updates.
func RecordAlert(db *gorm.DB, etf *models.ETF, currentPrice float64) error {
	var ath float64
	if etf.ATHPrice != nil {
		ath = *etf.ATHPrice
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		alert := models.Alert{
			ETFID:    etf.ID,
			Price:    currentPrice,
			ATHPrice: ath,
		}
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		return tx.Model(&models.ETF{}).Where("id = ?", etf.ID).
			Update("ath_alert_sent", true).Error
	})
	if err != nil {
		return fmt.Errorf("record alert for %s: %w", etf.Ticker, err)
	}

	etf.ATHAlertSent = true
	return nil
}

// AlertMailer sends one batched notification per scheduler pass
type AlertMailer interface {
	SendDropSummary(alerts []TriggeredAlert) error
}

// SendGridMailer sends alert summaries via SendGrid
type SendGridMailer struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewSendGridMailer creates a new SendGrid-backed alert mailer
func NewSendGridMailer(cfg *config.Config, logger zerolog.Logger) *SendGridMailer {
	return &SendGridMailer{
		cfg:    cfg,
		logger: logger,
	}
}

// SendDropSummary sends a single plain-text email listing every ETF that
// triggered during the pass
func (m *SendGridMailer) SendDropSummary(alerts []TriggeredAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	if m.cfg.SendGridAPIKey == "" {
		m.logger.Warn().Msg("SendGrid API key not configured, skipping alert email")
		return nil
	}

	from := mail.NewEmail("ETF Tracker Alerts", m.cfg.AlertEmailFrom)
	to := mail.NewEmail("Admin", m.cfg.AlertEmailTo)

	subject := fmt.Sprintf("ETF drop alert: %d below threshold", len(alerts))
	body := DropSummaryBody(alerts)

	message := mail.NewSingleEmail(from, subject, to, body, "")
	client := sendgrid.NewSendClient(m.cfg.SendGridAPIKey)

	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 300 {
		return fmt.Errorf("email service returned status %d", response.StatusCode)
	}

	m.logger.Info().Int("alerts", len(alerts)).Msg("Alert email sent successfully")
	return nil
}

// DropSummaryBody renders the plain-text body of the batched alert email
func DropSummaryBody(alerts []TriggeredAlert) string {
	var b strings.Builder
	b.WriteString("The following ETFs dropped below their configured threshold:\n\n")

	for _, a := range alerts {
		fmt.Fprintf(&b, "ETF: %s\nATH: %.2f\nCurrent price: %.2f\nDrop: %.2f%%\n%s\n",
			a.Ticker, a.ATH, a.Price, a.Drop, strings.Repeat("-", 30))
	}

	return b.String()
}

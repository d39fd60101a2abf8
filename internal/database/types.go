package database

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"

	NotificationGain = "GAIN_10_PERCENT"
	NotificationLoss = "LOSS_10_PERCENT"

	FileStatusProcessing = "PROCESSING"
	FileStatusCompleted  = "COMPLETED"
	FileStatusFailed     = "FAILED"
)

// Holding is one (user, folio, scheme) row of portfolio_holdings.
type Holding struct {
	ID                string          `db:"id" json:"id"`
	UserID            string          `db:"user_id" json:"user_id"`
	FolioNumber       string          `db:"folio_number" json:"folio_number"`
	SchemeCode        string          `db:"scheme_code" json:"scheme_code"`
	SchemeName        string          `db:"scheme_name" json:"scheme_name"`
	AMCName           sql.NullString  `db:"amc_name" json:"amc_name"`
	UnitBalance       decimal.Decimal `db:"unit_balance" json:"unit_balance"`
	AvgCostPerUnit    decimal.Decimal `db:"avg_cost_per_unit" json:"avg_cost_per_unit"`
	CostValue         decimal.Decimal `db:"cost_value" json:"cost_value"`
	CurrentNAV        decimal.Decimal `db:"current_nav" json:"current_nav"`
	NAVDate           time.Time       `db:"nav_date" json:"nav_date"`
	MarketValue       decimal.Decimal `db:"market_value" json:"market_value"`
	AbsoluteProfit    decimal.Decimal `db:"absolute_profit" json:"absolute_profit"`
	AbsoluteReturnPct decimal.Decimal `db:"absolute_return_percentage" json:"absolute_return_percentage"`
	IsActive          bool            `db:"is_active" json:"is_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	LastUpdated       time.Time       `db:"last_updated" json:"last_updated"`
}

// RecomputeDerived refreshes the valuation trio from unit balance and NAV.
// The three fields are never written independently of each other.
func (h *Holding) RecomputeDerived() {
	h.MarketValue = h.UnitBalance.Mul(h.CurrentNAV)
	h.AbsoluteProfit = h.MarketValue.Sub(h.CostValue)
	if h.CostValue.Sign() > 0 {
		h.AbsoluteReturnPct = h.AbsoluteProfit.Div(h.CostValue).Mul(decimal.NewFromInt(100))
	} else {
		h.AbsoluteReturnPct = decimal.Zero
	}
}

// PortfolioSummary aggregates a user's active holdings.
type PortfolioSummary struct {
	TotalInvestment decimal.Decimal `json:"total_investment"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	OverallReturn   decimal.Decimal `json:"overall_return"`
	HoldingsCount   int             `json:"holdings_count"`
}

func Summarize(holdings []Holding) PortfolioSummary {
	s := PortfolioSummary{HoldingsCount: len(holdings)}
	for _, h := range holdings {
		s.TotalInvestment = s.TotalInvestment.Add(h.CostValue)
		s.CurrentValue = s.CurrentValue.Add(h.MarketValue)
	}
	s.TotalProfit = s.CurrentValue.Sub(s.TotalInvestment)
	if s.TotalInvestment.Sign() > 0 {
		s.OverallReturn = s.TotalProfit.Div(s.TotalInvestment).Mul(decimal.NewFromInt(100))
	}
	return s
}

// NavHistoryEntry is one append-only valuation snapshot for a holding.
type NavHistoryEntry struct {
	HoldingID        string          `db:"holding_id"`
	SchemeCode       string          `db:"scheme_code"`
	NAVValue         decimal.Decimal `db:"nav_value"`
	NAVDate          time.Time       `db:"nav_date"`
	Units            decimal.Decimal `db:"units"`
	MarketValue      decimal.Decimal `db:"market_value"`
	ProfitLoss       decimal.Decimal `db:"profit_loss"`
	ReturnPercentage decimal.Decimal `db:"return_percentage"`
}

// Notification is one threshold-crossing alert row.
type Notification struct {
	ID               string          `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"user_id"`
	HoldingID        sql.NullString  `db:"holding_id" json:"holding_id"`
	NotificationType string          `db:"notification_type" json:"notification_type"`
	Title            string          `db:"title" json:"title"`
	Message          string          `db:"message" json:"message"`
	FolioNumber      sql.NullString  `db:"folio_number" json:"folio_number"`
	SchemeName       sql.NullString  `db:"scheme_name" json:"scheme_name"`
	ChangePercentage decimal.Decimal `db:"change_percentage" json:"change_percentage"`
	OldValue         decimal.Decimal `db:"old_value" json:"old_value"`
	NewValue         decimal.Decimal `db:"new_value" json:"new_value"`
	IsRead           bool            `db:"is_read" json:"is_read"`
	IsEmailSent      bool            `db:"is_email_sent" json:"is_email_sent"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	ReadAt           sql.NullTime    `db:"read_at" json:"read_at"`
}

// RefreshJob is the audit row for one batch NAV refresh run.
type RefreshJob struct {
	ID                   string         `db:"id" json:"id"`
	JobDate              time.Time      `db:"job_date" json:"job_date"`
	JobStatus            string         `db:"job_status" json:"job_status"`
	StartedAt            time.Time      `db:"started_at" json:"started_at"`
	CompletedAt          sql.NullTime   `db:"completed_at" json:"completed_at"`
	TotalSchemesToUpdate int            `db:"total_schemes_to_update" json:"total_schemes_to_update"`
	SchemesUpdated       int            `db:"schemes_updated_successfully" json:"schemes_updated_successfully"`
	SchemesFailed        int            `db:"schemes_failed" json:"schemes_failed"`
	NotificationsCreated int            `db:"notifications_created" json:"notifications_created"`
	ErrorLog             sql.NullString `db:"error_log" json:"error_log"`
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"finnest/internal/scheme"
)

// ErrNotOwner is returned when a mutation targets a row the user does not own.
var ErrNotOwner = errors.New("holding belongs to a different user")

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

// --- holdings ---

// UpsertHolding inserts or overwrites the row keyed by (user, folio,
// scheme). The derived trio is recomputed before the write, so re-uploading
// an identical statement is idempotent.
func (r *Repo) UpsertHolding(ctx context.Context, h Holding) error {
	h.RecomputeDerived()
	q := `INSERT INTO portfolio_holdings
		(user_id, folio_number, scheme_code, scheme_name, amc_name,
		 unit_balance, avg_cost_per_unit, cost_value, current_nav, nav_date,
		 market_value, absolute_profit, absolute_return_percentage, is_active, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10,
		        $11::numeric, $12::numeric, $13::numeric, TRUE, now(), now())
		ON CONFLICT (user_id, folio_number, scheme_code) DO UPDATE SET
			scheme_name = EXCLUDED.scheme_name,
			amc_name = EXCLUDED.amc_name,
			unit_balance = EXCLUDED.unit_balance,
			avg_cost_per_unit = EXCLUDED.avg_cost_per_unit,
			cost_value = EXCLUDED.cost_value,
			current_nav = EXCLUDED.current_nav,
			nav_date = EXCLUDED.nav_date,
			market_value = EXCLUDED.market_value,
			absolute_profit = EXCLUDED.absolute_profit,
			absolute_return_percentage = EXCLUDED.absolute_return_percentage,
			is_active = TRUE,
			last_updated = now()`
	_, err := r.db.ExecContext(ctx, q,
		h.UserID, h.FolioNumber, h.SchemeCode, h.SchemeName, h.AMCName,
		h.UnitBalance.String(), h.AvgCostPerUnit.String(), h.CostValue.String(),
		h.CurrentNAV.String(), h.NAVDate,
		h.MarketValue.String(), h.AbsoluteProfit.String(), h.AbsoluteReturnPct.String())
	return err
}

// ActiveHoldings returns active holdings for one user, or for every user
// when userID is empty (the batch refresh path).
func (r *Repo) ActiveHoldings(ctx context.Context, userID string) ([]Holding, error) {
	q := `SELECT id, user_id, folio_number, scheme_code, scheme_name, amc_name,
		unit_balance, avg_cost_per_unit, cost_value, current_nav, nav_date,
		market_value, absolute_profit, absolute_return_percentage, is_active, created_at, last_updated
		FROM portfolio_holdings WHERE is_active`
	args := []interface{}{}
	if userID != "" {
		q += ` AND user_id = $1`
		args = append(args, userID)
	}
	q += ` ORDER BY scheme_name`

	rows, err := r.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Holding{}
	for rows.Next() {
		var h Holding
		if err := rows.StructScan(&h); err != nil {
			r.log.Warnf("scan holding failed: %v", err)
			continue
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// UpdateHoldingValuation writes a freshly fetched NAV onto one holding,
// always together with the recomputed derived trio.
func (r *Repo) UpdateHoldingValuation(ctx context.Context, h Holding) error {
	h.RecomputeDerived()
	q := `UPDATE portfolio_holdings SET
		current_nav = $2::numeric, nav_date = $3,
		market_value = $4::numeric, absolute_profit = $5::numeric,
		absolute_return_percentage = $6::numeric, last_updated = now()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, h.ID,
		h.CurrentNAV.String(), h.NAVDate,
		h.MarketValue.String(), h.AbsoluteProfit.String(), h.AbsoluteReturnPct.String())
	return err
}

// SoftDeleteHolding deactivates a holding after verifying ownership.
func (r *Repo) SoftDeleteHolding(ctx context.Context, holdingID, userID string) error {
	var owner string
	if err := r.db.GetContext(ctx, &owner, `SELECT user_id FROM portfolio_holdings WHERE id = $1`, holdingID); err != nil {
		return err
	}
	if owner != userID {
		return ErrNotOwner
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE portfolio_holdings SET is_active = FALSE, last_updated = now() WHERE id = $1`, holdingID)
	return err
}

// SyncMutualFundsValue rolls the aggregate market value of a user's active
// holdings into the net-worth record and returns the new total.
func (r *Repo) SyncMutualFundsValue(ctx context.Context, userID string) (decimal.Decimal, error) {
	var totalStr string
	err := r.db.GetContext(ctx, &totalStr,
		`SELECT COALESCE(SUM(market_value), 0)::text FROM portfolio_holdings WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO assets_liabilities (user_id, mutual_funds_value, updated_at)
		VALUES ($1, $2::numeric, now())
		ON CONFLICT (user_id) DO UPDATE SET mutual_funds_value = $2::numeric, updated_at = now()`,
		userID, total.String())
	return total, err
}

// --- scheme mappings (scheme.Store) ---

func (r *Repo) GetMapping(ctx context.Context, schemeName string) (scheme.Mapping, bool, error) {
	var m scheme.Mapping
	var amc sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT scheme_name, scheme_code, amc_name, is_verified, usage_count FROM scheme_mappings WHERE scheme_name = $1`,
		schemeName).Scan(&m.SchemeName, &m.SchemeCode, &amc, &m.IsVerified, &m.UsageCount)
	if err == sql.ErrNoRows {
		return scheme.Mapping{}, false, nil
	}
	if err != nil {
		return scheme.Mapping{}, false, err
	}
	m.AMCName = amc.String
	return m, true, nil
}

func (r *Repo) ListMappings(ctx context.Context) ([]scheme.Mapping, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT scheme_name, scheme_code, amc_name, is_verified, usage_count FROM scheme_mappings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []scheme.Mapping{}
	for rows.Next() {
		var m scheme.Mapping
		var amc sql.NullString
		if err := rows.Scan(&m.SchemeName, &m.SchemeCode, &amc, &m.IsVerified, &m.UsageCount); err != nil {
			r.log.Warnf("scan scheme mapping failed: %v", err)
			continue
		}
		m.AMCName = amc.String
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *Repo) InsertMapping(ctx context.Context, m scheme.Mapping) error {
	var amc sql.NullString
	if m.AMCName != "" {
		amc = sql.NullString{String: m.AMCName, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO scheme_mappings (scheme_name, scheme_code, amc_name, is_verified, usage_count)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (scheme_name) DO NOTHING`,
		m.SchemeName, m.SchemeCode, amc, m.IsVerified, m.UsageCount)
	return err
}

func (r *Repo) IncrementMappingUsage(ctx context.Context, schemeName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheme_mappings SET usage_count = usage_count + 1 WHERE scheme_name = $1`, schemeName)
	return err
}

// --- valuation history ---

func (r *Repo) InsertNavHistory(ctx context.Context, e NavHistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO nav_history
		(holding_id, scheme_code, nav_value, nav_date, units, market_value, profit_loss, return_percentage)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric)`,
		e.HoldingID, e.SchemeCode, e.NAVValue.String(), e.NAVDate,
		e.Units.String(), e.MarketValue.String(), e.ProfitLoss.String(), e.ReturnPercentage.String())
	return err
}

// --- notifications ---

func (r *Repo) CreateNotification(ctx context.Context, n Notification) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `INSERT INTO portfolio_notifications
		(user_id, holding_id, notification_type, title, message, folio_number, scheme_name,
		 change_percentage, old_value, new_value, is_read, is_email_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, FALSE, FALSE)
		RETURNING id`,
		n.UserID, n.HoldingID, n.NotificationType, n.Title, n.Message, n.FolioNumber, n.SchemeName,
		n.ChangePercentage.String(), n.OldValue.String(), n.NewValue.String()).Scan(&id)
	return id, err
}

// ListNotifications returns a user's notifications unread-first plus the
// unread count.
func (r *Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, int, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT id, user_id, holding_id, notification_type, title, message,
		folio_number, scheme_name, change_percentage, old_value, new_value,
		is_read, is_email_sent, created_at, read_at
		FROM portfolio_notifications WHERE user_id = $1
		ORDER BY is_read ASC, created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	res := []Notification{}
	unread := 0
	for rows.Next() {
		var n Notification
		if err := rows.StructScan(&n); err != nil {
			r.log.Warnf("scan notification failed: %v", err)
			continue
		}
		if !n.IsRead {
			unread++
		}
		res = append(res, n)
	}
	return res, unread, rows.Err()
}

func (r *Repo) MarkNotificationRead(ctx context.Context, notificationID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE portfolio_notifications SET is_read = TRUE, read_at = now() WHERE id = $1`, notificationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *Repo) MarkNotificationEmailed(ctx context.Context, notificationID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE portfolio_notifications SET is_email_sent = TRUE WHERE id = $1`, notificationID)
	return err
}

// --- refresh jobs ---

func (r *Repo) CreateRefreshJob(ctx context.Context, jobDate time.Time) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nav_update_jobs (id, job_date, job_status, started_at) VALUES ($1, $2, $3, now())`,
		id, jobDate, JobStatusRunning)
	return id, err
}

// FinalizeRefreshJob is the single mutation a job record receives after
// creation.
func (r *Repo) FinalizeRefreshJob(ctx context.Context, jobID, status string, schemesTotal, schemesOK, schemesFailed, notifications int, errLog string) error {
	var errVal sql.NullString
	if errLog != "" {
		errVal = sql.NullString{String: errLog, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `UPDATE nav_update_jobs SET
		job_status = $2, completed_at = now(),
		total_schemes_to_update = $3, schemes_updated_successfully = $4,
		schemes_failed = $5, notifications_created = $6, error_log = $7
		WHERE id = $1`,
		jobID, status, schemesTotal, schemesOK, schemesFailed, notifications, errVal)
	return err
}

// --- uploaded statement files ---

func (r *Repo) CreateUploadedFile(ctx context.Context, userID, fileName, fileType string, fileSize int64) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `INSERT INTO uploaded_portfolio_files
		(user_id, file_name, file_type, file_size, processing_status)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		userID, fileName, fileType, fileSize, FileStatusProcessing).Scan(&id)
	return id, err
}

func (r *Repo) FinishUploadedFile(ctx context.Context, fileID, status string, folios, holdings int, totalInvestment decimal.Decimal, errMsg string) error {
	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `UPDATE uploaded_portfolio_files SET
		processing_status = $2, folios_extracted = $3, holdings_created = $4,
		total_investment = $5::numeric, error_message = $6, processed_at = now()
		WHERE id = $1`,
		fileID, status, folios, holdings, totalInvestment.String(), errVal)
	return err
}

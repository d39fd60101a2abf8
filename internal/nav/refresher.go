package nav

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"finnest/internal/database"
	"finnest/internal/scheme"
)

const (
	// MFAPI enforces an informal rate limit; staying under it avoids
	// temporary blocking.
	fetchDelay   = 600 * time.Millisecond
	maxInFlight  = 5
	thresholdPct = 10
)

// Store is the persistence the refresher needs; database.Repo satisfies it.
type Store interface {
	ActiveHoldings(ctx context.Context, userID string) ([]database.Holding, error)
	UpdateHoldingValuation(ctx context.Context, h database.Holding) error
	InsertNavHistory(ctx context.Context, e database.NavHistoryEntry) error
	CreateNotification(ctx context.Context, n database.Notification) (string, error)
	MarkNotificationEmailed(ctx context.Context, notificationID string) error
	SyncMutualFundsValue(ctx context.Context, userID string) (decimal.Decimal, error)
	CreateRefreshJob(ctx context.Context, jobDate time.Time) (string, error)
	FinalizeRefreshJob(ctx context.Context, jobID, status string, schemesTotal, schemesOK, schemesFailed, notifications int, errLog string) error
}

// Source supplies the latest NAV per scheme; Client satisfies it.
type Source interface {
	LatestNAV(ctx context.Context, schemeCode string) (Quote, error)
}

// Stats is the outcome of one batch refresh run.
type Stats struct {
	TotalHoldings        int `json:"total_holdings"`
	UniqueSchemes        int `json:"unique_schemes"`
	SchemesUpdated       int `json:"schemes_updated"`
	SchemesFailed        int `json:"schemes_failed"`
	HoldingsUpdated      int `json:"holdings_updated"`
	HoldingsFailed       int `json:"holdings_failed"`
	NotificationsCreated int `json:"notifications_created"`
	UsersAffected        int `json:"users_affected"`
}

// Refresher updates every active holding's valuation from the upstream
// price feed. Per-scheme fetch failures are expected and tolerated; only
// orchestration failures fail the run.
type Refresher struct {
	store   Store
	source  Source
	email   Emailer
	log     *logrus.Logger
	limiter *rate.Limiter
}

func NewRefresher(store Store, source Source, email Emailer, log *logrus.Logger) *Refresher {
	return &Refresher{
		store:   store,
		source:  source,
		email:   email,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(fetchDelay), 1),
	}
}

// Run executes one batch refresh, scoped to one user when userID is
// non-empty. The run is recorded as a job row: created RUNNING, finalized
// exactly once as COMPLETED or FAILED.
func (r *Refresher) Run(ctx context.Context, userID string) (Stats, error) {
	jobID, err := r.store.CreateRefreshJob(ctx, time.Now().UTC())
	if err != nil {
		return Stats{}, fmt.Errorf("create refresh job: %w", err)
	}

	stats, runErr := r.run(ctx, userID)
	if runErr != nil {
		if err := r.store.FinalizeRefreshJob(ctx, jobID, database.JobStatusFailed,
			stats.UniqueSchemes, stats.SchemesUpdated, stats.SchemesFailed,
			stats.NotificationsCreated, runErr.Error()); err != nil {
			r.log.Errorf("nav: finalize failed job %s: %v", jobID, err)
		}
		return stats, runErr
	}

	if err := r.store.FinalizeRefreshJob(ctx, jobID, database.JobStatusCompleted,
		stats.UniqueSchemes, stats.SchemesUpdated, stats.SchemesFailed,
		stats.NotificationsCreated, ""); err != nil {
		r.log.Errorf("nav: finalize job %s: %v", jobID, err)
	}
	r.log.Infof("nav: batch refresh complete: %+v", stats)
	return stats, nil
}

func (r *Refresher) run(ctx context.Context, userID string) (Stats, error) {
	var stats Stats

	holdings, err := r.store.ActiveHoldings(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("load holdings: %w", err)
	}
	stats.TotalHoldings = len(holdings)
	if len(holdings) == 0 {
		return stats, nil
	}

	// Group by scheme so each code is fetched once, however many users hold
	// it. Unresolved schemes have nothing to fetch.
	groups := map[string][]database.Holding{}
	for _, h := range holdings {
		if h.SchemeCode == scheme.UnknownCode {
			continue
		}
		groups[h.SchemeCode] = append(groups[h.SchemeCode], h)
	}
	stats.UniqueSchemes = len(groups)

	quotes := r.fetchQuotes(ctx, groups)
	stats.SchemesUpdated = len(quotes)
	stats.SchemesFailed = stats.UniqueSchemes - len(quotes)

	affected := map[string]bool{}
	for code, quote := range quotes {
		for _, h := range groups[code] {
			created, err := r.applyQuote(ctx, h, quote)
			if err != nil {
				r.log.Warnf("nav: update holding %s failed: %v", h.ID, err)
				stats.HoldingsFailed++
				continue
			}
			stats.HoldingsUpdated++
			affected[h.UserID] = true
			if created {
				stats.NotificationsCreated++
			}
		}
	}

	for user := range affected {
		if _, err := r.store.SyncMutualFundsValue(ctx, user); err != nil {
			r.log.Warnf("nav: aggregate sync for user %s failed: %v", user, err)
		}
	}
	stats.UsersAffected = len(affected)
	return stats, nil
}

// fetchQuotes pulls the latest NAV for every distinct scheme, bounded both
// in rate and in concurrent in-flight requests. Individual failures are
// logged and dropped; the batch carries on.
func (r *Refresher) fetchQuotes(ctx context.Context, groups map[string][]database.Holding) map[string]Quote {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		sem    = make(chan struct{}, maxInFlight)
		quotes = make(map[string]Quote, len(groups))
	)
	for code := range groups {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
			quote, err := r.source.LatestNAV(ctx, code)
			if err != nil {
				r.log.Warnf("nav: fetch failed for scheme %s: %v", code, err)
				return
			}
			mu.Lock()
			quotes[code] = quote
			mu.Unlock()
		}(code)
	}
	wg.Wait()
	return quotes
}

// applyQuote writes the new valuation onto one holding, appends the history
// record, and fires a notification when the market value moved by the
// threshold or more. Reports whether a notification was created.
func (r *Refresher) applyQuote(ctx context.Context, h database.Holding, quote Quote) (bool, error) {
	oldMarketValue := h.MarketValue

	h.CurrentNAV = quote.Value
	h.NAVDate = quote.Date
	h.RecomputeDerived()

	if err := r.store.UpdateHoldingValuation(ctx, h); err != nil {
		return false, err
	}

	if err := r.store.InsertNavHistory(ctx, database.NavHistoryEntry{
		HoldingID:        h.ID,
		SchemeCode:       h.SchemeCode,
		NAVValue:         h.CurrentNAV,
		NAVDate:          h.NAVDate,
		Units:            h.UnitBalance,
		MarketValue:      h.MarketValue,
		ProfitLoss:       h.AbsoluteProfit,
		ReturnPercentage: h.AbsoluteReturnPct,
	}); err != nil {
		r.log.Warnf("nav: history append for holding %s failed: %v", h.ID, err)
	}

	if oldMarketValue.Sign() <= 0 {
		return false, nil
	}
	change := h.MarketValue.Sub(oldMarketValue).Div(oldMarketValue).Mul(decimal.NewFromInt(100))
	if change.Abs().Cmp(decimal.NewFromInt(thresholdPct)) < 0 {
		return false, nil
	}
	return r.notifyChange(ctx, h, change, oldMarketValue), nil
}

// notifyChange persists the alert and requests the email; it reports
// whether a notification row was actually created.
func (r *Refresher) notifyChange(ctx context.Context, h database.Holding, changePct, oldValue decimal.Decimal) bool {
	direction := "Gain"
	verb := "increased"
	notifType := database.NotificationGain
	if changePct.Sign() < 0 {
		direction = "Loss"
		verb = "decreased"
		notifType = database.NotificationLoss
	}

	n := database.Notification{
		UserID:           h.UserID,
		HoldingID:        nullString(h.ID),
		NotificationType: notifType,
		Title:            fmt.Sprintf("Portfolio Alert: %s%% %s", changePct.Abs().StringFixed(1), direction),
		Message:          fmt.Sprintf("Your %s has %s by %s%%", h.SchemeName, verb, changePct.Abs().StringFixed(1)),
		FolioNumber:      nullString(h.FolioNumber),
		SchemeName:       nullString(h.SchemeName),
		ChangePercentage: changePct,
		OldValue:         oldValue,
		NewValue:         h.MarketValue,
	}
	id, err := r.store.CreateNotification(ctx, n)
	if err != nil {
		r.log.Warnf("nav: create notification for holding %s failed: %v", h.ID, err)
		return false
	}
	n.ID = id

	if err := r.email.SendAlert(ctx, h.UserID, n); err != nil {
		r.log.Warnf("nav: alert email for user %s failed: %v", h.UserID, err)
		return true
	}
	if err := r.store.MarkNotificationEmailed(ctx, id); err != nil {
		r.log.Warnf("nav: mark emailed for notification %s failed: %v", id, err)
	}
	return true
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

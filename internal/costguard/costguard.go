// Package costguard admits, reconciles, and releases priced calls against a
// tenant's daily and monthly USD budgets. It follows the same
// Reserve/Consume/Release reservation pattern as a gas-bank-style balance
// manager: a reservation holds the estimated cost out of the tenant's
// available budget before the call executes, Consume settles it to the
// actual cost afterward, and Release returns the hold if the call never
// happened.
package costguard

import (
	"context"
	"sync"
	"time"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/infrastructure/metrics"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

const (
	periodDaily   = "daily"
	periodMonthly = "monthly"
)

// Guard admits priced calls against a tenant's configured budget.
type Guard struct {
	store storage.CostStore
	mu    sync.Mutex

	// now is overridable in tests; production code leaves it nil and uses
	// time.Now.
	now func() time.Time
}

// New builds a Guard backed by store.
func New(store storage.CostStore) *Guard {
	return &Guard{store: store}
}

func (g *Guard) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now().UTC()
}

// Reserve admits a call estimated to cost estimatedUSD against tc's daily
// and monthly budgets. It returns a CostReservation the caller must later
// settle with Consume or Release. Admission checks both periods; either
// one being exceeded denies the call.
func (g *Guard) Reserve(ctx context.Context, tc *tenant.Context, cfg tenant.BudgetConfig, estimatedUSD float64) (storage.CostReservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	dailyKey := now.Format("2006-01-02")
	monthlyKey := now.Format("2006-01")

	dailyUsage, err := g.store.GetUsage(ctx, tc.Key, periodDaily, dailyKey)
	if err != nil {
		return storage.CostReservation{}, raeerrors.BackendUnavailable("cost_store", err)
	}
	monthlyUsage, err := g.store.GetUsage(ctx, tc.Key, periodMonthly, monthlyKey)
	if err != nil {
		return storage.CostReservation{}, raeerrors.BackendUnavailable("cost_store", err)
	}

	if dailyUsage.SpendUSD+estimatedUSD > cfg.DailyUSD {
		metrics.Global().RecordBudgetRejection(tc.Key, periodDaily)
		return storage.CostReservation{}, raeerrors.BudgetExceeded(tc.Key, estimatedUSD, cfg.DailyUSD)
	}
	if monthlyUsage.SpendUSD+estimatedUSD > cfg.MonthlyUSD {
		metrics.Global().RecordBudgetRejection(tc.Key, periodMonthly)
		return storage.CostReservation{}, raeerrors.BudgetExceeded(tc.Key, estimatedUSD, cfg.MonthlyUSD)
	}

	r, err := g.store.CreateReservation(ctx, storage.CostReservation{
		Tenant:       tc.Key,
		EstimatedUSD: estimatedUSD,
		Status:       storage.ReservationPending,
	})
	if err != nil {
		return storage.CostReservation{}, raeerrors.BackendUnavailable("cost_store", err)
	}

	// Provisionally add the estimate to both periods so a burst of
	// concurrent reservations cannot all pass admission against the same
	// stale usage snapshot; Consume reconciles to the actual cost.
	if _, err := g.store.AddUsage(ctx, tc.Key, periodDaily, dailyKey, estimatedUSD); err != nil {
		return storage.CostReservation{}, raeerrors.BackendUnavailable("cost_store", err)
	}
	if _, err := g.store.AddUsage(ctx, tc.Key, periodMonthly, monthlyKey, estimatedUSD); err != nil {
		return storage.CostReservation{}, raeerrors.BackendUnavailable("cost_store", err)
	}
	return r, nil
}

// Consume settles a reservation to its actual cost, crediting back the
// difference between the estimate and the actual if the call came in
// under budget.
func (g *Guard) Consume(ctx context.Context, tc *tenant.Context, r storage.CostReservation, actualUSD float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	delta := actualUSD - r.EstimatedUSD
	if delta != 0 {
		if _, err := g.store.AddUsage(ctx, tc.Key, periodDaily, now.Format("2006-01-02"), delta); err != nil {
			return raeerrors.BackendUnavailable("cost_store", err)
		}
		if _, err := g.store.AddUsage(ctx, tc.Key, periodMonthly, now.Format("2006-01"), delta); err != nil {
			return raeerrors.BackendUnavailable("cost_store", err)
		}
	}
	if _, err := g.store.SettleReservation(ctx, r.ID, storage.ReservationConsumed, actualUSD); err != nil {
		return raeerrors.BackendUnavailable("cost_store", err)
	}
	return nil
}

// Release returns a reservation's estimated hold, used when the priced
// call never executed (e.g. the request was cancelled upstream).
func (g *Guard) Release(ctx context.Context, tc *tenant.Context, r storage.CostReservation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	if _, err := g.store.AddUsage(ctx, tc.Key, periodDaily, now.Format("2006-01-02"), -r.EstimatedUSD); err != nil {
		return raeerrors.BackendUnavailable("cost_store", err)
	}
	if _, err := g.store.AddUsage(ctx, tc.Key, periodMonthly, now.Format("2006-01"), -r.EstimatedUSD); err != nil {
		return raeerrors.BackendUnavailable("cost_store", err)
	}
	if _, err := g.store.SettleReservation(ctx, r.ID, storage.ReservationReleased, 0); err != nil {
		return raeerrors.BackendUnavailable("cost_store", err)
	}
	return nil
}

// Usage returns a tenant's current daily and monthly spend.
func (g *Guard) Usage(ctx context.Context, tenantKey string) (daily, monthly storage.CostUsage, err error) {
	now := g.clock()
	daily, err = g.store.GetUsage(ctx, tenantKey, periodDaily, now.Format("2006-01-02"))
	if err != nil {
		return storage.CostUsage{}, storage.CostUsage{}, raeerrors.BackendUnavailable("cost_store", err)
	}
	monthly, err = g.store.GetUsage(ctx, tenantKey, periodMonthly, now.Format("2006-01"))
	if err != nil {
		return storage.CostUsage{}, storage.CostUsage{}, raeerrors.BackendUnavailable("cost_store", err)
	}
	return daily, monthly, nil
}

// AlertLevel returns the highest configured alert threshold the tenant's
// current spend has crossed for the given period (0 if none), used by
// the engine to surface a 50/80/95% budget warning.
func AlertLevel(spend, limit float64, thresholds []float64) float64 {
	if limit <= 0 {
		return 0
	}
	ratio := spend / limit
	var crossed float64
	for _, t := range thresholds {
		if ratio >= t && t > crossed {
			crossed = t
		}
	}
	return crossed
}

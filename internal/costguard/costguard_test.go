package costguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsoft-pro/rae/internal/storage/memory"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

func newGuard(t *testing.T) *Guard {
	t.Helper()
	return New(memory.New())
}

func TestReserveAdmitsExactlyAtBudgetBoundary(t *testing.T) {
	g := newGuard(t)
	tc := tenant.New("acme", "actor", nil, "", time.Time{})
	cfg := tenant.BudgetConfig{DailyUSD: 1.00, MonthlyUSD: 100}

	_, err := g.Reserve(context.Background(), tc, cfg, 1.00)
	require.NoError(t, err)
}

func TestReserveRejectsOneCentOverBudget(t *testing.T) {
	g := newGuard(t)
	tc := tenant.New("acme", "actor", nil, "", time.Time{})
	cfg := tenant.BudgetConfig{DailyUSD: 1.00, MonthlyUSD: 100}

	_, err := g.Reserve(context.Background(), tc, cfg, 1.01)
	require.Error(t, err)
}

func TestReserveRejectsWhenMonthlyExceeded(t *testing.T) {
	g := newGuard(t)
	tc := tenant.New("acme", "actor", nil, "", time.Time{})
	cfg := tenant.BudgetConfig{DailyUSD: 1000, MonthlyUSD: 5}

	_, err := g.Reserve(context.Background(), tc, cfg, 3)
	require.NoError(t, err)
	_, err = g.Reserve(context.Background(), tc, cfg, 3)
	require.Error(t, err)
}

func TestConsumeCreditsBackUnderBudgetDelta(t *testing.T) {
	g := newGuard(t)
	tc := tenant.New("acme", "actor", nil, "", time.Time{})
	cfg := tenant.BudgetConfig{DailyUSD: 10, MonthlyUSD: 100}

	r, err := g.Reserve(context.Background(), tc, cfg, 2.0)
	require.NoError(t, err)
	require.NoError(t, g.Consume(context.Background(), tc, r, 0.5))

	daily, _, err := g.Usage(context.Background(), tc.Key)
	require.NoError(t, err)
	require.InDelta(t, 0.5, daily.SpendUSD, 1e-9)
}

func TestReleaseReturnsHoldInFull(t *testing.T) {
	g := newGuard(t)
	tc := tenant.New("acme", "actor", nil, "", time.Time{})
	cfg := tenant.BudgetConfig{DailyUSD: 10, MonthlyUSD: 100}

	r, err := g.Reserve(context.Background(), tc, cfg, 4.0)
	require.NoError(t, err)
	require.NoError(t, g.Release(context.Background(), tc, r))

	daily, _, err := g.Usage(context.Background(), tc.Key)
	require.NoError(t, err)
	require.InDelta(t, 0, daily.SpendUSD, 1e-9)
}

func TestAlertLevelReturnsHighestCrossedThreshold(t *testing.T) {
	thresholds := []float64{0.5, 0.8, 0.95}

	require.Equal(t, 0.0, AlertLevel(10, 100, thresholds))
	require.Equal(t, 0.5, AlertLevel(55, 100, thresholds))
	require.Equal(t, 0.8, AlertLevel(85, 100, thresholds))
	require.Equal(t, 0.95, AlertLevel(99, 100, thresholds))
}

func TestAlertLevelWithZeroLimitNeverCrosses(t *testing.T) {
	require.Equal(t, 0.0, AlertLevel(50, 0, []float64{0.5}))
}

package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsoft-pro/rae/internal/costguard"
	"github.com/dreamsoft-pro/rae/internal/graphstore"
	"github.com/dreamsoft-pro/rae/internal/memorypipeline"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/storage/memory"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

type fakeTenantLister struct{ tenants []string }

func (f *fakeTenantLister) Tenants(_ context.Context) ([]string, error) { return f.tenants, nil }

type fakeConfigResolver struct{ cfg tenant.Config }

func (f *fakeConfigResolver) Config(_ string) tenant.Config { return f.cfg }

type fakeClusterAnalyzer struct{ size int; meanUsage float64 }

func (f *fakeClusterAnalyzer) LongtermClusterStats(_ context.Context, _ string) (int, float64, error) {
	return f.size, f.meanUsage, nil
}

type countingReflector struct{ calls int32 }

func (r *countingReflector) Dream(_ context.Context, _ string, _ tenant.Config) error {
	atomic.AddInt32(&r.calls, 1)
	return nil
}

func newTestScheduler(t *testing.T, tenants []string, cfg tenant.Config, reflector Reflector) (*Scheduler, *memory.Store) {
	t.Helper()
	store := memory.New()
	pipeline := memorypipeline.New(store, policyguard.New(nil), nil)
	graph := graphstore.New(store)
	cost := costguard.New(store)
	sched := New(&fakeTenantLister{tenants: tenants}, &fakeConfigResolver{cfg: cfg}, pipeline, graph, &fakeClusterAnalyzer{}, cost, reflector, nil)
	return sched, store
}

func TestRunDecayCyclePrunesPerTenantRecords(t *testing.T) {
	cfg := tenant.Defaults()
	sched, store := newTestScheduler(t, []string{"acme"}, cfg, nil)

	now := time.Now().UTC()
	rec, err := store.CreateRecord(context.Background(), storage.Record{
		Tenant:       "acme",
		Layer:        storage.Longterm,
		Content:      "stale",
		Importance:   cfg.Decay.ImportanceFloor - 0.01,
		UsageCounter: 0,
		InfoClass:    storage.Internal,
		CreatedAt:    now.Add(-cfg.Decay.MinAgeForPrune - time.Hour),
	})
	require.NoError(t, err)
	rec.CreatedAt = now.Add(-cfg.Decay.MinAgeForPrune - time.Hour)
	rec.LastDecayedAt = rec.CreatedAt
	_, err = store.UpdateRecord(context.Background(), rec)
	require.NoError(t, err)

	sched.runDecayCycle(context.Background())

	_, err = store.GetRecord(context.Background(), "acme", rec.ID)
	require.Error(t, err)
}

func TestRunPromotionCycleAppliesAcrossLayers(t *testing.T) {
	cfg := tenant.Defaults()
	sched, store := newTestScheduler(t, []string{"acme"}, cfg, nil)

	_, err := store.CreateRecord(context.Background(), storage.Record{
		Tenant:     "acme",
		Layer:      storage.Sensory,
		Content:    "important",
		Importance: cfg.Layers.ThetaS,
		InfoClass:  storage.Internal,
	})
	require.NoError(t, err)

	sched.runPromotionCycle(context.Background())

	recs, err := store.ListRecords(context.Background(), "acme", storage.Filter{Layer: storage.Working})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestRunDreamingCycleDefersWhenBudgetExhausted(t *testing.T) {
	cfg := tenant.Defaults()
	cfg.Budget.DailyUSD = 1.0
	reflector := &countingReflector{}
	sched, _ := newTestScheduler(t, []string{"acme"}, cfg, reflector)

	tc := tenant.New("acme", "dreaming-worker", nil, "", time.Time{})
	_, rerr := sched.cost.Reserve(context.Background(), tc, cfg.Budget, 1.0)
	require.NoError(t, rerr)

	sched.runDreamingCycle(context.Background())
	require.EqualValues(t, 0, atomic.LoadInt32(&reflector.calls))
}

func TestRunDreamingCycleInvokesReflectorWithinBudget(t *testing.T) {
	cfg := tenant.Defaults()
	cfg.Budget.DailyUSD = 100.0
	reflector := &countingReflector{}
	sched, _ := newTestScheduler(t, []string{"acme"}, cfg, reflector)

	sched.runDreamingCycle(context.Background())
	require.EqualValues(t, 1, atomic.LoadInt32(&reflector.calls))
}

func TestDecayFactorConvergesToHalfAtHalfLife(t *testing.T) {
	factor := decayFactor(14)
	cycles := (14.0 * 24 * 60) / 5
	result := 1.0
	for i := 0; i < int(cycles); i++ {
		result *= factor
	}
	require.InDelta(t, 0.5, result, 1e-3)
}

package memorypipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/audit"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/storage/memory"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

func TestEvaluatePromotionSensoryToWorking(t *testing.T) {
	cfg := tenant.Defaults().Layers
	now := time.Now().UTC()

	rec := storage.Record{Layer: storage.Sensory, Importance: cfg.ThetaS}
	require.Equal(t, storage.Working, EvaluatePromotion(rec, cfg, now, 0, 0))

	lowImportance := storage.Record{Layer: storage.Sensory, Importance: cfg.ThetaS - 0.01}
	require.Equal(t, storage.Layer(""), EvaluatePromotion(lowImportance, cfg, now, 0, 0))

	tagged := storage.Record{Layer: storage.Sensory, Importance: 0, Tags: cfg.MandatoryTags}
	if len(cfg.MandatoryTags) > 0 {
		require.Equal(t, storage.Working, EvaluatePromotion(tagged, cfg, now, 0, 0))
	}
}

func TestEvaluatePromotionWorkingToLongtermRequiresAgeAndUsage(t *testing.T) {
	cfg := tenant.Defaults().Layers
	now := time.Now().UTC()

	fresh := storage.Record{
		Layer:        storage.Working,
		Importance:   cfg.ThetaW,
		UsageCounter: cfg.WorkingMinUsage,
		CreatedAt:    now,
	}
	require.Equal(t, storage.Layer(""), EvaluatePromotion(fresh, cfg, now, 0, 0))

	aged := fresh
	aged.CreatedAt = now.Add(-cfg.WorkingMinAge - time.Minute)
	require.Equal(t, storage.Longterm, EvaluatePromotion(aged, cfg, now, 0, 0))

	underused := aged
	underused.UsageCounter = cfg.WorkingMinUsage - 1
	require.Equal(t, storage.Layer(""), EvaluatePromotion(underused, cfg, now, 0, 0))
}

func TestEvaluatePromotionLongtermToReflectiveRequiresCluster(t *testing.T) {
	cfg := tenant.Defaults().Layers
	now := time.Now().UTC()

	rec := storage.Record{Layer: storage.Longterm, Importance: cfg.ThetaL}
	require.Equal(t, storage.Layer(""), EvaluatePromotion(rec, cfg, now, cfg.ClusterMinSize-1, cfg.ClusterMinUsage))
	require.Equal(t, storage.Reflective, EvaluatePromotion(rec, cfg, now, cfg.ClusterMinSize, cfg.ClusterMinUsage))
}

func TestPromoteRejectsRestrictedContentLeavingWorking(t *testing.T) {
	store := memory.New()
	guard := policyguard.New([]string{"ssn"})
	pipeline := New(store, guard, nil)
	tc := tenant.New("acme", "tester", nil, "", time.Time{})

	rec, err := store.CreateRecord(context.Background(), storage.Record{
		Tenant:    "acme",
		Layer:     storage.Working,
		Content:   "ssn 123-45-6789",
		InfoClass: storage.Restricted,
	})
	require.NoError(t, err)

	_, err = pipeline.Promote(context.Background(), tc, rec, storage.Longterm, "promotion-worker")
	require.Error(t, err)
}

func TestRunCyclePromotesEligibleRecords(t *testing.T) {
	store := memory.New()
	guard := policyguard.New(nil)
	pipeline := New(store, guard, nil)
	tc := tenant.New("acme", "tester", nil, "", time.Time{})
	cfg := tenant.Defaults().Layers

	_, err := store.CreateRecord(context.Background(), storage.Record{
		Tenant:     "acme",
		Layer:      storage.Sensory,
		Content:    "high importance note",
		Importance: cfg.ThetaS,
		InfoClass:  storage.Internal,
	})
	require.NoError(t, err)

	n, err := pipeline.RunCycle(context.Background(), tc, cfg, storage.Sensory, "promotion-worker", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	recs, err := store.ListRecords(context.Background(), "acme", storage.Filter{Layer: storage.Working})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestDecayImportanceIsIdempotentAtSameInstant(t *testing.T) {
	now := time.Now().UTC()
	rec := storage.Record{
		Importance:    0.8,
		CreatedAt:     now.Add(-48 * time.Hour),
		LastDecayedAt: now,
	}

	decayed := DecayImportance(rec, 14, now)
	require.InDelta(t, rec.Importance, decayed.Importance, 1e-9)
	require.Equal(t, now, decayed.LastDecayedAt)
}

func TestDecayImportanceAppliesExponentialDecayOverTime(t *testing.T) {
	now := time.Now().UTC()
	rec := storage.Record{
		Importance:    1.0,
		CreatedAt:     now.Add(-14 * 24 * time.Hour),
		LastDecayedAt: time.Time{},
	}

	decayed := DecayImportance(rec, 14, now)
	require.InDelta(t, 0.3678794, decayed.Importance, 1e-6)
	require.Equal(t, now, decayed.LastDecayedAt)
}

func TestEvaluatePruneRequiresZeroUsageAndAge(t *testing.T) {
	cfg := tenant.Defaults().Decay
	now := time.Now().UTC()

	stale := storage.Record{
		Importance:   cfg.ImportanceFloor - 0.01,
		UsageCounter: 0,
		CreatedAt:    now.Add(-cfg.MinAgeForPrune - time.Hour),
	}
	require.True(t, EvaluatePrune(stale, cfg, now))

	usedRecently := stale
	usedRecently.UsageCounter = 1
	require.False(t, EvaluatePrune(usedRecently, cfg, now))

	tooYoung := stale
	tooYoung.CreatedAt = now.Add(-time.Hour)
	require.False(t, EvaluatePrune(tooYoung, cfg, now))

	stillImportant := stale
	stillImportant.Importance = cfg.ImportanceFloor + 0.5
	require.False(t, EvaluatePrune(stillImportant, cfg, now))
}

func TestRunDecayCyclePrunesAndPersistsDecay(t *testing.T) {
	store := memory.New()
	guard := policyguard.New(nil)
	sink := audit.New(store, logging.New("memorypipeline-test", "error", "text"), 16)
	defer sink.Close()
	pipeline := New(store, guard, sink)
	tc := tenant.New("acme", "tester", nil, "", time.Time{})
	cfg := tenant.Defaults().Decay

	now := time.Now().UTC()

	prunable, err := store.CreateRecord(context.Background(), storage.Record{
		Tenant:       "acme",
		Layer:        storage.Longterm,
		Content:      "stale note",
		Importance:   cfg.ImportanceFloor - 0.01,
		UsageCounter: 0,
		InfoClass:    storage.Internal,
		CreatedAt:    now.Add(-cfg.MinAgeForPrune - time.Hour),
	})
	require.NoError(t, err)
	prunable.CreatedAt = now.Add(-cfg.MinAgeForPrune - time.Hour)
	prunable.LastDecayedAt = prunable.CreatedAt
	_, err = store.UpdateRecord(context.Background(), prunable)
	require.NoError(t, err)

	healthy, err := store.CreateRecord(context.Background(), storage.Record{
		Tenant:     "acme",
		Layer:      storage.Longterm,
		Content:    "important note",
		Importance: 0.9,
		InfoClass:  storage.Internal,
		CreatedAt:  now.Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	decayed, pruned, err := pipeline.RunDecayCycle(context.Background(), tc, cfg, 14, now, "decay-worker")
	require.NoError(t, err)
	require.Equal(t, 1, pruned)
	require.GreaterOrEqual(t, decayed, 1)

	_, err = store.GetRecord(context.Background(), "acme", prunable.ID)
	require.Error(t, err)

	remaining, err := store.GetRecord(context.Background(), "acme", healthy.ID)
	require.NoError(t, err)
	require.Less(t, remaining.Importance, 0.9)

	decayed2, pruned2, err := pipeline.RunDecayCycle(context.Background(), tc, cfg, 14, now, "decay-worker")
	require.NoError(t, err)
	require.Equal(t, 0, pruned2)
	require.Equal(t, 0, decayed2)
}

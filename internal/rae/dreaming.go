package rae

import (
	"context"
	"time"

	"github.com/dreamsoft-pro/rae/internal/reflection"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// maxEvidencePerCluster bounds how many longterm records feed one
// reflection pass, keeping the actor's prompt a bounded size regardless of
// how large a tag cluster has grown.
const maxEvidencePerCluster = 12

// Dream satisfies workers.Reflector: it groups the tenant's longterm
// records into clusters (by their first tag, a stand-in for a real
// semantic clustering stage — see clusterAnalyzer's doc comment), and for
// every cluster that clears the tenant's minimum cluster size, runs one
// Actor-Evaluator-Reflector pass and stores the accepted lesson as a new
// reflective-layer memory. A cluster whose reflection is abandoned is
// skipped without failing the cycle for the rest of the tenant's clusters.
func (e *Engine) Dream(ctx context.Context, tenantKey string, cfg tenant.Config) error {
	tc := tenant.New(tenantKey, "dreaming-worker", nil, "", time.Time{})

	recs, err := e.recordStore.ListRecords(ctx, tenantKey, storage.Filter{Layer: storage.Longterm})
	if err != nil {
		return err
	}

	clusters := clusterByTag(recs)
	for tag, members := range clusters {
		if len(members) < cfg.Layers.ClusterMinSize {
			continue
		}
		if len(members) > maxEvidencePerCluster {
			members = members[:maxEvidencePerCluster]
		}

		evidence := make([]reflection.Evidence, 0, len(members))
		for _, rec := range members {
			evidence = append(evidence, reflection.Evidence{
				MemoryID:  rec.ID,
				Content:   rec.Content,
				InfoClass: rec.InfoClass,
			})
		}

		lesson, err := e.reflectionEngine.Reflect(ctx, tc, cfg.Reflection, evidence, reflection.Criteria{})
		if err != nil {
			// Abandonment is already audited by the reflection engine;
			// move on to the next cluster.
			continue
		}

		_, _ = e.storeLesson(ctx, tc, lesson, []string{tag, "reflection"}, "dreaming-worker")
	}
	return nil
}

// clusterByTag groups records by their first tag ("" for untagged
// records, which therefore never forms a cluster large enough to reflect
// on unless the tenant's minimum cluster size is zero).
func clusterByTag(recs []storage.Record) map[string][]storage.Record {
	out := make(map[string][]storage.Record)
	for _, rec := range recs {
		tag := ""
		if len(rec.Tags) > 0 {
			tag = rec.Tags[0]
		}
		out[tag] = append(out[tag], rec)
	}
	return out
}

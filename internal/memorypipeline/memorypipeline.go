// Package memorypipeline implements the Four-Layer Memory Pipeline's
// admission and promotion rules: sensory -> working -> longterm ->
// reflective, monotonic, each transition gated by the tenant's configured
// thresholds and emitting an audit event carrying lineage.
package memorypipeline

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/dreamsoft-pro/rae/internal/audit"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// Pipeline evaluates and applies layer promotions for a tenant's records.
type Pipeline struct {
	records storage.RecordStore
	guard   *policyguard.Guard
	sink    *audit.Sink
}

// New builds a Pipeline.
func New(records storage.RecordStore, guard *policyguard.Guard, sink *audit.Sink) *Pipeline {
	return &Pipeline{records: records, guard: guard, sink: sink}
}

// EvaluatePromotion decides whether rec is eligible to advance one layer,
// per spec §4.7's admission rules. It never demotes and never skips a
// layer: a sensory record promotes only to working, a working record only
// to longterm, and so on. It returns storage.Layer("") if rec is not
// eligible to promote right now.
func EvaluatePromotion(rec storage.Record, cfg tenant.LayerConfig, now time.Time, clusterSize int, clusterMeanUsage float64) storage.Layer {
	switch rec.Layer {
	case storage.Sensory:
		if hasMandatoryTag(rec.Tags, cfg.MandatoryTags) || rec.Importance >= cfg.ThetaS {
			return storage.Working
		}
	case storage.Working:
		age := now.Sub(rec.CreatedAt)
		if rec.Importance >= cfg.ThetaW && rec.UsageCounter >= cfg.WorkingMinUsage && age >= cfg.WorkingMinAge {
			return storage.Longterm
		}
	case storage.Longterm:
		if rec.Importance >= cfg.ThetaL && clusterSize >= cfg.ClusterMinSize && clusterMeanUsage >= cfg.ClusterMinUsage {
			return storage.Reflective
		}
	}
	return ""
}

// DecayImportance applies exponential decay to rec's importance per spec
// §4.9: importance <- importance * exp(-dt/halfLifeDays), where dt is the
// time elapsed since the record was last decayed (or since it was created,
// for a record that has never been decayed). Calling it twice at the same
// instant is a no-op, since dt collapses to zero — the property the
// background decay worker relies on to be safely re-entrant.
func DecayImportance(rec storage.Record, halfLifeDays float64, now time.Time) storage.Record {
	last := rec.LastDecayedAt
	if last.IsZero() {
		last = rec.CreatedAt
	}
	dt := now.Sub(last)
	if dt <= 0 || halfLifeDays <= 0 {
		rec.LastDecayedAt = now
		return rec
	}
	days := dt.Hours() / 24
	factor := math.Exp(-days / halfLifeDays)
	rec.Importance = clamp01(rec.Importance * factor)
	rec.LastDecayedAt = now
	return rec
}

// EvaluatePrune reports whether rec has decayed into eligibility for
// removal: importance below the tenant's floor, never touched since
// creation, and old enough that a late burst of usage is no longer
// plausible.
func EvaluatePrune(rec storage.Record, cfg tenant.DecayConfig, now time.Time) bool {
	age := now.Sub(rec.CreatedAt)
	return rec.Importance < cfg.ImportanceFloor && rec.UsageCounter == 0 && age >= cfg.MinAgeForPrune
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RunDecayCycle applies importance decay to every record of every layer for
// the tenant and removes records that have decayed past the prune
// threshold, emitting an audit event for each prune. It is idempotent:
// invoking it twice in quick succession decays nothing further the second
// time, since DecayImportance's dt is measured from each record's own
// LastDecayedAt.
func (p *Pipeline) RunDecayCycle(ctx context.Context, tc *tenant.Context, cfg tenant.DecayConfig, halfLifeDays float64, now time.Time, worker string) (decayed, pruned int, err error) {
	for _, layer := range []storage.Layer{storage.Sensory, storage.Working, storage.Longterm, storage.Reflective} {
		recs, err := p.records.ListRecords(ctx, tc.Key, storage.Filter{Layer: layer})
		if err != nil {
			return decayed, pruned, err
		}
		for _, rec := range recs {
			decayedRec := DecayImportance(rec, halfLifeDays, now)

			if EvaluatePrune(decayedRec, cfg, now) {
				if derr := p.records.DeleteRecord(ctx, tc.Key, rec.ID); derr != nil {
					continue
				}
				pruned++
				if p.sink != nil {
					p.sink.Record(storage.AuditEvent{
						Tenant: tc.Key,
						Actor:  worker,
						Action: "prune",
						Target: rec.ID,
						Details: map[string]string{
							"layer":      string(layer),
							"importance": strconv.FormatFloat(decayedRec.Importance, 'f', 4, 64),
							"worker":     worker,
						},
					})
				}
				continue
			}

			if decayedRec.Importance == rec.Importance && decayedRec.LastDecayedAt.Equal(rec.LastDecayedAt) {
				continue
			}
			if _, uerr := p.records.UpdateRecord(ctx, decayedRec); uerr == nil {
				decayed++
			}
		}
	}
	return decayed, pruned, nil
}

func hasMandatoryTag(tags, mandatory []string) bool {
	for _, m := range mandatory {
		for _, t := range tags {
			if t == m {
				return true
			}
		}
	}
	return false
}

// Promote applies a single-layer promotion to rec, enforcing layer
// containment (restricted content cannot leave working) before writing,
// and emits an audit event carrying the record's lineage.
func (p *Pipeline) Promote(ctx context.Context, tc *tenant.Context, rec storage.Record, to storage.Layer, worker string) (storage.Record, error) {
	if err := p.guard.CheckPromotion(rec.InfoClass, rec.Layer, to); err != nil {
		return storage.Record{}, err
	}

	from := rec.Layer
	rec.Layer = to
	updated, err := p.records.UpdateRecord(ctx, rec)
	if err != nil {
		return storage.Record{}, err
	}

	if p.sink != nil {
		p.sink.Record(storage.AuditEvent{
			Tenant: tc.Key,
			Actor:  worker,
			Action: "promote",
			Target: updated.ID,
			Details: map[string]string{
				"from_layer":   string(from),
				"to_layer":     string(to),
				"content_hash": updated.ContentHash,
				"worker":       worker,
			},
		})
	}
	return updated, nil
}

// RunCycle evaluates every candidate record in layer for promotion
// eligibility and applies any that qualify, returning the number promoted.
// clusterSize/clusterMeanUsage are supplied by the caller (the dreaming
// worker, which has already computed longterm clusters) since clustering
// itself is out of this package's scope.
func (p *Pipeline) RunCycle(ctx context.Context, tc *tenant.Context, cfg tenant.LayerConfig, layer storage.Layer, worker string, clusterSize int, clusterMeanUsage float64) (int, error) {
	recs, err := p.records.ListRecords(ctx, tc.Key, storage.Filter{Layer: layer})
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	promoted := 0
	for _, rec := range recs {
		target := EvaluatePromotion(rec, cfg, now, clusterSize, clusterMeanUsage)
		if target == "" {
			continue
		}
		if _, err := p.Promote(ctx, tc, rec, target, worker); err != nil {
			continue
		}
		promoted++
	}
	return promoted, nil
}

// Package workers runs the engine's background cycles: decay, promotion
// sweeps (summarization), and reflective dreaming. Each cycle is scheduled
// by robfig/cron/v3 and iterates every known tenant under its own advisory
// lock, so one tenant's failure or slow cycle never blocks another's.
package workers

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/costguard"
	"github.com/dreamsoft-pro/rae/internal/graphstore"
	"github.com/dreamsoft-pro/rae/internal/memorypipeline"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// TenantLister enumerates the tenants a cycle must run against.
type TenantLister interface {
	Tenants(ctx context.Context) ([]string, error)
}

// ConfigResolver looks up a tenant's full configuration.
type ConfigResolver interface {
	Config(tenantKey string) tenant.Config
}

// ClusterAnalyzer computes the longterm-layer cluster statistics the
// promotion pipeline's working->longterm->reflective gates require. A
// real implementation groups longterm records by semantic similarity; the
// interface keeps that algorithm out of the scheduler's concern.
type ClusterAnalyzer interface {
	LongtermClusterStats(ctx context.Context, tenantKey string) (size int, meanUsage float64, err error)
}

// Reflector authors reflective-layer memories from a tenant's longterm
// clusters. internal/rae injects this since evidence-bundle assembly and
// lesson persistence depend on the record store and reflection engine,
// neither of which the scheduler owns.
type Reflector interface {
	Dream(ctx context.Context, tenantKey string, cfg tenant.Config) error
}

// Scheduler runs the engine's three background cycles on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	tenants  TenantLister
	configs  ConfigResolver
	pipeline  *memorypipeline.Pipeline
	graph     *graphstore.Graph
	cluster   ClusterAnalyzer
	cost      *costguard.Guard
	reflector Reflector
	logger    *logging.Logger

	mu       sync.Mutex
	tenantMu map[string]*sync.Mutex
}

// New builds a Scheduler. Cycles are not started until Start is called.
// reflector may be nil, in which case the dreaming cycle only performs its
// budget-admission check and authors nothing.
func New(tenants TenantLister, configs ConfigResolver, pipeline *memorypipeline.Pipeline, graph *graphstore.Graph, cluster ClusterAnalyzer, cost *costguard.Guard, reflector Reflector, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		tenants:   tenants,
		configs:   configs,
		pipeline:  pipeline,
		graph:     graph,
		cluster:   cluster,
		cost:      cost,
		reflector: reflector,
		logger:    logger,
		tenantMu:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns (creating if necessary) the advisory lock for tenantKey,
// so concurrent cycles never race on the same tenant's records.
func (s *Scheduler) lockFor(tenantKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tenantMu[tenantKey]
	if !ok {
		m = &sync.Mutex{}
		s.tenantMu[tenantKey] = m
	}
	return m
}

// Start registers the three cycles on their default schedules and starts
// the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 5m", func() { s.runDecayCycle(context.Background()) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 15m", func() { s.runPromotionCycle(context.Background()) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 1h", func() { s.runDreamingCycle(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop drains in-flight cycles and halts the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) forEachTenant(ctx context.Context, cycle string, fn func(ctx context.Context, tenantKey string) error) {
	start := time.Now()
	tenants, err := s.tenants.Tenants(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.LogWorkerCycle(ctx, cycle, "*", 0, time.Since(start), err)
		}
		return
	}

	var errs *multierror.Error
	processed := 0
	for _, t := range tenants {
		lock := s.lockFor(t)
		if !lock.TryLock() {
			// Previous cycle for this tenant is still running; skip rather
			// than queue, the next tick will catch up.
			continue
		}
		func() {
			defer lock.Unlock()
			tenantStart := time.Now()
			err := fn(ctx, t)
			if s.logger != nil {
				s.logger.LogWorkerCycle(ctx, cycle, t, 1, time.Since(tenantStart), err)
			}
			if err != nil {
				errs = multierror.Append(errs, err)
				return
			}
			processed++
		}()
	}
	if errs.ErrorOrNil() != nil && s.logger != nil {
		s.logger.Error(ctx, "worker cycle completed with per-tenant failures", errs, map[string]interface{}{"cycle": cycle})
	}
}

// runDecayCycle applies confidence decay to graph edges and prunes
// below-floor importance records, per spec §4.9's decay dynamics.
func (s *Scheduler) runDecayCycle(ctx context.Context) {
	s.forEachTenant(ctx, "decay", func(ctx context.Context, tenantKey string) error {
		cfg := s.configs.Config(tenantKey)
		tc := tenant.New(tenantKey, "decay-worker", nil, "", time.Time{})
		factor := decayFactor(cfg.Decay.HalfLifeDays)

		var errs *multierror.Error
		if err := s.graph.DecayEdges(ctx, tc, factor, cfg.Decay.EdgeConfidenceFloor); err != nil {
			errs = multierror.Append(errs, err)
		}
		if _, _, err := s.pipeline.RunDecayCycle(ctx, tc, cfg.Decay, cfg.Decay.HalfLifeDays, time.Now().UTC(), "decay-worker"); err != nil {
			errs = multierror.Append(errs, err)
		}
		return errs.ErrorOrNil()
	})
}

// runPromotionCycle evaluates every layer's admission thresholds and
// applies eligible promotions; this is the "summarization" cycle the
// spec refers to since working->longterm promotion is where a tenant's
// durable summary of a topic solidifies.
func (s *Scheduler) runPromotionCycle(ctx context.Context) {
	s.forEachTenant(ctx, "promotion", func(ctx context.Context, tenantKey string) error {
		cfg := s.configs.Config(tenantKey)
		tc := tenant.New(tenantKey, "promotion-worker", nil, "", time.Time{})

		var errs *multierror.Error
		for _, layer := range []storage.Layer{storage.Sensory, storage.Working, storage.Longterm} {
			size, meanUsage := 0, 0.0
			if layer == storage.Longterm && s.cluster != nil {
				var err error
				size, meanUsage, err = s.cluster.LongtermClusterStats(ctx, tenantKey)
				if err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
			}
			if _, err := s.pipeline.RunCycle(ctx, tc, cfg.Layers, layer, "promotion-worker", size, meanUsage); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		return errs.ErrorOrNil()
	})
}

// runDreamingCycle is the reflective-layer cycle: it is cost-guard aware
// and defers entirely for a tenant whose remaining daily budget cannot
// cover even one minimal reflection call, rather than attempting it and
// failing mid-loop.
func (s *Scheduler) runDreamingCycle(ctx context.Context) {
	s.forEachTenant(ctx, "dreaming", func(ctx context.Context, tenantKey string) error {
		cfg := s.configs.Config(tenantKey)
		tc := tenant.New(tenantKey, "dreaming-worker", nil, "", time.Time{})

		daily, _, err := s.cost.Usage(ctx, tenantKey)
		if err != nil {
			return err
		}
		if daily.SpendUSD >= cfg.Budget.DailyUSD {
			if s.logger != nil {
				s.logger.LogWorkerCycle(ctx, "dreaming", tenantKey, 0, 0, nil)
			}
			return nil
		}
		_ = tc
		if s.reflector == nil {
			return nil
		}
		return s.reflector.Dream(ctx, tenantKey, cfg)
	})
}

// decayFactor converts a half-life in days into the per-cycle multiplier
// for a 5-minute decay tick.
func decayFactor(halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	cyclesPerHalfLife := (halfLifeDays * 24 * 60) / 5
	if cyclesPerHalfLife <= 0 {
		return 1
	}
	// factor^cyclesPerHalfLife = 0.5
	return math.Pow(0.5, 1/cyclesPerHalfLife)
}

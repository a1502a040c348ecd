// Package rae wires every core component (storage, tenant context, memory
// record store, vector index, graph store, hybrid retrieval, the four-layer
// pipeline, reflection, background workers, the LLM gateway, and the cost
// and policy guards) into the single Engine that a process entry point
// constructs and drives. It is the one package allowed to depend on every
// other internal package, since it is where their narrow, independently
// testable interfaces meet.
package rae

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/infrastructure/cache"
	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/infrastructure/metrics"
	"github.com/dreamsoft-pro/rae/infrastructure/ratelimit"
	"github.com/dreamsoft-pro/rae/internal/audit"
	"github.com/dreamsoft-pro/rae/internal/costguard"
	rconfig "github.com/dreamsoft-pro/rae/internal/config"
	"github.com/dreamsoft-pro/rae/internal/framework/lifecycle"
	"github.com/dreamsoft-pro/rae/internal/graphstore"
	"github.com/dreamsoft-pro/rae/internal/lexical"
	"github.com/dreamsoft-pro/rae/internal/llmgateway"
	"github.com/dreamsoft-pro/rae/internal/memorypipeline"
	"github.com/dreamsoft-pro/rae/internal/memrecord"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/reflection"
	"github.com/dreamsoft-pro/rae/internal/retrieval"
	service "github.com/dreamsoft-pro/rae/internal/services/core"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
	"github.com/dreamsoft-pro/rae/internal/vectorindex"
	"github.com/dreamsoft-pro/rae/internal/workers"
)

// Engine is the top-level Reflective Agent Engine service. It exposes the
// programmatic contract every adapter (HTTP, RPC, or an in-process caller)
// drives: Store/Query/Update/Delete a memory, query the knowledge graph,
// trigger a reflection, and read back cost and usage.
type Engine struct {
	registry *TenantRegistry

	recordStore storage.RecordStore
	blobs       storage.BlobStore
	records     *memrecord.Store
	vectors     *vectorindex.Index
	graph       *graphstore.Graph
	retrieval   *retrieval.Engine
	pipeline    *memorypipeline.Pipeline
	reflectionEngine *reflection.Engine
	gateway     *llmgateway.Gateway
	costGuard   *costguard.Guard
	policyGuard *policyguard.Guard
	auditSink   *audit.Sink
	scheduler   *workers.Scheduler
	logger      *logging.Logger

	ingress   *ratelimit.RateLimiter
	queryCache *cache.TTLCache

	hooks    *lifecycle.Hooks
	shutdown *lifecycle.GracefulShutdown

	startedAt time.Time
}

// Backends bundles the storage-layer implementations a Config wires
// together; a single in-memory or Postgres store commonly implements every
// one of these, but the engine treats them as independent dependencies.
type Backends struct {
	Records storage.RecordStore
	Vectors storage.VectorIndex
	Graph   storage.GraphStore
	Audit   storage.AuditSink
	Cost    storage.CostStore
	Blobs   storage.BlobStore
}

// overflowThreshold is a size in bytes for reflected content that no code
// path reads: reflected content is stored inline on the record whatever
// its length, and nothing is written to the blob store for it.
const overflowThreshold = 4000

// New wires every component into a running Engine. cfg supplies process-wide
// settings (audit queue depth, provider routes, redis URL); per-tenant
// behavior is entirely data-driven through the returned Engine's
// TenantRegistry (exposed via Registry).
func New(backends Backends, cfg *rconfig.Config, logger *logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NewFromEnv("rae-engine")
	}

	registry := NewTenantRegistry()
	policyGuard := policyguard.New(tenant.Defaults().Policy.InfoClassRules)
	costGuard := costguard.New(backends.Cost)
	auditSink := audit.New(backends.Audit, logger, cfg.AuditQueueDepth)
	vectors := vectorindex.New(backends.Vectors)
	graph := graphstore.New(backends.Graph)

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("rae: connecting to redis: %w", err)
	}

	gateway := llmgateway.New(
		llmgateway.NewHTTPEmbedProvider(providerRoutes(cfg)),
		llmgateway.NewHTTPCompletionProvider(providerRoutes(cfg)),
		llmgateway.NewHTTPRerankProvider(providerRoutes(cfg)),
		llmgateway.NewStaticPricer(),
		policyGuard,
		costGuard,
		logger,
		4096,
		redisClient,
	)

	embedder := llmgateway.NewAsyncEmbedder(gateway, vectors, registry, logger)
	records := memrecord.New(backends.Records, backends.Vectors, backends.Graph, policyGuard, auditSink, embedder, logger)

	lex := lexical.New(backends.Records)
	fetcher := &recordFetcher{records: backends.Records}
	retrievalEngine := retrieval.New(
		&denseSearcher{index: vectors},
		lex,
		&graphSearcher{graph: graph},
		fetcher,
		policyGuard,
		&gatewayReranker{gateway: gateway, configs: registry},
		logger,
	)

	pipeline := memorypipeline.New(backends.Records, policyGuard, auditSink)

	reflectionEngine := reflection.New(
		&reflectionCompleter{gateway: gateway, configs: registry},
		nil,
		policyGuard,
		auditSink,
	)

	e := &Engine{
		registry:         registry,
		recordStore:      backends.Records,
		blobs:            backends.Blobs,
		records:          records,
		vectors:          vectors,
		graph:            graph,
		retrieval:        retrievalEngine,
		pipeline:         pipeline,
		reflectionEngine: reflectionEngine,
		gateway:          gateway,
		costGuard:        costGuard,
		policyGuard:      policyGuard,
		auditSink:        auditSink,
		logger:           logger,
		ingress:          ratelimit.New(ratelimit.DefaultConfig()),
		queryCache:       cache.NewTTLCache(30 * time.Second),
		hooks:            lifecycle.NewHooks(),
		shutdown:         lifecycle.NewGracefulShutdown(),
	}

	e.scheduler = workers.New(
		registry,
		registry,
		pipeline,
		graph,
		&clusterAnalyzer{records: backends.Records},
		costGuard,
		e,
		logger,
	)

	e.hooks.OnPreStop(func(ctx context.Context) error {
		e.scheduler.Stop()
		return nil
	})
	e.hooks.OnPostStop(func(ctx context.Context) error {
		e.auditSink.Close()
		return nil
	})

	return e, nil
}

func newRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// providerRoutes maps every model name the default tenant configuration (and
// any reasonable extension of it) might reference to one of the process's
// two configured upstream providers. Models are split by naming convention:
// "text-embedding-cheap"/"provider-a/*" route to provider A, everything
// else to provider B.
func providerRoutes(cfg *rconfig.Config) map[string]llmgateway.HTTPProviderConfig {
	a := llmgateway.HTTPProviderConfig{BaseURL: cfg.ProviderAURL, APIKey: cfg.ProviderAKey}
	b := llmgateway.HTTPProviderConfig{BaseURL: cfg.ProviderBURL, APIKey: cfg.ProviderBKey}
	return map[string]llmgateway.HTTPProviderConfig{
		"text-embedding-cheap": a,
		"text-embedding-heavy": b,
		"provider-a/small":     a,
		"provider-a/large":     a,
		"provider-a/rerank":    a,
		"provider-b/small":     b,
		"provider-b/large":     b,
	}
}

// Registry exposes the engine's tenant configuration registry, used by a
// process entry point to seed known tenants from a config file at startup.
func (e *Engine) Registry() *TenantRegistry { return e.registry }

// Start runs the engine's pre-start hooks, starts the background scheduler,
// and runs post-start hooks.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.hooks.RunPreStart(ctx); err != nil {
		return err
	}
	if err := e.scheduler.Start(); err != nil {
		return err
	}
	e.startedAt = time.Now().UTC()
	return e.hooks.RunPostStart(ctx)
}

// Stop runs pre-stop hooks (which halt the scheduler), waits for in-flight
// requests to drain up to timeout, then runs post-stop hooks (which close
// the audit sink).
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.hooks.RunPreStop(ctx); err != nil {
		return err
	}
	deadline := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		deadline = time.Until(dl)
	}
	if err := e.shutdown.ShutdownAndWait(deadline); err != nil {
		e.logger.Error(ctx, "engine shutdown: requests still in flight at timeout", err, nil)
	}
	return e.hooks.RunPostStop(ctx)
}

// HealthCheck reports the engine's status and its backends' reachability.
func (e *Engine) HealthCheck(ctx context.Context) service.HealthCheck {
	start := time.Now()
	h := service.NewHealthCheck("rae-engine")
	h = h.WithComponent(service.CheckStore(ctx, "record_store", func(ctx context.Context) error {
		_, err := e.recordStore.ListRecords(ctx, "__healthcheck__", storage.Filter{Limit: 1})
		return err
	}))
	accepted, dropped := e.auditSink.Stats()
	h = h.WithDetail("audit_accepted", fmt.Sprintf("%d", accepted)).WithDetail("audit_dropped", fmt.Sprintf("%d", dropped))
	return h.WithLatency(time.Since(start))
}

// admit applies ingress rate limiting and the tenant's concurrency quota
// before a request proceeds, returning a release function the caller must
// defer. Ingress limiting is a process-wide QPS ceiling distinct from a
// tenant's own QuotaGate, which bounds concurrent requests per tenant.
func (e *Engine) admit(tenantKey string) (func(), error) {
	if e.ingress != nil && !e.ingress.Allow() {
		return nil, raeerrors.TenantThrottled(tenantKey)
	}
	guard := lifecycle.NewOperationGuard(e.shutdown)
	if guard == nil {
		return nil, raeerrors.DeadlineExceeded("engine_shutting_down")
	}
	release, err := e.registry.Quota(tenantKey).AcquireRequest(tenantKey)
	if err != nil {
		guard.Close()
		return nil, err
	}
	metrics.Global().IncrementInFlight()
	return func() {
		release()
		guard.Close()
		metrics.Global().DecrementInFlight()
	}, nil
}

// StoreMemoryRequest is StoreMemory's input, mirroring the programmatic
// contract's {content, source?, layer?, importance?, tags?, info_class?}.
type StoreMemoryRequest struct {
	Content    string
	Source     string
	Layer      storage.Layer
	Importance float64
	Tags       []string
	ParentIDs  []string
}

// StoreMemory persists a new memory record and its provenance graph node.
// Content is classified by the policy guard inside memrecord.Store, which
// rejects restricted content outside the working layer rather than
// redacting it; a caller-supplied information class is never honored as
// a way to relax that classification, only content itself determines it.
func (e *Engine) StoreMemory(ctx context.Context, tc *tenant.Context, req StoreMemoryRequest) (string, error) {
	release, err := e.admit(tc.Key)
	if err != nil {
		return "", err
	}
	defer release()

	rec, err := e.records.Store(ctx, tc, memrecord.Draft{
		Content:    req.Content,
		Layer:      req.Layer,
		Tags:       req.Tags,
		Source:     req.Source,
		Importance: req.Importance,
		ParentIDs:  req.ParentIDs,
	})
	if err != nil {
		return "", err
	}

	e.linkLineage(ctx, tc, rec)
	e.queryCache.InvalidateAll()
	return rec.ID, nil
}

// linkLineage creates a provenance graph node for rec and, if it carries
// parent pointers, a "derived_from" edge from each parent to it. Failures
// here are logged, not surfaced: a missing provenance edge degrades graph
// queries but must never fail the store/reflection operation that already
// committed the record itself.
func (e *Engine) linkLineage(ctx context.Context, tc *tenant.Context, rec storage.Record) {
	if _, err := e.graph.PutNode(ctx, tc, storage.SemanticNode{
		ID:       rec.ID,
		NodeType: "memory",
		Label:    rec.Source,
	}); err != nil {
		e.logger.Error(ctx, "failed to create provenance node for stored memory", err, map[string]interface{}{"memory_id": rec.ID})
	}
	for _, parentID := range rec.ParentIDs {
		if _, err := e.graph.PutEdge(ctx, tc, storage.Edge{
			FromNodeID: parentID,
			ToNodeID:   rec.ID,
			Relation:   "derived_from",
			Confidence: 1,
		}); err != nil {
			e.logger.Error(ctx, "failed to link lineage edge", err, map[string]interface{}{"memory_id": rec.ID, "parent_id": parentID})
		}
	}
}

// storeLesson persists an accepted reflection.Lesson as a new
// reflective-layer record and links its lineage, mirroring StoreMemory's
// provenance bookkeeping for the on-demand GenerateReflection path (the
// dreaming worker's own path, Engine.Dream, does the same for its
// cluster-triggered reflections).
func (e *Engine) storeLesson(ctx context.Context, tc *tenant.Context, lesson reflection.Lesson, tags []string, worker string) (storage.Record, error) {
	rec, err := e.records.Store(ctx, tc, memrecord.Draft{
		Content:    lesson.Content,
		Layer:      storage.Reflective,
		Tags:       tags,
		Source:     worker,
		Importance: lesson.Score,
		ParentIDs:  lesson.ParentIDs,
	})
	if err != nil {
		return storage.Record{}, err
	}
	e.linkLineage(ctx, tc, rec)
	e.queryCache.InvalidateAll()
	return rec, nil
}

// QueryMemoryRequest is QueryMemory's input.
type QueryMemoryRequest struct {
	Text          string
	TopK          int
	Layers        []storage.Layer
	Tags          []string
	MinImportance float64
	EmbedModel    string
}

// QueryMemory runs the hybrid retrieval pipeline and applies the request's
// layer/tag/importance filters to the fused, reranked results.
func (e *Engine) QueryMemory(ctx context.Context, tc *tenant.Context, req QueryMemoryRequest) (retrieval.Response, error) {
	if req.TopK == 0 {
		return retrieval.Response{}, nil
	}

	release, err := e.admit(tc.Key)
	if err != nil {
		return retrieval.Response{}, err
	}
	defer release()

	cfg := e.registry.Config(tc.Key)
	embedModel := req.EmbedModel
	if embedModel == "" {
		if models := cfg.ActiveModels(tenant.SpaceCheap); len(models) > 0 {
			embedModel = models[0].Name
		}
	}

	var queryVector []float32
	if embedModel != "" {
		queryVector, err = e.gateway.Embed(ctx, tc, cfg.Budget, embedModel, req.Text)
		if err != nil {
			e.logger.Error(ctx, "query embedding failed, falling back to lexical-only retrieval", err, nil)
		}
	}

	retrievalCfg := cfg.Retrieval
	if req.TopK > 0 {
		retrievalCfg.TopN = req.TopK
	}

	resp, err := e.retrieval.Query(ctx, tc, retrievalCfg, req.Text, embedModel, queryVector)
	if err != nil {
		return retrieval.Response{}, err
	}

	resp.Results = filterResults(resp.Results, req)
	return resp, nil
}

func filterResults(results []retrieval.Result, req QueryMemoryRequest) []retrieval.Result {
	if len(req.Layers) == 0 && len(req.Tags) == 0 && req.MinImportance == 0 {
		return results
	}
	layerSet := make(map[storage.Layer]bool, len(req.Layers))
	for _, l := range req.Layers {
		layerSet[l] = true
	}
	out := results[:0]
	for _, r := range results {
		if len(layerSet) > 0 && !layerSet[r.Record.Layer] {
			continue
		}
		if r.Record.Importance < req.MinImportance {
			continue
		}
		if len(req.Tags) > 0 && !hasAnyTag(r.Record.Tags, req.Tags) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasAnyTag(tags, want []string) bool {
	for _, w := range want {
		for _, t := range tags {
			if t == w {
				return true
			}
		}
	}
	return false
}

// Subgraph is QueryGraph's result: the nodes and edges reachable from the
// seed set within the requested hop bound.
type Subgraph struct {
	Nodes []storage.SemanticNode
	Edges []storage.Edge
}

// QueryGraphRequest is QueryGraph's input. SeedIDs names the entities to
// expand from directly; Text, if SeedIDs is empty, is resolved to seed ids
// via a lexical search first.
type QueryGraphRequest struct {
	SeedIDs    []string
	Text       string
	MaxDepth   int
	Predicates []string
}

// QueryGraph expands a tenant's knowledge graph from a seed set, capped at
// three hops regardless of the request (internal/graphstore enforces the
// ceiling).
func (e *Engine) QueryGraph(ctx context.Context, tc *tenant.Context, req QueryGraphRequest) (Subgraph, error) {
	release, err := e.admit(tc.Key)
	if err != nil {
		return Subgraph{}, err
	}
	defer release()

	seeds := req.SeedIDs
	if len(seeds) == 0 && req.Text != "" {
		lex := lexical.New(e.recordStore)
		cands, err := lex.Search(ctx, tc.Key, req.Text, 10)
		if err != nil {
			return Subgraph{}, raeerrors.RetrievalUnavailable(err)
		}
		for _, c := range cands {
			seeds = append(seeds, c.MemoryID)
		}
	}

	var allEdges []storage.Edge
	nodeIDs := make(map[string]bool)
	for _, seed := range seeds {
		nodeIDs[seed] = true
		edges, err := e.graph.Neighborhood(ctx, tc, seed, req.MaxDepth, req.Predicates, 100)
		if err != nil {
			continue
		}
		for _, edge := range edges {
			allEdges = append(allEdges, edge)
			nodeIDs[edge.FromNodeID] = true
			nodeIDs[edge.ToNodeID] = true
		}
	}

	nodes := make([]storage.SemanticNode, 0, len(nodeIDs))
	for id := range nodeIDs {
		node, err := e.graph.GetNode(ctx, tc, id)
		if err != nil {
			continue
		}
		nodes = append(nodes, node)
	}

	return Subgraph{Nodes: nodes, Edges: allEdges}, nil
}

// UpdateMemoryRequest is UpdateMemory's restricted field set, mirroring
// memrecord.Mutation.
type UpdateMemoryRequest struct {
	Tags               *[]string
	Importance         *float64
	BumpUsage          bool
	InfoClassDowngrade *storage.InfoClass
}

// UpdateMemory applies a restricted mutation to an existing record.
func (e *Engine) UpdateMemory(ctx context.Context, tc *tenant.Context, id string, req UpdateMemoryRequest) error {
	release, err := e.admit(tc.Key)
	if err != nil {
		return err
	}
	defer release()

	_, err = e.records.Update(ctx, tc, id, memrecord.Mutation{
		Tags:               req.Tags,
		Importance:         req.Importance,
		BumpUsage:          req.BumpUsage,
		InfoClassDowngrade: req.InfoClassDowngrade,
	})
	if err == nil {
		e.queryCache.InvalidateAll()
	}
	return err
}

// DeleteMemory removes a record (GDPR right-to-be-forgotten): its
// embeddings and the record itself are deleted; its provenance graph node
// is left in place as an append-only audit trail of the memory having
// once existed, since storage.GraphStore exposes no node-deletion method
// by design (see DESIGN.md).
func (e *Engine) DeleteMemory(ctx context.Context, tc *tenant.Context, id string) error {
	release, err := e.admit(tc.Key)
	if err != nil {
		return err
	}
	defer release()

	if err := e.records.Delete(ctx, tc, id); err != nil {
		return err
	}
	e.queryCache.InvalidateAll()
	return nil
}

// GenerateReflectionRequest is GenerateReflection's input: evidence is
// named either directly by memory id or by tag (tags are resolved to the
// tenant's longterm records carrying any of them).
type GenerateReflectionRequest struct {
	EvidenceIDs []string
	Tags        []string
	Mode        string
}

// GenerateReflection runs one Actor-Evaluator-Reflector pass over the named
// evidence and persists the accepted lesson as a new reflective-layer
// memory, returning its id.
func (e *Engine) GenerateReflection(ctx context.Context, tc *tenant.Context, req GenerateReflectionRequest) (string, error) {
	release, err := e.admit(tc.Key)
	if err != nil {
		return "", err
	}
	defer release()

	var recs []storage.Record
	if len(req.EvidenceIDs) > 0 {
		for _, id := range req.EvidenceIDs {
			rec, err := e.recordStore.GetRecord(ctx, tc.Key, id)
			if err != nil {
				continue
			}
			recs = append(recs, rec)
		}
	} else if len(req.Tags) > 0 {
		recs, err = e.recordStore.ListRecords(ctx, tc.Key, storage.Filter{Tags: req.Tags, Layer: storage.Longterm})
		if err != nil {
			return "", err
		}
	}
	if len(recs) == 0 {
		return "", raeerrors.InvalidRecord("no evidence resolved for reflection request")
	}

	evidence := make([]reflection.Evidence, 0, len(recs))
	for _, rec := range recs {
		evidence = append(evidence, reflection.Evidence{MemoryID: rec.ID, Content: rec.Content, InfoClass: rec.InfoClass})
	}

	cfg := e.registry.Config(tc.Key)
	lesson, err := e.reflectionEngine.Reflect(ctx, tc, cfg.Reflection, evidence, reflection.Criteria{})
	if err != nil {
		metrics.Global().RecordReflectionOutcome(tc.Key, "abandoned")
		return "", err
	}
	metrics.Global().RecordReflectionOutcome(tc.Key, "accepted")

	tags := []string{"reflection"}
	if req.Mode != "" {
		tags = append(tags, req.Mode)
	}
	rec, err := e.storeLesson(ctx, tc, lesson, tags, "generate-reflection")
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// UsageSnapshot is GetStats' result.
type UsageSnapshot struct {
	Tenant         string
	RecordsByLayer map[storage.Layer]int
	AuditAccepted  int64
	AuditDropped   int64
	Daily          storage.CostUsage
	Monthly        storage.CostUsage
}

// GetStats reports a tenant's current record distribution, audit health,
// and spend. Project-scoped aggregation is left to the adapter, which owns
// the tenant-to-project mapping; the core only ever reasons in terms of
// one tenant at a time.
func (e *Engine) GetStats(ctx context.Context, tc *tenant.Context) (UsageSnapshot, error) {
	recs, err := e.recordStore.ListRecords(ctx, tc.Key, storage.Filter{})
	if err != nil {
		return UsageSnapshot{}, err
	}
	byLayer := map[storage.Layer]int{}
	for _, r := range recs {
		byLayer[r.Layer]++
	}
	daily, monthly, err := e.costGuard.Usage(ctx, tc.Key)
	if err != nil {
		return UsageSnapshot{}, err
	}
	accepted, dropped := e.auditSink.Stats()
	return UsageSnapshot{
		Tenant:         tc.Key,
		RecordsByLayer: byLayer,
		AuditAccepted:  accepted,
		AuditDropped:   dropped,
		Daily:          daily,
		Monthly:        monthly,
	}, nil
}

// CostUsageReport is GetCostUsage's result.
type CostUsageReport struct {
	Daily       storage.CostUsage
	Monthly     storage.CostUsage
	Budget      tenant.BudgetConfig
	AlertLevel  float64
}

// GetCostUsage reports a tenant's current spend against its configured
// budget and the highest alert threshold it has crossed this period.
func (e *Engine) GetCostUsage(ctx context.Context, tc *tenant.Context) (CostUsageReport, error) {
	cfg := e.registry.Config(tc.Key)
	daily, monthly, err := e.costGuard.Usage(ctx, tc.Key)
	if err != nil {
		return CostUsageReport{}, err
	}
	alert := costguard.AlertLevel(daily.SpendUSD, cfg.Budget.DailyUSD, cfg.Budget.AlertThresholds)
	return CostUsageReport{Daily: daily, Monthly: monthly, Budget: cfg.Budget, AlertLevel: alert}, nil
}

// SetBudgetRequest is SetBudget's input; nil fields leave the tenant's
// current value unchanged.
type SetBudgetRequest struct {
	DailyUSD   *float64
	MonthlyUSD *float64
}

// SetBudget updates a tenant's daily and/or monthly spend caps.
func (e *Engine) SetBudget(ctx context.Context, tc *tenant.Context, req SetBudgetRequest) error {
	cfg := e.registry.Config(tc.Key)
	if req.DailyUSD != nil {
		cfg.Budget.DailyUSD = *req.DailyUSD
	}
	if req.MonthlyUSD != nil {
		cfg.Budget.MonthlyUSD = *req.MonthlyUSD
	}
	e.registry.SetConfig(tc.Key, cfg)
	return nil
}

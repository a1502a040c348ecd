package tenant

import (
	"context"
	"sync"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
)

// QuotaGate enforces a tenant's shared-resource policy: a bounded number of
// concurrent requests and a separately bounded number of in-flight LLM
// gateway calls. Both caps are semaphores sized from tenant Config and
// re-sized on configuration reload.
type QuotaGate struct {
	mu        sync.Mutex
	requests  chan struct{}
	llmCalls  chan struct{}
}

// NewQuotaGate builds a QuotaGate from a tenant's quota configuration.
func NewQuotaGate(cfg QuotaConfig) *QuotaGate {
	reqCap := cfg.MaxConcurrentRequests
	if reqCap <= 0 {
		reqCap = Defaults().Quotas.MaxConcurrentRequests
	}
	llmCap := cfg.MaxInFlightLLM
	if llmCap <= 0 {
		llmCap = Defaults().Quotas.MaxInFlightLLM
	}
	return &QuotaGate{
		requests: make(chan struct{}, reqCap),
		llmCalls: make(chan struct{}, llmCap),
	}
}

// Resize adjusts the gate's capacity in place. In-flight holders of the old
// semaphore are unaffected; only newly acquired slots observe the new cap.
func (g *QuotaGate) Resize(cfg QuotaConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reqCap := cfg.MaxConcurrentRequests
	if reqCap <= 0 {
		reqCap = Defaults().Quotas.MaxConcurrentRequests
	}
	llmCap := cfg.MaxInFlightLLM
	if llmCap <= 0 {
		llmCap = Defaults().Quotas.MaxInFlightLLM
	}
	g.requests = make(chan struct{}, reqCap)
	g.llmCalls = make(chan struct{}, llmCap)
}

// AcquireRequest reserves one of the tenant's concurrent-request slots. It
// returns TenantThrottled immediately rather than queuing: callers must not
// block a shared request-handling goroutine pool waiting on another
// tenant's quota.
func (g *QuotaGate) AcquireRequest(tenantKey string) (release func(), err error) {
	g.mu.Lock()
	ch := g.requests
	g.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
		return nil, raeerrors.TenantThrottled(tenantKey)
	}
}

// AcquireLLM reserves one of the tenant's in-flight LLM call slots, blocking
// until one is free or ctx is done.
func (g *QuotaGate) AcquireLLM(ctx context.Context, tenantKey string) (release func(), err error) {
	g.mu.Lock()
	ch := g.llmCalls
	g.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, raeerrors.DeadlineExceeded("llm_quota_acquire")
	}
}

package rae

import (
	"context"
	"sync"

	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// TenantRegistry is the map-backed tenant configuration store every
// component that needs per-tenant configuration resolves against:
// internal/llmgateway's AsyncEmbedder, internal/workers' scheduler, and the
// engine's own request path. It also tracks the set of known tenants so
// background cycles know which tenants to iterate, and owns each tenant's
// concurrency QuotaGate since gate sizing is itself tenant configuration.
type TenantRegistry struct {
	mu      sync.RWMutex
	configs map[string]tenant.Config
	quotas  map[string]*tenant.QuotaGate
}

// NewTenantRegistry builds an empty registry; tenants are added implicitly
// the first time they are touched (typically via StoreMemory) or
// explicitly via SetConfig.
func NewTenantRegistry() *TenantRegistry {
	return &TenantRegistry{
		configs: make(map[string]tenant.Config),
		quotas:  make(map[string]*tenant.QuotaGate),
	}
}

// Config satisfies llmgateway.ConfigResolver and workers.ConfigResolver. A
// tenant with no explicit configuration runs under tenant.Defaults().
func (r *TenantRegistry) Config(tenantKey string) tenant.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.configs[tenantKey]; ok {
		return cfg
	}
	return tenant.Defaults()
}

// SetConfig installs (or replaces) a tenant's configuration and resizes its
// quota gate to match.
func (r *TenantRegistry) SetConfig(tenantKey string, cfg tenant.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[tenantKey] = cfg
	if gate, ok := r.quotas[tenantKey]; ok {
		gate.Resize(cfg.Quotas)
	} else {
		r.quotas[tenantKey] = tenant.NewQuotaGate(cfg.Quotas)
	}
}

// Touch registers tenantKey as known (under defaults) if it has not been
// seen before, without overwriting an existing configuration.
func (r *TenantRegistry) Touch(tenantKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[tenantKey]; ok {
		return
	}
	cfg := tenant.Defaults()
	r.configs[tenantKey] = cfg
	r.quotas[tenantKey] = tenant.NewQuotaGate(cfg.Quotas)
}

// Quota returns tenantKey's concurrency gate, creating one under defaults
// if the tenant has never been touched.
func (r *TenantRegistry) Quota(tenantKey string) *tenant.QuotaGate {
	r.mu.RLock()
	gate, ok := r.quotas[tenantKey]
	r.mu.RUnlock()
	if ok {
		return gate
	}
	r.Touch(tenantKey)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.quotas[tenantKey]
}

// Tenants satisfies workers.TenantLister: every tenant this process has
// ever touched.
func (r *TenantRegistry) Tenants(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.configs))
	for k := range r.configs {
		out = append(out, k)
	}
	return out, nil
}

package llmgateway

import (
	"context"
	"time"

	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/tenant"
	"github.com/dreamsoft-pro/rae/internal/vectorindex"
)

// ConfigResolver looks up a tenant's active configuration, used by the
// async embedder to discover which models a record must be embedded
// under.
type ConfigResolver interface {
	Config(tenantKey string) tenant.Config
}

// AsyncEmbedder adapts Gateway to memrecord.Embedder: it fires one
// goroutine per active tenant model, embeds the record's content, and
// upserts the result into the vector index. A failure here never fails
// the record write that triggered it — the reconciliation worker's sweep
// for embeddings with a stale or missing vector retries later.
type AsyncEmbedder struct {
	gateway  *Gateway
	vectors  *vectorindex.Index
	resolver ConfigResolver
	logger   *logging.Logger
}

// NewAsyncEmbedder builds an AsyncEmbedder.
func NewAsyncEmbedder(gateway *Gateway, vectors *vectorindex.Index, resolver ConfigResolver, logger *logging.Logger) *AsyncEmbedder {
	return &AsyncEmbedder{gateway: gateway, vectors: vectors, resolver: resolver, logger: logger}
}

// activeModels returns every active embedding model across both spaces;
// tenant.Config.ActiveModels filters to one space at a time, which is the
// right call for retrieval (never mix spaces) but wrong here, where every
// active model needs its own embedding of the same record.
func activeModels(cfg tenant.Config) []tenant.EmbeddingModelConfig {
	out := make([]tenant.EmbeddingModelConfig, 0, len(cfg.EmbeddingModels))
	for _, m := range cfg.EmbeddingModels {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// EmbedRecordAsync satisfies memrecord.Embedder.
func (a *AsyncEmbedder) EmbedRecordAsync(tenantKey, recordID, content string) {
	cfg := a.resolver.Config(tenantKey)
	tc := tenant.New(tenantKey, "embedding-worker", nil, "", time.Time{})

	for _, model := range activeModels(cfg) {
		model := model
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			vector, err := a.gateway.Embed(ctx, tc, cfg.Budget, model.Name, content)
			if err != nil {
				if a.logger != nil {
					a.logger.LogEmbeddingOperation(ctx, recordID, model.Name, true, err)
				}
				return
			}
			if err := a.vectors.Upsert(ctx, tc, recordID, model.Name, vector, ""); err != nil {
				if a.logger != nil {
					a.logger.LogEmbeddingOperation(ctx, recordID, model.Name, true, err)
				}
				return
			}
			if a.logger != nil {
				a.logger.LogEmbeddingOperation(ctx, recordID, model.Name, false, nil)
			}
		}()
	}
}

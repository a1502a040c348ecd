// Package llmgateway is the single chokepoint through which the engine
// talks to embedding/completion/rerank providers. Every call is priced and
// budget-checked through internal/costguard before it is dispatched, and
// content is passed through internal/policyguard's redaction rules unless
// the tenant's profile is explicitly marked raw. Response caching is keyed
// by (tenant, model, content hash) so repeat calls never re-spend budget.
package llmgateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/infrastructure/resilience"
	"github.com/dreamsoft-pro/rae/internal/costguard"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// EmbedProvider computes an embedding vector for text under model.
type EmbedProvider interface {
	Embed(ctx context.Context, model, text string) ([]float32, int, error)
}

// CompletionProvider runs a completion call for prompt under model.
type CompletionProvider interface {
	Complete(ctx context.Context, model, prompt string) (string, int, error)
}

// RerankProvider scores candidates against query under model, returning
// candidate ids in ranked order.
type RerankProvider interface {
	Rerank(ctx context.Context, model, query string, candidates []string) ([]string, error)
}

// Pricer estimates and finalizes the USD cost of a call so the gateway can
// reserve budget before dispatch and reconcile afterward.
type Pricer interface {
	EstimateUSD(model string, inputTokens int) float64
	ActualUSD(model string, tokens int) float64
}

// cacheEntry is one cached completion/embedding response.
type cacheEntry struct {
	text   string
	vector []float32
}

// Gateway is the LLM Gateway.
type Gateway struct {
	embed    EmbedProvider
	complete CompletionProvider
	rerank   RerankProvider
	pricer   Pricer
	guard    *policyguard.Guard
	cost     *costguard.Guard
	logger   *logging.Logger
	cache    *lru.Cache[string, cacheEntry]

	// redis is the optional L2 response cache sitting behind the in-process
	// L1. A single replica's LRU only helps repeat calls that land on the
	// same process; redis lets the cache survive a restart and pay off
	// across replicas. A cache miss here is never an error, only a reason
	// to fall through to the provider.
	redis    *redis.Client
	redisTTL time.Duration

	// breaker is one circuit breaker shared by every provider: it trips
	// after repeated failures from any of them so a down provider cannot be
	// hammered by every in-flight request while it recovers; retry absorbs
	// isolated transient errors beneath it.
	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// New builds a Gateway. cacheSize bounds the in-process L1 response cache;
// 0 disables it. redisClient may be nil to run with the L1 cache alone.
func New(embed EmbedProvider, complete CompletionProvider, rerank RerankProvider, pricer Pricer, guard *policyguard.Guard, cost *costguard.Guard, logger *logging.Logger, cacheSize int, redisClient *redis.Client) *Gateway {
	g := &Gateway{
		embed: embed, complete: complete, rerank: rerank, pricer: pricer, guard: guard, cost: cost, logger: logger,
		redis:    redisClient,
		redisTTL: 24 * time.Hour,
		breaker:  resilience.New(resilience.DefaultConfig()),
		retryCfg: resilience.RetryConfig{MaxAttempts: 2, InitialDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond, Multiplier: 2, Jitter: 0.2},
	}
	if cacheSize > 0 {
		c, _ := lru.New[string, cacheEntry](cacheSize)
		g.cache = c
	}
	return g
}

// redisCacheEntry is the JSON wire shape stored in the L2 cache.
type redisCacheEntry struct {
	Text   string    `json:"text,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
}

// l2Get checks the redis cache, skipping silently on any error (a down
// redis must degrade the gateway to L1-only, never fail a call).
func (g *Gateway) l2Get(ctx context.Context, key string) (cacheEntry, bool) {
	if g.redis == nil {
		return cacheEntry{}, false
	}
	raw, err := g.redis.Get(ctx, key).Bytes()
	if err != nil {
		return cacheEntry{}, false
	}
	var e redisCacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return cacheEntry{}, false
	}
	return cacheEntry{text: e.Text, vector: e.Vector}, true
}

func (g *Gateway) l2Set(ctx context.Context, key string, entry cacheEntry) {
	if g.redis == nil {
		return
	}
	raw, err := json.Marshal(redisCacheEntry{Text: entry.text, Vector: entry.vector})
	if err != nil {
		return
	}
	_ = g.redis.Set(ctx, key, raw, g.redisTTL).Err()
}

// callProvider runs fn through the retry policy and then the shared
// circuit breaker, so a provider that is failing fast trips the breaker
// without each caller separately accumulating retries against it.
func (g *Gateway) callProvider(ctx context.Context, fn func() error) error {
	return g.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, g.retryCfg, fn)
	})
}

func cacheKey(tenantKey, model, contentHash string) string {
	return tenantKey + "|" + model + "|" + contentHash
}

func hashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Embed computes an embedding for text under model, budget-checked and
// cached by (tenant, model, content hash). Cache hits bypass the budget
// check entirely since no provider call occurs.
func (g *Gateway) Embed(ctx context.Context, tc *tenant.Context, cfg tenant.BudgetConfig, model, text string) ([]float32, error) {
	hash := hashContent(text)
	key := cacheKey(tc.Key, model, hash)
	if g.cache != nil {
		if entry, ok := g.cache.Get(key); ok {
			return entry.vector, nil
		}
	}
	if entry, ok := g.l2Get(ctx, key); ok {
		if g.cache != nil {
			g.cache.Add(key, entry)
		}
		return entry.vector, nil
	}

	estimated := g.pricer.EstimateUSD(model, len(text)/4)
	reservation, err := g.cost.Reserve(ctx, tc, cfg, estimated)
	if err != nil {
		return nil, err
	}

	var vector []float32
	var tokens int
	err = g.callProvider(ctx, func() error {
		var embedErr error
		vector, tokens, embedErr = g.embed.Embed(ctx, model, g.guard.Redact(text))
		return embedErr
	})
	if err != nil {
		_ = g.cost.Release(ctx, tc, reservation)
		if g.logger != nil {
			g.logger.LogLLMCall(ctx, "embed", model, 0, 0, err)
		}
		return nil, raeerrors.BackendUnavailable("llm_provider", err)
	}

	actual := g.pricer.ActualUSD(model, tokens)
	_ = g.cost.Consume(ctx, tc, reservation, actual)
	if g.logger != nil {
		g.logger.LogLLMCall(ctx, "embed", model, tokens, actual, nil)
	}

	entry := cacheEntry{vector: vector}
	if g.cache != nil {
		g.cache.Add(key, entry)
	}
	g.l2Set(ctx, key, entry)
	return vector, nil
}

// Complete runs a named profile's ordered provider/model candidates
// against prompt, falling through to the next candidate on a transient
// provider failure and failing fast on a budget denial (budget denials are
// never retried against a cheaper fallback silently; the caller decides).
func (g *Gateway) Complete(ctx context.Context, tc *tenant.Context, cfg tenant.BudgetConfig, profile string, profiles map[string][]string, prompt string, infoClass string) (string, error) {
	candidates := profiles[profile]
	if len(candidates) == 0 {
		return "", raeerrors.UnknownModel(profile)
	}

	content := prompt
	if profile != "raw" {
		content = g.guard.Redact(prompt)
	}

	hash := hashContent(content)
	var lastErr error
	for _, model := range candidates {
		key := cacheKey(tc.Key, model, hash)
		if g.cache != nil {
			if entry, ok := g.cache.Get(key); ok {
				return entry.text, nil
			}
		}
		if entry, ok := g.l2Get(ctx, key); ok {
			if g.cache != nil {
				g.cache.Add(key, entry)
			}
			return entry.text, nil
		}

		estimated := g.pricer.EstimateUSD(model, len(content)/4)
		reservation, err := g.cost.Reserve(ctx, tc, cfg, estimated)
		if err != nil {
			return "", err
		}

		var text string
		var tokens int
		err = g.callProvider(ctx, func() error {
			var completeErr error
			text, tokens, completeErr = g.complete.Complete(ctx, model, content)
			return completeErr
		})
		if err != nil {
			_ = g.cost.Release(ctx, tc, reservation)
			lastErr = err
			if g.logger != nil {
				g.logger.LogLLMCall(ctx, "complete", model, 0, 0, err)
			}
			continue
		}

		actual := g.pricer.ActualUSD(model, tokens)
		_ = g.cost.Consume(ctx, tc, reservation, actual)
		if g.logger != nil {
			g.logger.LogLLMCall(ctx, "complete", model, tokens, actual, nil)
		}
		entry := cacheEntry{text: text}
		if g.cache != nil {
			g.cache.Add(key, entry)
		}
		g.l2Set(ctx, key, entry)
		return text, nil
	}
	return "", raeerrors.BackendUnavailable("llm_provider", fmt.Errorf("all profile candidates failed: %w", lastErr))
}

// Rerank orders candidates by relevance to query under model, admitted
// through the cost guard like every other priced call. Callers pass a
// short deadline via ctx; the gateway applies no additional timeout of its
// own since internal/retrieval already owns the reranker deadline. A
// budget denial is returned unwrapped so callers can distinguish it (via
// raeerrors.Is(err, raeerrors.ErrCodeBudgetExceeded)) from a provider
// failure.
func (g *Gateway) Rerank(ctx context.Context, tc *tenant.Context, cfg tenant.BudgetConfig, model, query string, candidates []string) ([]string, error) {
	if g.rerank == nil {
		return nil, raeerrors.UnknownModel(model)
	}

	estimated := g.pricer.EstimateUSD(model, len(query)/4)
	reservation, err := g.cost.Reserve(ctx, tc, cfg, estimated)
	if err != nil {
		return nil, err
	}

	order, err := g.rerank.Rerank(ctx, model, g.guard.Redact(query), candidates)
	if err != nil {
		_ = g.cost.Release(ctx, tc, reservation)
		if g.logger != nil {
			g.logger.LogLLMCall(ctx, "rerank", model, 0, 0, err)
		}
		return nil, raeerrors.BackendUnavailable("llm_provider", err)
	}

	actual := g.pricer.ActualUSD(model, len(candidates))
	_ = g.cost.Consume(ctx, tc, reservation, actual)
	if g.logger != nil {
		g.logger.LogLLMCall(ctx, "rerank", model, len(candidates), actual, nil)
	}
	return order, nil
}

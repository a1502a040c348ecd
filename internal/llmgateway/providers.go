package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProviderConfig names one named model's wire endpoint. The gateway
// treats every provider identically: a model name resolves to exactly one
// base URL and API key, whether "provider-a/small" or a self-hosted
// embedding server.
type HTTPProviderConfig struct {
	BaseURL string
	APIKey  string
}

// httpProviderSet resolves a model name to its endpoint config. No example
// in the reference corpus imports a dedicated REST client library for
// outbound calls of this shape (the few that appear anywhere are unused
// transitive dependencies, never directly called), so this client is built
// directly on net/http; infrastructure/resilience.Retry and the gateway's shared
// CircuitBreaker already supply the retry/backoff layer a client library
// would otherwise add.
type httpProviderSet struct {
	client *http.Client
	routes map[string]HTTPProviderConfig
}

func newHTTPProviderSet(routes map[string]HTTPProviderConfig) *httpProviderSet {
	return &httpProviderSet{
		client: &http.Client{Timeout: 30 * time.Second},
		routes: routes,
	}
}

func (s *httpProviderSet) route(model string) (HTTPProviderConfig, error) {
	cfg, ok := s.routes[model]
	if !ok {
		return HTTPProviderConfig{}, fmt.Errorf("llmgateway: no route configured for model %q", model)
	}
	return cfg, nil
}

func (s *httpProviderSet) post(ctx context.Context, cfg HTTPProviderConfig, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("llmgateway: provider %s returned status %d: %s", cfg.BaseURL, resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}

// HTTPEmbedProvider implements EmbedProvider against a named set of
// embedding endpoints, one per model.
type HTTPEmbedProvider struct{ set *httpProviderSet }

func NewHTTPEmbedProvider(routes map[string]HTTPProviderConfig) *HTTPEmbedProvider {
	return &HTTPEmbedProvider{set: newHTTPProviderSet(routes)}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
	Tokens int       `json:"tokens"`
}

func (p *HTTPEmbedProvider) Embed(ctx context.Context, model, text string) ([]float32, int, error) {
	cfg, err := p.set.route(model)
	if err != nil {
		return nil, 0, err
	}
	var out embedResponse
	if err := p.set.post(ctx, cfg, "/v1/embeddings", embedRequest{Model: model, Input: text}, &out); err != nil {
		return nil, 0, err
	}
	return out.Vector, out.Tokens, nil
}

// HTTPCompletionProvider implements CompletionProvider against a named set
// of completion endpoints, one per model.
type HTTPCompletionProvider struct{ set *httpProviderSet }

func NewHTTPCompletionProvider(routes map[string]HTTPProviderConfig) *HTTPCompletionProvider {
	return &HTTPCompletionProvider{set: newHTTPProviderSet(routes)}
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

func (p *HTTPCompletionProvider) Complete(ctx context.Context, model, prompt string) (string, int, error) {
	cfg, err := p.set.route(model)
	if err != nil {
		return "", 0, err
	}
	var out completionResponse
	if err := p.set.post(ctx, cfg, "/v1/completions", completionRequest{Model: model, Prompt: prompt}, &out); err != nil {
		return "", 0, err
	}
	return out.Text, out.Tokens, nil
}

// HTTPRerankProvider implements RerankProvider against a named set of
// rerank endpoints, one per model.
type HTTPRerankProvider struct{ set *httpProviderSet }

func NewHTTPRerankProvider(routes map[string]HTTPProviderConfig) *HTTPRerankProvider {
	return &HTTPRerankProvider{set: newHTTPProviderSet(routes)}
}

type rerankRequest struct {
	Model      string   `json:"model"`
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
}

type rerankResponse struct {
	Order []string `json:"order"`
}

func (p *HTTPRerankProvider) Rerank(ctx context.Context, model, query string, candidates []string) ([]string, error) {
	cfg, err := p.set.route(model)
	if err != nil {
		return nil, err
	}
	var out rerankResponse
	if err := p.set.post(ctx, cfg, "/v1/rerank", rerankRequest{Model: model, Query: query, Candidates: candidates}, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

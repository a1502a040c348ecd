package llmgateway

import "strings"

// staticRate is one model's USD-per-1000-token rate for input (estimate)
// and output (actual) tokens. Embedding models have no separate output
// rate; ActualUSD reuses the input rate for them.
type staticRate struct {
	inputPer1K  float64
	outputPer1K float64
	embedding   bool
}

// StaticPricer prices calls from a fixed per-model rate table, the
// simplest Pricer that satisfies the gateway's Reserve/Consume contract.
// Unknown models fall back to a conservative default rate rather than
// erroring, since admission must never fail open on an unpriced model.
type StaticPricer struct {
	rates       map[string]staticRate
	defaultRate staticRate
}

// NewStaticPricer builds a StaticPricer with the built-in rate table.
func NewStaticPricer() *StaticPricer {
	return &StaticPricer{
		rates: map[string]staticRate{
			"text-embedding-cheap":  {inputPer1K: 0.0001, embedding: true},
			"text-embedding-heavy":  {inputPer1K: 0.0008, embedding: true},
			"provider-a/small":      {inputPer1K: 0.0005, outputPer1K: 0.0015},
			"provider-a/large":      {inputPer1K: 0.005, outputPer1K: 0.015},
			"provider-b/small":      {inputPer1K: 0.0004, outputPer1K: 0.0012},
			"provider-b/large":      {inputPer1K: 0.004, outputPer1K: 0.012},
			"provider-a/rerank":     {inputPer1K: 0.0002},
		},
		defaultRate: staticRate{inputPer1K: 0.002, outputPer1K: 0.006},
	}
}

func (p *StaticPricer) rateFor(model string) staticRate {
	if r, ok := p.rates[strings.ToLower(model)]; ok {
		return r
	}
	return p.defaultRate
}

// EstimateUSD prices a call before dispatch from its input token count.
// Completion calls estimate output at roughly the same order as input
// since the actual completion length is unknown until the provider
// responds; Consume reconciles against the real token count afterward.
func (p *StaticPricer) EstimateUSD(model string, inputTokens int) float64 {
	r := p.rateFor(model)
	cost := float64(inputTokens) / 1000 * r.inputPer1K
	if !r.embedding {
		cost += float64(inputTokens) / 1000 * r.outputPer1K
	}
	return cost
}

// ActualUSD prices a completed call from its real token count. Embedding
// calls have no output leg; completion calls are billed at the output
// rate since tokens here is the provider's reported completion length.
func (p *StaticPricer) ActualUSD(model string, tokens int) float64 {
	r := p.rateFor(model)
	if r.embedding {
		return float64(tokens) / 1000 * r.inputPer1K
	}
	return float64(tokens) / 1000 * r.outputPer1K
}

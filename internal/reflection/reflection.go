// Package reflection implements the Reflection Engine's Actor-Evaluator-
// Reflector loop: an actor drafts a candidate lesson from an evidence
// bundle, an evaluator scores it against weighted criteria, and if it
// falls short the reflector revises it for one more pass. Accepted
// lessons are sanitized so they never quote confidential evidence
// verbatim; lessons that cannot be sanitized without quoting are
// abandoned rather than persisted.
package reflection

import (
	"context"
	"strings"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/audit"
	"github.com/dreamsoft-pro/rae/internal/policyguard"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// Completer is the narrow LLM surface reflection needs: a single named
// profile completion call. internal/llmgateway.Gateway satisfies this
// once partially applied by the caller to a fixed profile/config.
type Completer interface {
	Complete(ctx context.Context, tc *tenant.Context, prompt string) (string, error)
}

// Evidence is one piece of source material the reflection draws from.
type Evidence struct {
	MemoryID  string
	Content   string
	InfoClass storage.InfoClass
}

// Criteria weights the evaluator's scoring dimensions. All four in [0,1]
// summing to ~1 is the expected tenant configuration, though the
// evaluator normalizes regardless.
type Criteria struct {
	Faithfulness float64
	Generality   float64
	Novelty      float64
	Actionability float64
}

func defaultCriteria() Criteria {
	return Criteria{Faithfulness: 0.4, Generality: 0.2, Novelty: 0.2, Actionability: 0.2}
}

// Lesson is an accepted reflective memory produced by the loop.
type Lesson struct {
	Content    string
	Score      float64
	Iterations int
	ParentIDs  []string
}

// Engine runs the Actor-Evaluator-Reflector loop.
type Engine struct {
	actor     Completer
	evaluator Evaluator
	guard     *policyguard.Guard
	sink      *audit.Sink
}

// Evaluator scores a draft lesson against the evidence it was built from.
// A learned evaluator can replace heuristicEvaluate by implementing this
// interface; the default wiring uses the heuristic.
type Evaluator interface {
	Score(draft string, evidence []Evidence, criteria Criteria) float64
}

// New builds a reflection Engine. evaluator may be nil to use the built-in
// heuristic scorer.
func New(actor Completer, evaluator Evaluator, guard *policyguard.Guard, sink *audit.Sink) *Engine {
	if evaluator == nil {
		evaluator = heuristicEvaluator{}
	}
	return &Engine{actor: actor, evaluator: evaluator, guard: guard, sink: sink}
}

// Reflect runs up to cfg.MaxIterations actor/evaluator passes over
// evidence, returning the first draft to clear cfg.AcceptanceThreshold.
// If no draft clears the threshold within the iteration budget, or the
// best draft cannot be sanitized without quoting confidential evidence,
// it returns raeerrors for the caller to log as "reflection_abandoned".
func (e *Engine) Reflect(ctx context.Context, tc *tenant.Context, cfg tenant.ReflectionConfig, evidence []Evidence, criteria Criteria) (Lesson, error) {
	if len(evidence) == 0 {
		return Lesson{}, raeerrors.InvalidRecord("reflection requires at least one evidence item")
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 2
	}
	threshold := cfg.AcceptanceThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	if criteria == (Criteria{}) {
		criteria = defaultCriteria()
	}

	var draft string
	var score float64
	var err error
	for iteration := 1; iteration <= maxIter; iteration++ {
		draft, err = e.act(ctx, tc, evidence, draft, iteration)
		if err != nil {
			return Lesson{}, err
		}
		score = e.evaluator.Score(draft, evidence, criteria)
		if score >= threshold {
			sanitized, ok := e.sanitize(draft, evidence)
			if !ok {
				e.abandon(tc, evidence, "sanitization_failed")
				return Lesson{}, raeerrors.SanitizationFailed("draft cannot avoid quoting confidential evidence")
			}
			return Lesson{Content: sanitized, Score: score, Iterations: iteration, ParentIDs: memoryIDs(evidence)}, nil
		}
	}

	e.abandon(tc, evidence, "acceptance_threshold_not_met")
	return Lesson{}, raeerrors.SanitizationFailed("no draft reached the acceptance threshold")
}

func (e *Engine) act(ctx context.Context, tc *tenant.Context, evidence []Evidence, previousDraft string, iteration int) (string, error) {
	var b strings.Builder
	b.WriteString("Summarize a general lesson from the following evidence. ")
	b.WriteString("Do not quote the evidence verbatim; state the underlying pattern.\n")
	for _, ev := range evidence {
		b.WriteString("- ")
		b.WriteString(ev.Content)
		b.WriteString("\n")
	}
	if previousDraft != "" {
		b.WriteString("\nPrevious attempt (revise for generality and actionability): ")
		b.WriteString(previousDraft)
	}

	draft, err := e.actor.Complete(ctx, tc, b.String())
	if err != nil {
		return "", raeerrors.BackendUnavailable("llm_provider", err)
	}
	return draft, nil
}

// sanitize rejects a draft that quotes more than a short run of any single
// evidence item verbatim, which would leak confidential source content
// into a reflective-layer memory that may be read under a looser policy.
func (e *Engine) sanitize(draft string, evidence []Evidence) (string, bool) {
	lower := strings.ToLower(draft)
	for _, ev := range evidence {
		if ev.InfoClass != storage.Confidential && ev.InfoClass != storage.Restricted {
			continue
		}
		if containsLongQuote(lower, strings.ToLower(ev.Content), 40) {
			return "", false
		}
	}
	if e.guard != nil {
		return e.guard.Redact(draft), true
	}
	return draft, true
}

// containsLongQuote reports whether draft contains a verbatim run of at
// least minLen characters from source.
func containsLongQuote(draft, source string, minLen int) bool {
	if len(source) < minLen {
		return strings.Contains(draft, source)
	}
	for i := 0; i+minLen <= len(source); i += minLen / 2 {
		if strings.Contains(draft, source[i:i+minLen]) {
			return true
		}
	}
	return false
}

func (e *Engine) abandon(tc *tenant.Context, evidence []Evidence, reason string) {
	if e.sink == nil {
		return
	}
	e.sink.Record(storage.AuditEvent{
		Tenant:   tc.Key,
		Actor:    "reflection-engine",
		Action:   "reflection_abandoned",
		Critical: true,
		Details:  map[string]string{"reason": reason, "evidence_count": itoa(len(evidence))},
	})
}

func memoryIDs(evidence []Evidence) []string {
	out := make([]string, len(evidence))
	for i, ev := range evidence {
		out[i] = ev.MemoryID
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// heuristicEvaluator scores a draft without a learned model: faithfulness
// by lexical overlap with evidence, generality by inverse evidence-id
// density, novelty by divergence from the evidence's literal phrasing,
// actionability by presence of an imperative-style lead word.
type heuristicEvaluator struct{}

func (heuristicEvaluator) Score(draft string, evidence []Evidence, criteria Criteria) float64 {
	if draft == "" {
		return 0
	}
	faithfulness := lexicalOverlap(draft, evidence)
	generality := 1 - shortFormPenalty(draft)
	novelty := 1 - exactCopyRatio(draft, evidence)
	actionability := actionabilityScore(draft)

	total := criteria.Faithfulness + criteria.Generality + criteria.Novelty + criteria.Actionability
	if total == 0 {
		total = 1
	}
	return (criteria.Faithfulness*faithfulness + criteria.Generality*generality +
		criteria.Novelty*novelty + criteria.Actionability*actionability) / total
}

func lexicalOverlap(draft string, evidence []Evidence) float64 {
	draftWords := wordSet(draft)
	if len(draftWords) == 0 {
		return 0
	}
	evidenceWords := map[string]bool{}
	for _, ev := range evidence {
		for w := range wordSet(ev.Content) {
			evidenceWords[w] = true
		}
	}
	hits := 0
	for w := range draftWords {
		if evidenceWords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(draftWords))
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func shortFormPenalty(draft string) float64 {
	words := len(strings.Fields(draft))
	if words == 0 {
		return 1
	}
	if words < 6 {
		return 0.5
	}
	return 0
}

func exactCopyRatio(draft string, evidence []Evidence) float64 {
	for _, ev := range evidence {
		if len(ev.Content) > 20 && strings.Contains(draft, ev.Content) {
			return 1
		}
	}
	return 0
}

func actionabilityScore(draft string) float64 {
	lower := strings.ToLower(draft)
	markers := []string{"should", "avoid", "prefer", "use", "when", "always", "never"}
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,;:!?")
		for _, m := range markers {
			if w == m {
				return 1
			}
		}
	}
	return 0.3
}

// Package policyguard classifies memory content into an information class
// and enforces layer containment: restricted content may never persist
// outside the working layer, and a caller may never read content above
// their tenant's permitted class.
package policyguard

import (
	"regexp"
	"strings"

	raeerrors "github.com/dreamsoft-pro/rae/infrastructure/errors"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/tenant"
)

// Guard applies a tenant's PolicyConfig to records at write and read time.
type Guard struct {
	redactors []patternRule
}

// patternRule pairs a named redaction pattern with the information class a
// single match already warrants. Hard regulatory identifiers (SSN, API
// keys, medical record numbers) are restricted on their own; an email
// address alone is only confidential, since incidental contact-info
// mentions are common in otherwise-ordinary content.
type patternRule struct {
	re    *regexp.Regexp
	class storage.InfoClass
}

// defaultPatterns recognizes the built-in rule names from
// tenant.PolicyConfig.InfoClassRules; a tenant config may reference these
// by name without supplying raw regular expressions.
var defaultPatterns = map[string]patternRule{
	"ssn":        {regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), storage.Restricted},
	"api_key":    {regexp.MustCompile(`(?i)\b(sk|pk|key)[-_][A-Za-z0-9]{16,}\b`), storage.Restricted},
	"email":      {regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), storage.Confidential},
	"medical_id": {regexp.MustCompile(`(?i)\bMRN[-: ]?\d{6,}\b`), storage.Restricted},
}

// New builds a Guard from the tenant's recognized rule names. Unknown rule
// names are ignored rather than rejected, so a tenant config written
// against a future policy engine version degrades gracefully.
func New(ruleNames []string) *Guard {
	g := &Guard{}
	for _, name := range ruleNames {
		if rule, ok := defaultPatterns[strings.ToLower(name)]; ok {
			g.redactors = append(g.redactors, rule)
		}
	}
	return g
}

// Classify assigns an information class to raw content by presence of
// sensitive patterns: the class is the highest severity any single rule
// warrants, and two or more distinct matches (a higher-confidence signal
// of a data dump rather than an incidental mention) always escalates to
// Restricted regardless of which rules fired.
func (g *Guard) Classify(content string) storage.InfoClass {
	matches := 0
	best := storage.Internal
	for _, rule := range g.redactors {
		if !rule.re.MatchString(content) {
			continue
		}
		matches++
		if rank(rule.class) > rank(best) {
			best = rule.class
		}
	}
	if matches >= 2 {
		return storage.Restricted
	}
	return best
}

func rank(c storage.InfoClass) int {
	switch c {
	case storage.Restricted:
		return 3
	case storage.Confidential:
		return 2
	case storage.Internal:
		return 1
	default:
		return 0
	}
}

// Redact replaces every matched span with a fixed placeholder. It is
// applied to text leaving the engine (LLM gateway calls, reflection
// drafts); record writes are not redacted but checked by CheckWrite.
func (g *Guard) Redact(content string) string {
	out := content
	for _, rule := range g.redactors {
		out = rule.re.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}

// CheckWrite enforces layer containment on write: restricted content may
// never be persisted outside the working layer.
func (g *Guard) CheckWrite(infoClass storage.InfoClass, layer storage.Layer) error {
	if infoClass == storage.Restricted && layer != storage.Working {
		return raeerrors.RestrictedContent(string(layer))
	}
	return nil
}

// CheckRead enforces the reading tenant's maximum permitted information
// class. tc.Policy.MaxReadClass governs the ceiling; content strictly above
// it is denied rather than silently filtered, so a caller cannot mistake a
// policy denial for an empty result.
func (g *Guard) CheckRead(tc *tenant.Context, infoClass storage.InfoClass) error {
	if tc.Policy.Exceeds(tenant.InfoClass(infoClass)) {
		return raeerrors.InfoClassViolation(string(infoClass))
	}
	return nil
}

// CheckPromotion enforces containment across a layer promotion: content
// cannot be promoted to a layer stricter than its information class
// allows it to leave. Restricted content is never promoted past working.
func (g *Guard) CheckPromotion(infoClass storage.InfoClass, from, to storage.Layer) error {
	if infoClass == storage.Restricted && to != storage.Working {
		return raeerrors.RestrictedContent(string(to))
	}
	return nil
}

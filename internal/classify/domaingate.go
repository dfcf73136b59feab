package classify

import (
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

// DomainGateReasoning distinguishes domain-gate noise from heuristic noise.
const DomainGateReasoning = "No project-relevant domain terms detected."

var domainNouns = map[string]struct{}{
	"system": {}, "feature": {}, "requirement": {}, "dashboard": {},
	"report": {}, "integration": {}, "api": {}, "database": {}, "screen": {},
	"interface": {}, "application": {}, "platform": {}, "module": {},
	"workflow": {}, "process": {}, "user": {}, "access": {}, "permission": {},
	"security": {}, "compliance": {}, "performance": {}, "audit": {},
	"position": {}, "model": {}, "tool": {}, "data": {}, "pipeline": {},
	"implementation": {}, "design": {}, "architecture": {}, "service": {},
}

// HasDomainTerms reports whether text mentions any project domain noun.
func HasDomainTerms(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if _, ok := domainNouns[w]; ok {
			return true
		}
	}
	return false
}

// DomainGate resolves fragments without domain terms to noise. ok is false
// when the fragment must be escalated to the model.
func DomainGate(text string) (signal.Result, bool) {
	if HasDomainTerms(text) {
		return signal.Result{}, false
	}
	return signal.Result{Label: signal.LabelNoise, Confidence: 1.0, Reasoning: DomainGateReasoning}, true
}

package analyzer

import (
	"strings"
)

// Local fallback confidence levels. Baseline applies when no keyword family
// matches; specialty families raise it, and low-complexity queries without a
// match drop to the floor.
const (
	baselineConfidence      = 0.7
	lowComplexityConfidence = 0.6
	dataMatchConfidence     = 0.9
	codeMatchConfidence     = 0.9
	contextMatchConfidence  = 0.8
)

// shortQueryTokens is the whitespace-token threshold below which a query is
// low complexity (unless a reasoning keyword already made it high).
const shortQueryTokens = 5

// fallbackReasoning is used when no keyword family matched.
const fallbackReasoning = "General conversational query (fallback mode)"

// Keyword families, checked in fixed priority order. The first matching
// family wins and short-circuits the rest, so exactly one specialty/context
// pairing is set per fallback call.
var (
	complexityKeywords = []string{"why", "explain", "reason", "analyze"}
	dataKeywords       = []string{"sql", "database", "query", "table", "csv", "dataset", "select", "spreadsheet"}
	codeKeywords       = []string{"code", "function", "bug", "debug", "compile", "refactor", "script", "python", "javascript", "golang", "swift"}
	vaultKeywords      = []string{"vault", "file", "document", "folder", "pdf", "attachment"}
	kanbanKeywords     = []string{"task", "kanban", "board", "todo", "ticket", "deadline", "sprint"}
	workflowKeywords   = []string{"workflow", "automation", "automate", "trigger", "pipeline"}
	teamKeywords       = []string{"team", "message", "chat", "colleague", "channel"}
)

// analyzeLocal is the deterministic rule-based fallback. It must keep
// producing the same verdicts for the same inputs: it is the tier that keeps
// the router functional when the backend is unreachable.
func analyzeLocal(query string) QueryAnalysis {
	lower := strings.ToLower(query)

	a := QueryAnalysis{
		Complexity: classifyComplexity(lower),
		Confidence: baselineConfidence,
		Reasoning:  fallbackReasoning,
		Source:     SourceFallback,
	}

	// Family priority: data > code > vault > kanban > workflow > team.
	switch {
	case containsAny(lower, dataKeywords):
		s := SpecialtyData
		a.Specialty = &s
		a.Needs.Data = true
		a.Confidence = dataMatchConfidence
		a.Reasoning = "SQL/data analysis keywords detected"
	case containsAny(lower, codeKeywords):
		s := SpecialtyCode
		a.Specialty = &s
		a.Needs.Code = true
		a.Confidence = codeMatchConfidence
		a.Reasoning = "Code generation keywords detected"
	case containsAny(lower, vaultKeywords):
		a.Needs.Vault = true
		a.Confidence = contextMatchConfidence
		a.Reasoning = "Query references vault documents"
	case containsAny(lower, kanbanKeywords):
		a.Needs.Kanban = true
		a.Confidence = contextMatchConfidence
		a.Reasoning = "Query references tasks or boards"
	case containsAny(lower, workflowKeywords):
		a.Needs.Workflow = true
		a.Confidence = contextMatchConfidence
		a.Reasoning = "Query references workflow automation"
	case containsAny(lower, teamKeywords):
		a.Needs.Team = true
		a.Confidence = contextMatchConfidence
		a.Reasoning = "Query references team communication"
	default:
		if a.Complexity == ComplexityLow {
			a.Confidence = lowComplexityConfidence
		}
	}

	return a
}

// classifyComplexity applies the keyword check before the short-query check:
// "why is this" is high, not low.
func classifyComplexity(lower string) Complexity {
	if containsAny(lower, complexityKeywords) {
		return ComplexityHigh
	}
	if len(strings.Fields(lower)) < shortQueryTokens {
		return ComplexityLow
	}
	return ComplexityMedium
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

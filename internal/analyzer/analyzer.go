package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Remote intent labels the backend classifier can return.
const (
	IntentDataAnalysis       = "data_analysis"
	IntentCodeGeneration     = "code_generation"
	IntentDeepReasoning      = "deep_reasoning"
	IntentVaultSearch        = "vault_search"
	IntentTaskManagement     = "task_management"
	IntentWorkflowAutomation = "workflow_automation"
	IntentTeamCommunication  = "team_communication"
	IntentGeneral            = "general"
)

// Analyzer is the two-tier query analyzer: remote classifier first, local
// rules on any failure. A nil classifier skips straight to the local tier.
type Analyzer struct {
	classifier Classifier
}

// New creates an analyzer. classifier may be nil for offline operation.
func New(classifier Classifier) *Analyzer {
	return &Analyzer{classifier: classifier}
}

// Analyze classifies a query. It never fails: classification errors are
// recovered via the local rule set and are invisible to the caller.
func (a *Analyzer) Analyze(ctx context.Context, query string) QueryAnalysis {
	if a.classifier != nil {
		if c, err := a.classifier.Classify(ctx, query); err == nil {
			return fromClassification(c, query)
		} else {
			log.Debug().Err(err).Msg("remote classification failed, using local rules")
		}
	}
	return analyzeLocal(query)
}

// fromClassification maps a remote verdict onto a QueryAnalysis.
func fromClassification(c *Classification, query string) QueryAnalysis {
	a := QueryAnalysis{
		Complexity: classifyComplexity(strings.ToLower(query)),
		Confidence: clamp01(c.Confidence),
		Reasoning:  fmt.Sprintf("Remote classifier: intent=%s", c.Intent),
		ModelHint:  c.ModelHint,
		Source:     SourceRemote,
	}
	if c.NextAction != "" {
		a.Reasoning += ", next=" + c.NextAction
	}

	switch c.Intent {
	case IntentDataAnalysis:
		s := SpecialtyData
		a.Specialty = &s
		a.Needs.Data = true
	case IntentCodeGeneration:
		s := SpecialtyCode
		a.Specialty = &s
		a.Needs.Code = true
	case IntentDeepReasoning:
		s := SpecialtyReasoning
		a.Specialty = &s
		a.Complexity = ComplexityHigh
	case IntentVaultSearch:
		a.Needs.Vault = true
	case IntentTaskManagement:
		a.Needs.Kanban = true
	case IntentWorkflowAutomation:
		a.Needs.Workflow = true
	case IntentTeamCommunication:
		a.Needs.Team = true
	}

	return a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package routing

import (
	"fmt"
	"strings"

	"github.com/normanking/cortex-router/internal/analyzer"
	"github.com/normanking/cortex-router/internal/scoring"
)

// Factor weights mirror the scoring deltas they explain.
const (
	weightComplexity = 0.2
	weightSpecialty  = scoring.SpecialtyMatchBonus
	weightPressure   = 0.3
	weightThermal    = scoring.ThermalPenalty
	weightResidency  = scoring.HotSlotBonus
)

// pressureFactorThreshold is the memory pressure above which pressure is
// worth surfacing as a decision factor.
const pressureFactorThreshold = 0.7

// charsPerToken is the rough text-to-token ratio used for the context
// estimate.
const charsPerToken = 4

// Build assembles the final decision. Pure composition: no clock, no
// network, no mutable state. Every field derives from the input.
func Build(in BuildInput) ModelRoutingDecision {
	d := ModelRoutingDecision{
		ID:           in.ID,
		Timestamp:    in.Timestamp,
		Orchestrator: in.Orchestrator,

		ModelID:    in.Best.Model.ID,
		ModelName:  in.Best.Model.DisplayName,
		Confidence: in.Analysis.Confidence,
		Reasoning:  buildReasoning(in),

		Fallbacks: scoring.FallbackList(in.Best.Model.ID, in.Ranked),

		RequiresHotSlot:          in.Slot.Required,
		EvictionCandidateSlot:    in.Slot.EvictionSlot,
		EvictionCandidateModelID: in.Slot.EvictionModelID,

		EstimatedMemoryGB:      in.Best.Model.FootprintOr(scoring.DefaultFootprintGB),
		EstimatedContextTokens: in.Bundle.HistoryTokens + len(in.Query)/charsPerToken,

		Factors:         buildFactors(in),
		RelevantContext: relevantContext(in.Analysis.Needs, in.Bundle),
	}
	return d
}

func buildReasoning(in BuildInput) string {
	reasoning := fmt.Sprintf("%s; selected %s (score %.2f)",
		in.Analysis.Reasoning, in.Best.Model.ID, in.Best.Score)
	if in.Analysis.ModelHint != "" {
		reasoning += fmt.Sprintf("; classifier hinted %s", in.Analysis.ModelHint)
	}
	if in.Slot.Required && in.Slot.EvictionSlot == nil {
		reasoning += "; all occupied slots pinned, load needs user intervention"
	}
	return reasoning
}

func buildFactors(in BuildInput) []DecisionFactor {
	factors := []DecisionFactor{
		{Factor: "complexity", Weight: weightComplexity, Value: string(in.Analysis.Complexity)},
	}

	if in.Analysis.Specialty != nil {
		factors = append(factors, DecisionFactor{
			Factor: "specialty", Weight: weightSpecialty, Value: string(*in.Analysis.Specialty),
		})
	}
	if in.MemoryPressure > pressureFactorThreshold {
		factors = append(factors, DecisionFactor{
			Factor: "memory_pressure", Weight: weightPressure,
			Value: fmt.Sprintf("%.2f", in.MemoryPressure),
		})
	}
	if in.ThermalElevated {
		factors = append(factors, DecisionFactor{
			Factor: "thermal_state", Weight: weightThermal, Value: in.ThermalState,
		})
	}
	if in.Best.Model.IsResident() {
		factors = append(factors, DecisionFactor{
			Factor: "hot_slot_residency", Weight: weightResidency,
			Value: fmt.Sprintf("slot %d", *in.Best.Model.SlotNumber),
		})
	}
	return factors
}

// relevantContext lists the context domains to gather for the query.
// Conversation history is always included; each domain needs both the
// analyzer's flag and a non-empty source.
func relevantContext(needs analyzer.ContextNeeds, bundle ContextBundle) []string {
	ctx := []string{"conversation_history"}
	for _, d := range []struct {
		name      string
		needed    bool
		available bool
	}{
		{"vault", needs.Vault, bundle.VaultAvailable},
		{"data", needs.Data, bundle.DataAvailable},
		{"kanban", needs.Kanban, bundle.KanbanAvailable},
		{"workflow", needs.Workflow, bundle.WorkflowAvailable},
		{"team", needs.Team, bundle.TeamAvailable},
		{"code", needs.Code, bundle.CodeAvailable},
	} {
		if d.needed && d.available {
			ctx = append(ctx, d.name)
		}
	}
	return ctx
}

// String renders a compact one-line summary for logs.
func (d ModelRoutingDecision) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (conf %.2f)", d.ModelID, d.Confidence)
	if d.RequiresHotSlot {
		b.WriteString(", needs hot slot")
		if d.EvictionCandidateSlot != nil {
			fmt.Fprintf(&b, ", evict slot %d", *d.EvictionCandidateSlot)
		} else {
			b.WriteString(", no eviction candidate")
		}
	}
	return b.String()
}

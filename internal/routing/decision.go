// Package routing composes query analysis, model scoring, slot state, and
// resource monitoring into explainable routing decisions.
package routing

import (
	"time"

	"github.com/normanking/cortex-router/internal/analyzer"
	"github.com/normanking/cortex-router/internal/scoring"
)

// DecisionFactor is one named, weighted, human-readable justification
// attached to a decision for explainability and audit.
type DecisionFactor struct {
	Factor string  `json:"factor"`
	Weight float64 `json:"weight"`
	Value  string  `json:"value"`
}

// ContextBundle describes what auxiliary context the caller currently has.
// Each availability flag answers "is this domain's context non-empty right
// now"; the providers behind them are external to this subsystem.
type ContextBundle struct {
	HistoryTokens int `json:"history_tokens"`

	VaultAvailable    bool `json:"vault_available"`
	DataAvailable     bool `json:"data_available"`
	KanbanAvailable   bool `json:"kanban_available"`
	WorkflowAvailable bool `json:"workflow_available"`
	TeamAvailable     bool `json:"team_available"`
	CodeAvailable     bool `json:"code_available"`
}

// HotSlotRequirement is the admission sub-decision for the selected model.
// Required with a nil eviction candidate means every occupied slot is
// pinned: the load cannot proceed automatically and needs user
// intervention. That state is a decision field, not an error.
type HotSlotRequirement struct {
	Required        bool    `json:"required"`
	EvictionSlot    *int    `json:"eviction_slot,omitempty"`
	EvictionModelID *string `json:"eviction_model_id,omitempty"`
}

// ModelRoutingDecision is the immutable record returned to the caller.
type ModelRoutingDecision struct {
	ID        string `json:"id"`
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name"`

	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Factors    []DecisionFactor `json:"factors"`

	// Fallbacks is the ordered fallback model-id list, length at most 3.
	Fallbacks []string `json:"fallbacks"`

	RequiresHotSlot          bool    `json:"requires_hot_slot"`
	EvictionCandidateSlot    *int    `json:"eviction_candidate_slot,omitempty"`
	EvictionCandidateModelID *string `json:"eviction_candidate_model_id,omitempty"`

	EstimatedMemoryGB      float64 `json:"estimated_memory_gb"`
	EstimatedContextTokens int     `json:"estimated_context_tokens"`

	RelevantContext []string  `json:"relevant_context"`
	Timestamp       time.Time `json:"timestamp"`
	Orchestrator    string    `json:"orchestrator"`
}

// BuildInput carries everything the decision builder needs. ID and
// Timestamp are supplied by the caller so the builder stays a deterministic
// pure function of its inputs.
type BuildInput struct {
	ID           string
	Timestamp    time.Time
	Orchestrator string

	Query    string
	Analysis analyzer.QueryAnalysis
	Best     scoring.ScoredModel
	Ranked   []scoring.ScoredModel
	Slot     HotSlotRequirement
	Bundle   ContextBundle

	MemoryPressure  float64
	ThermalState    string
	ThermalElevated bool
}

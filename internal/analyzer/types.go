// Package analyzer classifies incoming queries: complexity, specialty, and
// which auxiliary context domains the query likely needs. A remote intent
// classifier is tried first; any failure falls through to a deterministic
// local rule set so routing keeps working with no network at all.
package analyzer

// Complexity is the coarse difficulty estimate for a query.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Specialty is the coarse task category used to bias model selection.
type Specialty string

const (
	SpecialtyData      Specialty = "data"
	SpecialtyCode      Specialty = "code"
	SpecialtyReasoning Specialty = "reasoning"
)

// ContextNeeds flags which auxiliary context domains the query likely needs.
// Each flag is independent; the decision builder intersects them with what
// the context bundle actually has.
type ContextNeeds struct {
	Vault    bool `json:"vault"`
	Data     bool `json:"data"`
	Kanban   bool `json:"kanban"`
	Workflow bool `json:"workflow"`
	Team     bool `json:"team"`
	Code     bool `json:"code"`
}

// Source records which tier produced the analysis.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// QueryAnalysis is the classification result for one query. Produced fresh
// per query and never mutated after construction.
type QueryAnalysis struct {
	Complexity Complexity `json:"complexity"`

	// Specialty is nil for general conversational queries.
	Specialty *Specialty `json:"specialty,omitempty"`

	Reasoning  string       `json:"reasoning"`
	Confidence float64      `json:"confidence"`
	Needs      ContextNeeds `json:"needs"`

	// ModelHint is the remote classifier's optional suggestion. It carries
	// no scoring weight; it only enriches the decision reasoning.
	ModelHint string `json:"model_hint,omitempty"`

	Source Source `json:"source"`
}

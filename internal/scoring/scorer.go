// Package scoring ranks available models against a query analysis and the
// current resource snapshot. Scoring is a pure function of its inputs:
// identical analysis, models, and snapshot always produce identical ranks.
package scoring

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/normanking/cortex-router/internal/analyzer"
	"github.com/normanking/cortex-router/internal/catalog"
	"github.com/normanking/cortex-router/internal/resources"
)

// Score components. All additive; the final score stays in a bounded range
// so ties break deterministically (stable sort, first wins).
const (
	BaseScore           = 0.5
	SpecialtyMatchBonus = 0.4
	NameAffinityBonus   = 0.1
	ComplexityFitBonus  = 0.2
	HotSlotBonus        = 0.15

	InsufficientMemoryPenalty = 0.5
	ThermalPenalty            = 0.3
	CPUHighPenalty            = 0.2
	CPUCriticalPenalty        = 0.4
)

// Footprint thresholds for complexity fit and resource penalties.
const (
	LightModelMaxGB   = 5.0
	HeavyModelMinGB   = 6.0
	LargeFootprintGB  = 5.0
	MediumFootprintGB = 3.0

	CPUHighWater     = 0.8
	CPUCriticalWater = 0.95
)

// Defaults used when the registry has no memory estimate for a model. The
// two complexity branches deliberately disagree: a model of unknown size
// gets neither the light-model nor the heavy-model bonus.
const (
	UnknownFootprintForLowComplexity  = 10.0
	UnknownFootprintForHighComplexity = 0.0

	// DefaultFootprintGB is the working estimate used for admission checks
	// and the decision's memory cost when the registry has none.
	DefaultFootprintGB = 4.0
)

// MaxFallbacks bounds the ordered fallback list on a decision.
const MaxFallbacks = 3

// ErrNoCandidates means the caller passed an empty model list, violating
// the routing contract (at least one model must be supplied).
var ErrNoCandidates = errors.New("no candidate models to score")

// factorMemoryInsufficient marks a model whose footprint exceeds available
// memory. SelectBest treats it as disqualifying while any fitting candidate
// exists.
const factorMemoryInsufficient = "memory_insufficient"

// Factor is one applied score component, kept for explainability.
type Factor struct {
	Name   string  `json:"name"`
	Delta  float64 `json:"delta"`
	Detail string  `json:"detail"`
}

// ScoredModel is a model with its computed score and breakdown.
type ScoredModel struct {
	Model   catalog.AvailableModel `json:"model"`
	Score   float64                `json:"score"`
	Factors []Factor               `json:"factors"`
}

// Name-affinity substrings per specialty, a soft tie-break on top of the
// declared capability flags.
var affinitySubstrings = map[analyzer.Specialty][]string{
	analyzer.SpecialtyData:      {"sql", "data"},
	analyzer.SpecialtyCode:      {"coder", "code"},
	analyzer.SpecialtyReasoning: {"r1", "reason", "think", "qwq"},
}

// Scorer computes per-model scores. Stateless; safe for concurrent use.
type Scorer struct{}

// New creates a scorer.
func New() *Scorer { return &Scorer{} }

// ScoreAll scores every model and returns them ranked best-first. The sort
// is stable: among equal scores, input order decides.
func (s *Scorer) ScoreAll(a analyzer.QueryAnalysis, models []catalog.AvailableModel, snap resources.ResourceSnapshot) []ScoredModel {
	ranked := make([]ScoredModel, 0, len(models))
	for _, m := range models {
		ranked = append(ranked, s.scoreOne(a, m, snap))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// SelectBest scores all models and returns the winner plus the full
// ranking. A model that does not fit in available memory is never the winner
// while any fitting candidate exists, regardless of score; it stays in the
// ranking so it can still serve as a fallback. An empty model list is a
// contract violation, reported as ErrNoCandidates rather than a panic so a
// user-facing flow can degrade.
func (s *Scorer) SelectBest(a analyzer.QueryAnalysis, models []catalog.AvailableModel, snap resources.ResourceSnapshot) (ScoredModel, []ScoredModel, error) {
	if len(models) == 0 {
		return ScoredModel{}, nil, ErrNoCandidates
	}
	ranked := s.ScoreAll(a, models, snap)

	best := ranked[0]
	if overMemory(best) {
		for _, sm := range ranked[1:] {
			if !overMemory(sm) {
				best = sm
				break
			}
		}
	}
	return best, ranked, nil
}

func overMemory(sm ScoredModel) bool {
	for _, f := range sm.Factors {
		if f.Name == factorMemoryInsufficient {
			return true
		}
	}
	return false
}

func (s *Scorer) scoreOne(a analyzer.QueryAnalysis, m catalog.AvailableModel, snap resources.ResourceSnapshot) ScoredModel {
	sm := ScoredModel{Model: m, Score: BaseScore}
	sm.Factors = append(sm.Factors, Factor{Name: "base", Delta: BaseScore, Detail: "baseline"})

	add := func(name string, delta float64, detail string) {
		sm.Score += delta
		sm.Factors = append(sm.Factors, Factor{Name: name, Delta: delta, Detail: detail})
	}

	if a.Specialty != nil {
		if capabilityMatches(*a.Specialty, m.Capabilities) {
			add("specialty_match", SpecialtyMatchBonus, fmt.Sprintf("declares %s capability", *a.Specialty))
		}
		if nameAffinity(*a.Specialty, m.ID) || nameAffinity(*a.Specialty, m.DisplayName) {
			add("name_affinity", NameAffinityBonus, fmt.Sprintf("name suggests %s focus", *a.Specialty))
		}
	}

	switch a.Complexity {
	case analyzer.ComplexityLow:
		if m.FootprintOr(UnknownFootprintForLowComplexity) < LightModelMaxGB {
			add("complexity_fit", ComplexityFitBonus, "light model for a low-complexity query")
		}
	case analyzer.ComplexityHigh:
		if m.FootprintOr(UnknownFootprintForHighComplexity) > HeavyModelMinGB {
			add("complexity_fit", ComplexityFitBonus, "heavy model for a high-complexity query")
		}
	}

	if m.IsResident() {
		add("hot_slot", HotSlotBonus, fmt.Sprintf("already loaded in slot %d", *m.SlotNumber))
	}

	// Resource penalties apply independently and additively; a model can
	// collect several at once. They only fire when the registry provided a
	// footprint estimate to judge against.
	if m.MemoryGB != nil {
		footprint := *m.MemoryGB
		if footprint > snap.AvailableMemoryGB {
			add(factorMemoryInsufficient, -InsufficientMemoryPenalty,
				fmt.Sprintf("needs %.1fGB, %.1fGB available", footprint, snap.AvailableMemoryGB))
		}
		if snap.ThermalState >= resources.ThermalSerious && footprint > LargeFootprintGB {
			add("thermal", -ThermalPenalty,
				fmt.Sprintf("thermal %s with %.1fGB model", snap.ThermalState, footprint))
		}
		if snap.CPUUsage > CPUHighWater && footprint > LargeFootprintGB {
			add("cpu_high", -CPUHighPenalty,
				fmt.Sprintf("cpu %.2f with %.1fGB model", snap.CPUUsage, footprint))
		}
		if snap.CPUUsage > CPUCriticalWater && footprint > MediumFootprintGB {
			add("cpu_critical", -CPUCriticalPenalty,
				fmt.Sprintf("cpu %.2f with %.1fGB model", snap.CPUUsage, footprint))
		}
	}

	return sm
}

// FallbackList returns up to MaxFallbacks model ids, excluding the primary,
// with hot-slot-resident models first. Order within each group follows the
// ranking.
func FallbackList(primaryID string, ranked []ScoredModel) []string {
	var resident, others []string
	for _, sm := range ranked {
		if sm.Model.ID == primaryID {
			continue
		}
		if sm.Model.IsResident() {
			resident = append(resident, sm.Model.ID)
		} else {
			others = append(others, sm.Model.ID)
		}
	}
	out := append(resident, others...)
	if len(out) > MaxFallbacks {
		out = out[:MaxFallbacks]
	}
	return out
}

func capabilityMatches(s analyzer.Specialty, f catalog.CapabilityFlags) bool {
	switch s {
	case analyzer.SpecialtyData:
		return f.DataAnalysis
	case analyzer.SpecialtyCode:
		return f.CodeGeneration
	case analyzer.SpecialtyReasoning:
		return f.Reasoning
	default:
		return false
	}
}

func nameAffinity(s analyzer.Specialty, name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range affinitySubstrings[s] {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/normanking/cortex-router/internal/analyzer"
	"github.com/normanking/cortex-router/internal/catalog"
	"github.com/normanking/cortex-router/internal/resources"
)

func healthySnapshot() resources.ResourceSnapshot {
	return resources.ResourceSnapshot{
		AvailableMemoryGB: 32,
		MemoryPressure:    0.3,
		ThermalState:      resources.ThermalNominal,
		CPUUsage:          0.2,
	}
}

func testModels() []catalog.AvailableModel {
	return []catalog.AvailableModel{
		{
			ID:           "qwen2.5-coder:14b",
			DisplayName:  "Qwen 2.5 Coder 14B",
			Capabilities: catalog.CapabilityFlags{CodeGeneration: true},
			MemoryGB:     catalog.GB(9),
		},
		{
			ID:           "sqlcoder:7b",
			DisplayName:  "SQLCoder 7B",
			Capabilities: catalog.CapabilityFlags{DataAnalysis: true},
			MemoryGB:     catalog.GB(4.5),
			SlotNumber:   catalog.Slot(1),
		},
		{
			ID:           "deepseek-r1:8b",
			DisplayName:  "DeepSeek R1 8B",
			Capabilities: catalog.CapabilityFlags{Reasoning: true},
			MemoryGB:     catalog.GB(5.5),
		},
		{
			ID:          "llama3.2:3b",
			DisplayName: "Llama 3.2 3B",
			MemoryGB:    catalog.GB(2),
		},
	}
}

func dataAnalysis() analyzer.QueryAnalysis {
	s := analyzer.SpecialtyData
	return analyzer.QueryAnalysis{
		Complexity: analyzer.ComplexityHigh,
		Specialty:  &s,
		Confidence: 0.9,
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreAllRanksSpecialistFirst(t *testing.T) {
	s := New()
	ranked := s.ScoreAll(dataAnalysis(), testModels(), healthySnapshot())

	if len(ranked) != 4 {
		t.Fatalf("expected 4 scored models, got %d", len(ranked))
	}
	if ranked[0].Model.ID != "sqlcoder:7b" {
		t.Errorf("expected sqlcoder:7b first, got %s", ranked[0].Model.ID)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("ranking not descending at %d: %.2f > %.2f", i, ranked[i].Score, ranked[i-1].Score)
		}
	}
}

func TestSpecialtyAndAffinityBonuses(t *testing.T) {
	s := New()
	ranked := s.ScoreAll(dataAnalysis(), testModels(), healthySnapshot())

	var sql ScoredModel
	for _, sm := range ranked {
		if sm.Model.ID == "sqlcoder:7b" {
			sql = sm
		}
	}

	// base + specialty match + name affinity ("sql") + hot slot residency.
	expected := BaseScore + SpecialtyMatchBonus + NameAffinityBonus + HotSlotBonus
	if !approxEqual(sql.Score, expected) {
		t.Errorf("expected score %.2f, got %.2f (factors: %+v)", expected, sql.Score, sql.Factors)
	}
}

func TestComplexityFitLowQuery(t *testing.T) {
	s := New()
	a := analyzer.QueryAnalysis{Complexity: analyzer.ComplexityLow, Confidence: 0.6}

	ranked := s.ScoreAll(a, testModels(), healthySnapshot())

	if ranked[0].Model.ID != "sqlcoder:7b" && ranked[0].Model.ID != "llama3.2:3b" {
		t.Errorf("expected a light model first for a low-complexity query, got %s", ranked[0].Model.ID)
	}

	for _, sm := range ranked {
		fit := hasFactor(sm, "complexity_fit")
		light := *sm.Model.MemoryGB < LightModelMaxGB
		if fit != light {
			t.Errorf("%s: complexity fit %v but footprint %.1fGB", sm.Model.ID, fit, *sm.Model.MemoryGB)
		}
	}
}

func TestUnknownFootprintGetsNeitherFitBonus(t *testing.T) {
	s := New()
	unknown := []catalog.AvailableModel{{ID: "mystery", DisplayName: "Mystery"}}

	low := analyzer.QueryAnalysis{Complexity: analyzer.ComplexityLow}
	high := analyzer.QueryAnalysis{Complexity: analyzer.ComplexityHigh}

	if hasFactor(s.ScoreAll(low, unknown, healthySnapshot())[0], "complexity_fit") {
		t.Error("unknown footprint must not earn the light-model bonus")
	}
	if hasFactor(s.ScoreAll(high, unknown, healthySnapshot())[0], "complexity_fit") {
		t.Error("unknown footprint must not earn the heavy-model bonus")
	}
}

func TestInsufficientMemoryPenalty(t *testing.T) {
	s := New()
	snap := healthySnapshot()
	snap.AvailableMemoryGB = 5

	ranked := s.ScoreAll(dataAnalysis(), testModels(), snap)

	for _, sm := range ranked {
		if sm.Model.ID != "qwen2.5-coder:14b" {
			continue
		}
		if !hasFactor(sm, "memory_insufficient") {
			t.Fatal("expected memory penalty for 9GB model with 5GB available")
		}
		found := false
		for _, f := range sm.Factors {
			if f.Name == "memory_insufficient" && approxEqual(f.Delta, -InsufficientMemoryPenalty) {
				found = true
			}
		}
		if !found {
			t.Errorf("expected delta %.2f for memory penalty", -InsufficientMemoryPenalty)
		}
	}
}

func TestPenaltiesStack(t *testing.T) {
	s := New()
	snap := resources.ResourceSnapshot{
		AvailableMemoryGB: 4,
		MemoryPressure:    0.95,
		ThermalState:      resources.ThermalSerious,
		CPUUsage:          0.97,
	}

	models := []catalog.AvailableModel{{
		ID:       "heavy",
		MemoryGB: catalog.GB(10),
	}}
	sm := s.ScoreAll(analyzer.QueryAnalysis{Complexity: analyzer.ComplexityMedium}, models, snap)[0]

	// memory + thermal + cpu high + cpu critical all apply.
	expected := BaseScore - InsufficientMemoryPenalty - ThermalPenalty - CPUHighPenalty - CPUCriticalPenalty
	if !approxEqual(sm.Score, expected) {
		t.Errorf("expected stacked score %.2f, got %.2f (factors: %+v)", expected, sm.Score, sm.Factors)
	}
}

func TestPenaltiesSkippedWithoutFootprint(t *testing.T) {
	s := New()
	snap := resources.ResourceSnapshot{
		AvailableMemoryGB: 1,
		ThermalState:      resources.ThermalCritical,
		CPUUsage:          0.99,
	}

	sm := s.ScoreAll(analyzer.QueryAnalysis{Complexity: analyzer.ComplexityMedium},
		[]catalog.AvailableModel{{ID: "mystery"}}, snap)[0]

	for _, f := range sm.Factors {
		if f.Delta < 0 {
			t.Errorf("no penalty should fire without a footprint estimate, got %s", f.Name)
		}
	}
}

func TestSelectBestSkipsOverMemoryWinner(t *testing.T) {
	s := New()
	snap := healthySnapshot()
	snap.AvailableMemoryGB = 5

	// The specialist outscores the generalist on bonuses alone, but its 9GB
	// footprint does not fit in the 5GB available.
	models := []catalog.AvailableModel{
		{
			ID:           "sqlcoder:9b",
			DisplayName:  "SQLCoder 9B",
			Capabilities: catalog.CapabilityFlags{DataAnalysis: true},
			MemoryGB:     catalog.GB(9),
		},
		{
			ID:          "llama3.2:3b",
			DisplayName: "Llama 3.2 3B",
			MemoryGB:    catalog.GB(2),
		},
	}

	best, ranked, err := s.SelectBest(dataAnalysis(), models, snap)
	if err != nil {
		t.Fatalf("SelectBest: %v", err)
	}

	if best.Model.ID != "llama3.2:3b" {
		t.Errorf("expected the fitting model selected, got %s", best.Model.ID)
	}
	if ranked[0].Model.ID != "sqlcoder:9b" {
		t.Errorf("over-memory model must stay in the ranking, got %s first", ranked[0].Model.ID)
	}

	fallbacks := FallbackList(best.Model.ID, ranked)
	if len(fallbacks) != 1 || fallbacks[0] != "sqlcoder:9b" {
		t.Errorf("over-memory model must remain available as a fallback, got %v", fallbacks)
	}
}

func TestSelectBestAllOverMemoryKeepsTopScore(t *testing.T) {
	s := New()
	snap := healthySnapshot()
	snap.AvailableMemoryGB = 1

	best, ranked, err := s.SelectBest(dataAnalysis(), testModels(), snap)
	if err != nil {
		t.Fatalf("SelectBest: %v", err)
	}

	// When nothing fits, the highest score still wins.
	if best.Model.ID != ranked[0].Model.ID {
		t.Errorf("expected top-ranked %s when no model fits, got %s", ranked[0].Model.ID, best.Model.ID)
	}
}

func TestSelectBestEmptyList(t *testing.T) {
	s := New()
	_, _, err := s.SelectBest(dataAnalysis(), nil, healthySnapshot())

	if !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestScoringDeterministic(t *testing.T) {
	s := New()
	first := s.ScoreAll(dataAnalysis(), testModels(), healthySnapshot())
	for i := 0; i < 5; i++ {
		again := s.ScoreAll(dataAnalysis(), testModels(), healthySnapshot())
		for j := range first {
			if first[j].Model.ID != again[j].Model.ID || first[j].Score != again[j].Score {
				t.Fatal("scoring must be deterministic for identical inputs")
			}
		}
	}
}

func TestStableTieBreak(t *testing.T) {
	s := New()
	models := []catalog.AvailableModel{
		{ID: "twin-a", MemoryGB: catalog.GB(4)},
		{ID: "twin-b", MemoryGB: catalog.GB(4)},
	}
	ranked := s.ScoreAll(analyzer.QueryAnalysis{Complexity: analyzer.ComplexityMedium}, models, healthySnapshot())

	if ranked[0].Model.ID != "twin-a" {
		t.Error("equal scores must preserve input order")
	}
}

func TestFallbackList(t *testing.T) {
	s := New()
	ranked := s.ScoreAll(dataAnalysis(), testModels(), healthySnapshot())
	primary := ranked[0].Model.ID

	fallbacks := FallbackList(primary, ranked)

	if len(fallbacks) > MaxFallbacks {
		t.Errorf("fallback list too long: %d", len(fallbacks))
	}
	for _, id := range fallbacks {
		if id == primary {
			t.Error("fallback list must exclude the primary")
		}
	}
}

func TestFallbackListResidentFirst(t *testing.T) {
	ranked := []ScoredModel{
		{Model: catalog.AvailableModel{ID: "primary"}, Score: 1.0},
		{Model: catalog.AvailableModel{ID: "cold-1"}, Score: 0.9},
		{Model: catalog.AvailableModel{ID: "hot-1", SlotNumber: catalog.Slot(2)}, Score: 0.8},
		{Model: catalog.AvailableModel{ID: "cold-2"}, Score: 0.7},
	}

	fallbacks := FallbackList("primary", ranked)

	if len(fallbacks) != 3 {
		t.Fatalf("expected 3 fallbacks, got %d", len(fallbacks))
	}
	if fallbacks[0] != "hot-1" {
		t.Errorf("expected resident model first, got %s", fallbacks[0])
	}
	if fallbacks[1] != "cold-1" || fallbacks[2] != "cold-2" {
		t.Errorf("expected ranking order within cold group, got %v", fallbacks)
	}
}

func hasFactor(sm ScoredModel, name string) bool {
	for _, f := range sm.Factors {
		if f.Name == name {
			return true
		}
	}
	return false
}

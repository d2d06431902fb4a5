package routing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/cortex-router/internal/analyzer"
	"github.com/normanking/cortex-router/internal/catalog"
	"github.com/normanking/cortex-router/internal/resources"
	"github.com/normanking/cortex-router/internal/scoring"
	"github.com/normanking/cortex-router/internal/slots"
)

// DecisionSink receives every decision the engine produces, for audit or
// downstream orchestration. Sinks must not block; the engine calls them
// synchronously on the routing path.
type DecisionSink interface {
	Record(d ModelRoutingDecision)
}

// ResourceView is the slice of the resource monitor the engine consumes.
// Satisfied by *resources.Monitor.
type ResourceView interface {
	CurrentSnapshot() resources.ResourceSnapshot
	CanAdmit(estimatedMemoryGB float64) bool
}

// Engine ties the analyzer, scorer, slot pool, and resource monitor into
// the single Route entry point.
type Engine struct {
	analyzer *analyzer.Analyzer
	scorer   *scoring.Scorer
	monitor  ResourceView
	pool     *slots.Pool
	registry catalog.Registry

	orchestrator string
	safeFallback string
	sink         DecisionSink

	newID func() string
	now   func() time.Time
}

// Options configures an Engine.
type Options struct {
	Analyzer *analyzer.Analyzer
	Scorer   *scoring.Scorer
	Monitor  ResourceView
	Pool     *slots.Pool
	Registry catalog.Registry

	// Orchestrator is stamped on every decision as its origin.
	Orchestrator string

	// SafeFallbackModel is reported inside ModelNotAvailableError so the
	// caller can still answer with a cloud model when no local one works.
	SafeFallbackModel string

	// Sink is optional.
	Sink DecisionSink
}

// NewEngine assembles the routing engine.
func NewEngine(opts Options) *Engine {
	return &Engine{
		analyzer:     opts.Analyzer,
		scorer:       opts.Scorer,
		monitor:      opts.Monitor,
		pool:         opts.Pool,
		registry:     opts.Registry,
		orchestrator: opts.Orchestrator,
		safeFallback: opts.SafeFallbackModel,
		sink:         opts.Sink,
		newID:        func() string { return uuid.New().String() },
		now:          time.Now,
	}
}

// Route produces a routing decision for the query. It returns
// *ModelNotAvailableError when no healthy model exists or the candidate
// list is empty; every other outcome is expressed in the decision itself,
// including the all-slots-pinned case.
func (e *Engine) Route(ctx context.Context, query string, bundle ContextBundle) (ModelRoutingDecision, error) {
	started := e.now()
	snap := e.monitor.CurrentSnapshot()

	candidates := e.healthyCandidates()
	if len(candidates) == 0 {
		return ModelRoutingDecision{}, &ModelNotAvailableError{
			Reason:              "no healthy models in registry",
			SafeFallbackModelID: e.safeFallback,
		}
	}

	a := e.analyzer.Analyze(ctx, query)
	if a.Source == analyzer.SourceFallback {
		classifierFallbacks.Inc()
	}

	best, ranked, err := e.scorer.SelectBest(a, candidates, snap)
	if err != nil {
		if errors.Is(err, scoring.ErrNoCandidates) {
			return ModelRoutingDecision{}, &ModelNotAvailableError{
				Reason:              "empty candidate list",
				SafeFallbackModelID: e.safeFallback,
			}
		}
		return ModelRoutingDecision{}, err
	}

	req := e.hotSlotRequirement(best.Model)

	d := Build(BuildInput{
		ID:           e.newID(),
		Timestamp:    started,
		Orchestrator: e.orchestrator,

		Query:    query,
		Analysis: a,
		Best:     best,
		Ranked:   ranked,
		Slot:     req,
		Bundle:   bundle,

		MemoryPressure:  snap.MemoryPressure,
		ThermalState:    snap.ThermalState.String(),
		ThermalElevated: snap.ThermalState.Elevated(),
	})

	if d.RequiresHotSlot && !e.monitor.CanAdmit(d.EstimatedMemoryGB) {
		log.Warn().
			Str("model", d.ModelID).
			Float64("estimated_gb", d.EstimatedMemoryGB).
			Msg("selected model needs a load the system cannot admit right now")
	}

	e.observe(d, a, e.now().Sub(started))
	return d, nil
}

// Explain analyzes the query and scores the current healthy candidates
// without producing or recording a decision. It backs the CLI score table.
func (e *Engine) Explain(ctx context.Context, query string) (analyzer.QueryAnalysis, []scoring.ScoredModel, error) {
	candidates := e.healthyCandidates()
	if len(candidates) == 0 {
		return analyzer.QueryAnalysis{}, nil, &ModelNotAvailableError{
			Reason:              "no healthy models in registry",
			SafeFallbackModelID: e.safeFallback,
		}
	}

	a := e.analyzer.Analyze(ctx, query)
	_, ranked, err := e.scorer.SelectBest(a, candidates, e.monitor.CurrentSnapshot())
	if err != nil {
		return a, nil, err
	}
	return a, ranked, nil
}

// healthyCandidates filters the registry to healthy models and overlays the
// pool's residency view. The pool is authoritative: a registry slot claim
// the pool does not confirm is cleared.
func (e *Engine) healthyCandidates() []catalog.AvailableModel {
	var out []catalog.AvailableModel
	for _, m := range e.registry.ListAvailableModels() {
		if !m.Healthy {
			log.Debug().Str("model", m.ID).Msg("skipping unhealthy model")
			continue
		}
		if slot, ok := e.pool.SlotOf(m.ID); ok {
			m.SlotNumber = catalog.Slot(slot)
		} else {
			m.SlotNumber = nil
		}
		out = append(out, m)
	}
	return out
}

// hotSlotRequirement works out whether selecting the model forces a load,
// and if so which occupant should make room.
func (e *Engine) hotSlotRequirement(m catalog.AvailableModel) HotSlotRequirement {
	if m.IsResident() {
		return HotSlotRequirement{Required: false}
	}
	req := HotSlotRequirement{Required: true}
	if e.pool.OccupiedCount() < slots.SlotCount {
		return req
	}

	slot, ok := e.pool.FindEvictionCandidate()
	if !ok {
		log.Warn().Str("model", m.ID).Msg("all occupied slots pinned, load needs user intervention")
		return req
	}
	req.EvictionSlot = &slot
	for _, s := range e.pool.Snapshot() {
		if s.Number == slot {
			id := s.ModelID
			req.EvictionModelID = &id
			break
		}
	}
	plannedEvictions.Inc()
	return req
}

func (e *Engine) observe(d ModelRoutingDecision, a analyzer.QueryAnalysis, elapsed time.Duration) {
	specialty := "none"
	if a.Specialty != nil {
		specialty = string(*a.Specialty)
	}
	decisionCount.WithLabelValues(string(a.Complexity), specialty).Inc()
	routeDuration.Observe(elapsed.Seconds())

	if e.sink != nil {
		e.sink.Record(d)
	}

	log.Info().
		Str("decision_id", d.ID).
		Str("model", d.ModelID).
		Float64("confidence", d.Confidence).
		Bool("requires_hot_slot", d.RequiresHotSlot).
		Strs("fallbacks", d.Fallbacks).
		Dur("elapsed", elapsed).
		Msg("routing decision")
}

// Status reports the engine's current operational view.
func (e *Engine) Status() map[string]interface{} {
	snap := e.monitor.CurrentSnapshot()

	models := e.registry.ListAvailableModels()
	healthy := 0
	for _, m := range models {
		if m.Healthy {
			healthy++
		}
	}

	return map[string]interface{}{
		"orchestrator":        e.orchestrator,
		"models_total":        len(models),
		"models_healthy":      healthy,
		"slots_occupied":      e.pool.OccupiedCount(),
		"slots_total":         slots.SlotCount,
		"slot_available":      e.pool.HasAvailableSlot(),
		"memory_available_gb": snap.AvailableMemoryGB,
		"memory_pressure":     snap.MemoryPressure,
		"thermal_state":       snap.ThermalState.String(),
		"cpu_usage":           snap.CPUUsage,
		"safe_fallback_model": e.safeFallback,
	}
}

// Package catalog defines the model registry types consumed by the router.
// The registry itself lives in the backend; this subsystem only reads the
// snapshot it is handed.
package catalog

// CapabilityFlags are the coarse capabilities a model declares in the registry.
type CapabilityFlags struct {
	DataAnalysis   bool `json:"data_analysis"`
	CodeGeneration bool `json:"code_generation"`
	Reasoning      bool `json:"reasoning"`
}

// AvailableModel is one entry from the backend model registry.
type AvailableModel struct {
	ID           string          `json:"id"`
	DisplayName  string          `json:"display_name"`
	Capabilities CapabilityFlags `json:"capabilities"`

	// MemoryGB is the estimated resident footprint. Nil when the registry
	// has no estimate for the model.
	MemoryGB *float64 `json:"memory_gb,omitempty"`

	// SlotNumber is the hot slot currently holding the model, nil when the
	// model is not resident.
	SlotNumber *int `json:"slot_number,omitempty"`

	Healthy bool `json:"healthy"`
}

// IsResident reports whether the model currently occupies a hot slot.
func (m AvailableModel) IsResident() bool {
	return m.SlotNumber != nil
}

// FootprintOr returns the memory estimate, or def when the registry has none.
func (m AvailableModel) FootprintOr(def float64) float64 {
	if m.MemoryGB == nil {
		return def
	}
	return *m.MemoryGB
}

// Registry lists the models currently known to the backend. The caller is
// expected to keep this cached; the router never fetches it itself.
type Registry interface {
	ListAvailableModels() []AvailableModel
}

// StaticRegistry serves a fixed model list, typically built from config.
type StaticRegistry struct {
	models []AvailableModel
}

// NewStaticRegistry returns a registry over a fixed model list.
func NewStaticRegistry(models []AvailableModel) *StaticRegistry {
	return &StaticRegistry{models: models}
}

// ListAvailableModels returns a copy of the registered models.
func (r *StaticRegistry) ListAvailableModels() []AvailableModel {
	out := make([]AvailableModel, len(r.models))
	copy(out, r.models)
	return out
}

// GB is a convenience for building optional memory estimates.
func GB(v float64) *float64 { return &v }

// Slot is a convenience for building optional slot assignments.
func Slot(n int) *int { return &n }

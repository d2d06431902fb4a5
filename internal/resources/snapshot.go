// Package resources maintains a continuously refreshed view of system
// memory, thermal, and CPU headroom and gates model admission on it.
package resources

import "time"

// ThermalState is the coarse system heat/throttle indicator.
type ThermalState int

const (
	ThermalNominal ThermalState = iota
	ThermalFair
	ThermalSerious
	ThermalCritical
)

// String returns the thermal state name.
func (t ThermalState) String() string {
	switch t {
	case ThermalNominal:
		return "nominal"
	case ThermalFair:
		return "fair"
	case ThermalSerious:
		return "serious"
	case ThermalCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Elevated reports whether the state is above nominal.
func (t ThermalState) Elevated() bool { return t > ThermalNominal }

// ResourceSnapshot is an immutable reading of system headroom. The monitor
// replaces it wholesale on every polling tick; readers always see a complete
// snapshot, never a partial update.
type ResourceSnapshot struct {
	// AvailableMemoryGB is memory currently available to new allocations.
	AvailableMemoryGB float64 `json:"available_memory_gb"`

	// MemoryPressure is 0.0 (idle) to 1.0 (system under severe pressure).
	MemoryPressure float64 `json:"memory_pressure"`

	ThermalState ThermalState `json:"thermal_state"`

	// CPUUsage is 0.0-1.0 for a single saturated core; values above 1.0
	// occur when usage is summed across saturated cores.
	CPUUsage float64 `json:"cpu_usage"`

	CapturedAt time.Time `json:"captured_at"`
}

// Admission thresholds. Pressure above denyPressure refuses new loads;
// pressure above warnPressure only logs.
const (
	warnPressure = 0.8
	denyPressure = 0.9
)

// conservativeDefault is returned before the first poll completes so that
// startup routing is never blocked on the monitor. It deliberately reports
// generous headroom.
func conservativeDefault() ResourceSnapshot {
	return ResourceSnapshot{
		AvailableMemoryGB: 32.0,
		MemoryPressure:    0.0,
		ThermalState:      ThermalNominal,
		CPUUsage:          0.0,
	}
}

package resources

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the monitor refreshes its snapshot.
const DefaultPollInterval = 5 * time.Second

// Probe samples the current system state. Separated from the monitor so
// tests can inject fixed readings.
type Probe interface {
	Sample(ctx context.Context) (ResourceSnapshot, error)
}

// Monitor polls system resources on a fixed interval and exposes the latest
// snapshot plus admission predicates. It never denies or evicts on its own;
// it only reports.
type Monitor struct {
	mu       sync.RWMutex
	snapshot *ResourceSnapshot

	probe    Probe
	interval time.Duration

	runMu   sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewMonitor creates a monitor over the given probe. A zero interval uses
// DefaultPollInterval. Pass NewHostProbe() for live readings.
func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{probe: probe, interval: interval}
}

// Start begins periodic polling. Calling Start on a running monitor is a
// no-op. The first poll happens immediately so callers get a real snapshot
// as soon as the probe can produce one.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.poll()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.poll()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends polling. Idempotent; safe to call on a monitor that was never
// started.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	close(m.stop)
	<-m.done
	m.running = false
}

// poll samples once. A failed sample keeps the last-known snapshot; the
// monitor retries on the next tick.
func (m *Monitor) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	snap, err := m.probe.Sample(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("resource poll failed, keeping last snapshot")
		return
	}
	snap.CapturedAt = time.Now()

	if snap.MemoryPressure > warnPressure {
		log.Warn().
			Float64("pressure", snap.MemoryPressure).
			Float64("available_gb", snap.AvailableMemoryGB).
			Msg("memory pressure high")
	}
	if snap.ThermalState >= ThermalSerious {
		log.Warn().
			Str("thermal", snap.ThermalState.String()).
			Float64("cpu", snap.CPUUsage).
			Msg("thermal state elevated")
	}

	m.mu.Lock()
	m.snapshot = &snap
	m.mu.Unlock()
}

// CurrentSnapshot returns the latest polled value. Before the first poll
// completes it returns a conservative default with generous headroom so
// startup is never blocked.
func (m *Monitor) CurrentSnapshot() ResourceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return conservativeDefault()
	}
	return *m.snapshot
}

// CanAdmit reports whether a model with the given estimated footprint may be
// loaded right now. Three independent guards, checked in order, each
// sufficient to deny: memory fit, critical thermal, pressure above 0.9.
func (m *Monitor) CanAdmit(estimatedMemoryGB float64) bool {
	snap := m.CurrentSnapshot()

	if estimatedMemoryGB > snap.AvailableMemoryGB {
		log.Debug().
			Float64("estimated_gb", estimatedMemoryGB).
			Float64("available_gb", snap.AvailableMemoryGB).
			Msg("admission denied: insufficient memory")
		return false
	}
	if snap.ThermalState == ThermalCritical {
		log.Debug().Msg("admission denied: thermal critical")
		return false
	}
	if snap.MemoryPressure > denyPressure {
		log.Debug().
			Float64("pressure", snap.MemoryPressure).
			Msg("admission denied: memory pressure")
		return false
	}
	return true
}

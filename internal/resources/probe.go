package resources

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

const bytesPerGB = 1024 * 1024 * 1024

// HostProbe reads live system state: memory via gopsutil, CPU via per-core
// usage summed (so values above 1.0 indicate multiple saturated cores), and
// thermal state from platform facilities with a nominal fallback.
type HostProbe struct{}

// NewHostProbe returns a probe over the local machine.
func NewHostProbe() *HostProbe { return &HostProbe{} }

// Sample reads one snapshot. Partial probe failures degrade individual
// fields rather than failing the whole sample; only a memory read failure is
// a hard error, since admission is meaningless without it.
func (p *HostProbe) Sample(ctx context.Context) (ResourceSnapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return ResourceSnapshot{}, err
	}

	snap := ResourceSnapshot{
		AvailableMemoryGB: float64(vm.Available) / bytesPerGB,
		MemoryPressure:    vm.UsedPercent / 100.0,
		ThermalState:      probeThermal(ctx),
	}

	// Per-core percentages summed, matching the "greater than 1.0 when
	// multiple cores are saturated" contract.
	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		log.Debug().Err(err).Msg("cpu probe failed, reporting zero usage")
	} else {
		var busiest float64
		var total float64
		for _, pct := range perCore {
			total += pct / 100.0
			if pct/100.0 > busiest {
				busiest = pct / 100.0
			}
		}
		// Report the busiest core as the base and add the overflow from
		// other saturated cores.
		snap.CPUUsage = busiest
		if extra := total - busiest; extra > 1.0 {
			snap.CPUUsage += extra - 1.0
		}
	}

	return snap, nil
}

// probeThermal maps platform thermal facilities onto ThermalState. Probe
// failure or an unsupported platform reports nominal; thermal is an advisory
// signal, not a required one.
func probeThermal(ctx context.Context) ThermalState {
	switch runtime.GOOS {
	case "darwin":
		return probeThermalDarwin(ctx)
	case "linux":
		return probeThermalLinux()
	default:
		return ThermalNominal
	}
}

// probeThermalDarwin reads the CPU speed limit from pmset. macOS throttles
// the CPU clock as the machine heats; the remaining speed budget maps onto
// the four thermal states.
func probeThermalDarwin(ctx context.Context) ThermalState {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pmset", "-g", "therm")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		log.Debug().Err(err).Msg("pmset thermal probe failed")
		return ThermalNominal
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		if !strings.Contains(line, "CPU_Speed_Limit") {
			continue
		}
		parts := strings.Split(line, "=")
		if len(parts) != 2 {
			continue
		}
		limit, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		switch {
		case limit >= 100:
			return ThermalNominal
		case limit >= 80:
			return ThermalFair
		case limit >= 50:
			return ThermalSerious
		default:
			return ThermalCritical
		}
	}
	return ThermalNominal
}

// probeThermalLinux reads the first thermal zone in sysfs (millidegrees C).
func probeThermalLinux() ThermalState {
	data, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return ThermalNominal
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return ThermalNominal
	}
	celsius := milli / 1000
	switch {
	case celsius < 70:
		return ThermalNominal
	case celsius < 85:
		return ThermalFair
	case celsius < 95:
		return ThermalSerious
	default:
		return ThermalCritical
	}
}

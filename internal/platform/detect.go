// Package platform provides system platform detection for the router.
// It identifies the host class and total RAM so the router can report how
// large a local model the machine can reasonably hold.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Platform represents the detected system platform.
type Platform string

const (
	PlatformAppleSilicon Platform = "apple_silicon" // macOS on M1/M2/M3/M4
	PlatformMacOSIntel   Platform = "macos_intel"   // macOS on Intel
	PlatformLinuxCUDA    Platform = "linux_cuda"    // Linux with NVIDIA GPU
	PlatformLinuxCPU     Platform = "linux_cpu"     // Linux without GPU
	PlatformUnknown      Platform = "unknown"       // Unknown platform
)

// Info contains platform detection results.
type Info struct {
	Platform Platform `json:"platform"`
	OS       string   `json:"os"`   // darwin, linux
	Arch     string   `json:"arch"` // arm64, amd64

	IsAppleSilicon bool   `json:"is_apple_silicon"`
	ChipName       string `json:"chip_name,omitempty"` // e.g., "Apple M1 Pro"

	// TotalRAMGB is the machine's physical memory; on Apple Silicon this is
	// unified memory shared with the GPU, so it bounds model size directly.
	TotalRAMGB float64 `json:"total_ram_gb"`

	// MaxModelGB is the largest model footprint worth attempting on this
	// machine, leaving headroom for the OS and other processes.
	MaxModelGB float64 `json:"max_model_gb"`

	DetectedAt time.Time `json:"detected_at"`
}

// String returns a human-readable description of the platform.
func (i *Info) String() string {
	if i.IsAppleSilicon {
		return fmt.Sprintf("Apple Silicon (%s), %.0fGB unified memory", i.ChipName, i.TotalRAMGB)
	}
	return fmt.Sprintf("%s/%s, %.0fGB RAM", i.OS, i.Arch, i.TotalRAMGB)
}

// Detector provides cached platform detection.
type Detector struct {
	mu       sync.RWMutex
	cached   *Info
	cacheTTL time.Duration
}

// NewDetector creates a platform detector with a 10-minute cache.
func NewDetector() *Detector {
	return &Detector{
		cacheTTL: 10 * time.Minute,
	}
}

var (
	globalDetector     *Detector
	globalDetectorOnce sync.Once
)

// GetDetector returns the global platform detector singleton.
func GetDetector() *Detector {
	globalDetectorOnce.Do(func() {
		globalDetector = NewDetector()
	})
	return globalDetector
}

// Detect performs platform detection, using cache if available.
func (d *Detector) Detect(ctx context.Context) (*Info, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.DetectedAt) < d.cacheTTL {
		cached := d.cached
		d.mu.RUnlock()
		return cached, nil
	}
	d.mu.RUnlock()

	info, err := DetectPlatform(ctx)
	if err != nil {
		return info, err
	}

	d.mu.Lock()
	d.cached = info
	d.mu.Unlock()

	return info, nil
}

// InvalidateCache clears the cached platform info.
func (d *Detector) InvalidateCache() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
	log.Debug().Msg("platform cache invalidated")
}

// DetectPlatform performs fresh platform detection.
func DetectPlatform(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		DetectedAt: time.Now(),
	}

	switch runtime.GOOS {
	case "darwin":
		if runtime.GOARCH == "arm64" {
			info.IsAppleSilicon = true
			info.Platform = PlatformAppleSilicon
			info.ChipName = getAppleChipName(ctx)
		} else {
			info.Platform = PlatformMacOSIntel
		}
	case "linux":
		if checkCUDAAvailable(ctx) {
			info.Platform = PlatformLinuxCUDA
		} else {
			info.Platform = PlatformLinuxCPU
		}
	default:
		info.Platform = PlatformUnknown
	}

	if ramBytes, err := GetSystemRAM(ctx); err == nil {
		const GB = 1024 * 1024 * 1024
		info.TotalRAMGB = float64(ramBytes) / float64(GB)
		info.MaxModelGB = GetMaxModelSizeGB(ramBytes)
	} else {
		log.Debug().Err(err).Msg("failed to detect system RAM, using safe defaults")
		info.TotalRAMGB = 8.0
		info.MaxModelGB = 5.0
	}

	log.Debug().
		Str("platform", string(info.Platform)).
		Bool("apple_silicon", info.IsAppleSilicon).
		Float64("ram_gb", info.TotalRAMGB).
		Float64("max_model_gb", info.MaxModelGB).
		Msg("platform detected")

	return info, nil
}

// getAppleChipName returns the Apple Silicon chip name (e.g., "Apple M1 Pro").
func getAppleChipName(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sysctl", "-n", "machdep.cpu.brand_string")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		log.Debug().Err(err).Msg("failed to get chip name")
		return "Apple Silicon"
	}

	chipName := strings.TrimSpace(stdout.String())
	if chipName == "" {
		return "Apple Silicon"
	}
	return chipName
}

// checkCUDAAvailable checks if NVIDIA CUDA is available.
func checkCUDAAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		// Also check for device file on Linux
		if _, err := os.Stat("/dev/nvidia0"); err == nil {
			return true
		}
		return false
	}

	return strings.TrimSpace(stdout.String()) != ""
}

// IsAppleSilicon is a quick check for Apple Silicon without full detection.
func IsAppleSilicon() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

// GetSystemRAM returns the total system RAM in bytes.
func GetSystemRAM(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	switch runtime.GOOS {
	case "darwin":
		cmd := exec.CommandContext(ctx, "sysctl", "-n", "hw.memsize")
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		if err := cmd.Run(); err != nil {
			return 0, fmt.Errorf("sysctl hw.memsize: %w", err)
		}
		var memBytes int64
		_, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%d", &memBytes)
		if err != nil {
			return 0, fmt.Errorf("parse memsize: %w", err)
		}
		return memBytes, nil

	case "linux":
		data, err := os.ReadFile("/proc/meminfo")
		if err != nil {
			return 0, fmt.Errorf("read meminfo: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemTotal:") {
				var kbytes int64
				_, err := fmt.Sscanf(line, "MemTotal: %d kB", &kbytes)
				if err != nil {
					return 0, fmt.Errorf("parse meminfo: %w", err)
				}
				return kbytes * 1024, nil
			}
		}
		return 0, fmt.Errorf("MemTotal not found in /proc/meminfo")

	default:
		return 0, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

// GetMaxModelSizeGB returns the maximum recommended model size based on
// system RAM. Models should stay under 70% of physical memory to leave room
// for the OS and other processes.
func GetMaxModelSizeGB(totalRAMBytes int64) float64 {
	const GB = 1024 * 1024 * 1024
	ramGB := float64(totalRAMBytes) / float64(GB)
	return ramGB * 0.70
}

// QuickDetect performs a minimal detection for common use cases.
// Use Detect() for full platform information.
func QuickDetect() Platform {
	switch runtime.GOOS {
	case "darwin":
		if IsAppleSilicon() {
			return PlatformAppleSilicon
		}
		return PlatformMacOSIntel
	case "linux":
		if _, err := exec.LookPath("nvidia-smi"); err == nil {
			return PlatformLinuxCUDA
		}
		return PlatformLinuxCPU
	default:
		return PlatformUnknown
	}
}

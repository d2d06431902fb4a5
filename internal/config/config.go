package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/cortex-router/internal/catalog"
	"github.com/normanking/cortex-router/internal/slots"
)

// Config holds all configuration for the cortex-router daemon.
// It is loaded from ~/.cortex-router/config.yaml and can be overridden by
// environment variables.
type Config struct {
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
	Slots      SlotsConfig      `mapstructure:"slots" yaml:"slots"`
	Routing    RoutingConfig    `mapstructure:"routing" yaml:"routing"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`

	// DataDir holds the preferences database and logs.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// Models is the local model registry used when no backend registry is
	// wired in.
	Models []ModelConfig `mapstructure:"models" yaml:"models"`
}

// ClassifierConfig contains configuration for the remote query classifier.
type ClassifierConfig struct {
	// Endpoint is the classification URL. Empty disables the remote tier
	// entirely; queries then go straight to the local rules.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// TimeoutMs is the per-request classification timeout in milliseconds
	TimeoutMs int `mapstructure:"timeout_ms" yaml:"timeout_ms"`
}

// Timeout returns the classification timeout as a duration.
func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// MonitorConfig contains configuration for the resource monitor.
type MonitorConfig struct {
	// IntervalSec is the poll interval in seconds
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// Interval returns the poll interval as a duration.
func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// SlotsConfig contains the user preferences guarding hot slot mutations.
type SlotsConfig struct {
	// AskBeforeUnpinning makes removal from a pinned slot fail so the UI
	// can confirm with the user first
	AskBeforeUnpinning bool `mapstructure:"ask_before_unpinning" yaml:"ask_before_unpinning"`
	// ImmutableModels refuses to overwrite an occupied slot
	ImmutableModels bool `mapstructure:"immutable_models" yaml:"immutable_models"`
}

// ToPolicy converts SlotsConfig to slots.Policy for the pool.
func (c SlotsConfig) ToPolicy() slots.Policy {
	return slots.Policy{
		AskBeforeUnpinning: c.AskBeforeUnpinning,
		ImmutableModels:    c.ImmutableModels,
	}
}

// RoutingConfig contains configuration for the decision engine.
type RoutingConfig struct {
	// Orchestrator is the identifier stamped on every decision
	Orchestrator string `mapstructure:"orchestrator" yaml:"orchestrator"`
	// SafeFallbackModel is reported to the caller when no local model can
	// serve a query
	SafeFallbackModel string `mapstructure:"safe_fallback_model" yaml:"safe_fallback_model"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// ModelConfig describes one locally available model.
type ModelConfig struct {
	ID   string `mapstructure:"id" yaml:"id"`
	Name string `mapstructure:"name" yaml:"name"`

	// MemoryGB is the estimated resident footprint. Zero means unknown.
	MemoryGB float64 `mapstructure:"memory_gb" yaml:"memory_gb,omitempty"`

	// Capabilities lists the model's declared strengths: "data", "code",
	// "reasoning".
	Capabilities []string `mapstructure:"capabilities" yaml:"capabilities,omitempty"`

	// Disabled excludes the model from routing without removing it from
	// the config.
	Disabled bool `mapstructure:"disabled" yaml:"disabled,omitempty"`
}

// ToCatalog converts the configured model list into registry entries.
func (c *Config) ToCatalog() []catalog.AvailableModel {
	out := make([]catalog.AvailableModel, 0, len(c.Models))
	for _, m := range c.Models {
		am := catalog.AvailableModel{
			ID:          m.ID,
			DisplayName: m.Name,
			Healthy:     !m.Disabled,
		}
		if am.DisplayName == "" {
			am.DisplayName = m.ID
		}
		if m.MemoryGB > 0 {
			am.MemoryGB = catalog.GB(m.MemoryGB)
		}
		for _, cap := range m.Capabilities {
			switch strings.ToLower(cap) {
			case "data":
				am.Capabilities.DataAnalysis = true
			case "code":
				am.Capabilities.CodeGeneration = true
			case "reasoning":
				am.Capabilities.Reasoning = true
			}
		}
		out = append(out, am)
	}
	return out
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".cortex-router")

	return &Config{
		Classifier: ClassifierConfig{
			Endpoint:  "http://127.0.0.1:8080/v1/classify",
			TimeoutMs: 2000,
		},
		Monitor: MonitorConfig{
			IntervalSec: 5,
		},
		Slots: SlotsConfig{
			AskBeforeUnpinning: true,
			ImmutableModels:    false,
		},
		Routing: RoutingConfig{
			Orchestrator:      "cortex-router",
			SafeFallbackModel: "claude-sonnet-4-20250514",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "cortex-router.log"),
		},
		DataDir: dataDir,
		Models: []ModelConfig{
			{
				ID:           "qwen2.5-coder:14b",
				Name:         "Qwen 2.5 Coder 14B",
				MemoryGB:     9.0,
				Capabilities: []string{"code"},
			},
			{
				ID:           "sqlcoder:7b",
				Name:         "SQLCoder 7B",
				MemoryGB:     4.5,
				Capabilities: []string{"data"},
			},
			{
				ID:           "deepseek-r1:8b",
				Name:         "DeepSeek R1 8B",
				MemoryGB:     5.5,
				Capabilities: []string{"reasoning"},
			},
			{
				ID:       "llama3.2:3b",
				Name:     "Llama 3.2 3B",
				MemoryGB: 2.0,
			},
		},
	}
}

// Load reads configuration from the default location
// (~/.cortex-router/config.yaml) and merges with environment variables.
// If no config file exists, it creates one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".cortex-router", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable environment variable overrides
	// Example: CORTEX_ROUTER_CLASSIFIER_ENDPOINT
	v.SetEnvPrefix("CORTEX_ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in missing values so a sparse hand-edited config file
// still produces a working daemon.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Classifier.TimeoutMs <= 0 {
		c.Classifier.TimeoutMs = defaults.Classifier.TimeoutMs
	}
	if c.Monitor.IntervalSec <= 0 {
		c.Monitor.IntervalSec = defaults.Monitor.IntervalSec
	}
	if c.Routing.Orchestrator == "" {
		c.Routing.Orchestrator = defaults.Routing.Orchestrator
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".cortex-router", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Logging.File),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Classifier.TimeoutMs < 0 {
		return fmt.Errorf("classifier.timeout_ms cannot be negative")
	}

	if c.Monitor.IntervalSec < 1 {
		return fmt.Errorf("monitor.interval_sec must be at least 1")
	}

	if c.Routing.Orchestrator == "" {
		return fmt.Errorf("routing.orchestrator cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	seen := map[string]bool{}
	validCaps := map[string]bool{"data": true, "code": true, "reasoning": true}
	for _, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("model entries must have an id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate model id '%s'", m.ID)
		}
		seen[m.ID] = true
		if m.MemoryGB < 0 {
			return fmt.Errorf("model '%s': memory_gb cannot be negative", m.ID)
		}
		for _, cap := range m.Capabilities {
			if !validCaps[strings.ToLower(cap)] {
				return fmt.Errorf("model '%s': unknown capability '%s', must be one of: data, code, reasoning", m.ID, cap)
			}
		}
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

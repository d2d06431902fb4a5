package config_test

import (
	"fmt"
	"log"

	"github.com/normanking/cortex-router/internal/config"
)

// ExampleLoad demonstrates how to load configuration from the default location.
func ExampleLoad() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Classifier endpoint: %s\n", cfg.Classifier.Endpoint)
	fmt.Printf("Orchestrator: %s\n", cfg.Routing.Orchestrator)
	fmt.Printf("Models configured: %d\n", len(cfg.Models))
}

// ExampleLoadFromPath demonstrates loading config from a specific path.
func ExampleLoadFromPath() {
	cfg, err := config.LoadFromPath("/tmp/test-cortex-router/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Printf("Loaded from custom path\n")
	fmt.Printf("Poll interval: %v\n", cfg.Monitor.Interval())
}

// ExampleConfig_Save demonstrates saving configuration changes.
func ExampleConfig_Save() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Modify configuration
	cfg.Slots.ImmutableModels = true
	cfg.Logging.Level = "debug"

	// Save changes
	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}

	fmt.Println("Configuration saved successfully")
}

// ExampleConfig_Validate demonstrates configuration validation.
func ExampleConfig_Validate() {
	cfg := config.Default()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	fmt.Println("Configuration is valid")

	// Try an invalid configuration
	cfg.Logging.Level = "shouty"
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Validation error: %v\n", err)
	}
}

// ExampleConfig_ToCatalog demonstrates building the model registry from config.
func ExampleConfig_ToCatalog() {
	cfg := config.Default()

	for _, m := range cfg.ToCatalog() {
		fmt.Printf("%s healthy=%v\n", m.ID, m.Healthy)
	}
}

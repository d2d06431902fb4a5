// Package config provides configuration management for the cortex-router
// daemon.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.cortex-router/config.yaml and is
// automatically created with sensible defaults on first use. The file
// structure mirrors the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the CORTEX_ROUTER_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - CORTEX_ROUTER_CLASSIFIER_ENDPOINT=http://127.0.0.1:9090/v1/classify
//   - CORTEX_ROUTER_MONITOR_INTERVAL_SEC=10
//   - CORTEX_ROUTER_LOGGING_LEVEL=debug
//
// # Configuration Sections
//
//   - Classifier: remote query classifier endpoint and timeout
//   - Monitor: resource monitor poll interval
//   - Slots: hot slot pin and immutability preferences
//   - Routing: orchestrator identity and the safe cloud fallback model
//   - Logging: log level and output file configuration
//   - Models: the local model registry (id, footprint, capabilities)
//
// # Path Expansion
//
// The package automatically expands ~ to the user's home directory in
// all path configurations, making config files portable across systems.
//
// # Thread Safety
//
// Config instances are not thread-safe. If you need concurrent access,
// wrap the config in a sync.RWMutex or create separate instances.
package config

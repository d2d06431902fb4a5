// cortex-router is the local model-routing daemon for the Cortex suite.
// It decides which locally available model should answer a query, manages
// the four hot slots of resident models, and keeps decisions explainable.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/normanking/cortex-router/internal/analyzer"
	"github.com/normanking/cortex-router/internal/catalog"
	"github.com/normanking/cortex-router/internal/config"
	"github.com/normanking/cortex-router/internal/history"
	"github.com/normanking/cortex-router/internal/logging"
	"github.com/normanking/cortex-router/internal/platform"
	"github.com/normanking/cortex-router/internal/prefs"
	"github.com/normanking/cortex-router/internal/resources"
	"github.com/normanking/cortex-router/internal/routing"
	"github.com/normanking/cortex-router/internal/scoring"
	"github.com/normanking/cortex-router/internal/slots"
)

var version = "0.3.0"

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cortex-router",
		Short: "Cortex Router - local model routing and hot slot management",
		Long: `Cortex Router decides which locally available model should answer a
query, balancing model capability against live memory, CPU, and thermal
pressure. It manages four hot slots of memory-resident models with
user-pinnable eviction protection.

Route a query:        cortex-router route "explain this SQL query"
Inspect hot slots:    cortex-router slots list
Pin a slot:           cortex-router slots pin 2
System status:        cortex-router status`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.cortex-router/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Cortex Router v%s (%s)\n", version, platform.QuickDetect())
		},
	})

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration from --config or the default location.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) (func() error, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.Setup(logging.Config{
		Level:   level,
		File:    cfg.Logging.File,
		Console: verbose,
	})
}

// initializeEngine wires the full routing stack from config. The returned
// cleanup stops the monitor and closes the preference store and log file.
func initializeEngine() (*routing.Engine, *slots.Pool, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, nil, err
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := prefs.Open(cfg.DataDir)
	if err != nil {
		closeLog()
		return nil, nil, nil, fmt.Errorf("open preference store: %w", err)
	}

	// Persisted preferences override the config file for the slot policy.
	policy := cfg.Slots.ToPolicy()
	if v, err := store.AskBeforeUnpinning(policy.AskBeforeUnpinning); err == nil {
		policy.AskBeforeUnpinning = v
	}
	if ids, ok, err := store.ImmutableModels(); err == nil && ok {
		policy.ImmutableModels = ids
	}

	pool, err := slots.NewPool(store, policy)
	if err != nil {
		store.Close()
		closeLog()
		return nil, nil, nil, fmt.Errorf("initialize slot pool: %w", err)
	}

	decisions, err := history.Open(cfg.DataDir)
	if err != nil {
		store.Close()
		closeLog()
		return nil, nil, nil, fmt.Errorf("open decision history: %w", err)
	}

	monitor := resources.NewMonitor(resources.NewHostProbe(), cfg.Monitor.Interval())
	monitor.Start()

	var classifier analyzer.Classifier
	if cfg.Classifier.Endpoint != "" {
		classifier = analyzer.NewHTTPClassifier(cfg.Classifier.Endpoint, cfg.Classifier.Timeout())
	}

	engine := routing.NewEngine(routing.Options{
		Analyzer:          analyzer.New(classifier),
		Scorer:            scoring.New(),
		Monitor:           monitor,
		Pool:              pool,
		Registry:          catalog.NewStaticRegistry(cfg.ToCatalog()),
		Orchestrator:      cfg.Routing.Orchestrator,
		SafeFallbackModel: cfg.Routing.SafeFallbackModel,
		Sink:              decisions,
	})

	cleanup := func() {
		monitor.Stop()
		decisions.Close()
		store.Close()
		closeLog()
	}
	return engine, pool, cleanup, nil
}

func routeCmd() *cobra.Command {
	var (
		historyTokens int
		hasVault      bool
		hasData       bool
		hasKanban     bool
		hasWorkflow   bool
		hasTeam       bool
		hasCode       bool
	)

	cmd := &cobra.Command{
		Use:   "route [query]",
		Short: "Produce a routing decision for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			engine, _, cleanup, err := initializeEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			decision, err := engine.Route(context.Background(), query, routing.ContextBundle{
				HistoryTokens:     historyTokens,
				VaultAvailable:    hasVault,
				DataAvailable:     hasData,
				KanbanAvailable:   hasKanban,
				WorkflowAvailable: hasWorkflow,
				TeamAvailable:     hasTeam,
				CodeAvailable:     hasCode,
			})
			if err != nil {
				var notAvail *routing.ModelNotAvailableError
				if errors.As(err, &notAvail) && notAvail.SafeFallbackModelID != "" {
					fmt.Printf("No local model available: %s\n", notAvail.Reason)
					fmt.Printf("Safe fallback: %s\n", notAvail.SafeFallbackModelID)
					return nil
				}
				return err
			}

			out, err := json.MarshalIndent(decision, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&historyTokens, "history-tokens", 0, "conversation history size in tokens")
	cmd.Flags().BoolVar(&hasVault, "vault", false, "vault context is available")
	cmd.Flags().BoolVar(&hasData, "data", false, "data context is available")
	cmd.Flags().BoolVar(&hasKanban, "kanban", false, "kanban context is available")
	cmd.Flags().BoolVar(&hasWorkflow, "workflow", false, "workflow context is available")
	cmd.Flags().BoolVar(&hasTeam, "team", false, "team context is available")
	cmd.Flags().BoolVar(&hasCode, "code", false, "code context is available")

	return cmd
}

func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain [query]",
		Short: "Show how each model scores for a query, without routing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			engine, _, cleanup, err := initializeEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			analysis, ranked, err := engine.Explain(context.Background(), query)
			if err != nil {
				var notAvail *routing.ModelNotAvailableError
				if errors.As(err, &notAvail) && notAvail.SafeFallbackModelID != "" {
					fmt.Printf("No local model available: %s\n", notAvail.Reason)
					fmt.Printf("Safe fallback: %s\n", notAvail.SafeFallbackModelID)
					return nil
				}
				return err
			}

			specialty := "none"
			if analysis.Specialty != nil {
				specialty = string(*analysis.Specialty)
			}
			fmt.Printf("Analysis: complexity=%s specialty=%s confidence=%.2f\n", analysis.Complexity, specialty, analysis.Confidence)
			fmt.Printf("Reasoning: %s\n\n", analysis.Reasoning)

			for i, sm := range ranked {
				fmt.Printf("%d. %-24s %.2f\n", i+1, sm.Model.ID, sm.Score)
				for _, f := range sm.Factors {
					fmt.Printf("   %+.2f  %-20s %s\n", f.Delta, f.Name, f.Detail)
				}
			}
			return nil
		},
	}
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage hot slots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List hot slot state",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pool, cleanup, err := initializeEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			for _, s := range pool.Snapshot() {
				status := "empty"
				if s.Occupied() {
					status = s.ModelID
					if s.LoadedAt != nil {
						status += " (loaded " + s.LoadedAt.Format("15:04:05") + ")"
					}
				}
				pin := " "
				if s.Pinned {
					pin = "*"
				}
				fmt.Printf("slot %d %s %s\n", s.Number, pin, status)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pin [slot]",
		Short: "Protect a slot from automatic eviction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSlot(args[0], func(pool *slots.Pool, n int) error {
				if err := pool.Pin(n); err != nil {
					return err
				}
				fmt.Printf("Slot %d pinned\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unpin [slot]",
		Short: "Release a slot for automatic eviction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSlot(args[0], func(pool *slots.Pool, n int) error {
				if err := pool.Unpin(n); err != nil {
					return err
				}
				fmt.Printf("Slot %d unpinned\n", n)
				return nil
			})
		},
	})

	var force bool
	clearCmd := &cobra.Command{
		Use:   "clear [slot]",
		Short: "Remove the model from a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSlot(args[0], func(pool *slots.Pool, n int) error {
				var err error
				if force {
					err = pool.ForceRemove(n)
				} else {
					err = pool.Remove(n)
				}
				if err != nil {
					var pinned *slots.SlotPinnedError
					if errors.As(err, &pinned) {
						return fmt.Errorf("slot %d is pinned (model %s); use --force to override", pinned.Slot, pinned.ModelID)
					}
					return err
				}
				fmt.Printf("Slot %d cleared\n", n)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&force, "force", false, "clear even when pinned")
	cmd.AddCommand(clearCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "guard [on|off]",
		Short: "Show or set the ask-before-unpinning guard",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrefs(func(cfg *config.Config, store *prefs.Store) error {
				if len(args) == 0 {
					v, err := store.AskBeforeUnpinning(cfg.Slots.AskBeforeUnpinning)
					if err != nil {
						return err
					}
					fmt.Printf("ask-before-unpinning: %v\n", v)
					return nil
				}
				var v bool
				switch args[0] {
				case "on":
					v = true
				case "off":
					v = false
				default:
					return fmt.Errorf("invalid value '%s', expected on or off", args[0])
				}
				if err := store.SetAskBeforeUnpinning(v); err != nil {
					return err
				}
				fmt.Printf("ask-before-unpinning: %v\n", v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "protect [model-id]",
		Short: "Add a model to the immutable list (its slot is never reused)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrefs(func(cfg *config.Config, store *prefs.Store) error {
				ids, ok, err := store.ImmutableModels()
				if err != nil {
					return err
				}
				if !ok {
					ids = cfg.Slots.ImmutableModels
				}
				for _, id := range ids {
					if id == args[0] {
						fmt.Printf("%s is already protected\n", args[0])
						return nil
					}
				}
				if err := store.SetImmutableModels(append(ids, args[0])); err != nil {
					return err
				}
				fmt.Printf("%s protected\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unprotect [model-id]",
		Short: "Remove a model from the immutable list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPrefs(func(cfg *config.Config, store *prefs.Store) error {
				ids, ok, err := store.ImmutableModels()
				if err != nil {
					return err
				}
				if !ok {
					ids = cfg.Slots.ImmutableModels
				}
				kept := ids[:0]
				for _, id := range ids {
					if id != args[0] {
						kept = append(kept, id)
					}
				}
				if err := store.SetImmutableModels(kept); err != nil {
					return err
				}
				fmt.Printf("%s unprotected\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

// withPrefs opens the preference store for commands that only touch
// persisted policy, without starting the monitor or the engine.
func withPrefs(fn func(*config.Config, *prefs.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	store, err := prefs.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open preference store: %w", err)
	}
	defer store.Close()

	return fn(cfg, store)
}

// withSlot parses the slot argument and runs fn against a live pool.
func withSlot(arg string, fn func(*slots.Pool, int) error) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid slot number '%s'", arg)
	}

	_, pool, cleanup, err := initializeEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(pool, n)
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent routing decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			store, err := history.Open(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open decision history: %w", err)
			}
			defer store.Close()

			decisions, err := store.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(decisions) == 0 {
				fmt.Println("No routing decisions recorded yet.")
				return nil
			}

			for _, d := range decisions {
				slot := "-"
				if d.RequiresHotSlot {
					slot = "load"
					if d.EvictionCandidateSlot != nil {
						slot = fmt.Sprintf("evict %d", *d.EvictionCandidateSlot)
					}
				}
				fmt.Printf("%s  %-22s conf=%.2f  slot=%-8s %s\n",
					d.Timestamp.Local().Format("2006-01-02 15:04:05"),
					d.ModelID, d.Confidence, slot, d.Reasoning)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of decisions to show")
	return cmd
}

func statusCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show routing engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, cleanup, err := initializeEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			status := engine.Status()
			if refresh {
				platform.GetDetector().InvalidateCache()
			}
			if info, err := platform.GetDetector().Detect(context.Background()); err == nil {
				status["platform"] = string(info.Platform)
				status["max_model_gb"] = fmt.Sprintf("%.1f", info.MaxModelGB)
			}

			keys := make([]string, 0, len(status))
			for k := range status {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Println("Cortex Router Status:")
			fmt.Println("─────────────────────")
			for _, k := range keys {
				fmt.Printf("%-20s %v\n", k, status[k])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-detect the platform instead of using the cached result")
	return cmd
}

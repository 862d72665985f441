// Package cli provides the reportflow command line interface.
//
// Commands:
//
//	reportflow run       acquire enabled modules, then run enabled report units
//	reportflow process   run report units over existing downloads only
//	reportflow units     list registered report units and their dependencies
//	reportflow status    show configuration and storage state
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"reportflow/internal/biapi"
	"reportflow/internal/download"
	"reportflow/internal/exportjob"
	"reportflow/internal/metrics"
	"reportflow/internal/orchestrator"
	"reportflow/internal/params"
	"reportflow/internal/registry"
	"reportflow/internal/reports"
	"reportflow/internal/scheduler"
	"reportflow/internal/store"
	"reportflow/pkg/types"
)

var log = slog.Default()

var configFile string

// BuildCLI assembles the command tree.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reportflow",
		Short: "reportflow: automated BI export acquisition and report processing",
		Long: `reportflow extracts business data from the remote BI platform and
transforms the raw extracts into consolidated report artifacts:
- asynchronous export jobs with polling and bounded retries
- verified, atomic artifact downloads
- dependency-ordered report units with per-unit failure isolation`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildProcessCommand())
	rootCmd.AddCommand(buildUnitsCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Acquire enabled modules and run enabled report units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(false)
		},
	}
}

func buildProcessCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run report units over existing downloads, without acquiring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(true)
		},
	}
}

// acquisitionResult is one module's acquisition outcome within a run.
type acquisitionResult struct {
	Producer string
	Artifact types.Artifact
	Err      error
}

func runPipeline(processOnly bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	layout := store.Layout{Root: cfg.Storage.Root}
	if err := layout.Ensure(); err != nil {
		return fmt.Errorf("failed to prepare storage: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	artifacts := store.New()

	// Existing downloads seed the store first; anything acquired in this
	// run supersedes them (last-writer-wins).
	if err := artifacts.SeedFromDir(layout.DownloadsDir()); err != nil {
		return fmt.Errorf("failed to scan downloads: %w", err)
	}

	reg := buildRegistry(cfg, layout)

	var acquisitions []acquisitionResult
	if !processOnly {
		acquisitions = acquireModules(ctx, cfg, layout, artifacts, collector)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	sched := scheduler.New(reg, collector)
	report, err := sched.Run(ctx, cfg.Reports.Enabled, artifacts)
	if err != nil {
		return fmt.Errorf("report run aborted: %w", err)
	}

	printSummary(acquisitions, report)
	return nil
}

// buildRegistry registers every acquisition module as a source and every
// built-in unit, once, in a fixed order.
func buildRegistry(cfg *Config, layout store.Layout) *registry.Registry {
	reg := registry.New()
	for _, name := range sortedModuleNames(cfg) {
		reg.AddSource(name)
	}
	for _, unit := range reports.Builtin(layout.ProcessedDir()) {
		if err := reg.Register(unit); err != nil {
			// Built-in units are a static table; a duplicate is a programming error.
			panic(err)
		}
	}
	return reg
}

// acquireModules runs every enabled acquisition. A failed acquisition is
// recorded and leaves its artifact absent; it never aborts the others.
func acquireModules(ctx context.Context, cfg *Config, layout store.Layout, artifacts *store.Store, collector *metrics.Collector) []acquisitionResult {
	api := biapi.NewClient(cfg.API.BaseURL, cfg.API.Headers)
	jobs := exportjob.NewClientWithRetry(api, cfg.Export.CheckRetries, cfg.checkBackoff())
	files := download.NewWithRetry(api, cfg.Export.DownloadRetries, cfg.downloadDelay())
	orch := orchestrator.New(jobs, files, artifacts, layout, orchestrator.Config{
		PollInterval: cfg.pollInterval(),
		MaxWait:      cfg.maxWait(),
	}, collector)

	var results []acquisitionResult
	for _, name := range sortedModuleNames(cfg) {
		if ctx.Err() != nil {
			break
		}
		moduleCfg := cfg.Modules[name]
		if !moduleCfg.Enabled {
			continue
		}

		payload, err := params.Build(params.Spec{
			Preset:    moduleCfg.Preset,
			Overrides: moduleCfg.Overrides,
			Custom:    moduleCfg.Custom,
		})
		if err != nil {
			log.Error("module parameter spec invalid", "module", name, "error", err)
			results = append(results, acquisitionResult{Producer: name, Err: err})
			continue
		}

		reportType := moduleCfg.ReportType
		if reportType == "" {
			reportType = name
		}

		artifact, err := orch.Acquire(ctx, types.ExportRequest{
			ReportType: reportType,
			Producer:   name,
			Params:     payload,
		})
		if err != nil {
			log.Error("acquisition failed", "module", name, "error", err)
			results = append(results, acquisitionResult{Producer: name, Err: err})
			continue
		}

		results = append(results, acquisitionResult{Producer: name, Artifact: artifact})
		if cfg.Storage.AutoCleanup {
			if deleted, err := store.CleanupProducerFiles(layout.DownloadsDir(), name, cfg.Storage.KeepLatest); err == nil && deleted > 0 {
				log.Info("cleaned superseded downloads", "module", name, "deleted", deleted)
			}
		}
	}
	return results
}

func sortedModuleNames(cfg *Config) []string {
	names := make([]string, 0, len(cfg.Modules))
	for name := range cfg.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// printSummary reports a definite outcome for every acquisition and every
// executed report unit. Nothing is silently omitted.
func printSummary(acquisitions []acquisitionResult, report *scheduler.ExecutionReport) {
	fmt.Println("=== acquisition summary ===")
	if len(acquisitions) == 0 {
		fmt.Println("  (no modules acquired)")
	}
	for _, a := range acquisitions {
		if a.Err != nil {
			fmt.Printf("  [failed]    %-24s %v\n", a.Producer, a.Err)
		} else {
			fmt.Printf("  [succeeded] %-24s %s\n", a.Producer, a.Artifact.Path)
		}
	}

	fmt.Println("=== report summary ===")
	if len(report.Results) == 0 {
		fmt.Println("  (no units executed)")
	}
	for _, r := range report.Results {
		switch r.Status {
		case scheduler.UnitSucceeded:
			fmt.Printf("  [succeeded] %-24s %s\n", r.Name, r.Artifact.Path)
		case scheduler.UnitFailed:
			fmt.Printf("  [failed]    %-24s %s\n", r.Name, r.Reason)
		case scheduler.UnitSkipped:
			fmt.Printf("  [skipped]   %-24s blocked on %s\n", r.Name, r.Blocking)
		}
	}

	succeeded, failed, skipped := report.Counts()
	fmt.Printf("units: %d succeeded, %d failed, %d skipped\n", succeeded, failed, skipped)
}

func buildUnitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List registered report units and their dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			layout := store.Layout{Root: cfg.Storage.Root}
			reg := buildRegistry(cfg, layout)

			for _, unit := range reg.Units() {
				fmt.Printf("%s\n", unit.Name)
				fmt.Printf("  description:  %s\n", unit.Description)
				if len(unit.Dependencies) > 0 {
					fmt.Printf("  dependencies: %v\n", unit.Dependencies)
				}
			}
			return nil
		},
	}
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and storage state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("configuration:")
	fmt.Printf("  config file:   %s\n", configFile)
	fmt.Printf("  api base url:  %s\n", cfg.API.BaseURL)
	fmt.Printf("  poll interval: %s\n", cfg.pollInterval())
	fmt.Printf("  max wait:      %s\n", cfg.maxWait())

	layout := store.Layout{Root: cfg.Storage.Root}
	fmt.Println("storage:")
	fmt.Printf("  downloads: %s\n", layout.DownloadsDir())
	fmt.Printf("  processed: %s\n", layout.ProcessedDir())

	artifacts := store.New()
	if err := artifacts.SeedFromDir(layout.DownloadsDir()); err != nil {
		return err
	}
	fmt.Println("latest downloads:")
	if artifacts.Len() == 0 {
		fmt.Println("  (none)")
	}
	for _, name := range artifacts.Names() {
		artifact, _ := artifacts.Get(name)
		fmt.Printf("  %-24s %s\n", name, artifact.Path)
	}

	fmt.Println("modules:")
	for _, name := range sortedModuleNames(cfg) {
		state := "disabled"
		if cfg.Modules[name].Enabled {
			state = "enabled"
		}
		fmt.Printf("  %-24s %s\n", name, state)
	}
	return nil
}

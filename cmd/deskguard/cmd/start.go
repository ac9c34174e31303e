package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Desk-Guard/Deskguard/internal/adapter/inbound/admin"
	deskhttp "github.com/Desk-Guard/Deskguard/internal/adapter/inbound/http"
	auditfile "github.com/Desk-Guard/Deskguard/internal/adapter/outbound/audit"
	celeval "github.com/Desk-Guard/Deskguard/internal/adapter/outbound/cel"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/memory"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/provider"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/sqlite"
	"github.com/Desk-Guard/Deskguard/internal/adapter/outbound/state"
	"github.com/Desk-Guard/Deskguard/internal/config"
	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/auth"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
	"github.com/Desk-Guard/Deskguard/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the policy engine server",
	Long: `Start the Deskguard policy engine server.

The server persists templates and versions to the configured storage
backend (memory with JSON snapshots, or sqlite), writes an append-only
audit trail, and serves the JSON API.

Examples:
  # Start with config file settings
  deskguard start

  # Start with a specific config file
  deskguard --config /path/to/deskguard.yaml start

  # Development mode (debug logging, dev API key)
  deskguard start --dev`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, dev API key)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("deskguard stopped")
	return nil
}

// run wires all components together and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode enabled; do not use in production")
	}

	// Storage backend: templates + versions, and the optional persister
	// that snapshots the memory stores to disk.
	var (
		templates policy.TemplateStore
		versions  policy.VersionStore
		persister *service.StatePersister
		sqlStore  *sqlite.Store
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		var err error
		sqlStore, err = sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		defer func() { _ = sqlStore.Close() }()
		templates = sqlStore
		versions = sqlStore
		logger.Info("storage ready", "backend", "sqlite", "path", cfg.Storage.SQLitePath)

	default: // memory
		memTemplates := memory.NewTemplateStore()
		memVersions := memory.NewVersionStore()
		stateStore := state.NewFileStateStore(cfg.Storage.StatePath, logger)
		persister = service.NewStatePersister(stateStore, memTemplates, memVersions, logger)
		if err := persister.Restore(ctx); err != nil {
			return fmt.Errorf("restore state: %w", err)
		}
		templates = memTemplates
		versions = memVersions
		logger.Info("storage ready", "backend", "memory", "state_path", cfg.Storage.StatePath)
	}

	// Metrics registry, created before the audit store so appends count.
	registry := prometheus.NewRegistry()
	metrics := deskhttp.NewMetrics(registry)

	// Audit trail: synchronous, append-only. A failed append aborts the
	// calling operation, so this must be up before any service.
	auditStore, err := createAuditStore(cfg, sqlStore, logger)
	if err != nil {
		return fmt.Errorf("create audit store: %w", err)
	}
	if cfg.Audit.Backend != "sqlite" {
		// The sqlite audit backend shares the storage handle, which is
		// already closed above.
		defer func() { _ = auditStore.Close() }()
	}
	instrumented := auditfile.NewInstrumentedStore(auditStore, metrics.AuditAppendsTotal)

	// API keys.
	keyring, err := buildKeyring(cfg)
	if err != nil {
		return fmt.Errorf("build keyring: %w", err)
	}
	if keyring.Empty() {
		logger.Warn("no API keys configured; only localhost requests are accepted")
	}

	// Sample provider for simulations.
	sampleProvider := buildProvider(cfg, logger)

	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return fmt.Errorf("create filter evaluator: %w", err)
	}

	// Services.
	templateService := service.NewTemplateService(templates, instrumented, persister, logger)
	lifecycleService := service.NewLifecycleService(templates, versions, instrumented, persister, logger)
	resolverService := service.NewResolverService(templates, versions, logger)
	simulationService := service.NewSimulationService(templates, versions, sampleProvider, evaluator, instrumented, logger)
	auditService := service.NewAuditService(instrumented, logger)

	// Seed templates on first boot.
	if cfg.SeedFile != "" {
		if err := applySeeds(ctx, cfg.SeedFile, templateService, lifecycleService, logger); err != nil {
			return fmt.Errorf("apply seed templates: %w", err)
		}
	}

	apiHandler := admin.NewAPIHandler(
		admin.WithTemplateService(templateService),
		admin.WithLifecycleService(lifecycleService),
		admin.WithResolverService(resolverService),
		admin.WithSimulationService(simulationService),
		admin.WithAuditService(auditService),
		admin.WithKeyring(keyring),
		admin.WithMetrics(metrics),
		admin.WithAPILogger(logger),
		admin.WithBuildInfo(&admin.BuildInfo{
			Version: Version,
			Commit:  Commit,
			Date:    BuildDate,
		}),
	)

	serverOpts := []deskhttp.ServerOption{
		deskhttp.WithHealthChecker(deskhttp.NewHealthChecker(templates, instrumented, Version)),
		deskhttp.WithServerMetrics(registry, metrics),
		deskhttp.WithServerLogger(logger),
	}

	if cfg.Tracing.Enabled {
		tp, err := deskhttp.NewTracerProvider("deskguard", Version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deskhttp.ShutdownTracerProvider(shutdownCtx, tp); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
		serverOpts = append(serverOpts, deskhttp.WithServerTracing(tp))
		logger.Info("tracing enabled", "exporter", "stdout")
	}

	server := deskhttp.NewServer(cfg.Server.HTTPAddr, apiHandler.Routes(), serverOpts...)
	return server.Run(ctx)
}

// createAuditStore builds the configured audit backend.
func createAuditStore(cfg *config.Config, sqlStore *sqlite.Store, logger *slog.Logger) (audit.Store, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		// Validation guarantees sqlStore is non-nil here.
		logger.Info("audit trail ready", "backend", "sqlite")
		return sqlStore, nil
	case "memory":
		logger.Warn("audit trail is in-memory; entries are lost on restart")
		return memory.NewAuditStore(), nil
	default: // file
		fs, err := auditfile.NewFileStore(auditfile.Config{
			Dir:           cfg.Audit.Dir,
			RetentionDays: cfg.Audit.RetentionDays,
			MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("audit trail ready", "backend", "file", "dir", cfg.Audit.Dir)
		return fs, nil
	}
}

// buildKeyring converts configured key hashes into a keyring.
func buildKeyring(cfg *config.Config) (*auth.Keyring, error) {
	entries := make([]auth.KeyEntry, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		entries = append(entries, auth.KeyEntry{Label: k.Label, Hash: k.KeyHash})
	}
	return auth.NewKeyring(entries)
}

// buildProvider selects the sample provider for simulations. Without an
// endpoint, simulations run against an empty sample set.
func buildProvider(cfg *config.Config, logger *slog.Logger) sample.Provider {
	if cfg.Provider.Endpoint == "" {
		logger.Warn("no sample provider configured; simulations see empty samples")
		return provider.NewStaticProvider(nil)
	}

	opts := []provider.HTTPProviderOption{}
	if cfg.Provider.AuthToken != "" {
		opts = append(opts, provider.WithAuthToken(cfg.Provider.AuthToken))
	}
	if d, err := time.ParseDuration(cfg.Provider.Timeout); err == nil {
		opts = append(opts, provider.WithTimeout(d))
	}
	logger.Info("sample provider configured", "endpoint", cfg.Provider.Endpoint)
	return provider.NewHTTPProvider(cfg.Provider.Endpoint, opts...)
}

// applySeeds creates seed templates on an empty store. A non-empty
// store means seeding already happened (or the operator created
// templates), so the file is ignored.
func applySeeds(
	ctx context.Context,
	path string,
	templateService *service.TemplateService,
	lifecycleService *service.LifecycleService,
	logger *slog.Logger,
) error {
	existing, err := templateService.List(ctx, policy.TemplateFilter{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Debug("seed file skipped; templates already exist", "count", len(existing))
		return nil
	}

	seeds, err := config.LoadSeedFile(path)
	if err != nil {
		return err
	}

	const actor = "seed"
	for i, s := range seeds {
		tpl, err := templateService.Create(ctx, service.CreateTemplateInput{
			Domain:      policy.Domain(s.Domain),
			Name:        s.Name,
			Description: s.Description,
			ScopeType:   policy.ScopeType(s.ScopeType),
			ScopeValue:  s.ScopeValue,
		}, actor)
		if err != nil {
			return fmt.Errorf("seed template %d (%s): %w", i, s.Name, err)
		}

		if s.Config == nil {
			continue
		}
		v, err := lifecycleService.CreateVersion(ctx, tpl.ID, s.Config, actor)
		if err != nil {
			return fmt.Errorf("seed template %d (%s) config: %w", i, s.Name, err)
		}
		if s.Publish {
			if _, err := lifecycleService.Publish(ctx, v.ID, actor); err != nil {
				return fmt.Errorf("seed template %d (%s) publish: %w", i, s.Name, err)
			}
		}
	}

	logger.Info("seed templates applied", "file", path, "templates", len(seeds))
	return nil
}

// parseLogLevel converts a config log level string to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/timberwatch/timberwatch/internal/classify"
	"github.com/timberwatch/timberwatch/internal/config"
	"github.com/timberwatch/timberwatch/internal/database"
	"github.com/timberwatch/timberwatch/internal/events"
	"github.com/timberwatch/timberwatch/internal/log"
	"github.com/timberwatch/timberwatch/internal/metrics"
	"github.com/timberwatch/timberwatch/internal/netwatch"
	"github.com/timberwatch/timberwatch/internal/pipeline"
	"github.com/timberwatch/timberwatch/internal/radio"
	"github.com/timberwatch/timberwatch/internal/reassembly"
	"github.com/timberwatch/timberwatch/internal/syncer"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the hub: ingest, classify, and sync detections",
		Long: `Run starts the hub's three workers: radio intake, ingestion with
classification, and the background sync scheduler.

The hub keeps working through uplink outages: detections that could not
reach an authoritative backend are queued locally and drained once
connectivity returns.

Examples:
  # Run against the simulated radio with on-device classification
  timberwatch run --simulate --mode local-only

  # Full cascade with both cloud backends
  timberwatch run --simulate \
    --heuristic-url https://classify.example.com/fast \
    --authoritative-url https://classify.example.com/verify \
    --api-key "$TIMBERWATCH_API_KEY"

  # Expose prometheus metrics
  timberwatch run --simulate --mode local-only --metrics-addr :9090

Configuration file (.timberwatch.yml) example:
  heuristic_url: https://classify.example.com/fast
  authoritative_url: https://classify.example.com/verify
  api_key: "..."
  classify_mode: cloud-verify
  sync_interval: 30s`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .timberwatch.yml in current or XDG config directory)")
	cmd.Flags().StringP("mode", "m", config.DefaultClassifyMode,
		"Classification mode: cloud-fast, cloud-verify, local-only, or auto")
	cmd.Flags().String("heuristic-url", "",
		"Cloud heuristic backend endpoint")
	cmd.Flags().String("authoritative-url", "",
		"Cloud authoritative backend endpoint")
	cmd.Flags().String("api-key", "",
		"Bearer token for the cloud backends")
	cmd.Flags().StringP("data-dir", "d", "",
		"Directory for the database and saved rasters (default: XDG data directory)")
	cmd.Flags().String("metrics-addr", "",
		"Serve prometheus metrics on this address (e.g. :9090); disabled when empty")
	cmd.Flags().BoolP("simulate", "s", false,
		"Use the simulated radio source instead of hardware")
	cmd.Flags().Duration("session-timeout", config.DefaultSessionTimeout,
		"Evict reassembly sessions older than this, counted from their START frame")
	cmd.Flags().Duration("sync-interval", config.DefaultSyncInterval,
		"Background sync scheduler wake interval")
	cmd.Flags().Int("sync-batch", config.DefaultSyncBatchSize,
		"Queue items drained per sync pass")
	cmd.Flags().Duration("backend-timeout", config.DefaultBackendTimeout,
		"Timeout for one classification backend call")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildRunConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runHub(ctx, cfg, logger)
}

// buildRunConfig creates a Config from the config file and flags.
// Flags the user set explicitly win over the file; the file wins over
// defaults.
func buildRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg.ConfigFilePath = explicit

	if path := config.FindConfigFile(explicit); path != "" {
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		file.Apply(cfg)
	} else if explicit != "" {
		return nil, fmt.Errorf("configuration file not found: %s", explicit)
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.ClassifyMode, _ = flags.GetString("mode")
	}
	if flags.Changed("heuristic-url") {
		cfg.HeuristicURL, _ = flags.GetString("heuristic-url")
	}
	if flags.Changed("authoritative-url") {
		cfg.AuthoritativeURL, _ = flags.GetString("authoritative-url")
	}
	if flags.Changed("api-key") {
		cfg.APIKey, _ = flags.GetString("api-key")
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("session-timeout") {
		cfg.SessionTimeout, _ = flags.GetDuration("session-timeout")
	}
	if flags.Changed("sync-interval") {
		cfg.SyncInterval, _ = flags.GetDuration("sync-interval")
	}
	if flags.Changed("sync-batch") {
		cfg.SyncBatchSize, _ = flags.GetInt("sync-batch")
	}
	if flags.Changed("backend-timeout") {
		cfg.BackendTimeout, _ = flags.GetDuration("backend-timeout")
	}

	cfg.Simulate, err = flags.GetBool("simulate")
	if err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// runHub wires the hub together and runs it until the context is
// cancelled.
func runHub(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mode, err := classify.ParseMode(cfg.ClassifyMode)
	if err != nil {
		return err
	}

	source, err := frameSource(cfg)
	if err != nil {
		return err
	}

	store, err := database.Open(cfg.DataDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	logger.Info("database opened", "dir", cfg.DataDir)

	monitor := netwatch.NewMonitor(
		netwatch.WithCacheTTL(cfg.NetworkCheckInterval),
		netwatch.WithLogger(logger),
	)

	router := classify.NewRouter(
		classify.NewHTTPBackend("cloud-heuristic", cfg.HeuristicURL, cfg.APIKey,
			classify.WithBackendTimeout(cfg.BackendTimeout)),
		classify.NewHTTPBackend("cloud-authoritative", cfg.AuthoritativeURL, cfg.APIKey,
			classify.WithBackendTimeout(cfg.BackendTimeout)),
		classify.NewLocalBackend(),
		classify.NewRateWindow(cfg.AuthoritativeQuota, cfg.RateWindow),
		monitor,
		classify.WithRouterLogger(logger),
	)

	var pm *metrics.PipelineMetrics
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		pm = metrics.NewPipelineMetrics(registry)
		metricsSrv = serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	sink := events.NewSlogSink(logger)
	sync := syncer.New(store, router, monitor,
		syncer.WithInterval(cfg.SyncInterval),
		syncer.WithBatchSize(cfg.SyncBatchSize),
		syncer.WithMaxRetries(cfg.SyncMaxRetries),
		syncer.WithEventSink(sink),
		syncer.WithMetrics(pm),
		syncer.WithLogger(logger),
	)
	tracker := reassembly.NewTracker(
		reassembly.WithTimeout(cfg.SessionTimeout),
		reassembly.WithThreshold(cfg.CompletionThreshold),
		reassembly.WithLogger(logger),
	)
	hub := pipeline.New(source, tracker, router, store, sync,
		pipeline.WithMode(mode),
		pipeline.WithRasterDir(cfg.RasterDir()),
		pipeline.WithTick(cfg.IngestInterval),
		pipeline.WithFrameBuffer(cfg.FrameQueueSize),
		pipeline.WithEventSink(sink),
		pipeline.WithMetrics(pm),
		pipeline.WithLogger(logger),
	)

	logger.Info("hub starting",
		"mode", cfg.ClassifyMode,
		"simulate", cfg.Simulate,
		"data_dir", cfg.DataDir,
	)

	runErr := hub.Run(ctx)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}

	stats := hub.Stats()
	logger.Info("hub stopped",
		"frames", stats.FramesReceived,
		"artifacts", stats.Artifacts,
		"classifications", stats.Classifications,
		"queued", stats.DetectionsQueued,
	)
	return runErr
}

// frameSource selects the radio source. Only the simulated source is
// built into this binary; hardware drivers plug in behind the same
// interface.
func frameSource(cfg *config.Config) (radio.FrameSource, error) {
	if cfg.Simulate {
		return radio.NewSimulatedSource(), nil
	}
	return nil, errors.New("no radio driver built into this binary; use --simulate")
}

// serveMetrics exposes the prometheus registry over HTTP in the
// background.
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homenet-labs/warden/internal/access"
	"github.com/homenet-labs/warden/internal/clock"
	"github.com/homenet-labs/warden/internal/config"
	"github.com/homenet-labs/warden/internal/directory"
	"github.com/homenet-labs/warden/internal/metrics"
	"github.com/homenet-labs/warden/internal/scheduler"
	"github.com/homenet-labs/warden/internal/storage"
	"github.com/homenet-labs/warden/internal/storage/redis"
	"github.com/homenet-labs/warden/internal/systemd"
	"github.com/homenet-labs/warden/internal/traffic"
	"github.com/homenet-labs/warden/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Warden daemon",
	Long:  `Start the Warden daemon: usage accounting, access evaluation and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Warden")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	loc, err := config.LoadLocation(cfg.Accounting.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("redis_host", cfg.Storage.Redis.Host).
		Int("redis_port", cfg.Storage.Redis.Port).
		Msg("Storage initialized")

	ctx := context.Background()

	// Initialize the household directory
	dir, err := directory.NewStatic(ctx, cfg.Family, store.Bonuses(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize directory: %w", err)
	}

	// Initialize the device activity source
	activitySource := traffic.NewCachedSource(
		traffic.NewStoreSource(store.Activity(), logger),
		cfg.Accounting.ActivityCacheSize,
		parseDuration(cfg.Accounting.ActivityCacheTTL, 30*time.Second),
	)

	clk := clock.RealClock{}

	// Initialize the usage accounting engine
	engine := usage.NewEngine(usage.Config{
		Store:       store.UsageEvents(),
		Users:       dir,
		Profiles:    dir,
		Devices:     dir,
		Traffic:     activitySource,
		Clock:       clk,
		Location:    loc,
		MinUsage:    parseDuration(cfg.Accounting.MinUsageDuration, 10*time.Minute),
		IdleTimeout: parseDuration(cfg.Accounting.IdleTimeout, 10*time.Minute),
		Logger:      logger,
	})
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("failed to load usage state: %w", err)
	}

	logger.Info().Msg("Usage engine initialized")

	// Initialize the access evaluator
	evaluator := access.NewEvaluator(access.Config{
		Devices:  dir,
		Users:    dir,
		Profiles: dir,
		Usage:    engine,
		Clock:    clk,
		Location: loc,
		Enabled:  cfg.Family.Enabled,
		Logger:   logger,
	})

	dir.AddDeviceListener(evaluator)
	dir.AddProfileListener(evaluator)
	engine.AddListener(evaluator)

	evaluator.Refresh(true)
	logger.Info().Msg("Access evaluator initialized")

	// Schedule the periodic jobs
	interval := parseDuration(cfg.Accounting.EvaluationInterval, time.Minute)
	sched := scheduler.New(clk, loc, logger)
	sched.Every("usage-accounting", interval, engine.AccountUsages)
	sched.Every("access-evaluation", interval, func() { evaluator.Refresh(false) })
	if err := sched.Daily("ledger-compaction", cfg.Accounting.CompactionTime, func() {
		if err := engine.Compact(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Ledger compaction failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule compaction: %w", err)
	}

	// Start the metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}

	logger.Info().Msg("Warden startup complete")
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Wait for shutdown or reload signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info().Msg("Reloading configuration")
			newCfg, err := config.Load(configPath)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to reload configuration, keeping current one")
				continue
			}
			if err := dir.Reload(context.Background(), newCfg.Family); err != nil {
				logger.Error().Err(err).Msg("Failed to reload directory, keeping current one")
			}
			continue
		}
		break
	}

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("Warden stopped")
	return nil
}

// openStorage opens the configured storage backend
func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis", "":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

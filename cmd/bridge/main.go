package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c-frg/ai-receptionist-bridge/internal/config"
	"github.com/c-frg/ai-receptionist-bridge/internal/metrics"
	"github.com/c-frg/ai-receptionist-bridge/internal/realtime"
	"github.com/c-frg/ai-receptionist-bridge/internal/server"
	"github.com/c-frg/ai-receptionist-bridge/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "ai-receptionist-bridge"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int64("max_concurrent_sessions", cfg.Server.MaxConcurrentSessions),
		slog.String("realtime_url", cfg.Realtime.URL),
		slog.String("realtime_model", cfg.Realtime.Model),
		slog.Int("append_interval_ms", cfg.Bridge.AppendIntervalMs),
		slog.Int("commit_interval_ms", cfg.Bridge.CommitIntervalMs),
		slog.Int("min_commit_ms", cfg.Bridge.MinCommitMs),
		slog.String("overflow_policy", cfg.Bridge.OverflowPolicy),
		slog.String("final_commit", cfg.Bridge.FinalCommit),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Every session dials its own upstream connection.
	dialer := func(ctx context.Context) (session.UpstreamConn, error) {
		return realtime.Dial(ctx, &cfg.Realtime, &cfg.Audio, logger)
	}

	sessionConfig := session.Config{
		AppendInterval:    cfg.Bridge.GetAppendInterval(),
		CommitInterval:    cfg.Bridge.GetCommitInterval(),
		MinCommit:         cfg.Bridge.GetMinCommitDuration(),
		FinalCommit:       cfg.Bridge.FinalCommit,
		PendingQueueLimit: cfg.Bridge.PendingQueueLimit,
		HeldFrameLimit:    cfg.Bridge.HeldFrameLimit,
		BufferLimitBytes:  cfg.Bridge.BufferLimitBytes,
		OverflowPolicy:    cfg.Bridge.OverflowPolicy,
		CompletionMark:    cfg.Bridge.CompletionMark,
		ErrorThreshold:    cfg.Realtime.ErrorThreshold,
	}

	sessionMgr := session.NewManager(sessionConfig, dialer, logger, appMetrics)
	logger.Info("Session manager initialized",
		slog.Duration("append_interval", sessionConfig.AppendInterval),
		slog.Duration("commit_interval", sessionConfig.CommitInterval),
		slog.Duration("min_commit", sessionConfig.MinCommit),
	)

	httpServer := server.NewServer(cfg, logger, sessionMgr, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop the HTTP server first so no new calls are accepted.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Tear down remaining sessions, flushing buffered audio per policy.
	sessionMgr.Stop()

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

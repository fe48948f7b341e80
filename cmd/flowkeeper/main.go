// ABOUTME: Entry point for flowkeeper
// ABOUTME: Runs the conversation flow orchestrator against a Matrix homeserver

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/2389/flowkeeper/internal/config"
	"github.com/2389/flowkeeper/internal/dedupe"
	"github.com/2389/flowkeeper/internal/flow"
	"github.com/2389/flowkeeper/internal/handlers"
	"github.com/2389/flowkeeper/internal/inbound"
	"github.com/2389/flowkeeper/internal/matrix"
	"github.com/2389/flowkeeper/internal/metrics"
)

const banner = `
    ╭──────────────────────────────────╮
    │                                  │
    │   ┏━╸╻  ┏━┓╻ ╻╻┏ ┏━╸┏━╸┏━┓┏━╸┏━┓ │
    │   ┣╸ ┃  ┃ ┃┃╻┃┣┻┓┣╸ ┣╸ ┣━┛┣╸ ┣┳┛ │
    │   ╹  ┗━╸┗━┛┗┻┛╹ ╹┗━╸┗━╸╹  ┗━╸╹┗╸ │
    │                                  │
    │   conversation flow orchestrator │
    │                                  │
    ╰──────────────────────────────────╯
`

// metricsShutdownTimeout bounds the graceful stop of the metrics server.
const metricsShutdownTimeout = 5 * time.Second

func main() {
	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "init":
		err = runInit()
	case len(os.Args) > 1 && os.Args[1] == "replay":
		err = runReplay(os.Args[2:])
	default:
		err = run()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}
	if err := cfg.Matrix.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	dataPath := cfg.Matrix.DataDir
	if dataPath == "" {
		dataPath = config.DataPath()
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Timeout:    %s (sweep every %s)\n", cfg.Flows.DefaultTimeout, cfg.Flows.SweepInterval)
	if cfg.Matrix.RecoveryKey != "" {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:    http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := matrix.Connect(ctx, cfg.Matrix, logger)
	if err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey != "" {
		cryptoMgr, err := matrix.SetupCrypto(ctx, client, cfg.Matrix.RecoveryKey, dataPath, logger)
		if err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		defer cryptoMgr.Close()
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	tracker := matrix.NewTracker(cfg.Flows.DefaultTimeout, cfg.Dedupe.MaxSize)
	defer tracker.Close()

	opts := flowOptions(cfg, logger)
	opts = append(opts,
		flow.WithBotUserID(client.UserID.String()),
		flow.WithMentionFormat(inbound.BareMention),
	)
	if cfg.Dedupe.Enabled {
		cache := dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize, 0)
		defer cache.Close()
		opts = append(opts, flow.WithDedupe(cache))
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, flow.WithObserver(metrics.NewRecorder(reg)))
		go serveMetrics(ctx, cfg.Metrics, reg, logger)
	}

	orch := flow.New(matrix.NewGateway(client, tracker, logger), opts...)
	handlers.Register(orch, logger)
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}
	defer orch.Close()

	bridge := matrix.NewBridge(client, orch, tracker, matrix.BridgeConfig{
		AllowedRooms:    cfg.Bridge.AllowedRooms,
		CommandPrefix:   cfg.Bridge.CommandPrefix,
		TypingIndicator: cfg.Bridge.TypingIndicator,
	}, logger)

	logger.Info("starting flowkeeper", "handlers", orch.Registry().Kinds())
	return bridge.Run(ctx)
}

// flowOptions maps the flows section of the config onto orchestrator options.
func flowOptions(cfg *config.Config, logger *slog.Logger) []flow.Option {
	return []flow.Option{
		flow.WithLogger(logger),
		flow.WithDefaultTimeout(cfg.Flows.DefaultTimeout),
		flow.WithSweepInterval(cfg.Flows.SweepInterval),
		flow.WithCallTimeout(cfg.Flows.GatewayTimeout),
		flow.WithTimeoutNotices(cfg.Flows.SendTimeoutNotice),
	}
}

// serveMetrics exposes reg until ctx is done.
func serveMetrics(ctx context.Context, cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", cfg.Addr, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}

func setupLogger(level, format string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

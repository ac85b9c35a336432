// Command groupgist watches a configurable set of Telegram groups, persists
// their messages to Postgres, and serves an HTTP API for browsing history and
// generating AI summaries. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the Telegram client loop on its own goroutine.
//   - Exposes the web UI and JSON API with /healthz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/groupgist/groupgist/config"
	"github.com/groupgist/groupgist/db"
	"github.com/groupgist/groupgist/server"
	"github.com/groupgist/groupgist/summarize"
	"github.com/groupgist/groupgist/telegram"
	"github.com/groupgist/groupgist/telemetry"
	"github.com/groupgist/groupgist/watchlist"
)

func main() {
	root := &cobra.Command{
		Use:           "groupgist",
		Short:         "Telegram group listener with stored history and AI summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.RegisterFlags(root.Flags())

	if err := root.Execute(); err != nil {
		slog.Error("fatal", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	// Missing credentials are fatal up front; connection failures later only
	// degrade the service.
	if err := cfg.ValidateTelegramReady(); err != nil {
		_ = cmd.Usage()
		return err
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("groupgist", "1.0.0")
	if err != nil {
		return err
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		return err
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Watch-list: loaded from (or seeded into) the JSON document
	store, err := watchlist.New(cfg.ConfigFile, cfg.DefaultGroups)
	if err != nil {
		return err
	}
	telemetry.SetWatchlistSize(len(store.List()))

	messages := &db.MessageStore{DB: database}

	// Telegram client loop; additions are verified against the live client
	bridge := telegram.NewBridge(cfg, store, messages)
	store.SetVerifier(bridge.Verify)
	store.SetOnChange(bridge.Resubscribe)
	go bridge.Run(ctx)

	// AI summarizer; nil when no provider file exists under CONFIG_DIR
	summarizer, err := summarize.NewFromDir(cfg.ConfigDir)
	if err != nil {
		slog.Error("summarizer init failed", slog.Any("err", err))
		return err
	}
	var summaryBackend server.Summarizer
	if summarizer != nil {
		summaryBackend = summarizer
	} else {
		slog.Warn("no AI provider configured; summarize endpoint disabled", slog.String("dir", cfg.ConfigDir))
	}

	h := server.NewHandlers(database, store, bridge, messages, summaryBackend, cfg.MaxMessagesPerGroup)
	slog.Info("starting http server", slog.String("addr", cfg.WebAddr))
	return server.Start(ctx, h, cfg.WebAddr)
}

// initLogging configures the default slog logger (level + format).
// Defaults: level=info, format=text.
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}

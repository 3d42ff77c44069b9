// Command streamwatch is the main entrypoint for the stream presence
// reconciliation service. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the reconciliation loop and the daily summary job.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status and /metrics.
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
	"time"

	"github.com/joho/godotenv"

	"github.com/mkuhlmann/streamwatch/commands"
	"github.com/mkuhlmann/streamwatch/config"
	"github.com/mkuhlmann/streamwatch/db"
	"github.com/mkuhlmann/streamwatch/engine"
	"github.com/mkuhlmann/streamwatch/notify"
	"github.com/mkuhlmann/streamwatch/quota"
	"github.com/mkuhlmann/streamwatch/ratelimit"
	"github.com/mkuhlmann/streamwatch/report"
	"github.com/mkuhlmann/streamwatch/server"
	"github.com/mkuhlmann/streamwatch/telemetry"
	"github.com/mkuhlmann/streamwatch/tracking"
	"github.com/mkuhlmann/streamwatch/twitchapi"
	"github.com/mkuhlmann/streamwatch/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
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
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("streamwatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned first, embedded SQL as fallback for
	// deployments that predate the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Twitch app token + Helix client
	tokenSource := &twitchapi.TokenSource{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
	}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		fetchCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if _, err := tokenSource.Get(fetchCtx); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else {
			slog.Info("twitch app token acquired")
		}
		cancel()
	}
	helix := &twitchapi.HelixClient{
		AppTokenSource: tokenSource,
		ClientID:       cfg.TwitchClientID,
	}

	// YouTube client over the shared quota ledger
	ledger := quota.NewLedger(database, cfg.YouTubeDailyCap)
	youtube, err := youtubeapi.New(ctx, cfg.YouTubeAPIKey, ledger)
	if err != nil {
		slog.Error("failed to create youtube client", slog.Any("err", err))
		os.Exit(1)
	}
	youtube.CallCost = cfg.YouTubeCallCost

	store := tracking.NewStore(database)
	notifier := notify.LogNotifier{}

	// Reconciliation loop
	reconciler := &engine.Reconciler{
		Store:        store,
		Twitch:       helix,
		YouTube:      youtube,
		Quota:        ledger,
		Notifier:     notifier,
		Interval:     cfg.PollInterval,
		InitialDelay: cfg.PollInitialDelay,
		CallCost:     cfg.YouTubeCallCost,
		AdminChatID:  cfg.AdminChatID,
	}
	go reconciler.Run(ctx)

	// Daily summary
	reportJob := &report.Job{
		Store:       store,
		Notifier:    notifier,
		AdminChatID: cfg.AdminChatID,
		Hour:        cfg.ReportHourUTC,
	}
	go reportJob.Run(ctx)

	// Transport-facing command API, exposed over HTTP
	limiter := ratelimit.NewLimiter(database, cfg.RateLimitMax, cfg.RateLimitWindow)
	cmds := &commands.Handler{
		Store:          store,
		Limiter:        limiter,
		Twitch:         helix,
		YouTube:        youtube,
		Quota:          ledger,
		ResolutionCost: cfg.YouTubeCallCost,
	}

	// HTTP server (health/status/metrics/commands)
	handlers := server.NewHandlers(database, reconciler, store, ledger, cmds)
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, handlers); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

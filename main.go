// Command ooye-live serves the mock live-stream chat.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres (DB_DSN) and runs migrations for the script store.
//   - Opens the chat script source (builtin, file or db).
//   - Starts the session manager and its idle reaper.
//   - Exposes the HTTP API with /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/config"
	"github.com/onnwee/ooye-live/db"
	"github.com/onnwee/ooye-live/script"
	"github.com/onnwee/ooye-live/server"
	"github.com/onnwee/ooye-live/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	telemetry.SetupLogging(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("ooye-live", "1.0.0", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB is optional: without it the script store and admin script endpoints are disabled.
	var (
		database *sql.DB
		store    *script.Store
	)
	if cfg.DBDsn != "" {
		database, err = openDatabase(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		store = script.NewStore(database)
	} else {
		slog.Info("DB_DSN not set, script store disabled", slog.String("component", "db"))
	}

	kind, err := script.ParseKind(cfg.ScriptSource)
	if err != nil {
		slog.Error("invalid script source", slog.Any("err", err))
		os.Exit(1)
	}
	source, err := script.Open(kind, cfg.ScriptFile, cfg.ScriptName, store)
	if err != nil {
		slog.Error("failed to open script source", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("script source ready", slog.String("kind", string(kind)), slog.String("component", "script"))

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	manager := chat.NewManager(ctx, source, chat.ManagerConfig{
		Session:     cfg.Chat.SessionConfig(clock),
		MaxSessions: cfg.Sessions.MaxSessions,
		IdleTTL:     cfg.Sessions.IdleTTL,
	})
	defer manager.CloseAll()
	manager.StartReaper(ctx, cfg.Sessions.ReapInterval)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if cfg.EnablePprof {
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", cfg.PprofAddr))
			srv := &http.Server{
				Addr:              cfg.PprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	deps := server.Deps{
		Manager: manager,
		Source:  source,
		DB:      database,
		Store:   store,
		Config:  cfg,
		Clock:   clock,
	}
	slog.Info("http server listening", slog.String("addr", cfg.HTTPAddr), slog.String("component", "http"))
	if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
		stop()
		manager.CloseAll()
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// openDatabase connects and migrates the script store schema.
//
// Versioned migrations (golang-migrate) run first; databases that predate the
// schema_migrations table fall back to the embedded idempotent SQL.
func openDatabase(dsn string) (*sql.DB, error) {
	database, err := db.Connect(dsn)
	if err != nil {
		return nil, err
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, err
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
		return database, nil
	}
	slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
	return database, nil
}

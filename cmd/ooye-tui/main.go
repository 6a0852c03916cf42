// Command ooye-tui runs one chat session in the terminal, without the HTTP server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/config"
	"github.com/onnwee/ooye-live/db"
	"github.com/onnwee/ooye-live/script"
	"github.com/onnwee/ooye-live/telemetry"
	"github.com/onnwee/ooye-live/tui"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:           "ooye-tui",
		Short:         "Watch a scripted live chat in the terminal",
		Long:          "Replays a chat script into a terminal chat widget. Type to chat, press 1-5 (F1-F5 while typing) to react.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logFile)
		},
	}

	flags := cmd.Flags()
	flags.String("source", "", "script source: builtin, file or db (default SCRIPT_SOURCE)")
	flags.StringP("file", "f", "", "JSON or YAML script file; implies --source=file")
	flags.String("name", "", "stored script name; implies --source=db")
	flags.Float64("speed", 0, "replay speed multiplier (default REPLAY_SPEED)")
	flags.String("username", "", "your chat username (default VIEWER_USERNAME)")
	flags.Bool("reject-blank", false, "refuse blank messages")
	flags.StringVar(&logFile, "log-file", "", "write logs to this file instead of discarding them")
	return cmd
}

// applyFlags overrides environment configuration with the flags the user set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("file") {
		cfg.ScriptSource = string(script.KindFile)
		if cfg.ScriptFile, err = flags.GetString("file"); err != nil {
			return err
		}
	}
	if flags.Changed("name") {
		cfg.ScriptSource = string(script.KindDB)
		if cfg.ScriptName, err = flags.GetString("name"); err != nil {
			return err
		}
	}
	if flags.Changed("source") {
		if cfg.ScriptSource, err = flags.GetString("source"); err != nil {
			return err
		}
	}
	if flags.Changed("speed") {
		if cfg.Chat.ReplaySpeed, err = flags.GetFloat64("speed"); err != nil {
			return err
		}
	}
	if flags.Changed("username") {
		if cfg.Chat.ViewerUsername, err = flags.GetString("username"); err != nil {
			return err
		}
	}
	if flags.Changed("reject-blank") {
		if cfg.Chat.RejectBlank, err = flags.GetBool("reject-blank"); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logFile string) error {
	// The terminal belongs to the UI; logs go to a file or nowhere.
	var w io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	telemetry.SetupLogging(w, cfg.LogLevel, cfg.LogFormat)

	kind, err := script.ParseKind(cfg.ScriptSource)
	if err != nil {
		return err
	}
	var store *script.Store
	if kind == script.KindDB {
		var database *sql.DB
		if database, err = db.Connect(cfg.DBDsn); err != nil {
			return err
		}
		defer func() { _ = database.Close() }()
		store = script.NewStore(database)
	}
	source, err := script.Open(kind, cfg.ScriptFile, cfg.ScriptName, store)
	if err != nil {
		return err
	}
	records, err := source.Script(ctx)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}

	session := chat.NewSession(uuid.NewString(), records, cfg.Chat.SessionConfig(nil))
	defer session.Close()
	session.Start(ctx)
	slog.Info("tui session started", slog.String("session", session.ID), slog.Int("script_len", len(records)), slog.String("component", "tui"))
	return tui.Run(ctx, session)
}

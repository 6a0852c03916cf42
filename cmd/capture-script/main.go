// Command capture-script records live Twitch chat into a replayable chat script.
//
// The capture is written to a JSON or YAML file (--out) and/or saved into the
// script store under a name (--store, requires DB_DSN).
//
// Usage:
//
//	capture-script --channel somechannel --duration 10m --out script.yaml
//	capture-script --channel somechannel --max-records 200 --store evening-stream
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/onnwee/ooye-live/config"
	"github.com/onnwee/ooye-live/db"
	"github.com/onnwee/ooye-live/script"
	"github.com/onnwee/ooye-live/telemetry"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	channel     string
	duration    time.Duration
	maxRecords  int
	maxGap      time.Duration
	out         string
	store       string
	description string
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "capture-script",
		Short:         "Record live Twitch chat as a chat script",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("channel") {
				cfg.Twitch.Channel = opts.channel
			}
			if err := cfg.ValidateCaptureReady(); err != nil {
				return err
			}
			if opts.out == "" && opts.store == "" {
				return errors.New("nothing to write: set --out and/or --store")
			}
			if opts.store != "" && cfg.DBDsn == "" {
				return errors.New("--store requires DB_DSN")
			}
			// Fail on a bad extension before spending the capture.
			if opts.out != "" {
				if _, err := script.FormatFromPath(opts.out); err != nil {
					return err
				}
			}
			telemetry.SetupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.channel, "channel", "c", "", "Twitch channel to join (default TWITCH_CHANNEL)")
	flags.DurationVarP(&opts.duration, "duration", "d", 5*time.Minute, "stop after this long; 0 runs until interrupted")
	flags.IntVarP(&opts.maxRecords, "max-records", "n", 0, "stop after this many records; 0 is unlimited")
	flags.DurationVar(&opts.maxGap, "max-gap", 5*time.Second, "clamp silences between records to this delay")
	flags.StringVarP(&opts.out, "out", "o", "", "write the script to this .json or .yaml file")
	flags.StringVar(&opts.store, "store", "", "save the script in the database under this name")
	flags.StringVar(&opts.description, "description", "", "description stored with the script")
	return cmd
}

func run(ctx context.Context, stdout io.Writer, cfg *config.Config, opts options) error {
	records, err := script.Capture(ctx, script.CaptureConfig{
		Channel:    cfg.Twitch.Channel,
		Username:   cfg.Twitch.BotUsername,
		OAuthToken: cfg.Twitch.OAuthToken,
		Duration:   opts.duration,
		MaxRecords: opts.maxRecords,
		MaxGap:     opts.maxGap,
	}, clockwork.NewRealClock())
	if err != nil {
		if len(records) == 0 {
			return err
		}
		slog.Warn("capture ended with error, keeping partial script", slog.Any("err", err), slog.Int("records", len(records)))
	}
	if len(records) == 0 {
		return errors.New("no chat captured")
	}

	doc := script.Document{
		Name:        opts.store,
		Description: opts.description,
		Records:     records,
	}
	if doc.Description == "" {
		doc.Description = fmt.Sprintf("captured from #%s", cfg.Twitch.Channel)
	}

	// Save the file even if the database is down so the capture is not lost.
	if opts.out != "" {
		if err := writeScript(opts.out, doc); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "wrote %d records to %s\n", len(records), opts.out)
	}
	if opts.store != "" {
		if err := storeScript(ctx, cfg.DBDsn, opts.store, doc); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "saved %d records as %q\n", len(records), opts.store)
	}
	return nil
}

// writeScript encodes doc into path using the format its extension names.
func writeScript(path string, doc script.Document) (err error) {
	format, err := script.FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path) //nolint:gosec // path is an operator-supplied flag
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return script.Encode(f, doc, format)
}

func storeScript(ctx context.Context, dsn, name string, doc script.Document) error {
	database, err := db.Connect(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL", slog.Any("err", err))
		if err := db.Migrate(ctx, database); err != nil {
			return err
		}
	}
	return script.NewStore(database).Save(ctx, name, "capture", doc)
}

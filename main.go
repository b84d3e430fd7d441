// Package main implements a watcher that polls the MLB highlight search API
// for the day's latest home run and posts it to a chat webhook.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"homerun-notifier/config"
	"homerun-notifier/server"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfg    *config.Config
		logger *slog.Logger
	)

	root := &cobra.Command{
		Use:           "homerun-notifier",
		Short:         "Post the day's newest home run highlight to a chat webhook",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(viper.New(), cmd.Flags())
			if err != nil {
				slog.Error("Failed to load config", "error", err)
				return err
			}
			logger = setupLogger(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cfg, logger)
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single polling cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cfg, logger)
		},
	})

	return root
}

func runWatch(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.watcher.Run(ctx)
	})
	if cfg.Port != "" {
		srv := server.New(&server.Config{
			Poller:  a.watcher,
			Archive: a.recent(),
			Logger:  logger,
		})
		g.Go(func() error {
			return srv.ListenAndServe(ctx, cfg.Port)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutdown complete", "last_seen_id", a.watcher.Snapshot().LastSeenID)
		return nil
	}
	if err != nil {
		logger.Error("Watcher exited", "error", err)
	}
	return err
}

func runOnce(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}
	defer a.Close()

	outcome, err := a.watcher.Cycle(ctx)
	if err != nil {
		return fmt.Errorf("cycle %s: %w", outcome, err)
	}
	logger.Info("Single cycle finished", "outcome", outcome)
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := strings.ToLower(cfg.LogLevel)
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("unknown log level %q, using info", level)
		slogLevel = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		}
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled")
	return logger
}

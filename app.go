package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"homerun-notifier/archive"
	"homerun-notifier/config"
	"homerun-notifier/extract"
	"homerun-notifier/notify"
	"homerun-notifier/poll"
	"homerun-notifier/search"
	"homerun-notifier/server"
)

// app owns the long-lived clients shared by every cycle.
type app struct {
	watcher       *poll.Watcher
	archive       *archive.Store
	storageClient *storage.Client
	logger        *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	schedule, err := poll.NewSchedule(cfg.PollSchedule, cfg.PollInterval)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	searcher := search.New(&search.Config{
		HTTPClient:        httpClient,
		Logger:            logger,
		Endpoint:          cfg.EndpointURL,
		UserAgent:         cfg.UserAgent,
		RequestsPerMinute: cfg.SearchRate,
	})

	var provider notify.Provider
	if cfg.DryRun {
		logger.Info("Dry run enabled, notifications will only be logged")
		provider = notify.NewMockProvider(logger)
	} else {
		provider = notify.NewWebhookProvider(cfg.WebhookURL, cfg.UserAgent, httpClient, logger)
	}

	a := &app{logger: logger}
	if err := a.openArchive(ctx, cfg); err != nil {
		return nil, err
	}

	wcfg := &poll.Config{
		Searcher:    searcher,
		Extractor:   extract.New(cfg.FeedType, cfg.PlaybackNames),
		Notifier:    notify.New(provider, logger),
		Schedule:    schedule,
		Location:    cfg.Location(),
		Logger:      logger,
		Category:    cfg.CategoryFilter,
		MaxAttempts: cfg.MaxAttempts,
	}
	if a.archive != nil {
		wcfg.Archiver = a.archive
	}
	a.watcher = poll.New(wcfg)

	logger.Info("Watcher configured",
		"endpoint", cfg.EndpointURL,
		"category", cfg.CategoryFilter,
		"timezone", cfg.Timezone,
		"poll_interval", cfg.PollInterval.String(),
		"poll_schedule", cfg.PollSchedule,
		"feed_type", cfg.FeedType,
		"playback_names", cfg.PlaybackNames,
		"max_attempts", cfg.MaxAttempts)

	return a, nil
}

func (a *app) openArchive(ctx context.Context, cfg *config.Config) error {
	switch {
	case cfg.ArchiveBucket != "":
		var opts []option.ClientOption
		if cfg.GoogleCredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GoogleCredentialsJSON)))
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return fmt.Errorf("initialize storage client: %w", err)
		}
		a.storageClient = client
		a.archive = archive.New(client, cfg.ArchiveBucket, "", a.logger)
		a.logger.Info("Archiving notifications to bucket", "bucket", cfg.ArchiveBucket)
	case cfg.ArchiveDir != "":
		a.archive = archive.New(nil, "", cfg.ArchiveDir, a.logger)
		a.logger.Info("Archiving notifications to local storage", "path", cfg.ArchiveDir)
	}
	return nil
}

// recent returns the archive for the server, or nil when archiving is off.
func (a *app) recent() server.Archive {
	if a.archive == nil {
		return nil
	}
	return a.archive
}

func (a *app) Close() {
	if a.storageClient == nil {
		return
	}
	if err := a.storageClient.Close(); err != nil {
		a.logger.Warn("Failed to close storage client", "error", err)
	}
}

// Package poll runs the search, detect, notify loop.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"homerun-notifier/extract"
	"homerun-notifier/pkg/highlight"
	"homerun-notifier/search"
)

// DefaultInterval is the delay between cycles.
const DefaultInterval = 5 * time.Minute

const maxLoggedBody = 4096

// Searcher fetches the latest highlight for a query.
type Searcher interface {
	Latest(ctx context.Context, query string) (*search.Result, error)
}

// Extractor builds the notification payload for a highlight.
type Extractor interface {
	Extract(h *highlight.Highlight) (*extract.Result, error)
}

// Notifier delivers a payload.
type Notifier interface {
	Send(ctx context.Context, highlightID string, payload *highlight.Payload) error
}

// Archiver records delivered notifications.
type Archiver interface {
	Save(ctx context.Context, rec *highlight.Record) error
}

// Outcome is the result of one cycle.
type Outcome string

// Cycle outcomes.
const (
	OutcomeEmpty          Outcome = "empty"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeNotified       Outcome = "notified"
	OutcomeFetchFailed    Outcome = "fetch_failed"
	OutcomeExtractFailed  Outcome = "extract_failed"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeAbandoned      Outcome = "abandoned"
)

// State is the watcher's dedup state. It lives only as long as the process.
type State struct {
	LastCycleAt time.Time `json:"last_cycle_at"`
	LastSeenID  string    `json:"last_seen_id"` // Most recently notified (or abandoned) highlight
	PendingID   string    `json:"pending_id"`   // New highlight that has failed at least once
	LastOutcome Outcome   `json:"last_outcome"`
	LastError   string    `json:"last_error,omitempty"`
	Attempts    int       `json:"attempts"` // Failed cycles for PendingID
	Notified    int       `json:"notified"`
	Cycles      int       `json:"cycles"`
}

// Config holds watcher dependencies and settings.
type Config struct {
	Searcher    Searcher
	Extractor   Extractor
	Notifier    Notifier
	Archiver    Archiver // Optional
	Clock       Clock    // Defaults to the wall clock
	Schedule    cron.Schedule
	Location    *time.Location
	Logger      *slog.Logger
	Category    string
	MaxAttempts int // 0 retries a failing highlight forever
}

// Watcher polls for new highlights and notifies once per highlight.
type Watcher struct {
	cycleMu     sync.Mutex // Serializes cycles and guards state
	state       State
	mu          sync.Mutex // Guards published
	published   State
	searcher    Searcher
	extractor   Extractor
	notifier    Notifier
	archiver    Archiver
	clock       Clock
	schedule    cron.Schedule
	location    *time.Location
	logger      *slog.Logger
	category    string
	maxAttempts int
}

// New creates a new watcher.
func New(cfg *Config) *Watcher {
	w := &Watcher{
		searcher:    cfg.Searcher,
		extractor:   cfg.Extractor,
		notifier:    cfg.Notifier,
		archiver:    cfg.Archiver,
		clock:       cfg.Clock,
		schedule:    cfg.Schedule,
		location:    cfg.Location,
		logger:      cfg.Logger,
		category:    cfg.Category,
		maxAttempts: cfg.MaxAttempts,
	}
	if w.clock == nil {
		w.clock = wallClock{}
	}
	if w.schedule == nil {
		w.schedule = cron.Every(DefaultInterval)
	}
	if w.location == nil {
		w.location = time.UTC
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.category == "" {
		w.category = search.DefaultCategory
	}
	return w
}

// Snapshot returns a copy of the state as of the last completed cycle.
// It does not wait for a cycle in flight.
func (w *Watcher) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.published
}

// Run executes a cycle immediately and then one per schedule tick until ctx
// is done. Cycle failures never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("Watcher started", "category", w.category, "timezone", w.location.String())

	for {
		// Failures are logged and recorded in state by Cycle.
		_, _ = w.Cycle(ctx)

		if err := ctx.Err(); err != nil {
			w.logger.Info("Context cancelled, watcher stopping", "error", err)
			return err
		}

		now := w.clock.Now()
		wait := w.schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
		w.logger.Debug("Sleeping until next cycle", "wait", wait.String())

		select {
		case <-ctx.Done():
			w.logger.Info("Context cancelled, watcher stopping", "error", ctx.Err())
			return ctx.Err()
		case <-w.clock.After(wait):
		}
	}
}

// Cycle performs one search, detect, notify pass. Cycles never overlap.
func (w *Watcher) Cycle(ctx context.Context) (Outcome, error) {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	outcome, err := w.cycle(ctx)

	w.state.Cycles++
	w.state.LastCycleAt = w.clock.Now()
	w.state.LastOutcome = outcome
	w.state.LastError = ""
	if err != nil {
		w.state.LastError = err.Error()
		w.logger.Warn("Cycle failed", "outcome", outcome, "error", err)
	} else {
		w.logger.Info("Cycle completed", "outcome", outcome, "last_seen_id", w.state.LastSeenID)
	}

	w.mu.Lock()
	w.published = w.state
	w.mu.Unlock()

	return outcome, err
}

func (w *Watcher) cycle(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeFetchFailed, err
	}

	query := search.BuildQuery(w.clock.Now(), w.location, w.category)
	w.logger.Info("Starting cycle", "query", query)

	res, err := w.searcher.Latest(ctx, query)
	if err != nil {
		return OutcomeFetchFailed, fmt.Errorf("fetch latest highlight: %w", err)
	}

	w.logger.Debug("Search response", "raw", truncate(res.Raw, maxLoggedBody))

	if res.Highlight == nil {
		w.logger.Info("No highlight in search response", "total", res.Total)
		return OutcomeEmpty, nil
	}

	h := res.Highlight
	w.logger.Info("Observed highlight",
		"highlight_id", h.ID,
		"last_seen_id", w.state.LastSeenID)

	if h.ID == w.state.LastSeenID {
		return OutcomeUnchanged, nil
	}

	ext, err := w.extractor.Extract(h)
	if err != nil {
		return w.fail(h.ID, OutcomeExtractFailed, fmt.Errorf("extract payload: %w", err))
	}

	if err := w.notifier.Send(ctx, h.ID, ext.Payload); err != nil {
		return w.fail(h.ID, OutcomeDispatchFailed, fmt.Errorf("send notification: %w", err))
	}

	previous := w.state.LastSeenID
	w.state.LastSeenID = h.ID
	w.state.PendingID = ""
	w.state.Attempts = 0
	w.state.Notified++

	w.logger.Info("New highlight notified",
		"highlight_id", h.ID,
		"previous", previous,
		"url", ext.Playback.URL)

	if w.archiver != nil {
		rec := &highlight.Record{
			SentAt:      w.clock.Now(),
			HighlightID: h.ID,
			Description: ext.Description,
			URL:         ext.Playback.URL,
			Text:        ext.Payload.Text,
		}
		if err := w.archiver.Save(ctx, rec); err != nil {
			w.logger.Warn("Failed to archive notification", "highlight_id", h.ID, "error", err)
		}
	}

	return OutcomeNotified, nil
}

// fail counts a failed cycle for id. LastSeenID stays put so the next cycle
// retries, until maxAttempts consecutive failures mark id as seen.
func (w *Watcher) fail(id string, outcome Outcome, err error) (Outcome, error) {
	if w.state.PendingID != id {
		w.state.PendingID = id
		w.state.Attempts = 0
	}
	w.state.Attempts++

	if w.maxAttempts > 0 && w.state.Attempts >= w.maxAttempts {
		w.logger.Warn("Giving up on highlight after repeated failures",
			"highlight_id", id,
			"attempts", w.state.Attempts,
			"last_outcome", outcome)
		w.state.LastSeenID = id
		w.state.PendingID = ""
		w.state.Attempts = 0
		return OutcomeAbandoned, err
	}

	return outcome, err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

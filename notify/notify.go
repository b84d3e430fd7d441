// Package notify delivers highlight notifications through pluggable providers.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"homerun-notifier/pkg/highlight"
)

// Provider defines the interface for notification delivery implementations.
type Provider interface {
	// Post delivers the payload and returns the response body, if any.
	Post(ctx context.Context, payload *highlight.Payload) (string, error)
}

// Sender sends highlight notifications using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
}

// New creates a new sender with the given provider.
func New(provider Provider, logger *slog.Logger) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
	}
}

// Send delivers payload for the highlight with the given id.
func (s *Sender) Send(ctx context.Context, highlightID string, payload *highlight.Payload) error {
	if payload == nil || payload.Text == "" {
		return errors.New("empty payload")
	}

	s.logger.Info("Sending notification",
		"highlight_id", highlightID,
		"text", payload.Text)

	body, err := s.provider.Post(ctx, payload)
	if err != nil {
		return err
	}

	s.logger.Debug("Notification delivered", "highlight_id", highlightID, "response", body)
	return nil
}

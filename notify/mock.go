package notify

import (
	"context"
	"log/slog"

	"homerun-notifier/pkg/highlight"
)

// MockProvider logs notifications instead of posting them.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock provider for dry runs.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Post logs the payload instead of sending it.
func (m *MockProvider) Post(ctx context.Context, payload *highlight.Payload) (string, error) {
	m.logger.Info("MOCK NOTIFICATION", "text", payload.Text)
	return "ok", nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"homerun-notifier/pkg/highlight"
	"homerun-notifier/pkg/httpstatus"
)

// WebhookProvider posts payloads to a Slack-compatible incoming webhook.
type WebhookProvider struct {
	url        string
	userAgent  string
	client     *http.Client
	logger     *slog.Logger
	attempts   uint
	retryDelay time.Duration
}

// NewWebhookProvider creates a new webhook provider.
func NewWebhookProvider(url, userAgent string, client *http.Client, logger *slog.Logger) *WebhookProvider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookProvider{
		url:        url,
		userAgent:  userAgent,
		client:     client,
		logger:     logger,
		attempts:   3,
		retryDelay: time.Second,
	}
}

// WithRetry overrides the attempt count and base delay.
func (w *WebhookProvider) WithRetry(attempts uint, delay time.Duration) *WebhookProvider {
	w.attempts = attempts
	w.retryDelay = delay
	return w
}

// Post sends the payload as JSON.
func (w *WebhookProvider) Post(ctx context.Context, payload *highlight.Payload) (string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	var body string
	err = retry.Do(
		func() error {
			w.logger.Info("Webhook request starting", "method", "POST")

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(jsonData))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", w.userAgent)

			resp, err := w.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				w.logger.Warn("Webhook request failed, will retry",
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					w.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			if readErr != nil {
				w.logger.Warn("Failed to read webhook response", "error", readErr)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				statusErr := &httpstatus.Error{Code: resp.StatusCode}
				w.logger.Warn("Webhook returned non-2xx status",
					"status_code", resp.StatusCode,
					"retryable", statusErr.Retryable(),
					"body", string(respBody))
				return statusErr
			}

			w.logger.Info("Webhook request completed",
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			body = string(respBody)
			return nil
		},
		retry.Attempts(w.attempts),
		retry.Delay(w.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(w.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Info("Retrying webhook post after error", "attempt", n, "error", err)
		}),
		retry.RetryIf(httpstatus.Retryable),
	)
	if err != nil {
		return "", fmt.Errorf("post webhook: %w", err)
	}

	return body, nil
}

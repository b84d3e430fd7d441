// Package search queries the media search API for the latest highlight.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"

	"homerun-notifier/pkg/highlight"
	"homerun-notifier/pkg/httpstatus"
)

// DefaultEndpoint is the search API base URL.
const DefaultEndpoint = "https://fastball-gateway.mlb.com/graphql"

const (
	defaultUserAgent     = "HomeRunBot/1.0"
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
	maxBodyBytes         = 4 << 20
)

// Result is the outcome of one search.
type Result struct {
	Highlight *highlight.Highlight // nil when the response held no usable play
	Raw       []byte
	Total     int
}

// Config holds client configuration.
type Config struct {
	HTTPClient        *http.Client
	Logger            *slog.Logger
	Endpoint          string
	UserAgent         string
	RequestsPerMinute int // 0 disables throttling
	RetryAttempts     uint
	RetryDelay        time.Duration
}

// Client fetches search results.
type Client struct {
	client        *http.Client
	limiter       *rate.Limiter
	logger        *slog.Logger
	endpoint      string
	userAgent     string
	retryAttempts uint
	retryDelay    time.Duration
}

// New creates a new search client.
func New(cfg *Config) *Client {
	c := &Client{
		client:        cfg.HTTPClient,
		logger:        cfg.Logger,
		endpoint:      cfg.Endpoint,
		userAgent:     cfg.UserAgent,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		limiter:       rate.NewLimiter(rate.Inf, 1),
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.retryAttempts == 0 {
		c.retryAttempts = defaultRetryAttempts
	}
	if c.retryDelay == 0 {
		c.retryDelay = defaultRetryDelay
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return c
}

func (c *Client) requestURL(query string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	vars, err := json.Marshal(newVariables(query))
	if err != nil {
		return "", fmt.Errorf("marshal variables: %w", err)
	}

	params := u.Query()
	params.Set("operationName", operationName)
	params.Set("query", searchDocument)
	params.Set("variables", string(vars))
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// Latest runs query and returns the first matched highlight, if any.
func (c *Client) Latest(ctx context.Context, query string) (*Result, error) {
	reqURL, err := c.requestURL(query)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(fmt.Errorf("rate limit wait: %w", err))
			}

			c.logger.Info("HTTP request starting",
				"method", "GET",
				"url", c.endpoint,
				"purpose", "search_highlights",
				"query", query)

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", c.userAgent)
			req.Header.Set("Content-Type", "application/json")

			startTime := time.Now()
			resp, err := c.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				c.logger.Warn("HTTP request failed, will retry",
					"url", c.endpoint,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Info("HTTP request completed",
				"url", c.endpoint,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return &httpstatus.Error{URL: c.endpoint, Code: resp.StatusCode}
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return fmt.Errorf("read response body: %w", err)
			}

			h, total, err := decodeResponse(body)
			if err != nil {
				c.logger.Error("Failed to decode search response", "error", err)
				return retry.Unrecoverable(err)
			}

			result = &Result{Highlight: h, Raw: body, Total: total}
			return nil
		},
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(c.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying search after error", "attempt", n, "error", err)
		}),
		retry.RetryIf(httpstatus.Retryable),
	)
	if err != nil {
		return nil, fmt.Errorf("search after retries: %w", err)
	}

	return result, nil
}

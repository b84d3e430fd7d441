package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"homerun-notifier/pkg/httpstatus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

const onePlay = `{"data":{"search":{"plays":[{"mediaPlayback":[{"id":"abc123","description":"Big Homer","feeds":[{"type":"CMS","playbacks":[{"name":"mp4Avc","url":"https://x/video.mp4"}]}]}]}],"total":1}}}`

func TestBuildQuery(t *testing.T) {
	pacific, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name     string
		now      time.Time
		loc      *time.Location
		category string
		want     string
	}{
		{
			name:     "pacific afternoon",
			now:      time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC),
			loc:      pacific,
			category: "Home Run",
			want:     `HitResult = ["Home Run"] AND Date = ["2024-06-01"] Order By Timestamp DESC`,
		},
		{
			name:     "utc past midnight is still yesterday in pacific",
			now:      time.Date(2024, 6, 2, 3, 30, 0, 0, time.UTC),
			loc:      pacific,
			category: "Home Run",
			want:     `HitResult = ["Home Run"] AND Date = ["2024-06-01"] Order By Timestamp DESC`,
		},
		{
			name:     "default category",
			now:      time.Date(2024, 6, 2, 3, 30, 0, 0, time.UTC),
			loc:      time.UTC,
			category: "",
			want:     `HitResult = ["Home Run"] AND Date = ["2024-06-02"] Order By Timestamp DESC`,
		},
		{
			name:     "custom category",
			now:      time.Date(2024, 9, 9, 12, 0, 0, 0, time.UTC),
			loc:      time.UTC,
			category: "Triple",
			want:     `HitResult = ["Triple"] AND Date = ["2024-09-09"] Order By Timestamp DESC`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildQuery(tt.now, tt.loc, tt.category); got != tt.want {
				t.Errorf("BuildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildQueryDeterministic(t *testing.T) {
	now := time.Date(2025, 4, 15, 18, 0, 0, 0, time.UTC)
	first := BuildQuery(now, time.UTC, DefaultCategory)
	for range 10 {
		if got := BuildQuery(now, time.UTC, DefaultCategory); got != first {
			t.Fatalf("BuildQuery() changed between calls: %q vs %q", first, got)
		}
	}
	if !strings.Contains(first, "2025-04-15") {
		t.Errorf("BuildQuery() = %q, missing date", first)
	}
}

func newTestClient(url string) *Client {
	return New(&Config{
		HTTPClient:    &http.Client{Timeout: 5 * time.Second},
		Logger:        testLogger(),
		Endpoint:      url,
		UserAgent:     "TestBot/1.0",
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
}

func TestLatestRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("User-Agent"); got != "TestBot/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}

		q := r.URL.Query()
		if got := q.Get("operationName"); got != "Search" {
			t.Errorf("operationName = %q", got)
		}
		if !strings.HasPrefix(q.Get("query"), "query Search(") {
			t.Errorf("query document = %q", q.Get("query"))
		}

		var vars map[string]any
		if err := json.Unmarshal([]byte(q.Get("variables")), &vars); err != nil {
			t.Fatalf("variables not JSON: %v", err)
		}
		want := map[string]any{
			"query":              "HitResult = [\"Home Run\"]",
			"limit":              float64(1),
			"page":               float64(0),
			"languagePreference": "EN",
			"contentPreference":  "MIXED",
		}
		for k, v := range want {
			if vars[k] != v {
				t.Errorf("variables[%q] = %v, want %v", k, vars[k], v)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(onePlay))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Latest(context.Background(), `HitResult = ["Home Run"]`)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if res.Highlight == nil {
		t.Fatal("Latest() returned no highlight")
	}
	if res.Highlight.ID != "abc123" || res.Highlight.Description != "Big Homer" {
		t.Errorf("Latest() highlight = %+v", res.Highlight)
	}
	if len(res.Highlight.Feeds) != 1 || res.Highlight.Feeds[0].Playbacks[0].URL != "https://x/video.mp4" {
		t.Errorf("Latest() feeds = %+v", res.Highlight.Feeds)
	}
	if res.Total != 1 {
		t.Errorf("Latest() total = %d, want 1", res.Total)
	}
	if len(res.Raw) == 0 {
		t.Error("Latest() raw body empty")
	}
}

func TestLatestShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  string
		wantErr bool
	}{
		{name: "one play", body: onePlay, wantID: "abc123"},
		{name: "zero plays", body: `{"data":{"search":{"plays":[],"total":0}}}`},
		{name: "two plays", body: `{"data":{"search":{"plays":[{"mediaPlayback":[{"id":"a"}]},{"mediaPlayback":[{"id":"b"}]}]}}}`},
		{name: "no media playback", body: `{"data":{"search":{"plays":[{"mediaPlayback":[]}]}}}`},
		{name: "two media playbacks", body: `{"data":{"search":{"plays":[{"mediaPlayback":[{"id":"a"},{"id":"b"}]}]}}}`},
		{name: "empty id", body: `{"data":{"search":{"plays":[{"mediaPlayback":[{"id":"","description":"x"}]}]}}}`},
		{name: "null data", body: `{"data":null}`},
		{name: "extra fields ignored", body: `{"data":{"search":{"plays":[{"mediaPlayback":[{"id":"z9","__typename":"MediaPlayback","feeds":[]}],"__typename":"Play"}],"total":3,"__typename":"Search"}},"extensions":{}}`, wantID: "z9"},
		{name: "graphql errors without data", body: `{"errors":[{"message":"bad query"}]}`, wantErr: true},
		{name: "malformed json", body: `{"data":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := newTestClient(srv.URL).Latest(context.Background(), "q")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Latest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if hits.Load() != 1 {
					t.Errorf("decode failures should not be retried, got %d requests", hits.Load())
				}
				return
			}
			gotID := ""
			if res.Highlight != nil {
				gotID = res.Highlight.ID
			}
			if gotID != tt.wantID {
				t.Errorf("Latest() id = %q, want %q", gotID, tt.wantID)
			}
		})
	}
}

func TestLatestStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{name: "server error retried", status: http.StatusBadGateway, wantHits: 3},
		{name: "rate limited retried", status: http.StatusTooManyRequests, wantHits: 3},
		{name: "client error not retried", status: http.StatusNotFound, wantHits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Latest(context.Background(), "q")
			var statusErr *httpstatus.Error
			if !errors.As(err, &statusErr) || statusErr.Code != tt.status {
				t.Fatalf("Latest() error = %v, want status %d", err, tt.status)
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("requests = %d, want %d", got, tt.wantHits)
			}
		})
	}
}

func TestLatestRecoversAfterTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(onePlay))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Latest(context.Background(), "q")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if res.Highlight == nil || res.Highlight.ID != "abc123" {
		t.Errorf("Latest() highlight = %+v", res.Highlight)
	}
}

func TestRequestURLKeepsEndpointParams(t *testing.T) {
	c := newTestClient("https://example.com/graphql?region=us")
	got, err := c.requestURL("q")
	if err != nil {
		t.Fatalf("requestURL() error = %v", err)
	}
	for _, want := range []string{"region=us", "operationName=Search", "variables="} {
		if !strings.Contains(got, want) {
			t.Errorf("requestURL() = %q, missing %q", got, want)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOMERUN_DRY_RUN", "true")

	cfg, err := Load(viper.New(), newFlags(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EndpointURL != "https://fastball-gateway.mlb.com/graphql" {
		t.Errorf("EndpointURL = %q", cfg.EndpointURL)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.CategoryFilter != "Home Run" || cfg.FeedType != "CMS" {
		t.Errorf("filters = %q / %q", cfg.CategoryFilter, cfg.FeedType)
	}
	if len(cfg.PlaybackNames) != 1 || cfg.PlaybackNames[0] != "mp4Avc" {
		t.Errorf("PlaybackNames = %v", cfg.PlaybackNames)
	}
	if cfg.MaxAttempts != 12 || cfg.SearchRate != 6 {
		t.Errorf("MaxAttempts = %d, SearchRate = %d", cfg.MaxAttempts, cfg.SearchRate)
	}
	if got := cfg.Location().String(); got != "America/Los_Angeles" {
		t.Errorf("Location() = %q", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOMERUN_WEBHOOK_URL", "https://hooks.example.com/services/T/B/X")
	t.Setenv("HOMERUN_POLL_INTERVAL", "2m")
	t.Setenv("HOMERUN_CATEGORY_FILTER", "Triple")
	t.Setenv("HOMERUN_PLAYBACK_NAMES", "mp4Avc,hlsCloud")
	t.Setenv("HOMERUN_TIMEZONE", "America/New_York")
	t.Setenv("HOMERUN_MAX_ATTEMPTS", "0")

	cfg, err := Load(viper.New(), newFlags(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WebhookURL != "https://hooks.example.com/services/T/B/X" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
	if cfg.PollInterval != 2*time.Minute {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.CategoryFilter != "Triple" {
		t.Errorf("CategoryFilter = %q", cfg.CategoryFilter)
	}
	if strings.Join(cfg.PlaybackNames, ",") != "mp4Avc,hlsCloud" {
		t.Errorf("PlaybackNames = %v", cfg.PlaybackNames)
	}
	if cfg.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if got := cfg.Location().String(); got != "America/New_York" {
		t.Errorf("Location() = %q", got)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("HOMERUN_WEBHOOK_URL", "https://env.example.com/hook")
	t.Setenv("HOMERUN_POLL_INTERVAL", "2m")

	cfg, err := Load(viper.New(), newFlags(t, "--webhook-url=https://flag.example.com/hook", "--poll-interval=10m"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WebhookURL != "https://flag.example.com/hook" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
	if cfg.PollInterval != 10*time.Minute {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homerun.yaml")
	data := "webhook-url: https://file.example.com/hook\npoll-schedule: \"@every 1m\"\nrequest-timeout: 90s\nlog-format: text\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(viper.New(), newFlags(t, "--config="+path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WebhookURL != "https://file.example.com/hook" || cfg.PollSchedule != "@every 1m" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RequestTimeout != 90*time.Second || cfg.LogFormat != "text" {
		t.Errorf("RequestTimeout = %v, LogFormat = %q", cfg.RequestTimeout, cfg.LogFormat)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{
			name: "missing webhook",
			want: "webhook-url is required",
		},
		{
			name: "malformed webhook",
			env:  map[string]string{"HOMERUN_WEBHOOK_URL": "not a url"},
			want: "WebhookURL",
		},
		{
			name: "unknown timezone",
			env:  map[string]string{"HOMERUN_DRY_RUN": "true", "HOMERUN_TIMEZONE": "Mars/Olympus_Mons"},
			want: "timezone",
		},
		{
			name: "timeout longer than interval",
			env:  map[string]string{"HOMERUN_DRY_RUN": "true", "HOMERUN_POLL_INTERVAL": "20s"},
			want: "request-timeout",
		},
		{
			name: "bad log format",
			env:  map[string]string{"HOMERUN_DRY_RUN": "true"},
			args: []string{"--log-format=xml"},
			want: "LogFormat",
		},
		{
			name: "missing config file",
			env:  map[string]string{"HOMERUN_DRY_RUN": "true"},
			args: []string{"--config=/nonexistent/homerun.yaml"},
			want: "read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(viper.New(), newFlags(t, tt.args...))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

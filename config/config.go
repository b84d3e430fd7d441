// Package config loads runtime configuration from flags, environment
// variables, an optional config file, and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Timezones resolve without a system zoneinfo database

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. HOMERUN_WEBHOOK_URL.
const EnvPrefix = "HOMERUN"

// Config holds all runtime configuration.
type Config struct {
	EndpointURL           string        `mapstructure:"endpoint-url" validate:"required,url"`
	WebhookURL            string        `mapstructure:"webhook-url" validate:"omitempty,url"`
	PollInterval          time.Duration `mapstructure:"poll-interval" validate:"gt=0"`
	PollSchedule          string        `mapstructure:"poll-schedule"`
	CategoryFilter        string        `mapstructure:"category-filter" validate:"required"`
	Timezone              string        `mapstructure:"timezone" validate:"required"`
	FeedType              string        `mapstructure:"feed-type" validate:"required"`
	PlaybackNames         []string      `mapstructure:"playback-names" validate:"min=1,dive,required"`
	UserAgent             string        `mapstructure:"user-agent" validate:"required"`
	RequestTimeout        time.Duration `mapstructure:"request-timeout" validate:"gt=0"`
	SearchRate            int           `mapstructure:"search-rate" validate:"gte=0"`
	MaxAttempts           int           `mapstructure:"max-attempts" validate:"gte=0"`
	DryRun                bool          `mapstructure:"dry-run"`
	LogLevel              string        `mapstructure:"log-level"`
	LogFormat             string        `mapstructure:"log-format" validate:"oneof=json text"`
	Port                  string        `mapstructure:"port" validate:"omitempty,numeric"`
	ArchiveBucket         string        `mapstructure:"archive-bucket"`
	ArchiveDir            string        `mapstructure:"archive-dir"`
	GoogleCredentialsJSON string        `mapstructure:"google-credentials-json"`

	location *time.Location
}

var defaults = map[string]any{
	"endpoint-url":            "https://fastball-gateway.mlb.com/graphql",
	"webhook-url":             "",
	"poll-interval":           5 * time.Minute,
	"poll-schedule":           "",
	"category-filter":         "Home Run",
	"timezone":                "America/Los_Angeles",
	"feed-type":               "CMS",
	"playback-names":          []string{"mp4Avc"},
	"user-agent":              "HomeRunBot/1.0",
	"request-timeout":         30 * time.Second,
	"search-rate":             6,
	"max-attempts":            12,
	"dry-run":                 false,
	"log-level":               "info",
	"log-format":              "json",
	"port":                    "",
	"archive-bucket":          "",
	"archive-dir":             "",
	"google-credentials-json": "",
}

// RegisterFlags adds the command line flags that override configuration.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (default ./config.yaml if present)")
	fs.String("endpoint-url", "", "search API base URL")
	fs.String("webhook-url", "", "notification webhook URL")
	fs.Duration("poll-interval", 0, "delay between polling cycles")
	fs.String("poll-schedule", "", "cron schedule for polling, overrides poll-interval")
	fs.String("category-filter", "", "HitResult value to watch")
	fs.String("timezone", "", "reference timezone for today's date")
	fs.Bool("dry-run", false, "log notifications instead of sending them")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "json or text")
	fs.String("port", "", "serve health and status endpoints on this port")
}

// Load reads configuration into a validated Config. Flags in fs that were
// set on the command line take precedence over everything else.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || !f.Changed {
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.WebhookURL == "" && !c.DryRun {
		return errors.New("invalid config: webhook-url is required unless dry-run is set")
	}

	if c.PollSchedule == "" && c.RequestTimeout >= c.PollInterval {
		return fmt.Errorf("invalid config: request-timeout %s must be shorter than poll-interval %s",
			c.RequestTimeout, c.PollInterval)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	return nil
}

// Location returns the reference timezone.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

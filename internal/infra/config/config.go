package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"activity_scraper/internal/infra/scheduler"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	DefaultInterval    = 24 * time.Hour // One scrape per day
	DefaultHTTPTimeout = 30 * time.Second
	DefaultRatePerSec  = 2.0
	DefaultItemsPath   = "activities"
	DefaultUserAgent   = "activity-scraper/1.0"
)

var (
	ErrDatabaseURLRequired = errors.New("DATABASE_URL is not set")
	ErrSourceURLRequired   = errors.New("SCRAPER_SOURCE_URLS is not set")
	ErrInvalidSourceURL    = errors.New("invalid source URL")
	ErrAdminIDRequired     = errors.New("ADMIN_TELEGRAM_ID is not set")
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	LogLevel    string
	Environment string

	// Acquisition source
	SourceURLs  []string
	ItemsPath   string // gjson path to the array of activity records
	UserAgent   string
	HTTPTimeout time.Duration
	RatePerSec  float64 // Requests per second against the source

	// Recurrence
	Interval      time.Duration
	CronSpec      string        // Overrides Interval when set
	Schedule      cron.Schedule // Built from CronSpec or Interval
	FailurePolicy scheduler.FailurePolicy
	StepTimeout   time.Duration // Zero disables the per-step bound

	// Operator channel, disabled when TelegramToken is empty
	TelegramToken   string
	AdminTelegramID int64
}

// TelegramEnabled reports whether failure alerts and admin commands are configured.
func (c *AppConfig) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// Load reads configuration from environment variables and env files.
// With no arguments a .env file in the working directory is used if present.
// Explicitly named files must exist. Existing env variables are never overridden.
func Load(envFiles ...string) (*AppConfig, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, ErrDatabaseURLRequired
	}

	cfg.SourceURLs = splitList(os.Getenv("SCRAPER_SOURCE_URLS"))
	if len(cfg.SourceURLs) == 0 {
		return nil, ErrSourceURLRequired
	}
	for _, raw := range cfg.SourceURLs {
		if err := validateSourceURL(raw); err != nil {
			return nil, err
		}
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.ItemsPath = envOrDefault("SCRAPER_ITEMS_PATH", DefaultItemsPath)
	cfg.UserAgent = envOrDefault("SCRAPER_USER_AGENT", DefaultUserAgent)

	if cfg.HTTPTimeout, err = durationFromEnv("SCRAPER_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("SCRAPER_HTTP_TIMEOUT must be positive")
	}

	cfg.RatePerSec = DefaultRatePerSec
	if raw := os.Getenv("SCRAPER_RATE_PER_SEC"); raw != "" {
		cfg.RatePerSec, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SCRAPER_RATE_PER_SEC: %w", err)
		}
		if cfg.RatePerSec <= 0 {
			return nil, fmt.Errorf("SCRAPER_RATE_PER_SEC must be positive")
		}
	}

	if cfg.Interval, err = durationFromEnv("SCRAPER_INTERVAL", DefaultInterval); err != nil {
		return nil, err
	}
	cfg.CronSpec = strings.TrimSpace(os.Getenv("SCRAPER_CRON"))
	if cfg.CronSpec != "" {
		cfg.Schedule, err = scheduler.ParseCronSchedule(cfg.CronSpec)
	} else {
		cfg.Schedule, err = scheduler.NewIntervalSchedule(cfg.Interval)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	cfg.FailurePolicy, err = scheduler.ParseFailurePolicy(os.Getenv("SCRAPER_FAILURE_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_FAILURE_POLICY: %w", err)
	}

	if cfg.StepTimeout, err = durationFromEnv("SCRAPER_STEP_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.StepTimeout < 0 {
		return nil, fmt.Errorf("SCRAPER_STEP_TIMEOUT must not be negative")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, ErrAdminIDRequired
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return cfg, nil
}

// validateSourceURL accepts absolute http(s) URLs with a host.
func validateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSourceURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidSourceURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w %q: host is missing", ErrInvalidSourceURL, raw)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

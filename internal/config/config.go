package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"subtrack/internal/core"
	"subtrack/internal/rates"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Blob store behind the rate cache and settings: "sqlite", "redis" or "memory"
	BlobBackend string
	RedisURL    string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Exchange rates
	RatesAPIURL            string
	RatesCacheTTL          time.Duration
	RatesFetchTimeout      time.Duration
	RatesRequestsPerSecond float64
	FallbackRates          string
	DisplayCurrency        string

	// Reminders
	NotificationsEnabled bool
	Timezone             string
	RefreshCron          string
	DispatchCron         string
	DispatchBatchSize    int

	// Logging
	LogLevel  string
	LogFormat string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/subtrack.db"),

		BlobBackend: getEnv("BLOB_BACKEND", "sqlite"),
		RedisURL:    getEnv("REDIS_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "subtrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "renewal_reminders"),

		RatesAPIURL:            getEnv("RATES_API_URL", "https://api.fxratesapi.com/latest"),
		RatesCacheTTL:          getEnvDuration("RATES_CACHE_TTL", 24*time.Hour),
		RatesFetchTimeout:      getEnvDuration("RATES_FETCH_TIMEOUT", 10*time.Second),
		RatesRequestsPerSecond: getEnvFloat("RATES_REQUESTS_PER_SECOND", 1),
		FallbackRates:          getEnv("FALLBACK_RATES", "USD:JPY=150"),
		DisplayCurrency:        strings.ToUpper(getEnv("DISPLAY_CURRENCY", "JPY")),

		NotificationsEnabled: getEnvBool("NOTIFICATIONS_ENABLED", true),
		Timezone:             getEnv("TIMEZONE", "UTC"),
		RefreshCron:          getEnv("REFRESH_CRON", "0 3 * * *"),
		DispatchCron:         getEnv("DISPATCH_CRON", "* * * * *"),
		DispatchBatchSize:    getEnvInt("DISPATCH_BATCH_SIZE", 50),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Subscriptions"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
	}
}

// Location resolves Timezone, defaulting to UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SheetsEnabled reports whether a spreadsheet export target is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	switch c.BlobBackend {
	case "sqlite", "memory":
	case "redis":
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when BLOB_BACKEND is redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid blob backend '%s': must be one of [sqlite redis memory]", c.BlobBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if u, err := url.Parse(c.RatesAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid rates API URL '%s': must be an absolute http(s) URL", c.RatesAPIURL))
	}
	if c.RatesCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates cache TTL %v: must be positive", c.RatesCacheTTL))
	}
	if c.RatesFetchTimeout < 100*time.Millisecond || c.RatesFetchTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rates fetch timeout %v: must be between 100ms and 2m", c.RatesFetchTimeout))
	}
	if c.RatesRequestsPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates request rate %v: must be positive", c.RatesRequestsPerSecond))
	}
	if _, err := rates.ParseFallbacks(c.FallbackRates); err != nil {
		errors = append(errors, fmt.Sprintf("invalid FALLBACK_RATES: %v", err))
	}
	if _, err := core.NormalizeCurrency(c.DisplayCurrency); err != nil {
		errors = append(errors, fmt.Sprintf("invalid display currency '%s'", c.DisplayCurrency))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.RefreshCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid refresh cron '%s': %v", c.RefreshCron, err))
	}
	if _, err := parser.Parse(c.DispatchCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid dispatch cron '%s': %v", c.DispatchCron, err))
	}
	if c.DispatchBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid dispatch batch size %d: must be at least 1", c.DispatchBatchSize))
	} else if c.DispatchBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid dispatch batch size %d: must be at most 1000", c.DispatchBatchSize))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
		errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets export")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

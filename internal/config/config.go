// Package config loads application settings from defaults, an optional TOML
// file and environment variables (highest precedence).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"budgettracker/internal/core"
	"budgettracker/internal/currency"
	"budgettracker/internal/rates"
)

type Config struct {
	Port string
	// RateLimitPerMinute caps API requests per client IP.
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	DataDir      string
	SQLiteDBPath string
	PostgresURL  string

	// AMQP event fan-out (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Exchange rates
	RatesPrimaryURL      string
	RatesSecondaryURL    string
	RatesBaseCurrency    string
	RatesRefreshInterval time.Duration
	RatesCacheTTL        time.Duration
	RatesFetchTimeout    time.Duration
	// RatesCacheDir holds the snapshot file for the file-based backends.
	RatesCacheDir string
	// RatesRedisURL, when set, keeps the snapshot in Redis instead of the
	// storage backend so the server and worker share it.
	RatesRedisURL    string
	ConversionPolicy string

	SessionTTL time.Duration

	// Google Sheets mirror (worker)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	LogLevel  string
	LogFormat string
}

var validBackends = []string{"memory", "jsonfile", "sqlite", "postgres"}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("data_backend", "jsonfile")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("sqlite_db_path", "./data/budget.db")
	v.SetDefault("postgres_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "budgettracker")
	v.SetDefault("amqp_queue", "budget_events")
	v.SetDefault("rates_primary_url", rates.DefaultPrimaryURL)
	v.SetDefault("rates_secondary_url", rates.DefaultSecondaryURL)
	v.SetDefault("rates_base_currency", string(core.USD))
	v.SetDefault("rates_refresh_interval", rates.DefaultRefreshInterval)
	v.SetDefault("rates_cache_ttl", rates.DefaultTTL)
	v.SetDefault("rates_fetch_timeout", rates.DefaultFetchTimeout)
	v.SetDefault("rates_cache_dir", "./data")
	v.SetDefault("rates_redis_url", "")
	v.SetDefault("conversion_policy", "lenient")
	v.SetDefault("session_ttl", 7*24*time.Hour)
	v.SetDefault("google_spreadsheet_id", "")
	v.SetDefault("google_sheet_name", "Transactions")
	v.SetDefault("google_service_account_file", "")
	v.SetDefault("google_service_account_json", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads the configuration. The TOML file named by BUDGETTRACKER_CONFIG,
// or ./budgettracker.toml, is optional; environment variables such as PORT or
// DATA_BACKEND override it.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigType("toml")
	if path := os.Getenv("BUDGETTRACKER_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("budgettracker")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return &Config{
		Port:                     v.GetString("port"),
		RateLimitPerMinute:       v.GetInt("rate_limit_per_minute"),
		DataBackend:              strings.ToLower(v.GetString("data_backend")),
		DataDir:                  v.GetString("data_dir"),
		SQLiteDBPath:             v.GetString("sqlite_db_path"),
		PostgresURL:              v.GetString("postgres_url"),
		AMQPURL:                  v.GetString("amqp_url"),
		AMQPExchange:             v.GetString("amqp_exchange"),
		AMQPQueue:                v.GetString("amqp_queue"),
		RatesPrimaryURL:          v.GetString("rates_primary_url"),
		RatesSecondaryURL:        v.GetString("rates_secondary_url"),
		RatesBaseCurrency:        strings.ToUpper(v.GetString("rates_base_currency")),
		RatesRefreshInterval:     v.GetDuration("rates_refresh_interval"),
		RatesCacheTTL:            v.GetDuration("rates_cache_ttl"),
		RatesFetchTimeout:        v.GetDuration("rates_fetch_timeout"),
		RatesCacheDir:            v.GetString("rates_cache_dir"),
		RatesRedisURL:            v.GetString("rates_redis_url"),
		ConversionPolicy:         strings.ToLower(v.GetString("conversion_policy")),
		SessionTTL:               v.GetDuration("session_ttl"),
		GoogleSpreadsheetID:      v.GetString("google_spreadsheet_id"),
		GoogleSheetName:          v.GetString("google_sheet_name"),
		GoogleServiceAccountFile: v.GetString("google_service_account_file"),
		GoogleServiceAccountJSON: v.GetString("google_service_account_json"),
		LogLevel:                 strings.ToLower(v.GetString("log_level")),
		LogFormat:                strings.ToLower(v.GetString("log_format")),
	}, nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "jsonfile":
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using jsonfile backend")
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "postgres":
		if c.PostgresURL == "" {
			errors = append(errors, "POSTGRES_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL '%s': scheme must be 'postgres' or 'postgresql'", c.PostgresURL))
		}
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

	for name, raw := range map[string]string{"primary": c.RatesPrimaryURL, "secondary": c.RatesSecondaryURL} {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid %s rates URL '%s': must be http or https", name, raw))
		}
	}
	if c.RatesRedisURL != "" {
		if u, err := url.Parse(c.RatesRedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid rates Redis URL '%s': scheme must be 'redis' or 'rediss'", c.RatesRedisURL))
		}
	}
	if !core.Currency(c.RatesBaseCurrency).Supported() {
		errors = append(errors, fmt.Sprintf("unsupported rates base currency '%s'", c.RatesBaseCurrency))
	}
	if c.RatesRefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rates refresh interval %v: must be at least 1 second", c.RatesRefreshInterval))
	} else if c.RatesRefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rates refresh interval %v: must be at most 24 hours", c.RatesRefreshInterval))
	}
	if c.RatesCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates cache TTL %v: must be positive", c.RatesCacheTTL))
	}
	if c.RatesFetchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates fetch timeout %v: must be positive", c.RatesFetchTimeout))
	}
	if _, err := currency.ParsePolicy(c.ConversionPolicy); err != nil {
		errors = append(errors, fmt.Sprintf("invalid conversion policy '%s': must be 'lenient' or 'strict'", c.ConversionPolicy))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// SheetsEnabled reports whether the worker should mirror to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != "" && (c.GoogleServiceAccountFile != "" || c.GoogleServiceAccountJSON != "")
}

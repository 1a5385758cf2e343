package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend  string
	SQLiteDBPath string
	SeedFile     string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleReportSheet        string
	GoogleAllowanceSheet     string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	ReportXLSXPath           string
	AllowanceFile            string

	// Allowance resolution
	FallbackAllowance int64
	AllowanceCacheTTL time.Duration

	// Worker
	SemesterSweepInterval time.Duration
	SweepConcurrency      int
	RetryMaxAttempts      int

	// Timezone is the IANA zone semester boundaries are evaluated in.
	Timezone string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/kiptrack.db"),
		SeedFile:     getEnv("SEED_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kiptrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "student_changes"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleReportSheet:        getEnv("GOOGLE_REPORT_SHEET", "Laporan"),
		GoogleAllowanceSheet:     getEnv("GOOGLE_ALLOWANCE_SHEET", "Nominal"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		ReportXLSXPath:           getEnv("REPORT_XLSX_PATH", ""),
		AllowanceFile:            getEnv("ALLOWANCE_FILE", ""),

		FallbackAllowance: getEnvInt64("FALLBACK_ALLOWANCE", 8_000_000),
		AllowanceCacheTTL: getEnvDuration("ALLOWANCE_CACHE_TTL", 10*time.Minute),

		SemesterSweepInterval: getEnvDuration("SEMESTER_SWEEP_INTERVAL", time.Hour),
		SweepConcurrency:      getEnvInt("SWEEP_CONCURRENCY", 4),
		RetryMaxAttempts:      getEnvInt("RETRY_MAX_ATTEMPTS", 3),

		Timezone: getEnv("TIMEZONE", "Asia/Jakarta"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Location returns the configured timezone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
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

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SeedFile != "" {
		if _, err := os.Stat(c.SeedFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("seed file does not exist: %s", c.SeedFile))
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

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleReportSheet == "" {
			errors = append(errors, "Google report sheet name is required when a spreadsheet is configured")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.FallbackAllowance <= 0 {
		errors = append(errors, fmt.Sprintf("invalid fallback allowance %d: must be positive", c.FallbackAllowance))
	}
	if c.AllowanceCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid allowance cache TTL %v: must be at least 1 second", c.AllowanceCacheTTL))
	}

	if c.SemesterSweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid semester sweep interval %v: must be at least 1 minute", c.SemesterSweepInterval))
	} else if c.SemesterSweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid semester sweep interval %v: must be at most 24 hours", c.SemesterSweepInterval))
	}

	if c.SweepConcurrency < 1 || c.SweepConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid sweep concurrency %d: must be between 1 and 64", c.SweepConcurrency))
	}
	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid retry max attempts %d: must be between 1 and 10", c.RetryMaxAttempts))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
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

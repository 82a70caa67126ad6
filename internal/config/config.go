// Package config provides configuration management for the car market scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scraper   ScraperConfig
	Cache     CacheConfig
	Rates     RatesConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateRPS      float64 // API requests per second per client, 0 disables limiting
	RateBurst    int
}

// DatabaseConfig holds all datastore configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL builds a postgres connection string
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds the optional price-history store configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port for the redis client
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// ScraperConfig holds settings shared by all site adapters
type ScraperConfig struct {
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	MaxPages       int
	FetchTimeout   time.Duration
	BrowserTimeout time.Duration
	SettleDelay    time.Duration
	UserAgent      string
	ScraperAPIKey  string
	DailyBudget    int     // pages per source per day, 0 = unlimited
	HostRPS        float64 // static-fetch requests per second per host
}

// CacheConfig holds search-result cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// RatesConfig holds EUR/USD exchange rate configuration
type RatesConfig struct {
	EURUSDFallback float64
	APIURL         string
	CacheTTL       time.Duration
	Timeout        time.Duration
}

// SchedulerConfig holds watch-list rescan configuration
type SchedulerConfig struct {
	Enabled      bool
	Interval     time.Duration
	StartupDelay time.Duration
	EntryDelay   time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RateRPS:      getEnvAsFloat("SERVER_RATE_RPS", 10),
			RateBurst:    getEnvAsInt("SERVER_RATE_BURST", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "car_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "car_scanner"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", "localhost"),
				Port:     getEnv("REDIS_PORT", "6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Scraper: ScraperConfig{
			MinDelay:       getEnvAsDuration("SCRAPE_MIN_DELAY", 3*time.Second),
			MaxDelay:       getEnvAsDuration("SCRAPE_MAX_DELAY", 8*time.Second),
			MaxRetries:     getEnvAsInt("SCRAPE_MAX_RETRIES", 3),
			MaxPages:       getEnvAsInt("SCRAPE_MAX_PAGES", 5),
			FetchTimeout:   getEnvAsDuration("SCRAPE_FETCH_TIMEOUT", 30*time.Second),
			BrowserTimeout: getEnvAsDuration("SCRAPE_BROWSER_TIMEOUT", 90*time.Second),
			SettleDelay:    getEnvAsDuration("SCRAPE_SETTLE_DELAY", 4*time.Second),
			UserAgent:      getEnv("SCRAPE_USER_AGENT", defaultUserAgent),
			ScraperAPIKey:  getEnv("SCRAPER_API_KEY", ""),
			DailyBudget:    getEnvAsInt("SCRAPE_DAILY_BUDGET", 0),
			HostRPS:        getEnvAsFloat("SCRAPE_HOST_RPS", 0.5),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("SEARCH_CACHE_TTL", 6*time.Hour),
		},
		Rates: RatesConfig{
			EURUSDFallback: getEnvAsFloat("EUR_USD_RATE", 1.08),
			APIURL:         getEnv("EUR_USD_API", "https://api.frankfurter.app/latest?from=EUR&to=USD"),
			CacheTTL:       getEnvAsDuration("EUR_USD_CACHE_TTL", time.Hour),
			Timeout:        getEnvAsDuration("EUR_USD_TIMEOUT", 5*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvAsBool("SCHEDULER_ENABLED", true),
			Interval:     getEnvAsDuration("SCHEDULER_INTERVAL", 12*time.Hour),
			StartupDelay: getEnvAsDuration("SCHEDULER_STARTUP_DELAY", 60*time.Second),
			EntryDelay:   getEnvAsDuration("SCHEDULER_ENTRY_DELAY", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints that would otherwise surface as
// confusing runtime behavior
func (c *Config) Validate() error {
	if c.Scraper.MinDelay > c.Scraper.MaxDelay {
		return fmt.Errorf("SCRAPE_MIN_DELAY (%s) exceeds SCRAPE_MAX_DELAY (%s)",
			c.Scraper.MinDelay, c.Scraper.MaxDelay)
	}
	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPE_MAX_RETRIES must be at least 1, got %d", c.Scraper.MaxRetries)
	}
	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPE_MAX_PAGES must be at least 1, got %d", c.Scraper.MaxPages)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("SEARCH_CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

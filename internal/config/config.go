// Package config provides configuration management for the opportunity scanner application.
// It loads configuration from environment variables and .env files, and tier limits
// from a TOML tier table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Scan      ScanConfig
	Scraper   ScraperConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Tiers     TierTable
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
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
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// ScanConfig holds scan orchestration configuration
type ScanConfig struct {
	CreditCost     int           // Credits charged per scan (default: 5)
	Workers        int           // Concurrent scan workers (default: 4)
	OrphanDeadline time.Duration // Running scans older than this are flagged failed (default: 15m)
	JanitorPoll    time.Duration // How often the janitor sweeps for orphans (default: 1m)
}

// ScraperConfig holds scraper dispatch configuration
type ScraperConfig struct {
	SourceTimeout time.Duration // Per-platform fetch deadline (default: 20s)
	MaxConcurrent int           // Platforms fetched in parallel per scan (default: 4)
	UserAgent     string

	TwitterAPIURL      string
	TwitterBearerToken string
	RedditBase         string
	Subreddits         []string
	TelegramBase       string
	TelegramChannels   []string
	Web3CareerURL      string
	Web3CareerToken    string
	DexScreenerURL     string
	PumpFunURL         string
	CoinMarketCapURL   string
	CoinMarketCapKey   string
	CoinGeckoURL       string
}

// RateLimitConfig holds API rate limiting configuration (requests per minute)
type RateLimitConfig struct {
	FreeTier    int
	ProTier     int
	PremiumTier int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

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
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "opportunity_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "opportunity_scanner"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 60*time.Second),
		},
		Scan: ScanConfig{
			CreditCost:     getEnvAsInt("CREDIT_COST_SCAN", 5),
			Workers:        getEnvAsInt("SCAN_WORKERS", 4),
			OrphanDeadline: getEnvAsDuration("SCAN_ORPHAN_DEADLINE", 15*time.Minute),
			JanitorPoll:    getEnvAsDuration("SCAN_JANITOR_POLL", time.Minute),
		},
		Scraper: ScraperConfig{
			SourceTimeout: getEnvAsDuration("SCRAPER_SOURCE_TIMEOUT", 20*time.Second),
			MaxConcurrent: getEnvAsInt("SCRAPER_MAX_CONCURRENT", 4),
			UserAgent:     getEnv("SCRAPER_USER_AGENT", "opportunity-scanner/1.0"),

			TwitterAPIURL:      getEnv("TWITTER_API_URL", "https://api.twitter.com/2"),
			TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
			RedditBase:         getEnv("REDDIT_BASE_URL", "https://www.reddit.com"),
			Subreddits:         getEnvAsSlice("REDDIT_SUBREDDITS", []string{"forhire", "cryptojobs", "jobbit"}),
			TelegramBase:       getEnv("TELEGRAM_BASE_URL", "https://t.me/s"),
			TelegramChannels:   getEnvAsSlice("TELEGRAM_CHANNELS", []string{"cryptojobslist", "web3jobs"}),
			Web3CareerURL:      getEnv("WEB3CAREER_API_URL", "https://web3.career/api"),
			Web3CareerToken:    getEnv("WEB3CAREER_TOKEN", ""),
			DexScreenerURL:     getEnv("DEXSCREENER_API_URL", "https://api.dexscreener.com"),
			PumpFunURL:         getEnv("PUMPFUN_API_URL", "https://frontend-api.pump.fun"),
			CoinMarketCapURL:   getEnv("COINMARKETCAP_API_URL", "https://pro-api.coinmarketcap.com"),
			CoinMarketCapKey:   getEnv("COINMARKETCAP_API_KEY", ""),
			CoinGeckoURL:       getEnv("COINGECKO_API_URL", "https://api.coingecko.com/api/v3"),
		},
		RateLimit: RateLimitConfig{
			FreeTier:    getEnvAsInt("RATE_LIMIT_FREE_TIER", 60),
			ProTier:     getEnvAsInt("RATE_LIMIT_PRO_TIER", 300),
			PremiumTier: getEnvAsInt("RATE_LIMIT_PREMIUM_TIER", 1200),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	tiers, err := LoadTierTable(getEnv("TIER_TABLE_PATH", "tiers.toml"))
	if err != nil {
		return nil, fmt.Errorf("error loading tier table: %w", err)
	}
	config.Tiers = tiers

	return config, nil
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

// getEnvAsSlice gets a comma-separated environment variable with a default value
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			values = append(values, p)
		}
	}
	return values
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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Ledger      LedgerConfig     `mapstructure:"ledger"`
	Enrichment  EnrichmentConfig `mapstructure:"enrichment"`
	Analytics   AnalyticsConfig  `mapstructure:"analytics"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LedgerConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	PageSize        int    `mapstructure:"page_size"`
	CacheTTL        string `mapstructure:"cache_ttl"`
	MinInterval     string `mapstructure:"min_interval"`
	MaxRetries      int    `mapstructure:"max_retries"`
	RetryBaseDelay  string `mapstructure:"retry_base_delay"`
	CallTimeout     string `mapstructure:"call_timeout"`
}

type EnrichmentConfig struct {
	PriceAPIURL    string `mapstructure:"price_api_url"`
	RepoAPIURL     string `mapstructure:"repo_api_url"`
	AssetID        string `mapstructure:"asset_id"`
	Currency       string `mapstructure:"currency"`
	CacheTTL       string `mapstructure:"cache_ttl"`
	MinInterval    string `mapstructure:"min_interval"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryBaseDelay string `mapstructure:"retry_base_delay"`
	RetryMaxDelay  string `mapstructure:"retry_max_delay"`
	BatchSize      int    `mapstructure:"batch_size"`
	BatchPause     string `mapstructure:"batch_pause"`
	BlockSample    int    `mapstructure:"block_sample"`
	HTTPTimeout    int    `mapstructure:"http_timeout"`
}

type AnalyticsConfig struct {
	MovingAverageWindow int    `mapstructure:"moving_average_window"`
	RecommendationLimit int    `mapstructure:"recommendation_limit"`
	RefreshInterval     string `mapstructure:"refresh_interval"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	for name, value := range map[string]string{
		"ledger.cache_ttl":           config.Ledger.CacheTTL,
		"ledger.min_interval":        config.Ledger.MinInterval,
		"ledger.retry_base_delay":    config.Ledger.RetryBaseDelay,
		"ledger.call_timeout":        config.Ledger.CallTimeout,
		"enrichment.cache_ttl":       config.Enrichment.CacheTTL,
		"enrichment.min_interval":    config.Enrichment.MinInterval,
		"enrichment.retry_base_delay": config.Enrichment.RetryBaseDelay,
		"enrichment.retry_max_delay":  config.Enrichment.RetryMaxDelay,
		"enrichment.batch_pause":      config.Enrichment.BatchPause,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	if config.Ledger.PageSize <= 0 {
		return nil, fmt.Errorf("ledger page_size must be positive, got %d", config.Ledger.PageSize)
	}

	return &config, nil
}

// Duration parses a configured duration string, falling back when empty or
// malformed. Config validation catches malformed values at load time, so the
// fallback only fires for values injected after load.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Ledger
	viper.SetDefault("ledger.rpc_url", "http://localhost:8545")
	viper.SetDefault("ledger.contract_address", "")
	viper.SetDefault("ledger.page_size", 50)
	viper.SetDefault("ledger.cache_ttl", "5m")
	viper.SetDefault("ledger.min_interval", "100ms")
	viper.SetDefault("ledger.max_retries", 3)
	viper.SetDefault("ledger.retry_base_delay", "500ms")
	viper.SetDefault("ledger.call_timeout", "15s")

	// Enrichment
	viper.SetDefault("enrichment.price_api_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("enrichment.repo_api_url", "https://api.github.com")
	viper.SetDefault("enrichment.asset_id", "ethereum")
	viper.SetDefault("enrichment.currency", "usd")
	viper.SetDefault("enrichment.cache_ttl", "60m")
	viper.SetDefault("enrichment.min_interval", "1100ms")
	viper.SetDefault("enrichment.max_retries", 3)
	viper.SetDefault("enrichment.retry_base_delay", "1s")
	viper.SetDefault("enrichment.retry_max_delay", "30s")
	viper.SetDefault("enrichment.batch_size", 10)
	viper.SetDefault("enrichment.batch_pause", "500ms")
	viper.SetDefault("enrichment.block_sample", 10)
	viper.SetDefault("enrichment.http_timeout", 30)

	// Analytics
	viper.SetDefault("analytics.moving_average_window", 3)
	viper.SetDefault("analytics.recommendation_limit", 10)
	viper.SetDefault("analytics.refresh_interval", "5m")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

// MarketplaceConfig holds upstream marketplace API configuration
type MarketplaceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	ChunkSize         int           `yaml:"chunk_size"`
	ChunkDelay        time.Duration `yaml:"chunk_delay"`
	MaxPages          int           `yaml:"max_pages"`
	MaxOrders         int           `yaml:"max_orders"`
	PageSize          int           `yaml:"page_size"`
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// SyncConfig holds reconciliation engine configuration
type SyncConfig struct {
	LowStockFloor    int           `yaml:"low_stock_floor"`
	DivergenceRatio  float64       `yaml:"divergence_ratio"`
	StalenessWindow  time.Duration `yaml:"staleness_window"`
	MaxPerStrategy   int           `yaml:"max_per_strategy"`
	Concurrency      int           `yaml:"concurrency"`
	BestSellerWindow time.Duration `yaml:"best_seller_window"`
	AutoInterval     time.Duration `yaml:"auto_interval"`
	Accounts         []string      `yaml:"accounts"`
}

// DatabaseConfig holds persistence layer configuration
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// AuthConfig holds tenant verification configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the sync service
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Cache       CacheConfig       `yaml:"cache"`
	Sync        SyncConfig        `yaml:"sync"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not specified
	setDefaults(&cfg)

	// Environment variables take precedence over the file
	applyEnvironmentOverrides(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, for callers
// that run without a config file.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 50
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 100
	}

	if cfg.Marketplace.BaseURL == "" {
		cfg.Marketplace.BaseURL = "https://api.mercadolibre.com"
	}
	if cfg.Marketplace.RequestTimeout == 0 {
		cfg.Marketplace.RequestTimeout = 15 * time.Second
	}
	if cfg.Marketplace.RequestsPerSecond == 0 {
		cfg.Marketplace.RequestsPerSecond = 8
	}
	if cfg.Marketplace.Burst == 0 {
		cfg.Marketplace.Burst = 16
	}
	if cfg.Marketplace.ChunkSize == 0 {
		cfg.Marketplace.ChunkSize = 20
	}
	if cfg.Marketplace.ChunkDelay == 0 {
		cfg.Marketplace.ChunkDelay = 150 * time.Millisecond
	}
	if cfg.Marketplace.MaxPages == 0 {
		cfg.Marketplace.MaxPages = 10
	}
	if cfg.Marketplace.MaxOrders == 0 {
		cfg.Marketplace.MaxOrders = 500
	}
	if cfg.Marketplace.PageSize == 0 {
		cfg.Marketplace.PageSize = 50
	}

	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 5000
	}

	if cfg.Sync.LowStockFloor == 0 {
		cfg.Sync.LowStockFloor = 5
	}
	if cfg.Sync.DivergenceRatio == 0 {
		cfg.Sync.DivergenceRatio = 0.5
	}
	if cfg.Sync.StalenessWindow == 0 {
		cfg.Sync.StalenessWindow = 24 * time.Hour
	}
	if cfg.Sync.MaxPerStrategy == 0 {
		cfg.Sync.MaxPerStrategy = 50
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 5
	}
	if cfg.Sync.BestSellerWindow == 0 {
		cfg.Sync.BestSellerWindow = 90 * 24 * time.Hour
	}

	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if baseURL := os.Getenv("MARKETPLACE_BASE_URL"); baseURL != "" {
		cfg.Marketplace.BaseURL = baseURL
	}
	if clientID := os.Getenv("MARKETPLACE_CLIENT_ID"); clientID != "" {
		cfg.Marketplace.ClientID = clientID
	}
	if clientSecret := os.Getenv("MARKETPLACE_CLIENT_SECRET"); clientSecret != "" {
		cfg.Marketplace.ClientSecret = clientSecret
	}

	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = p
		}
	}
	if dbName := os.Getenv("DATABASE_NAME"); dbName != "" {
		cfg.Database.Database = dbName
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DATABASE_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Marketplace.BaseURL == "" {
		return fmt.Errorf("marketplace.base_url is required")
	}
	if c.Marketplace.ChunkSize < 1 {
		return fmt.Errorf("marketplace.chunk_size must be positive")
	}
	if c.Sync.DivergenceRatio <= 0 || c.Sync.DivergenceRatio >= 1 {
		return fmt.Errorf("sync.divergence_ratio must be between 0 and 1")
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be positive")
	}
	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("database.host is required when database is enabled")
	}
	return nil
}

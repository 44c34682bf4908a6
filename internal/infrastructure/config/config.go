package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Marketplace MarketplaceConfig `koanf:"marketplace"`
	Security    SecurityConfig    `koanf:"security"`
	Sniper      SniperConfig      `koanf:"sniper"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MinIdleConns    int           `koanf:"min_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// MarketplaceConfig holds the outbound marketplace API settings. Env selects
// the sandbox or production base URL unless BaseURL overrides it explicitly.
type MarketplaceConfig struct {
	Env              string        `koanf:"env"`
	BaseURL          string        `koanf:"base_url"`
	ClientID         string        `koanf:"client_id"`
	ClientSecret     string        `koanf:"client_secret"`
	UserRefreshToken string        `koanf:"user_refresh_token"`
	ReadTimeout      time.Duration `koanf:"read_timeout"`
	BidTimeout       time.Duration `koanf:"bid_timeout"`
	TokenTimeout     time.Duration `koanf:"token_timeout"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	APIUsername string          `koanf:"api_username"`
	APIPassword string          `koanf:"api_password"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

// SniperConfig holds the bidding engine timing parameters.
type SniperConfig struct {
	TickInterval       time.Duration `koanf:"tick_interval"`
	BidOffset          time.Duration `koanf:"bid_offset"`
	PreCheckOffset     time.Duration `koanf:"pre_check_offset"`
	PriceTTL           time.Duration `koanf:"price_ttl"`
	RefreshParallelism int           `koanf:"refresh_parallelism"`
	OutcomeSettleDelay time.Duration `koanf:"outcome_settle_delay"`
}

const (
	sandboxBaseURL    = "https://api.sandbox.ebay.com"
	productionBaseURL = "https://api.ebay.com"
)

// ResolveBaseURL returns the effective marketplace base URL.
func (m MarketplaceConfig) ResolveBaseURL() string {
	if m.BaseURL != "" {
		return m.BaseURL
	}
	if m.Env == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MinIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Marketplace: MarketplaceConfig{
			Env:          "sandbox",
			ReadTimeout:  5 * time.Second,
			BidTimeout:   600 * time.Millisecond,
			TokenTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:   "change-me-in-production",
			TokenExpiry: 30 * 24 * time.Hour,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Sniper: SniperConfig{
			TickInterval:       500 * time.Millisecond,
			BidOffset:          3 * time.Second,
			PreCheckOffset:     60 * time.Second,
			PriceTTL:           60 * time.Second,
			RefreshParallelism: 5,
			OutcomeSettleDelay: 30 * time.Second,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else {
		_ = k.Load(file.Provider("configs/config.yaml"), yaml.Parser())
	}

	if err := k.Load(env.Provider("SNIPE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SNIPE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Marketplace.Env != "sandbox" && c.Marketplace.Env != "production" {
		return fmt.Errorf("marketplace.env must be sandbox or production, got %q", c.Marketplace.Env)
	}
	if c.Sniper.BidOffset <= 0 {
		return fmt.Errorf("sniper.bid_offset must be positive")
	}
	if c.Sniper.RefreshParallelism < 1 {
		return fmt.Errorf("sniper.refresh_parallelism must be at least 1")
	}
	if c.Database.MaxOpenConns < c.Sniper.RefreshParallelism+2 {
		return fmt.Errorf("database.max_open_conns must be at least refresh_parallelism+2")
	}
	return nil
}

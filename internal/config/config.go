// Package config provides configuration management for the order engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig     `mapstructure:"trading"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Store       StoreConfig       `mapstructure:"store"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode            string `mapstructure:"mode"`             // "live", "paper"
	DefaultExchange string `mapstructure:"default_exchange"` // NSE, BSE
	MaxOrderQty     int    `mapstructure:"max_order_qty"`
	AutoSubmit      bool   `mapstructure:"auto_submit"` // submit strategy signals without review
}

// ReconcileConfig holds reconciliation loop configuration.
type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// GatewayConfig holds broker gateway configuration.
type GatewayConfig struct {
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	InitialBalance float64       `mapstructure:"initial_balance"` // paper mode only
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect API credentials.
type KiteCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	UserID    string `mapstructure:"user_id"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/boursicotor"
	}
	return filepath.Join(home, ".config", "boursicotor")
}

// Default returns a configuration with sane defaults, used when no config
// file exists yet and in tests.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Mode:            "paper",
			DefaultExchange: "NSE",
			MaxOrderQty:     10000,
		},
		Reconcile: ReconcileConfig{
			Interval:    time.Minute,
			MaxAttempts: 3,
		},
		Gateway: GatewayConfig{
			CallTimeout:    10 * time.Second,
			InitialBalance: 1000000,
		},
		Store: StoreConfig{
			Path: filepath.Join(DefaultConfigDir(), "orders.db"),
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.default_exchange", "NSE")
	v.SetDefault("trading.max_order_qty", 10000)
	v.SetDefault("reconcile.interval", "1m")
	v.SetDefault("reconcile.max_attempts", 3)
	v.SetDefault("gateway.call_timeout", "10s")
	v.SetDefault("gateway.initial_balance", 1000000.0)
	v.SetDefault("store.path", filepath.Join(configDir, "orders.db"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_USER_ID"); v != "" {
		cfg.Credentials.Kite.UserID = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}
	if c.Trading.MaxOrderQty < 0 {
		return fmt.Errorf("max_order_qty must be non-negative")
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	if c.Gateway.CallTimeout <= 0 {
		return fmt.Errorf("gateway call_timeout must be positive")
	}
	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

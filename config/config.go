// Package config loads application configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreFile   = "file"
)

// Config contains client configuration parameters.
type Config struct {
	LogLevel  int       `env:"LOG_LEVEL" envDefault:"0"`
	Authority Authority `envPrefix:"AUTHORITY_"`
	App       App       `envPrefix:"APP_"`
	Chain     Chain     `envPrefix:"CHAIN_"`
	Store     Store     `envPrefix:"STORE_"`
	Connect   Connect   `envPrefix:"CONNECT_"`
}

// Authority contains remote authority parameters.
type Authority struct {
	URL            string  `env:"URL" envDefault:"http://localhost:8080"`
	ClientID       string  `env:"CLIENT_ID" envDefault:"walletauth-dev"`
	TimeoutSeconds int     `env:"TIMEOUT_SECONDS" envDefault:"15"`
	RatePerSecond  float64 `env:"RATE_PER_SECOND" envDefault:"5"`
	Burst          int     `env:"BURST" envDefault:"10"`
}

// App contains the application identity baked into sign-in challenges.
type App struct {
	Domain    string `env:"DOMAIN" envDefault:"market.example.org"`
	URI       string `env:"URI" envDefault:"https://market.example.org"`
	Statement string `env:"STATEMENT" envDefault:"Sign in to the IP marketplace."`
}

// Chain contains network parameters.
type Chain struct {
	ID             uint64 `env:"ID" envDefault:"1"`
	Name           string `env:"NAME" envDefault:"Ethereum Mainnet"`
	RPCURL         string `env:"RPC_URL" envDefault:"https://eth.llamarpc.com"`
	CurrencyName   string `env:"CURRENCY_NAME" envDefault:"Ether"`
	CurrencySymbol string `env:"CURRENCY_SYMBOL" envDefault:"ETH"`
	MarketAddress  string `env:"MARKET_ADDRESS" envDefault:"0x0000000000000000000000000000000000000000"`
}

// Store contains secure store parameters.
type Store struct {
	Backend    string `env:"BACKEND" envDefault:"memory"`
	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	FilePath   string `env:"FILE_PATH" envDefault:""`
	Passphrase string `env:"PASSPHRASE" envDefault:""`
}

// Connect contains connect retry parameters.
type Connect struct {
	RetryAttempts int `env:"RETRY_ATTEMPTS" envDefault:"2"`
	RetryDelayMS  int `env:"RETRY_DELAY_MS" envDefault:"1000"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.Store.Backend {
	case StoreMemory, StoreRedis, StoreFile:
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Store.Backend == StoreFile && (cfg.Store.FilePath == "" || cfg.Store.Passphrase == "") {
		return nil, fmt.Errorf("file store requires STORE_FILE_PATH and STORE_PASSPHRASE")
	}

	return &cfg, nil
}

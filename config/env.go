package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvExchangeRateAPIKey = "EXCHANGERATE_API_KEY"
	EnvDataDir            = "RATEHUB_DATA_DIR"
	EnvLogLevel           = "RATEHUB_LOG_LEVEL"
	EnvBinanceAPIKey      = "BINANCE_API_KEY"
	EnvBinanceAPISecret   = "BINANCE_API_SECRET"
	EnvBybitAPIKey        = "BYBIT_API_KEY"
	EnvBybitAPISecret     = "BYBIT_API_SECRET"
)

// loadDotEnv loads .env from the working directory and from dir.
// Variables already set in the environment win.
func loadDotEnv(dir string) {
	candidates := []string{".env"}
	if dir != "" && dir != "." {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvExchangeRateAPIKey); v != "" {
		cfg.Sources.ExchangeRate.APIKey = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvBinanceAPIKey); v != "" {
		cfg.Sources.Binance.APIKey = v
	}
	if v := os.Getenv(EnvBinanceAPISecret); v != "" {
		cfg.Sources.Binance.APISecret = v
	}
	if v := os.Getenv(EnvBybitAPIKey); v != "" {
		cfg.Sources.Bybit.APIKey = v
	}
	if v := os.Getenv(EnvBybitAPISecret); v != "" {
		cfg.Sources.Bybit.APISecret = v
	}
}

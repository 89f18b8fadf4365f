// Package config loads ratehub settings from a YAML file, a .env file and
// the process environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/ratehub/internal/domain"
)

const (
	DefaultDataDir        = "./data"
	DefaultLogsDir        = "./logs"
	DefaultLogLevel       = "info"
	DefaultRatesTTL       = 300 * time.Second
	DefaultBaseCurrency   = "USD"
	DefaultRequestTimeout = 10 * time.Second
	DefaultUpdateInterval = 5 * time.Minute
	DefaultUpdateRetries  = 2
	DefaultListenAddr     = ":8080"
	DefaultTLSCacheDir    = "./certs"

	DefaultCoinGeckoURL    = "https://api.coingecko.com/api/v3/simple/price"
	DefaultExchangeRateURL = "https://v6.exchangerate-api.com/v6"
	DefaultHyperliquidURL  = "https://api.hyperliquid.xyz"

	journalFileName  = "exchange_rates.json"
	snapshotFileName = "rates.json"
	walDirName       = "wal"
)

// Source names, also the default fetch order.
const (
	SourceCoinGecko    = "coingecko"
	SourceExchangeRate = "exchangerate"
	SourceBinance      = "binance"
	SourceBybit        = "bybit"
	SourceHyperliquid  = "hyperliquid"
)

// Config is the fully parsed application configuration.
type Config struct {
	DataDir        string        `validate:"required"`
	LogsDir        string        `validate:"required"`
	LogLevel       string        `validate:"oneof=debug info warn error"`
	RatesTTL       time.Duration `validate:"gt=0"`
	DefaultBase    string        `validate:"required,registered_currency"`
	RequestTimeout time.Duration `validate:"gt=0"`
	UpdateInterval time.Duration `validate:"gt=0"`
	UpdateRetries  int           `validate:"gte=0,lte=10"`
	ListenAddr     string        `validate:"required"`
	TLSDomains     []string      `validate:"dive,hostname"`
	TLSCacheDir    string
	Sources        SourcesConfig
}

// SourcesConfig configures every rate source. Order is the order in which
// fetched results are folded into the journal.
type SourcesConfig struct {
	Order        []string `validate:"dive,oneof=coingecko exchangerate binance bybit hyperliquid"`
	CoinGecko    CoinGeckoConfig
	ExchangeRate ExchangeRateConfig
	Binance      ExchangeConfig
	Bybit        ExchangeConfig
	Hyperliquid  HyperliquidConfig
}

// CoinGeckoConfig maps currency codes to CoinGecko coin ids.
type CoinGeckoConfig struct {
	Enabled    bool
	URL        string `validate:"required_if=Enabled true,omitempty,url"`
	VsCurrency string `validate:"required_if=Enabled true"`
	Coins      map[string]string
}

// ExchangeRateConfig configures the fiat provider. APIKey usually comes
// from EXCHANGERATE_API_KEY.
type ExchangeRateConfig struct {
	Enabled    bool
	URL        string `validate:"required_if=Enabled true,omitempty,url"`
	APIKey     string
	Base       string
	Currencies []string
}

// ExchangeConfig configures a spot exchange ticker source.
type ExchangeConfig struct {
	Enabled   bool
	Symbols   []string
	Quote     string `validate:"required_if=Enabled true"`
	APIKey    string
	APISecret string
}

// HyperliquidConfig configures the Hyperliquid mid price source.
type HyperliquidConfig struct {
	Enabled bool
	URL     string `validate:"required_if=Enabled true,omitempty,url"`
	Coins   []string
	Quote   string `validate:"required_if=Enabled true"`
}

// ConfigTmp mirrors the YAML layout before durations and defaults are applied.
type ConfigTmp struct {
	DataDir         string     `yaml:"data_dir,omitempty"`
	LogsDir         string     `yaml:"logs_dir,omitempty"`
	LogLevel        string     `yaml:"log_level,omitempty"`
	RatesTTL        string     `yaml:"rates_ttl,omitempty"`
	RatesTTLSeconds int        `yaml:"rates_ttl_seconds,omitempty"`
	DefaultBase     string     `yaml:"default_base_currency,omitempty"`
	RequestTimeout  string     `yaml:"request_timeout,omitempty"`
	UpdateInterval  string     `yaml:"update_interval,omitempty"`
	UpdateRetries   *int       `yaml:"update_retries,omitempty"`
	ListenAddr      string     `yaml:"listen_addr,omitempty"`
	TLSDomains      []string   `yaml:"tls_domains,omitempty"`
	TLSCacheDir     string     `yaml:"tls_cache_dir,omitempty"`
	Sources         SourcesTmp `yaml:"sources,omitempty"`
}

// SourcesTmp is the YAML form of SourcesConfig.
type SourcesTmp struct {
	Order        []string         `yaml:"order,omitempty"`
	CoinGecko    *CoinGeckoTmp    `yaml:"coingecko,omitempty"`
	ExchangeRate *ExchangeRateTmp `yaml:"exchangerate,omitempty"`
	Binance      *ExchangeTmp     `yaml:"binance,omitempty"`
	Bybit        *ExchangeTmp     `yaml:"bybit,omitempty"`
	Hyperliquid  *HyperliquidTmp  `yaml:"hyperliquid,omitempty"`
}

type CoinGeckoTmp struct {
	Enabled    *bool             `yaml:"enabled,omitempty"`
	URL        string            `yaml:"url,omitempty"`
	VsCurrency string            `yaml:"vs_currency,omitempty"`
	Coins      map[string]string `yaml:"coins,omitempty"`
}

type ExchangeRateTmp struct {
	Enabled    *bool    `yaml:"enabled,omitempty"`
	URL        string   `yaml:"url,omitempty"`
	APIKey     string   `yaml:"api_key,omitempty"`
	Base       string   `yaml:"base,omitempty"`
	Currencies []string `yaml:"currencies,omitempty"`
}

type ExchangeTmp struct {
	Enabled   *bool    `yaml:"enabled,omitempty"`
	Symbols   []string `yaml:"symbols,omitempty"`
	Quote     string   `yaml:"quote,omitempty"`
	APIKey    string   `yaml:"api_key,omitempty"`
	APISecret string   `yaml:"api_secret,omitempty"`
}

type HyperliquidTmp struct {
	Enabled *bool    `yaml:"enabled,omitempty"`
	URL     string   `yaml:"url,omitempty"`
	Coins   []string `yaml:"coins,omitempty"`
	Quote   string   `yaml:"quote,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir:        DefaultDataDir,
		LogsDir:        DefaultLogsDir,
		LogLevel:       DefaultLogLevel,
		RatesTTL:       DefaultRatesTTL,
		DefaultBase:    DefaultBaseCurrency,
		RequestTimeout: DefaultRequestTimeout,
		UpdateInterval: DefaultUpdateInterval,
		UpdateRetries:  DefaultUpdateRetries,
		ListenAddr:     DefaultListenAddr,
		TLSCacheDir:    DefaultTLSCacheDir,
		Sources: SourcesConfig{
			Order: []string{SourceCoinGecko, SourceExchangeRate, SourceBinance, SourceBybit, SourceHyperliquid},
			CoinGecko: CoinGeckoConfig{
				Enabled:    true,
				URL:        DefaultCoinGeckoURL,
				VsCurrency: "usd",
				Coins: map[string]string{
					"BTC": "bitcoin",
					"ETH": "ethereum",
					"SOL": "solana",
				},
			},
			ExchangeRate: ExchangeRateConfig{
				Enabled:    true,
				URL:        DefaultExchangeRateURL,
				Base:       DefaultBaseCurrency,
				Currencies: []string{"EUR", "GBP", "RUB"},
			},
			Binance: ExchangeConfig{
				Symbols: []string{"BTC", "ETH", "SOL"},
				Quote:   "USDT",
			},
			Bybit: ExchangeConfig{
				Symbols: []string{"BTC", "ETH", "SOL"},
				Quote:   "USDT",
			},
			Hyperliquid: HyperliquidConfig{
				URL:   DefaultHyperliquidURL,
				Coins: []string{"BTC", "ETH", "SOL"},
				Quote: "USD",
			},
		},
	}
}

// Load reads the YAML file at path (a missing file yields defaults), loads
// .env files and applies environment overrides, then validates the result.
func Load(path string) (Config, error) {
	loadDotEnv(filepath.Dir(path))

	var tmp ConfigTmp
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &tmp); err != nil {
				return Config{}, errors.Wrapf(err, "decode config %s", path)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg, err := tmp.ToConfig()
	if err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ToConfig applies defaults and parses durations.
func (c ConfigTmp) ToConfig() (Config, error) {
	cfg := Default()

	setString(&cfg.DataDir, c.DataDir)
	setString(&cfg.LogsDir, c.LogsDir)
	setString(&cfg.LogLevel, strings.ToLower(c.LogLevel))
	setString(&cfg.DefaultBase, strings.ToUpper(c.DefaultBase))
	setString(&cfg.ListenAddr, c.ListenAddr)
	setString(&cfg.TLSCacheDir, c.TLSCacheDir)
	if len(c.TLSDomains) > 0 {
		cfg.TLSDomains = c.TLSDomains
	}
	if c.UpdateRetries != nil {
		cfg.UpdateRetries = *c.UpdateRetries
	}

	if c.RatesTTLSeconds > 0 {
		cfg.RatesTTL = time.Duration(c.RatesTTLSeconds) * time.Second
	}
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"rates_ttl", c.RatesTTL, &cfg.RatesTTL},
		{"request_timeout", c.RequestTimeout, &cfg.RequestTimeout},
		{"update_interval", c.UpdateInterval, &cfg.UpdateInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect '%s' param in yaml config (e.g. 5m)", d.name)
		}
		*d.dst = parsed
	}

	c.Sources.apply(&cfg.Sources, cfg.DefaultBase)

	return cfg, nil
}

func (s SourcesTmp) apply(dst *SourcesConfig, base string) {
	if len(s.Order) > 0 {
		dst.Order = s.Order
	}
	dst.ExchangeRate.Base = base

	if t := s.CoinGecko; t != nil {
		setBool(&dst.CoinGecko.Enabled, t.Enabled)
		setString(&dst.CoinGecko.URL, t.URL)
		setString(&dst.CoinGecko.VsCurrency, strings.ToLower(t.VsCurrency))
		if len(t.Coins) > 0 {
			dst.CoinGecko.Coins = upperKeys(t.Coins)
		}
	}
	if t := s.ExchangeRate; t != nil {
		setBool(&dst.ExchangeRate.Enabled, t.Enabled)
		setString(&dst.ExchangeRate.URL, t.URL)
		setString(&dst.ExchangeRate.APIKey, t.APIKey)
		setString(&dst.ExchangeRate.Base, strings.ToUpper(t.Base))
		if len(t.Currencies) > 0 {
			dst.ExchangeRate.Currencies = upperAll(t.Currencies)
		}
	}
	for _, ex := range []struct {
		tmp *ExchangeTmp
		dst *ExchangeConfig
	}{{s.Binance, &dst.Binance}, {s.Bybit, &dst.Bybit}} {
		if ex.tmp == nil {
			continue
		}
		setBool(&ex.dst.Enabled, ex.tmp.Enabled)
		setString(&ex.dst.Quote, strings.ToUpper(ex.tmp.Quote))
		setString(&ex.dst.APIKey, ex.tmp.APIKey)
		setString(&ex.dst.APISecret, ex.tmp.APISecret)
		if len(ex.tmp.Symbols) > 0 {
			ex.dst.Symbols = upperAll(ex.tmp.Symbols)
		}
	}
	if t := s.Hyperliquid; t != nil {
		setBool(&dst.Hyperliquid.Enabled, t.Enabled)
		setString(&dst.Hyperliquid.URL, t.URL)
		setString(&dst.Hyperliquid.Quote, strings.ToUpper(t.Quote))
		if len(t.Coins) > 0 {
			dst.Hyperliquid.Coins = upperAll(t.Coins)
		}
	}
}

var validate = newValidator()

// newValidator adds the "registered_currency" tag, which accepts registered codes only.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("registered_currency", func(fl validator.FieldLevel) bool {
		_, err := domain.GetCurrency(fl.Field().String())
		return err == nil
	})

	return v
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	return nil
}

// JournalPath is the append-only journal file.
func (c Config) JournalPath() string {
	return filepath.Join(c.DataDir, journalFileName)
}

// SnapshotPath is the derived snapshot file.
func (c Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, snapshotFileName)
}

// CyclesWALDir is the directory of the refresh cycle log.
func (c Config) CyclesWALDir() string {
	return filepath.Join(c.DataDir, walDirName, "cycles")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}

	return out
}

func upperKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}

	return out
}

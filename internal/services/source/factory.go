package source

import (
	"fmt"
	"time"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/clients"
)

// FromConfig builds the enabled sources in configured order. This is the
// single point where provider names are mapped to implementations.
func FromConfig(cfg config.SourcesConfig, timeout time.Duration) ([]Source, error) {
	httpClient := clients.NewHTTPClient(timeout)

	sources := make([]Source, 0, len(cfg.Order))
	seen := make(map[string]bool, len(cfg.Order))
	for _, name := range cfg.Order {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case config.SourceCoinGecko:
			if cfg.CoinGecko.Enabled {
				sources = append(sources, NewCoinGecko(cfg.CoinGecko, httpClient))
			}
		case config.SourceExchangeRate:
			if cfg.ExchangeRate.Enabled {
				sources = append(sources, NewExchangeRate(cfg.ExchangeRate, httpClient))
			}
		case config.SourceBinance:
			if cfg.Binance.Enabled {
				client := clients.NewBinanceClient(cfg.Binance.APIKey, cfg.Binance.APISecret)
				sources = append(sources, NewBinance(client, cfg.Binance))
			}
		case config.SourceBybit:
			if cfg.Bybit.Enabled {
				client := clients.NewBybitClient(cfg.Bybit.APIKey, cfg.Bybit.APISecret)
				sources = append(sources, NewBybit(client, cfg.Bybit))
			}
		case config.SourceHyperliquid:
			if cfg.Hyperliquid.Enabled {
				sources = append(sources, NewHyperliquid(cfg.Hyperliquid))
			}
		default:
			return nil, fmt.Errorf("unsupported rate source: %s", name)
		}
	}

	return sources, nil
}

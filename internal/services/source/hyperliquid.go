package source

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/clients"
	"github.com/vadiminshakov/ratehub/internal/domain"
)

// Hyperliquid reads mid prices from the public Info API.
type Hyperliquid struct {
	allMids func(ctx context.Context) (map[string]string, error)
	coins   []string
	quote   string
}

// NewHyperliquid creates a Hyperliquid source. The Info client is built on
// first use.
func NewHyperliquid(cfg config.HyperliquidConfig) *Hyperliquid {
	var (
		once sync.Once
		info *hyperliquid.Info
	)

	return &Hyperliquid{
		allMids: func(ctx context.Context) (map[string]string, error) {
			once.Do(func() {
				info = clients.NewHyperliquidInfo(context.Background(), cfg.URL)
			})
			if info == nil {
				return nil, errors.New("hyperliquid info client is nil")
			}

			return info.AllMids(ctx)
		},
		coins: cfg.Coins,
		quote: strings.ToUpper(cfg.Quote),
	}
}

func (h *Hyperliquid) Name() string { return config.SourceHyperliquid }

func (h *Hyperliquid) Fetch(ctx context.Context) (map[domain.Pair]decimal.Decimal, error) {
	if len(h.coins) == 0 {
		return nil, &domain.ExternalFetchError{Source: h.Name(), Op: "configure", Err: errors.New("no coins configured"), Fatal: true}
	}

	mids, err := h.allMids(ctx)
	if err != nil {
		return nil, domain.NewFetchError(h.Name(), "all mids", err)
	}

	// mids are keyed by base coin, e.g. "BTC"
	out := make(map[domain.Pair]decimal.Decimal, len(h.coins))
	for _, coin := range h.coins {
		rate, ok := parseRate(mids[coin])
		if !ok {
			continue
		}
		put(out, coin, h.quote, rate)
	}

	if len(out) == 0 {
		return nil, domain.NewFetchError(h.Name(), "parse response", errors.New("hyperliquid returned no usable mids"))
	}

	return out, nil
}

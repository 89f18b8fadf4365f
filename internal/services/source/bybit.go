package source

import (
	"context"
	"strings"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/domain"
)

// Bybit reads last spot prices from V5 market tickers.
type Bybit struct {
	tickers func(ctx context.Context) (map[string]string, error)
	symbols []string
	quote   string
}

// NewBybit creates a Bybit source over client.
func NewBybit(client *bybit.Client, cfg config.ExchangeConfig) *Bybit {
	return &Bybit{
		tickers: func(ctx context.Context) (map[string]string, error) {
			return callWithContext(ctx, func() (map[string]string, error) {
				res, err := client.V5().Market().GetTickers(bybit.V5GetTickersParam{Category: "spot"})
				if err != nil {
					return nil, err
				}
				if res == nil || res.Result.Spot == nil {
					return nil, errors.New("bybit API returned empty spot tickers")
				}

				last := make(map[string]string, len(res.Result.Spot.List))
				for _, item := range res.Result.Spot.List {
					last[string(item.Symbol)] = item.LastPrice
				}

				return last, nil
			})
		},
		symbols: cfg.Symbols,
		quote:   strings.ToUpper(cfg.Quote),
	}
}

func (b *Bybit) Name() string { return config.SourceBybit }

func (b *Bybit) Fetch(ctx context.Context) (map[domain.Pair]decimal.Decimal, error) {
	if len(b.symbols) == 0 {
		return nil, &domain.ExternalFetchError{Source: b.Name(), Op: "configure", Err: errors.New("no symbols configured"), Fatal: true}
	}

	last, err := b.tickers(ctx)
	if err != nil {
		return nil, domain.NewFetchError(b.Name(), "get tickers", err)
	}

	out := make(map[domain.Pair]decimal.Decimal, len(b.symbols))
	for _, code := range b.symbols {
		rate, ok := parseRate(last[code+b.quote])
		if !ok {
			continue
		}
		put(out, code, b.quote, rate)
	}

	if len(out) == 0 {
		return nil, domain.NewFetchError(b.Name(), "parse response", errors.New("bybit returned no usable prices"))
	}

	return out, nil
}

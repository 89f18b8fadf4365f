package source

import (
	"context"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/domain"
)

// Binance reads last spot prices for <CODE><QUOTE> symbols.
type Binance struct {
	listPrices func(ctx context.Context) ([]*binance.SymbolPrice, error)
	symbols    []string
	quote      string
}

// NewBinance creates a Binance source over client.
func NewBinance(client *binance.Client, cfg config.ExchangeConfig) *Binance {
	return &Binance{
		listPrices: func(ctx context.Context) ([]*binance.SymbolPrice, error) {
			return client.NewListPricesService().Do(ctx)
		},
		symbols: cfg.Symbols,
		quote:   strings.ToUpper(cfg.Quote),
	}
}

func (b *Binance) Name() string { return config.SourceBinance }

func (b *Binance) Fetch(ctx context.Context) (map[domain.Pair]decimal.Decimal, error) {
	if len(b.symbols) == 0 {
		return nil, &domain.ExternalFetchError{Source: b.Name(), Op: "configure", Err: errors.New("no symbols configured"), Fatal: true}
	}

	prices, err := b.listPrices(ctx)
	if err != nil {
		return nil, domain.NewFetchError(b.Name(), "list prices", err)
	}

	bySymbol := make(map[string]string, len(prices))
	for _, p := range prices {
		if p == nil {
			continue
		}
		bySymbol[p.Symbol] = p.Price
	}

	out := make(map[domain.Pair]decimal.Decimal, len(b.symbols))
	for _, code := range b.symbols {
		rate, ok := parseRate(bySymbol[code+b.quote])
		if !ok {
			continue
		}
		put(out, code, b.quote, rate)
	}

	if len(out) == 0 {
		return nil, domain.NewFetchError(b.Name(), "parse response", errors.New("binance returned no usable prices"))
	}

	return out, nil
}

// Package source implements rate providers. Every provider returns pairs in
// price orientation: the rate of FROM_TO is the price of one FROM in TO.
package source

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ratehub/internal/domain"
)

// Source fetches current rates from one external provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (map[domain.Pair]decimal.Decimal, error)
}

// parseRate parses a textual number and accepts only finite positive values.
func parseRate(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}

	return d, true
}

// put stores rate under FROM_TO when both codes are registered and distinct.
func put(out map[domain.Pair]decimal.Decimal, from, to string, rate decimal.Decimal) bool {
	if !rate.IsPositive() {
		return false
	}

	pair, err := domain.NewPair(from, to)
	if err != nil || pair.From == pair.To {
		return false
	}
	out[pair] = rate

	return true
}

// callWithContext runs fn, which cannot be cancelled itself, and gives up
// when ctx is done.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/domain"
)

// CoinGecko reads crypto prices from the /simple/price endpoint.
type CoinGecko struct {
	client     *http.Client
	url        string
	vsCurrency string
	coins      map[string]string
}

// NewCoinGecko creates a CoinGecko source. coins maps currency codes to
// CoinGecko coin ids.
func NewCoinGecko(cfg config.CoinGeckoConfig, client *http.Client) *CoinGecko {
	if client == nil {
		client = http.DefaultClient
	}

	return &CoinGecko{
		client:     client,
		url:        cfg.URL,
		vsCurrency: strings.ToLower(cfg.VsCurrency),
		coins:      cfg.Coins,
	}
}

func (c *CoinGecko) Name() string { return config.SourceCoinGecko }

// Fetch returns CODE_<VS> prices for every configured coin.
func (c *CoinGecko) Fetch(ctx context.Context) (map[domain.Pair]decimal.Decimal, error) {
	codes := make([]string, 0, len(c.coins))
	for code := range c.coins {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	ids := make([]string, 0, len(codes))
	for _, code := range codes {
		if id := c.coins[code]; id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, &domain.ExternalFetchError{Source: c.Name(), Op: "configure", Err: errors.New("no coin ids configured"), Fatal: true}
	}

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", c.vsCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.NewFetchError(c.Name(), "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewFetchError(c.Name(), "request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewFetchError(c.Name(), "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFetchError(c.Name(), "request",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewFetchError(c.Name(), "decode response", err)
	}

	quote := strings.ToUpper(c.vsCurrency)
	out := make(map[domain.Pair]decimal.Decimal, len(codes))
	for _, code := range codes {
		raw, ok := payload[c.coins[code]]
		if !ok {
			continue
		}

		var prices map[string]json.RawMessage
		if err := json.Unmarshal(raw, &prices); err != nil {
			continue
		}

		rate, ok := parseRate(string(prices[c.vsCurrency]))
		if !ok {
			continue
		}
		put(out, code, quote, rate)
	}

	if len(out) == 0 {
		return nil, domain.NewFetchError(c.Name(), "parse response", errors.New("no usable rates in response"))
	}

	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}

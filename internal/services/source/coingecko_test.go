package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/domain"
)

func newCoinGecko(url string) *CoinGecko {
	return NewCoinGecko(config.CoinGeckoConfig{
		Enabled:    true,
		URL:        url,
		VsCurrency: "usd",
		Coins:      map[string]string{"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana"},
	}, nil)
}

func TestCoinGecko_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{
			"bitcoin": {"usd": 59337.21},
			"ethereum": {"usd": "3720.00"},
			"solana": {"usd": -1}
		}`))
	}))
	defer srv.Close()

	rates, err := newCoinGecko(srv.URL).Fetch(context.Background())
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "ids=bitcoin%2Cethereum%2Csolana")
	assert.Contains(t, gotQuery, "vs_currencies=usd")
	require.Len(t, rates, 1)
	assert.True(t, rates[domain.Pair{From: "BTC", To: "USD"}].Equal(decimal.RequireFromString("59337.21")))
}

func TestCoinGecko_FetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "http error", status: http.StatusTooManyRequests, body: "slow down", wantMsg: "HTTP 429"},
		{name: "malformed json", status: http.StatusOK, body: "{", wantMsg: "decode response"},
		{name: "not an object", status: http.StatusOK, body: "[1,2]", wantMsg: "decode response"},
		{name: "no usable pairs", status: http.StatusOK, body: `{"bitcoin": {"eur": 1}}`, wantMsg: "no usable rates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newCoinGecko(srv.URL).Fetch(context.Background())

			var fe *domain.ExternalFetchError
			require.True(t, errors.As(err, &fe), "expected ExternalFetchError, got %v", err)
			assert.Equal(t, "coingecko", fe.Source)
			assert.False(t, fe.Fatal)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestCoinGecko_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newCoinGecko(srv.URL).Fetch(ctx)
	var fe *domain.ExternalFetchError
	assert.True(t, errors.As(err, &fe))
}

func TestCoinGecko_NoCoinsIsFatal(t *testing.T) {
	src := NewCoinGecko(config.CoinGeckoConfig{URL: "http://127.0.0.1:1", VsCurrency: "usd"}, nil)

	_, err := src.Fetch(context.Background())
	assert.True(t, domain.IsFatal(err))
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/domain"
)

// ExchangeRate reads fiat rates from ExchangeRate-API.
type ExchangeRate struct {
	client     *http.Client
	url        string
	apiKey     string
	base       string
	currencies []string
}

type exchangeRateResponse struct {
	Result          string                     `json:"result"`
	ErrorType       string                     `json:"error-type"`
	BaseCode        string                     `json:"base_code"`
	ConversionRates map[string]json.RawMessage `json:"conversion_rates"`
	Rates           map[string]json.RawMessage `json:"rates"`
}

// NewExchangeRate creates an ExchangeRate-API source.
func NewExchangeRate(cfg config.ExchangeRateConfig, client *http.Client) *ExchangeRate {
	if client == nil {
		client = http.DefaultClient
	}

	return &ExchangeRate{
		client:     client,
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		base:       strings.ToUpper(cfg.Base),
		currencies: cfg.Currencies,
	}
}

func (e *ExchangeRate) Name() string { return config.SourceExchangeRate }

// Fetch returns CODE_<BASE> prices. The provider quotes units of CODE per
// one BASE, so every value is inverted.
func (e *ExchangeRate) Fetch(ctx context.Context) (map[domain.Pair]decimal.Decimal, error) {
	if e.apiKey == "" {
		return nil, &domain.ExternalFetchError{
			Source: e.Name(),
			Op:     "auth",
			Err:    errors.Wrapf(domain.ErrMissingCredential, "set %s", config.EnvExchangeRateAPIKey),
			Fatal:  true,
		}
	}

	endpoint := fmt.Sprintf("%s/%s/latest/%s", e.url, e.apiKey, e.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewFetchError(e.Name(), "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// the URL carries the key, keep it out of logs
		return nil, domain.NewFetchError(e.Name(), "request", errors.New(strings.ReplaceAll(err.Error(), e.apiKey, "***")))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewFetchError(e.Name(), "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFetchError(e.Name(), "request",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var payload exchangeRateResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewFetchError(e.Name(), "decode response", err)
	}
	if payload.Result != "success" {
		errType := payload.ErrorType
		if errType == "" {
			errType = "unknown"
		}
		fetchErr := domain.NewFetchError(e.Name(), "request", fmt.Errorf("provider error: %s", errType))
		if errType == "invalid-key" || errType == "inactive-account" {
			fetchErr.Fatal = true
		}

		return nil, fetchErr
	}

	rates := payload.ConversionRates
	if rates == nil {
		rates = payload.Rates
	}
	if rates == nil {
		return nil, domain.NewFetchError(e.Name(), "parse response", errors.New("response has no rates section"))
	}

	base := strings.ToUpper(payload.BaseCode)
	if base == "" {
		base = e.base
	}

	out := make(map[domain.Pair]decimal.Decimal, len(e.currencies))
	for _, code := range e.currencies {
		perBase, ok := parseRate(string(rates[code]))
		if !ok {
			continue
		}
		put(out, code, base, decimal.NewFromInt(1).DivRound(perBase, 12))
	}

	if len(out) == 0 {
		return nil, domain.NewFetchError(e.Name(), "parse response", errors.New("no usable rates for configured currencies"))
	}

	return out, nil
}

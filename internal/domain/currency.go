package domain

import (
	"fmt"
	"sort"
	"strings"
)

// CurrencyKind classifies a registered currency.
type CurrencyKind string

const (
	KindFiat   CurrencyKind = "fiat"
	KindCrypto CurrencyKind = "crypto"
)

// Currency describes one registered currency code.
type Currency struct {
	Code string
	Name string
	Kind CurrencyKind
	// IssuingCountry is set for fiat currencies.
	IssuingCountry string
	// Algorithm and MarketCap are set for crypto currencies.
	Algorithm string
	MarketCap float64
}

var registry = map[string]Currency{
	"USD": {Code: "USD", Name: "US Dollar", Kind: KindFiat, IssuingCountry: "United States"},
	"EUR": {Code: "EUR", Name: "Euro", Kind: KindFiat, IssuingCountry: "Eurozone"},
	"GBP": {Code: "GBP", Name: "Pound Sterling", Kind: KindFiat, IssuingCountry: "United Kingdom"},
	"RUB": {Code: "RUB", Name: "Russian Ruble", Kind: KindFiat, IssuingCountry: "Russia"},
	"JPY": {Code: "JPY", Name: "Japanese Yen", Kind: KindFiat, IssuingCountry: "Japan"},
	"CNY": {Code: "CNY", Name: "Chinese Yuan", Kind: KindFiat, IssuingCountry: "China"},
	"CHF": {Code: "CHF", Name: "Swiss Franc", Kind: KindFiat, IssuingCountry: "Switzerland"},

	"BTC":  {Code: "BTC", Name: "Bitcoin", Kind: KindCrypto, Algorithm: "SHA-256", MarketCap: 1.12e12},
	"ETH":  {Code: "ETH", Name: "Ethereum", Kind: KindCrypto, Algorithm: "Ethash", MarketCap: 4.5e11},
	"SOL":  {Code: "SOL", Name: "Solana", Kind: KindCrypto, Algorithm: "Proof of History", MarketCap: 7.8e10},
	"XRP":  {Code: "XRP", Name: "XRP", Kind: KindCrypto, Algorithm: "RPCA", MarketCap: 3.1e10},
	"DOGE": {Code: "DOGE", Name: "Dogecoin", Kind: KindCrypto, Algorithm: "Scrypt", MarketCap: 2.2e10},
	"USDT": {Code: "USDT", Name: "Tether", Kind: KindCrypto, Algorithm: "ERC-20", MarketCap: 1.1e11},
	"USDC": {Code: "USDC", Name: "USD Coin", Kind: KindCrypto, Algorithm: "ERC-20", MarketCap: 3.3e10},
}

// NormalizeCode trims and upper-cases a currency code and checks its format:
// 2 to 5 latin letters.
func NormalizeCode(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", &ValidationError{Field: "currency", Value: code, Reason: "code is empty"}
	}
	if len(c) < 2 || len(c) > 5 {
		return "", &ValidationError{Field: "currency", Value: code, Reason: "code must be 2-5 characters"}
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", &ValidationError{Field: "currency", Value: code, Reason: "code must contain only letters"}
		}
	}

	return c, nil
}

// GetCurrency returns the registered currency for code.
func GetCurrency(code string) (Currency, error) {
	c, err := NormalizeCode(code)
	if err != nil {
		return Currency{}, err
	}

	cur, ok := registry[c]
	if !ok {
		return Currency{}, &CurrencyNotFoundError{Code: c}
	}

	return cur, nil
}

// IsCrypto reports whether code is a registered crypto currency.
func IsCrypto(code string) bool {
	cur, err := GetCurrency(code)
	return err == nil && cur.Kind == KindCrypto
}

// Currencies returns every registered currency ordered by code.
func Currencies() []Currency {
	out := make([]Currency, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	return out
}

// DisplayInfo renders a one-line human readable description.
func (c Currency) DisplayInfo() string {
	if c.Kind == KindCrypto {
		return fmt.Sprintf("[CRYPTO] %s - %s (Algo: %s, MCAP: %.2e)", c.Code, c.Name, c.Algorithm, c.MarketCap)
	}

	return fmt.Sprintf("[FIAT] %s - %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
}

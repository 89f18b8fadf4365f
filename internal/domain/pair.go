// Package domain defines the core data structures of the rate aggregation layer.
package domain

import (
	"fmt"
	"strings"
)

// Pair is an ordered currency pair. The rate of a pair is the price of one From in To.
type Pair struct {
	// From base currency code.
	From string
	// To quote currency code.
	To string
}

// NewPair normalizes both codes and checks them against the currency registry.
func NewPair(from, to string) (Pair, error) {
	f, err := GetCurrency(from)
	if err != nil {
		return Pair{}, err
	}
	t, err := GetCurrency(to)
	if err != nil {
		return Pair{}, err
	}

	return Pair{From: f.Code, To: t.Code}, nil
}

// ParsePair parses a BASE_QUOTE key.
func ParsePair(key string) (Pair, error) {
	parts := strings.Split(strings.TrimSpace(key), "_")
	if len(parts) != 2 {
		return Pair{}, &ValidationError{Field: "pair", Value: key, Reason: "must be BASE_QUOTE"}
	}

	return NewPair(parts[0], parts[1])
}

// Validate checks that both codes are registered.
func (p Pair) Validate() error {
	if _, err := GetCurrency(p.From); err != nil {
		return err
	}
	if _, err := GetCurrency(p.To); err != nil {
		return err
	}
	if p.From == p.To {
		return &ValidationError{Field: "pair", Value: p.Key(), Reason: "base and quote must differ"}
	}

	return nil
}

// Key returns the BASE_QUOTE identity of the pair.
func (p Pair) Key() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// String returns the string representation.
func (p Pair) String() string {
	return p.Key()
}

// Symbol returns the concatenated exchange symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// Reverse returns the pair with base and quote swapped.
func (p Pair) Reverse() Pair {
	return Pair{From: p.To, To: p.From}
}

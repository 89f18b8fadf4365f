package clients

import (
	"context"

	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// NewHyperliquidInfo returns a read-only Info client. No signing key is
// configured since only public market data is requested.
func NewHyperliquidInfo(ctx context.Context, baseURL string) *hyperliquid.Info {
	ex := hyperliquid.NewExchange(
		ctx,
		nil,
		baseURL,
		nil,
		"",
		"",
		nil,
	)

	return ex.Info()
}

package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	fatal := &ExternalFetchError{Source: "exchangerate", Op: "auth", Err: ErrMissingCredential, Fatal: true}
	wrapped := errors.Wrap(fatal, "cycle")

	assert.True(t, IsFatal(fatal))
	assert.True(t, IsFatal(wrapped))
	assert.False(t, IsFatal(NewFetchError("coingecko", "request", errors.New("timeout"))))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.True(t, errors.Is(wrapped, ErrMissingCredential))
}

func TestErrorMessages(t *testing.T) {
	pair := Pair{From: "BTC", To: "EUR"}

	assert.Contains(t, (&RateNotFoundError{Pair: pair}).Error(), "ratehub update")
	assert.Contains(t, (&ApiUnavailableError{Pair: pair}).Error(), "EUR_BTC")
	assert.Contains(t, (&CurrencyNotFoundError{Code: "XYZ"}).Error(), "XYZ")
	assert.Equal(t, `invalid amount "0": must be positive`,
		(&ValidationError{Field: "amount", Value: "0", Reason: "must be positive"}).Error())
}

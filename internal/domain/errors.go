package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrCacheEmpty is returned when the snapshot holds no pairs at all.
	ErrCacheEmpty = errors.New("rates cache is empty, run `ratehub update` first")
	// ErrMissingCredential marks a source that cannot run without an API key.
	ErrMissingCredential = errors.New("required credential is missing")
)

// ValidationError reports bad user input such as a malformed currency code
// or a non-positive amount. It is never retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// CurrencyNotFoundError reports a well-formed code that is not registered.
type CurrencyNotFoundError struct {
	Code string
}

func (e *CurrencyNotFoundError) Error() string {
	return fmt.Sprintf("unknown currency %q, see `ratehub currencies` for the supported list", e.Code)
}

// RateNotFoundError reports a registered pair with no cached rate.
type RateNotFoundError struct {
	Pair Pair
}

func (e *RateNotFoundError) Error() string {
	return fmt.Sprintf("rate %s not found in cache, run `ratehub update` to refresh", e.Pair.Key())
}

// ApiUnavailableError reports that neither direction of a pair is cached,
// meaning the sources never delivered it.
type ApiUnavailableError struct {
	Pair Pair
}

func (e *ApiUnavailableError) Error() string {
	return fmt.Sprintf("no rate for %s or %s from any source, run `ratehub update` or check source configuration",
		e.Pair.Key(), e.Pair.Reverse().Key())
}

// ExternalFetchError wraps any failure of a rate source. Fatal errors
// signal misconfiguration and disable the source.
type ExternalFetchError struct {
	Source string
	Op     string
	Err    error
	Fatal  bool
}

func (e *ExternalFetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Source, e.Op)
	}

	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *ExternalFetchError) Unwrap() error {
	return e.Err
}

// NewFetchError builds a recoverable ExternalFetchError.
func NewFetchError(source, op string, err error) *ExternalFetchError {
	return &ExternalFetchError{Source: source, Op: op, Err: err}
}

// IsFatal reports whether err carries a fatal ExternalFetchError.
func IsFatal(err error) bool {
	var fe *ExternalFetchError
	if errors.As(err, &fe) {
		return fe.Fatal
	}

	return false
}

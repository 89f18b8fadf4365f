// Package clients constructs the transport clients used by rate sources.
package clients

import (
	"net/http"
	"time"
)

// NewHTTPClient returns an HTTP client with an overall request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.ResponseHeaderTimeout = timeout

	return &http.Client{Timeout: timeout, Transport: transport}
}

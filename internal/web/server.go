// Package web exposes the rate cache over HTTP.
package web

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/metrics"
	"github.com/vadiminshakov/ratehub/internal/services/rates"
)

const cyclePollInterval = 2 * time.Second

type rateQuerier interface {
	GetRateWithCache(base, quote string, maxAge time.Duration) (rates.Quote, error)
	Convert(amount decimal.Decimal, from, to string, maxAge time.Duration) (rates.Conversion, error)
	ListRates(opts rates.ListOptions) (rates.Listing, error)
	History(base, quote string, limit int) (rates.History, error)
}

type cycleRunner interface {
	RunCycle(ctx context.Context) (domain.CycleRecord, error)
}

// CycleReader lists recorded refresh cycles after a log index.
type CycleReader interface {
	CyclesAfter(index uint64) ([]domain.CycleRecordAt, error)
}

// Server serves the JSON API, cycle stream and metrics.
type Server struct {
	Addr    string
	Rates   rateQuerier
	Updater cycleRunner
	Cycles  CycleReader
	Metrics *metrics.Metrics
	TTL     time.Duration

	logger *zap.Logger
}

// NewServer creates a new web server instance. updater, cycles and m may be nil.
func NewServer(addr string, svc rateQuerier, ttl time.Duration, updater cycleRunner, cycles CycleReader, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		Addr:    addr,
		Rates:   svc,
		Updater: updater,
		Cycles:  cycles,
		Metrics: m,
		TTL:     ttl,
		logger:  logger,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /rates", s.handleRates)
	mux.HandleFunc("GET /rates/{from}/{to}", s.handleRate)
	mux.HandleFunc("GET /convert", s.handleConvert)
	mux.HandleFunc("GET /history/{pair}", s.handleHistory)
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.HandleFunc("GET /cycles", s.handleCycles)
	mux.HandleFunc("GET /cycles/stream", s.handleCycleStream)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	return gzipMiddleware(mux)
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.logger.Info("https server listening", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := rates.ListOptions{Base: q.Get("base"), Currency: q.Get("currency")}
	if top := q.Get("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil {
			s.writeError(w, &domain.ValidationError{Field: "top", Value: top, Reason: "must be an integer"})
			return
		}
		opts.Top = n
	}

	listing, err := s.Rates.ListRates(opts)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListingResponse(listing))
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	maxAge, err := s.maxAge(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	quote, err := s.Rates.GetRateWithCache(r.PathValue("from"), r.PathValue("to"), maxAge)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Pair:        quote.Pair.Key(),
		Rate:        quote.Rate.String(),
		ReverseRate: quote.ReverseRate.String(),
		UpdatedAt:   domain.FormatTimestamp(quote.UpdatedAt),
		Source:      quote.Source,
		Derived:     quote.Derived,
		Refreshed:   quote.Refreshed,
	})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "amount", Value: q.Get("amount"), Reason: "must be a number"})
		return
	}
	maxAge, err := s.maxAge(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conv, err := s.Rates.Convert(amount, q.Get("from"), q.Get("to"), maxAge)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conversionResponse{
		From:      conv.From,
		To:        conv.To,
		Amount:    conv.Amount.String(),
		Rate:      conv.Rate.String(),
		Result:    conv.Result.String(),
		UpdatedAt: domain.FormatTimestamp(conv.UpdatedAt),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	pair, err := domain.ParsePair(r.PathValue("pair"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			s.writeError(w, &domain.ValidationError{Field: "limit", Value: v, Reason: "must be a non-negative integer"})
			return
		}
	}

	h, err := s.Rates.History(pair.From, pair.To, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newHistoryResponse(h))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.Updater == nil {
		http.Error(w, "updater not available", http.StatusServiceUnavailable)
		return
	}

	record, err := s.Updater.RunCycle(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if !record.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, record)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.Cycles == nil {
		http.Error(w, "cycle store not available", http.StatusServiceUnavailable)
		return
	}

	after := parseLastEventID("", r.URL.Query().Get("after"))
	records, err := s.Cycles.CyclesAfter(after)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.CycleRecordAt{}
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCycleStream(w http.ResponseWriter, r *http.Request) {
	if s.Cycles == nil {
		http.Error(w, "cycle store not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(cyclePollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("after"))
	sendCycles := func() error {
		records, err := s.Cycles.CyclesAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Cycle)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: cycle\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendCycles(); err != nil {
		http.Error(w, "failed to load cycles", http.StatusInternalServerError)
		s.logger.Error("cycle stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendCycles(); err != nil {
				s.logger.Warn("cycle stream poll failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) maxAge(r *http.Request) (time.Duration, error) {
	v := r.URL.Query().Get("max_age")
	if v == "" {
		return s.TTL, nil
	}

	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, &domain.ValidationError{Field: "max_age", Value: v, Reason: "must be a non-negative number of seconds"}
	}

	return time.Duration(secs) * time.Second, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var (
		validation  *domain.ValidationError
		currency    *domain.CurrencyNotFoundError
		notFound    *domain.RateNotFoundError
		unavailable *domain.ApiUnavailableError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &currency), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unavailable), errors.Is(err, domain.ErrCacheEmpty):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID header or a query parameter.
// The header is preferred; the query parameter allows manual reconnects to resume from a known index.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/stream") || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		next.ServeHTTP(&gzipResponseWriter{ResponseWriter: w, writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.writer.Write(b)
}

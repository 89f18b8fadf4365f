package rates

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/pkg/indicators"
)

const (
	maxEMAPeriod = 10
	rsiPeriod    = 14
)

// HistoryPoint is one journal observation.
type HistoryPoint struct {
	Timestamp time.Time
	Rate      decimal.Decimal
	Source    string
}

// History summarizes the journal of one pair.
type History struct {
	Pair   domain.Pair
	Points []HistoryPoint
	Min    decimal.Decimal
	Max    decimal.Decimal
	Last   decimal.Decimal
	// ChangePct is the change from the first to the last point in percent.
	ChangePct decimal.Decimal
	// EMA is zero when fewer than two points are available.
	EMA       decimal.Decimal
	EMAPeriod int
	// RSI is set only with more than rsiPeriod points.
	RSI *decimal.Decimal
}

// History returns the journal of base_quote, oldest first, limited to the
// last limit points when limit is positive.
func (s *Service) History(base, quote string, limit int) (History, error) {
	pair, err := parsePair(base, quote)
	if err != nil {
		return History{}, err
	}
	if s.journal == nil {
		return History{}, errors.New("history is not available without a journal")
	}

	entries, err := s.journal.EntriesFor(pair)
	if err != nil {
		s.metrics.ObserveQuery("history", "error")
		return History{}, errors.Wrap(err, "read journal")
	}
	if len(entries) == 0 {
		s.metrics.ObserveQuery("history", "not_found")
		return History{}, &domain.RateNotFoundError{Pair: pair}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	h := History{Pair: pair, Points: make([]HistoryPoint, 0, len(entries))}
	values := make([]decimal.Decimal, 0, len(entries))
	for _, e := range entries {
		h.Points = append(h.Points, HistoryPoint{Timestamp: e.Timestamp, Rate: e.Rate, Source: e.Source})
		values = append(values, e.Rate)
	}

	h.Min = decimal.Min(values[0], values[1:]...)
	h.Max = decimal.Max(values[0], values[1:]...)
	h.Last = values[len(values)-1]
	if first := values[0]; !first.IsZero() {
		h.ChangePct = h.Last.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).Round(4)
	}

	if n := len(values); n >= 2 {
		h.EMAPeriod = min(maxEMAPeriod, n)
		if ema, err := indicators.CalculateEMA(values, h.EMAPeriod); err == nil {
			h.EMA = indicators.Last(ema)
		}
	}
	if len(values) > rsiPeriod {
		if rsi, err := indicators.CalculateRSI(values, rsiPeriod); err == nil && len(rsi) > 0 {
			v := indicators.Last(rsi)
			h.RSI = &v
		}
	}
	s.metrics.ObserveQuery("history", "ok")

	return h, nil
}

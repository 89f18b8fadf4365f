package web

import (
	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/services/rates"
)

type errorResponse struct {
	Error string `json:"error"`
}

type quoteResponse struct {
	Pair        string `json:"pair"`
	Rate        string `json:"rate"`
	ReverseRate string `json:"reverse_rate"`
	UpdatedAt   string `json:"updated_at"`
	Source      string `json:"source"`
	Derived     bool   `json:"derived,omitempty"`
	Refreshed   bool   `json:"refreshed,omitempty"`
}

type conversionResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Rate      string `json:"rate"`
	Result    string `json:"result"`
	UpdatedAt string `json:"updated_at"`
}

type rateRow struct {
	Pair      string `json:"pair"`
	Rate      string `json:"rate"`
	UpdatedAt string `json:"updated_at"`
	Source    string `json:"source"`
}

type listingResponse struct {
	Base        string    `json:"base"`
	LastRefresh *string   `json:"last_refresh"`
	Rates       []rateRow `json:"rates"`
}

func newListingResponse(l rates.Listing) listingResponse {
	resp := listingResponse{Base: l.Base, Rates: make([]rateRow, 0, len(l.Rows))}
	if l.LastRefresh != nil {
		lr := domain.FormatTimestamp(*l.LastRefresh)
		resp.LastRefresh = &lr
	}
	for _, r := range l.Rows {
		resp.Rates = append(resp.Rates, rateRow{
			Pair:      r.Pair.Key(),
			Rate:      r.Rate.String(),
			UpdatedAt: domain.FormatTimestamp(r.UpdatedAt),
			Source:    r.Source,
		})
	}

	return resp
}

type historyPoint struct {
	Timestamp string `json:"timestamp"`
	Rate      string `json:"rate"`
	Source    string `json:"source"`
}

type historyResponse struct {
	Pair      string         `json:"pair"`
	Points    []historyPoint `json:"points"`
	Min       string         `json:"min"`
	Max       string         `json:"max"`
	Last      string         `json:"last"`
	ChangePct string         `json:"change_pct"`
	EMA       string         `json:"ema,omitempty"`
	EMAPeriod int            `json:"ema_period,omitempty"`
	RSI       string         `json:"rsi,omitempty"`
}

func newHistoryResponse(h rates.History) historyResponse {
	resp := historyResponse{
		Pair:      h.Pair.Key(),
		Points:    make([]historyPoint, 0, len(h.Points)),
		Min:       h.Min.String(),
		Max:       h.Max.String(),
		Last:      h.Last.String(),
		ChangePct: h.ChangePct.String(),
	}
	if h.EMAPeriod > 0 {
		resp.EMA = h.EMA.Round(8).String()
		resp.EMAPeriod = h.EMAPeriod
	}
	if h.RSI != nil {
		resp.RSI = h.RSI.Round(2).String()
	}
	for _, p := range h.Points {
		resp.Points = append(resp.Points, historyPoint{
			Timestamp: domain.FormatTimestamp(p.Timestamp),
			Rate:      p.Rate.String(),
			Source:    p.Source,
		})
	}

	return resp
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/services/rates"
)

var (
	accent = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	muted  = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	good   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	bad    = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F87"}

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	okStyle     = lipgloss.NewStyle().Foreground(good)
	errorStyle  = lipgloss.NewStyle().Foreground(bad).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func renderQuote(q rates.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render(q.Pair.String()), q.Rate.String())
	fmt.Fprintf(&b, "reverse  %s\n", q.ReverseRate.String())
	fmt.Fprintf(&b, "updated  %s (%s)", domain.FormatTimestamp(q.UpdatedAt), q.Source)

	var notes []string
	if q.Derived {
		notes = append(notes, "derived from "+q.Pair.Reverse().Key())
	}
	if q.Refreshed {
		notes = append(notes, "stale entry refreshed")
	}
	if len(notes) > 0 {
		b.WriteString("\n" + mutedStyle.Render(strings.Join(notes, ", ")))
	}

	return b.String()
}

func renderConversion(c rates.Conversion) string {
	return fmt.Sprintf("%s %s = %s %s\n%s",
		c.Amount.String(), c.From,
		titleStyle.Render(c.Result.Round(8).String()), c.To,
		mutedStyle.Render(fmt.Sprintf("rate %s, updated %s", c.Rate.String(), domain.FormatTimestamp(c.UpdatedAt))))
}

func renderListing(l rates.Listing) string {
	t := newTable("PAIR", "RATE", "UPDATED", "SOURCE")
	for _, r := range l.Rows {
		t.Row(r.Pair.Key(), r.Rate.Round(8).String(), domain.FormatTimestamp(r.UpdatedAt), r.Source)
	}

	last := "never"
	if l.LastRefresh != nil {
		last = domain.FormatTimestamp(*l.LastRefresh)
	}

	return fmt.Sprintf("%s\n%s\n%s",
		titleStyle.Render("Rates in "+l.Base),
		t.String(),
		mutedStyle.Render(fmt.Sprintf("%d pairs, last refresh %s", len(l.Rows), last)))
}

func renderHistory(h rates.History) string {
	t := newTable("TIMESTAMP", "RATE", "SOURCE")
	for _, p := range h.Points {
		t.Row(domain.FormatTimestamp(p.Timestamp), p.Rate.String(), p.Source)
	}

	stats := fmt.Sprintf("min %s  max %s  last %s  change %s%%",
		h.Min.String(), h.Max.String(), h.Last.String(), h.ChangePct.String())
	if h.EMAPeriod > 0 {
		stats += fmt.Sprintf("  ema(%d) %s", h.EMAPeriod, h.EMA.Round(8).String())
	}
	if h.RSI != nil {
		stats += fmt.Sprintf("  rsi %s", h.RSI.Round(2).String())
	}

	return fmt.Sprintf("%s\n%s\n%s", titleStyle.Render("History of "+h.Pair.Key()), t.String(), mutedStyle.Render(stats))
}

func renderCurrencies(list []domain.Currency) string {
	lines := make([]string, 0, len(list))
	for _, c := range list {
		lines = append(lines, c.DisplayInfo())
	}

	return strings.Join(lines, "\n")
}

func renderCycle(r domain.CycleRecord) string {
	t := newTable("SOURCE", "STATUS", "PAIRS", "SKIPPED", "TOOK", "ERROR")
	for _, s := range r.Sources {
		status := okStyle.Render(s.Status)
		if s.Status != domain.SourceStatusOK {
			status = errorStyle.Render(s.Status)
		}
		t.Row(s.Name, status, strconv.Itoa(s.Pairs), strconv.Itoa(s.Skipped), fmt.Sprintf("%dms", s.DurationMs), s.Error)
	}

	summary := okStyle.Render(fmt.Sprintf("%d entries journaled", r.Entries))
	if !r.Success {
		summary = errorStyle.Render("cycle produced no usable entries, snapshot untouched")
	}

	return fmt.Sprintf("%s\n%s\n%s", titleStyle.Render("Update cycle "+r.ID), t.String(), summary)
}

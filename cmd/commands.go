package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/ratehub/internal/domain"
	"github.com/vadiminshakov/ratehub/internal/services/rates"
	"github.com/vadiminshakov/ratehub/internal/services/updater"
	"github.com/vadiminshakov/ratehub/internal/setup"
	"github.com/vadiminshakov/ratehub/internal/web"
)

type env struct {
	configPath string
	args       []string
	stdout     io.Writer
	stderr     io.Writer
}

type command func(ctx context.Context, e env) error

var commands = map[string]command{
	"update":     runUpdate,
	"get-rate":   runGetRate,
	"convert":    runConvert,
	"show-rates": runShowRates,
	"history":    runHistory,
	"currencies": runCurrencies,
	"serve":      runServe,
	"setup":      runSetup,
}

func (e env) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func runUpdate(ctx context.Context, e env) error {
	if err := e.flags("update").Parse(e.args); err != nil {
		return err
	}

	a, err := openApp(e.configPath, e.stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	record, err := a.updater.RunCycle(ctx)
	fmt.Fprintln(e.stdout, renderCycle(record))
	if err != nil {
		return err
	}
	if !record.Success {
		return errors.New("no rates were fetched, check the source errors above")
	}

	return nil
}

func runGetRate(ctx context.Context, e env) error {
	fs := e.flags("get-rate")
	from := fs.String("from", "", "base currency code, e.g. BTC")
	to := fs.String("to", "", "quote currency code, e.g. USD")
	maxAge := fs.Duration("max-age", 0, "refresh cached rates older than this (default rates_ttl)")
	if err := fs.Parse(e.args); err != nil {
		return err
	}
	if *from == "" || *to == "" {
		return &domain.ValidationError{Field: "pair", Value: *from + "_" + *to, Reason: "--from and --to are required"}
	}

	a, err := openApp(e.configPath, e.stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.rates.GetRateWithCache(*from, *to, a.maxAge(*maxAge))
	if err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, renderQuote(q))
	return nil
}

func runConvert(ctx context.Context, e env) error {
	fs := e.flags("convert")
	amount := fs.String("amount", "", "amount to convert")
	from := fs.String("from", "", "source currency code")
	to := fs.String("to", "", "target currency code")
	maxAge := fs.Duration("max-age", 0, "refresh cached rates older than this (default rates_ttl)")
	if err := fs.Parse(e.args); err != nil {
		return err
	}

	value, err := decimal.NewFromString(*amount)
	if err != nil {
		return &domain.ValidationError{Field: "amount", Value: *amount, Reason: "must be a number"}
	}

	a, err := openApp(e.configPath, e.stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.rates.Convert(value, *from, *to, a.maxAge(*maxAge))
	if err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, renderConversion(conv))
	return nil
}

func runShowRates(ctx context.Context, e env) error {
	fs := e.flags("show-rates")
	var opts rates.ListOptions
	fs.StringVar(&opts.Currency, "currency", "", "only pairs containing this code")
	fs.IntVar(&opts.Top, "top", 0, "top N crypto pairs by rate")
	fs.StringVar(&opts.Base, "base", "", "re-denominate into this base currency")
	if err := fs.Parse(e.args); err != nil {
		return err
	}

	a, err := openApp(e.configPath, e.stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	listing, err := a.rates.ListRates(opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, renderListing(listing))
	return nil
}

func runHistory(ctx context.Context, e env) error {
	fs := e.flags("history")
	pairKey := fs.String("pair", "", "pair key, e.g. BTC_USD")
	limit := fs.Int("limit", 20, "number of latest observations")
	if err := fs.Parse(e.args); err != nil {
		return err
	}

	pair, err := domain.ParsePair(*pairKey)
	if err != nil {
		return err
	}

	a, err := openApp(e.configPath, e.stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.rates.History(pair.From, pair.To, *limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, renderHistory(h))
	return nil
}

func runCurrencies(ctx context.Context, e env) error {
	if err := e.flags("currencies").Parse(e.args); err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, renderCurrencies(domain.Currencies()))
	return nil
}

func runServe(ctx context.Context, e env) error {
	fs := e.flags("serve")
	addr := fs.String("addr", "", "listen address (default listen_addr)")
	tls := fs.Bool("tls", false, "serve HTTPS with ACME certificates for tls_domains")
	if err := fs.Parse(e.args); err != nil {
		return err
	}

	a, err := openApp(e.configPath, e.stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	listen := a.cfg.ListenAddr
	if *addr != "" {
		listen = *addr
	}

	scheduler := updater.NewScheduler(a.updater, a.cfg.UpdateInterval, a.cfg.UpdateRetries, a.logger)
	srv := web.NewServer(listen, a.rates, a.cfg.RatesTTL, a.updater, a.cycleReader(), a.metrics, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		if *tls {
			return srv.StartWithAutoTLS(ctx, a.cfg.TLSDomains, a.cfg.TLSCacheDir)
		}
		return srv.Start(ctx)
	})

	a.logger.Info("ratehub serving",
		zap.String("addr", listen),
		zap.Duration("update_interval", a.cfg.UpdateInterval),
		zap.Int("sources", len(a.sources)))

	return g.Wait()
}

func runSetup(ctx context.Context, e env) error {
	fs := e.flags("setup")
	out := fs.String("out", setup.DefaultConfigFile, "where to write the generated config")
	if err := fs.Parse(e.args); err != nil {
		return err
	}

	return setup.RunTUI(*out)
}

func (a *app) maxAge(flagValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return a.cfg.RatesTTL
}

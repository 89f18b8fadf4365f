package main

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ratehub/config"
	"github.com/vadiminshakov/ratehub/internal/logger"
	"github.com/vadiminshakov/ratehub/internal/metrics"
	"github.com/vadiminshakov/ratehub/internal/services/rates"
	"github.com/vadiminshakov/ratehub/internal/services/source"
	"github.com/vadiminshakov/ratehub/internal/services/updater"
	"github.com/vadiminshakov/ratehub/internal/storage/cycles"
	"github.com/vadiminshakov/ratehub/internal/storage/journal"
	"github.com/vadiminshakov/ratehub/internal/storage/snapshot"
	"github.com/vadiminshakov/ratehub/internal/web"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	sources []source.Source
	cycles  *cycles.WALStore
	updater *updater.Updater
	rates   *rates.Service
}

func openApp(configPath string, console io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Options{Dir: cfg.LogsDir, Level: cfg.LogLevel, Console: console})
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	journalStore := journal.NewStore(cfg.JournalPath(), lg.Named("journal"))
	snapshotStore := snapshot.NewStore(cfg.SnapshotPath(), lg.Named("snapshot"))

	sources, err := source.FromConfig(cfg.Sources, cfg.RequestTimeout)
	if err != nil {
		_ = lg.Sync()
		return nil, errors.Wrap(err, "build rate sources")
	}
	if len(sources) == 0 {
		lg.Warn("no rate sources enabled, updates will not fetch anything")
	}

	cycleStore, err := cycles.NewWALStore(cfg.CyclesWALDir())
	if err != nil {
		lg.Warn("cycle log unavailable, cycles will not be recorded", zap.Error(err))
	}

	opts := []updater.Option{
		updater.WithMetrics(m),
		updater.WithFetchTimeout(cfg.RequestTimeout),
	}
	if cycleStore != nil {
		opts = append(opts, updater.WithCycleRecorder(cycleStore))
	}

	return &app{
		cfg:     cfg,
		logger:  lg,
		metrics: m,
		sources: sources,
		cycles:  cycleStore,
		updater: updater.New(sources, journalStore, snapshotStore, lg.Named("updater"), opts...),
		rates:   rates.NewService(snapshotStore, journalStore, cfg.DefaultBase, lg.Named("rates"), rates.WithMetrics(m)),
	}, nil
}

// cycleReader returns the cycle log, or a nil interface when it failed to open.
func (a *app) cycleReader() web.CycleReader {
	if a.cycles == nil {
		return nil
	}

	return a.cycles
}

func (a *app) Close() {
	if a.cycles != nil {
		if err := a.cycles.Close(); err != nil {
			a.logger.Warn("close cycle log", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

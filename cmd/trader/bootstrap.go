package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"trading-toolkit/internal/broker/brokerobs"
	"trading-toolkit/internal/broker/zerodha"
	"trading-toolkit/internal/interfaces"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/metrics"
	"trading-toolkit/internal/runlog"
	"trading-toolkit/internal/store"
	"trading-toolkit/internal/trace"
)

type app struct {
	configPath  string
	metricsFile string
	now         func() time.Time

	cfg      *store.Config
	registry *prometheus.Registry
	metrics  *metrics.Recorder
}

// init loads .env, sets up logging and tracing, then reads the config.
func (a *app) init(ctx context.Context) error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	cfg, err := store.LoadConfigOrDefault(a.configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", a.configPath)
		return err
	}
	a.cfg = cfg

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	a.compressOldLogs(ctx)
	return nil
}

func (a *app) close(ctx context.Context) error {
	defer logger.Sync()
	if err := trace.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "Failed to flush traces", "error", err)
	}
	if a.metricsFile == "" || a.registry == nil {
		return nil
	}
	if err := metrics.WriteTextfile(a.metricsFile, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// compressOldLogs gzips old files in the log dir when TRADER_LOG_RETENTION_DAYS is set.
func (a *app) compressOldLogs(ctx context.Context) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	n, err := runlog.CompressOlder(a.cfg.Paths.LogDir, days, a.now())
	if err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
		return
	}
	if n > 0 {
		logger.Info(ctx, "Compressed old logs", "files", n, "dir", a.cfg.Paths.LogDir)
	}
}

func (a *app) broker(ctx context.Context) interfaces.Broker {
	brk := zerodha.NewZerodha(zerodha.Params{
		Mode:         a.cfg.Mode,
		APIKey:       os.Getenv("KITE_API_KEY"),
		AccessToken:  os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:     a.cfg.Exchange,
		CandleSource: a.cfg.DataSource,
	})

	if a.cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}
	if a.cfg.DataSource == "LIVE" {
		logger.Info(ctx, "Using LIVE candle data from Zerodha")
	} else {
		logger.Info(ctx, "Using STATIC synthetic candle data")
	}
	return brokerobs.Wrap(brk)
}

func parseDate(name, v string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

// Package trading holds the account snapshot and the processors of the
// current run.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-toolkit/internal/interfaces"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/metrics"
	"trading-toolkit/internal/processor"
	"trading-toolkit/internal/types"
)

type Config struct {
	LookbackDays int
	DataSource   string
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{LookbackDays: 30, DataSource: "STATIC"}
}

type Option func(*Trading)

func WithMetrics(m *metrics.Recorder) Option {
	return func(t *Trading) { t.metrics = m }
}

type Trading struct {
	brk        interfaces.Broker
	factories  []processor.Factory
	cfg        Config
	metrics    *metrics.Recorder
	account    types.Account
	window     processor.LookbackWindow
	processors []processor.Processor
}

// New snapshots the account from brk. An account error fails construction.
func New(ctx context.Context, brk interfaces.Broker, factories []processor.Factory, cfg Config, opts ...Option) (*Trading, error) {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = DefaultConfig().LookbackDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Trading{brk: brk, factories: factories, cfg: cfg}
	for _, o := range opts {
		o(t)
	}
	if err := t.RefreshAccount(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trading) RefreshAccount(ctx context.Context) error {
	acct, err := t.brk.Account(ctx)
	if err != nil {
		if t.metrics != nil {
			t.metrics.RecordError("trading.RefreshAccount")
		}
		return fmt.Errorf("refresh account: %w", err)
	}
	t.account = acct
	if t.metrics != nil {
		t.metrics.RecordEquity(acct.Equity.InexactFloat64())
	}
	logger.Info(ctx, "Account snapshot", "equity", acct.Equity.String(), "cash", acct.Cash.String())
	return nil
}

// Run replaces the processors with a fresh one per factory over a new
// lookback window. It does not run any cycles.
func (t *Trading) Run(ctx context.Context) error {
	op := logger.StartOperation(ctx, "trading.Run", "factories", len(t.factories))
	ctx = op.Context()

	t.processors = nil
	t.window = processor.NewLookbackWindow(t.cfg.Now(), t.cfg.LookbackDays)
	params := processor.Params{Window: t.window, DataSource: t.cfg.DataSource}

	built := make([]processor.Processor, 0, len(t.factories))
	for _, f := range t.factories {
		p, err := f.Create(ctx, params)
		if err != nil {
			err = fmt.Errorf("create %s processor: %w", f.Name(), err)
			if t.metrics != nil {
				t.metrics.RecordError("trading.Run")
			}
			op.EndWithError(err)
			return err
		}
		built = append(built, p)
		logger.Debug(ctx, "Processor created", "name", f.Name())
	}
	t.processors = built

	if t.metrics != nil {
		t.metrics.RecordProcessors(len(built))
	}
	logger.Info(ctx, "Processors initialized",
		"count", len(built),
		"window_start", t.window.Start.Format(time.DateOnly),
		"window_end", t.window.End.Format(time.DateOnly),
		"data_source", t.cfg.DataSource,
	)
	op.End("processors", len(built))
	return nil
}

func (t *Trading) Equity() decimal.Decimal { return t.account.Equity }

func (t *Trading) Cash() decimal.Decimal { return t.account.Cash }

func (t *Trading) Processors() []processor.Processor {
	return append([]processor.Processor(nil), t.processors...)
}

func (t *Trading) Window() processor.LookbackWindow { return t.window }

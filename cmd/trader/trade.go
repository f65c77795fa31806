package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trading-toolkit/internal/artifact"
	"trading-toolkit/internal/logger"
	"trading-toolkit/internal/processor"
	"trading-toolkit/internal/store"
	"trading-toolkit/internal/trading"
)

func tradeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trade",
		Short: "Snapshot the account and initialize processors for today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			today := a.now()
			if wd := today.Weekday(); wd == time.Saturday || wd == time.Sunday {
				fmt.Fprintf(cmd.OutOrStdout(), "Market not open on [%s]\n", today.Format(time.DateOnly))
				return nil
			}

			factories, err := buildFactories(a.cfg)
			if err != nil {
				return err
			}
			tr, err := trading.New(ctx, a.broker(ctx), factories, trading.Config{
				LookbackDays: a.cfg.Trading.LookbackDays,
				DataSource:   a.cfg.DataSource,
				Now:          a.now,
			}, trading.WithMetrics(a.metrics))
			if err != nil {
				logger.ErrorWithErr(ctx, "Failed to create trading session", err)
				return err
			}
			if err := tr.Run(ctx); err != nil {
				return err
			}

			w := tr.Window()
			fmt.Fprintf(cmd.OutOrStdout(), "equity=%s cash=%s processors=%d window=%s..%s\n",
				tr.Equity().StringFixed(2), tr.Cash().StringFixed(2), len(tr.Processors()),
				w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
			return nil
		},
	}
}

func buildFactories(cfg *store.Config) ([]processor.Factory, error) {
	var out []processor.Factory
	for _, name := range cfg.Trading.Processors {
		switch strings.ToLower(name) {
		case "noop":
			out = append(out, processor.NoopFactory{})
		case "signal":
			sc := processor.DefaultSignalConfig()
			sc.Symbols = cfg.Trading.Symbols
			sc.Lookback = cfg.Dataset.Lookback
			sc.Enter = cfg.Trading.SignalEnter
			sc.Exit = cfg.Trading.SignalExit
			sc.Model = modelConfig(cfg)
			out = append(out, processor.NewSignalFactory(artifact.NewStore(cfg.Paths.ModelRoot), sc))
		default:
			return nil, fmt.Errorf("%w: unknown processor %q", store.ErrInvalidConfig, name)
		}
	}
	return out, nil
}


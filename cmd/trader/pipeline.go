package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trading-toolkit/internal/artifact"
	"trading-toolkit/internal/dataset"
	"trading-toolkit/internal/model"
	"trading-toolkit/internal/pipeline"
	"trading-toolkit/internal/runlog"
	"trading-toolkit/internal/store"
)

func modelConfig(cfg *store.Config) model.Config {
	return model.Config{
		Hidden:       cfg.Model.Hidden,
		LearningRate: cfg.Model.LearningRate,
		BatchSize:    cfg.Model.BatchSize,
		MaxEpochs:    cfg.Model.MaxEpochs,
		Patience:     cfg.Model.Patience,
		Seed:         cfg.Model.Seed,
	}
}

func pipelineCmd(a *app) *cobra.Command {
	var (
		symbol    string
		startDate string
		endDate   string
		trainOnly bool
	)
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Train or load one model per monthly split and report the long success rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			now := a.now()
			firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

			start, end := firstOfMonth.AddDate(-2, 0, 0), firstOfMonth
			var err error
			if startDate != "" {
				if start, err = parseDate("start_date", startDate); err != nil {
					return err
				}
			}
			if endDate != "" {
				if end, err = parseDate("end_date", endDate); err != nil {
					return err
				}
			}
			if !start.Before(end) {
				return fmt.Errorf("--start_date %s must be before --end_date %s",
					start.Format(time.DateOnly), end.Format(time.DateOnly))
			}

			ds, err := dataset.New(ctx, a.broker(ctx), dataset.Config{
				Lookback:       a.cfg.Dataset.Lookback,
				HistoryDays:    a.cfg.Dataset.HistoryDays,
				TrainMonths:    a.cfg.Dataset.TrainMonths,
				LabelThreshold: a.cfg.Dataset.LabelThreshold,
				DataRoot:       a.cfg.Paths.DataRoot,
				Source:         a.cfg.DataSource,
			}, symbol, start, end)
			if err != nil {
				return err
			}

			run, err := runlog.NewRun(a.cfg.Paths.OutputRoot, now)
			if err != nil {
				return err
			}
			p, err := pipeline.New(pipeline.Config{
				LongThreshold:   a.cfg.Pipeline.LongThreshold,
				ShortThreshold:  a.cfg.Pipeline.ShortThreshold,
				InvalidateStale: a.cfg.Pipeline.InvalidateStale,
				TrainOnly:       trainOnly,
				Model:           modelConfig(a.cfg),
			}, ds, artifact.NewStore(a.cfg.Paths.ModelRoot),
				pipeline.WithRunLog(run),
				pipeline.WithMetrics(a.metrics),
			)
			if err != nil {
				return err
			}
			rep, err := p.Run(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "split\tmodel\taccuracy\ttp\tfp")
			for _, s := range rep.Splits {
				fmt.Fprintf(tw, "%s\t%s\t%.4f\t%d\t%d\n", s.Name, s.Source, s.Evaluation.Accuracy, s.TP, s.FP)
			}
			tw.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "success rate: %.4f (tp=%d fp=%d) output: %s\n",
				rep.SuccessRate, rep.TP, rep.FP, run.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Stock symbol to train on")
	cmd.Flags().StringVar(&startDate, "start_date", "", "First sample date, YYYY-MM-DD (default: first of the month two years ago)")
	cmd.Flags().StringVar(&endDate, "end_date", "", "Exclusive end date, YYYY-MM-DD (default: first of this month)")
	cmd.Flags().BoolVar(&trainOnly, "train_only", false, "Train missing models without evaluating")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trading-toolkit/internal/types"
)

func candlesCmd(a *app) *cobra.Command {
	var symbol, date string
	cmd := &cobra.Command{
		Use:   "candles",
		Short: "Dump a symbol's five-minute candles for one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			day, err := parseDate("date", date)
			if err != nil {
				return err
			}
			candles, err := a.broker(ctx).HistoricalCandles(ctx, symbol, types.IntervalFiveMin, day, day.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			if len(candles) == 0 {
				return fmt.Errorf("no candles for %s on %s", symbol, date)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(tw, "%s on %s\t\t\t\t\t\t\n", symbol, date)
			fmt.Fprintln(tw, "time\topen\thigh\tlow\tclose\tvolume\t")
			for _, c := range candles {
				fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.0f\t\n",
					c.Time().Format("15:04"), c.Open, c.High, c.Low, c.Close, c.Vol)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "Stock symbol")
	cmd.Flags().StringVar(&date, "date", "", "Trading day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}


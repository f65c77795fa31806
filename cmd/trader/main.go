package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdFor(&app{now: time.Now})
}

func newRootCmdFor(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "trader",
		Short:         "Trading utilities: model pipeline, trading run, symbol extraction and alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "Path to the YAML config")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics_file", "", "Write prometheus metrics to this textfile on exit")

	root.AddCommand(
		tradeCmd(a),
		pipelineCmd(a),
		extractCmd(a),
		alertCmd(a),
		candlesCmd(a),
	)
	return root
}

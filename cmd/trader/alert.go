package main

import (
	"github.com/spf13/cobra"

	"trading-toolkit/internal/alert"
)

func alertCmd(a *app) *cobra.Command {
	var logFile, errorCode, title string
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "E-mail a failed job's log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := alert.ConfigFromEnv(a.cfg.Alert.SMTPHost, a.cfg.Alert.SMTPPort, a.cfg.Alert.Sender)
			return alert.NewSender(cfg).SendAlert(cmd.Context(), logFile, errorCode, title)
		},
	}
	cmd.Flags().StringVar(&logFile, "log_file", "", "Log file to include in the alert")
	cmd.Flags().StringVar(&errorCode, "error_code", "", "Exit code of the failed job")
	cmd.Flags().StringVar(&title, "title", "", "Alert title")
	_ = cmd.MarkFlagRequired("log_file")
	_ = cmd.MarkFlagRequired("error_code")
	return cmd
}

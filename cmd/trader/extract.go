package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trading-toolkit/internal/extract"
	"trading-toolkit/internal/logger"
)

const wrapWidth = 80

func extractCmd(a *app) *cobra.Command {
	var (
		timeout  time.Duration
		cacheTTL time.Duration
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Print stock symbol lists",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP timeout for scraping")
	cmd.PersistentFlags().DurationVar(&cacheTTL, "cache_ttl", 0, "Reuse scraped pages younger than this; 0 disables the cache")

	scraper := func(ctx context.Context) *extract.Scraper {
		s := extract.NewScraper(timeout)
		if cacheTTL <= 0 {
			return s
		}
		c := extract.NewCache(a.cfg.Paths.CacheDir, cacheTTL)
		if n, err := c.CleanupExpired(); err != nil {
			logger.Warn(ctx, "Failed to clean scrape cache", "dir", a.cfg.Paths.CacheDir, "error", err)
		} else if n > 0 {
			logger.Debug(ctx, "Removed expired scrapes", "files", n)
		}
		return s.WithCache(c)
	}

	var date string
	sp500 := &cobra.Command{
		Use:   "sp500",
		Short: "S&P 500 constituents, optionally as of --date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := scraper(cmd.Context()).SP500(cmd.Context(), extract.SP500URL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, extract.Format("SP500_SYMBOLS", page.Symbols, wrapWidth))
			if date == "" {
				fmt.Fprintf(out, "\n%s", extract.FormatChanges(page.Changes))
				return nil
			}
			at, err := parseDate("date", date)
			if err != nil {
				return err
			}
			name := "SP500_SYMBOLS_" + at.Format("20060102")
			fmt.Fprintf(out, "\n%s", extract.Format(name, extract.SP500At(page.Symbols, page.Changes, at), wrapWidth))
			return nil
		},
	}
	sp500.Flags().StringVar(&date, "date", "", "Reconstruct membership as of this date, YYYY-MM-DD")

	nasdaq100 := &cobra.Command{
		Use:   "nasdaq100",
		Short: "Nasdaq-100 constituents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			symbols, err := scraper(cmd.Context()).Nasdaq100(cmd.Context(), extract.Nasdaq100URL)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), extract.Format("NASDAQ100_SYMBOLS", symbols, wrapWidth))
			return nil
		},
	}

	var inputPath string
	company := &cobra.Command{
		Use:   "company",
		Short: "All plain tickers from a Nasdaq screener CSV export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := inputPath
			if path == "" {
				found, err := extract.FindScreenerFile(extract.DefaultScreenerDir())
				if err != nil {
					return err
				}
				path = found
			}
			symbols, err := extract.CompanySymbols(path)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), extract.Format("COMPANY_SYMBOLS", symbols, wrapWidth))
			return nil
		},
	}
	company.Flags().StringVar(&inputPath, "input_path", "", "Screener CSV (default: ~/Downloads/nasdaq_screener*.csv)")

	cmd.AddCommand(sp500, nasdaq100, company)
	return cmd
}

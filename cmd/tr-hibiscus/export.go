package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hibiscus-tools/tr-hibiscus/internal/api"
	"github.com/hibiscus-tools/tr-hibiscus/internal/auth"
	"github.com/hibiscus-tools/tr-hibiscus/internal/export"
	"github.com/hibiscus-tools/tr-hibiscus/internal/notify"
	"github.com/hibiscus-tools/tr-hibiscus/internal/timeline"
)

func exportCmd() *cobra.Command {
	var (
		phoneNo        string
		pin            string
		lastDays       int
		includePending bool
		saveDetails    bool
		debug          bool
		dryRun         bool
	)

	cmd := &cobra.Command{
		Use:   "export OUTPUT_DIR",
		Short: "Export TradeRepublic transactions to a Hibiscus XML file",
		Long: `Log in to TradeRepublic, fetch the full transaction timeline and write
a Hibiscus-compatible XML file into OUTPUT_DIR.

The 4-digit confirmation code is prompted on stdin during login.
Transactions exported by earlier runs are tracked in
OUTPUT_DIR/tr2hibiscus.json and skipped.

Examples:
  # Export everything new since the last run
  tr-hibiscus export ./export -n +4912345678901 -p 1234

  # Only the last 30 days, including pending card transactions
  tr-hibiscus export ./export -n +4912345678901 -p 1234 --last-days 30 --include-pending

  # Inspect what would be exported without writing anything
  tr-hibiscus export ./export -n +4912345678901 -p 1234 --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			// --debug also lowers the log level for this run
			if debug && !verbose {
				logCfg := cfg.Logging
				logCfg.Level = "debug"
				l, err := setupLogger(verbose, &logCfg)
				if err != nil {
					return err
				}
				logger = l
			}

			includePending = includePending || cfg.Timeline.IncludePending

			opts := export.Options{
				OutputDir:      args[0],
				IncludePending: includePending,
				SaveDetails:    saveDetails,
				DebugDump:      debug,
				DryRun:         dryRun,
			}

			started := time.Now()
			notifier := notify.New(&cfg.Notify, logger)

			summary, err := runExport(ctx, opts, phoneNo, pin, sinceTimestamp(lastDays))
			if err != nil {
				if nerr := notifier.SendFailure(ctx, time.Since(started), err); nerr != nil {
					logger.Warn("failure notification not sent", zap.Error(nerr))
				}
				return err
			}

			summary.Print(os.Stdout, includePending)
			fmt.Println("Export completed successfully")

			if nerr := notifier.SendSuccess(ctx, summary, time.Since(started)); nerr != nil {
				logger.Warn("success notification not sent", zap.Error(nerr))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&phoneNo, "phone-no", "n", "", "TradeRepublic phone number (international format)")
	cmd.Flags().StringVarP(&pin, "pin", "p", "", "TradeRepublic pin")
	cmd.Flags().IntVar(&lastDays, "last-days", 0, "number of last days to include (0 for all days)")
	cmd.Flags().BoolVar(&includePending, "include-pending", false, "include pending transactions")
	cmd.Flags().BoolVar(&saveDetails, "save-details", false, "save each transaction as JSON file")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging plus raw event dumps under debug/")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be exported without writing")
	_ = cmd.MarkFlagRequired("phone-no")
	_ = cmd.MarkFlagRequired("pin")

	return cmd
}

func runExport(ctx context.Context, opts export.Options, phoneNo, pin string, since int64) (*export.Summary, error) {
	mgr, err := auth.NewManager(cfg.API.RESTURL, auth.StdinPrompter, logger)
	if err != nil {
		return nil, err
	}

	session, err := mgr.Login(ctx, phoneNo, pin)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	client := api.NewClient(api.Options{
		Endpoint:         cfg.API.WSURL,
		Locale:           cfg.API.Locale,
		LoginMode:        api.LoginMode(cfg.Login.Mode),
		CookieHeader:     session.CookieHeader,
		RatePerSecond:    cfg.API.RatePerSecond,
		SubscribeTimeout: time.Duration(cfg.API.SubscribeTimeoutSec) * time.Second,
	}, logger)

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close()

	processor := timeline.NewProcessor(client, cfg.Timeline.DetailWorkers, logger)
	events, stats, err := processor.Process(ctx, since)
	if err != nil {
		return nil, err
	}

	logger.Info("timeline processed",
		zap.Int("events", len(events)),
		zap.Stringer("stats", stats),
	)

	history := export.LoadHistory(opts.OutputDir, logger)
	exporter := export.New(opts, history, logger)

	return exporter.Export(events)
}

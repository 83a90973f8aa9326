package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/config"
	"github.com/Veraticus/autobudgeter/internal/engine"
	"github.com/Veraticus/autobudgeter/internal/ingest"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/ofx"
	"github.com/Veraticus/autobudgeter/internal/plaid"
	"github.com/Veraticus/autobudgeter/internal/scheduler"
	"github.com/Veraticus/autobudgeter/internal/simplefin"
	"github.com/Veraticus/autobudgeter/internal/syncer"
)

// sourceFunc builds the ingest source once the app is open.
type sourceFunc func(a *app) (ingest.Source, error)

// configuredSource returns the source named by name, or settings.source when empty.
func configuredSource(ctx context.Context, name string) sourceFunc {
	return func(a *app) (ingest.Source, error) {
		if name == "" {
			name = a.cfg.Settings.Source
		}
		switch name {
		case config.SourcePlaid:
			return plaid.NewClient(a.cfg.Plaid, a.cfg.Settings.Location, a.logger)
		case config.SourceSimpleFIN:
			return simplefin.NewClient(ctx, a.cfg.SimpleFIN, a.cfg.Settings.Location, a.logger)
		default:
			return nil, common.NewValidationError("source", fmt.Sprintf("unknown source %q: use plaid or simplefin", name))
		}
	}
}

func syncCmd() *cobra.Command {
	var (
		push   bool
		source string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch transactions, categorize and total them",
		Long: `Fetch new transactions from Plaid or SimpleFIN, categorize every uncategorized transaction
with rules and the LLM, and recompute the monthly totals they touch.

With --push the balances and the current month are written to Google Sheets.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, configuredSource(cmd.Context(), source), push)
		},
	}

	cmd.Flags().BoolVar(&push, "push", false, "Push balances and monthly totals to Google Sheets")
	cmd.Flags().StringVar(&source, "source", "", "Source to sync from: plaid or simplefin (default: settings.source)")
	return cmd
}

func importOFXCmd() *cobra.Command {
	var (
		push bool
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "import-ofx <file>",
		Short: "Import transactions from an OFX/QFX statement",
		Long: `Import a bank or credit card statement exported as OFX or QFX and run the
same categorization and aggregation as sync.

Statements are partial: pending transactions missing from a file are never
marked removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := func(a *app) (ingest.Source, error) {
				fs := ofx.NewFileSource(config.ExpandPath(args[0]), a.logger)
				if all {
					fs.KeepAll()
				}
				return fs, nil
			}
			return runSync(cmd, source, push)
		},
	}

	cmd.Flags().BoolVar(&push, "push", false, "Push balances and monthly totals to Google Sheets")
	cmd.Flags().BoolVar(&all, "all", false, "Import every transaction in the file, not only recent ones")
	return cmd
}

func runSync(cmd *cobra.Command, newSource sourceFunc, push bool) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()
	if push && a.cfg.Settings.ExportDestination != model.ExportGoogleSheets {
		fmt.Fprintln(out, cli.FormatWarning("Export destination is native; skipping the spreadsheet push"))
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Sync", "Ingested transactions are saved; run the command again to finish categorizing.")
	ctx, stop := handler.HandleInterrupts(cmd.Context())
	defer stop()

	source, err := newSource(a)
	if err != nil {
		return err
	}

	progress := cli.NewProgress(cmd.ErrOrStderr(), cli.RobotIcon+" Categorizing")
	eng, err := a.engine(ctx, engine.WithProgress(progress.Update))
	if err != nil {
		return err
	}

	s, err := a.syncer(ctx, source, eng, push)
	if err != nil {
		return err
	}

	result, err := s.PerformSync(ctx, syncer.Options{PushToSheets: push})
	if err != nil {
		if handler.WasInterrupted() {
			return nil
		}
		return err
	}

	return printSyncResult(out, result)
}

func printSyncResult(w io.Writer, result syncer.Result) error {
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf(
		"Ingested %d, categorized %d, transfers %d, needs review %d",
		result.Ingested, result.Categorized, result.Transfers, result.NeedsReview)))
	if result.Removed > 0 {
		fmt.Fprintln(w, cli.FormatInfo(fmt.Sprintf("Marked %d dropped pending transactions removed", result.Removed)))
	}
	if result.Skipped > 0 {
		fmt.Fprintln(w, cli.FormatWarning(fmt.Sprintf("Skipped %d malformed records", result.Skipped)))
	}
	if result.RulesCreated > 0 {
		fmt.Fprintln(w, cli.FormatInfo(fmt.Sprintf("Created %d suggested rules", result.RulesCreated)))
	}
	if result.NeedsReview > 0 {
		fmt.Fprintln(w, cli.FormatPrompt("Run 'autobudget review' to categorize the rest"))
		fmt.Fprintln(w)
	}

	for _, m := range result.Months {
		fmt.Fprintln(w, cli.FormatTitle(m.Month.Label))
		table := cli.NewTable(w, "Category", "Spent")
		for _, category := range m.Totals.Categories() {
			table.Row(category, cli.Money(m.Totals[category]))
		}
		if err := table.Flush(); err != nil {
			return err
		}
	}

	switch {
	case result.Pushed:
		fmt.Fprintln(w, cli.FormatSuccess(cli.SheetIcon+" Pushed to Google Sheets"))
	case result.PushError != nil:
		fmt.Fprintln(w, cli.FormatError("Spreadsheet push failed: "+result.PushError.Error()))
	}
	return nil
}

func scheduleCmd() *cobra.Command {
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run syncs on the configured cron schedule",
		Long: `Run in the foreground and sync on settings.auto_sync_cron in the configured
timezone while settings.auto_sync_enabled is true. The config file is re-read
periodically so schedule changes apply without a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			source, err := configuredSource(ctx, "")(a)
			if err != nil {
				return err
			}
			eng, err := a.engine(ctx)
			if err != nil {
				return err
			}
			s, err := a.syncer(ctx, source, eng, true)
			if err != nil {
				a.logger.Warn("Spreadsheet push unavailable; scheduled pushes will fail", "error", err)
				if s, err = a.syncer(ctx, source, eng, false); err != nil {
					return err
				}
			}

			sched := scheduler.New(s, loadScheduleSettings,
				scheduler.WithRecorder(a.recorder),
				scheduler.WithLogger(a.logger),
				scheduler.WithRefreshInterval(refresh))
			sched.Start(ctx)
			defer sched.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(cli.SyncIcon+" Scheduler running; press Ctrl+C to stop"))
			<-ctx.Done()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		},
	}

	cmd.Flags().DurationVar(&refresh, "refresh", scheduler.DefaultRefreshInterval, "How often to re-read settings")
	return cmd
}

// loadScheduleSettings re-reads the config file and returns the scheduling settings.
func loadScheduleSettings(_ context.Context) (scheduler.Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		if v.ConfigFileUsed() != "" {
			return scheduler.Settings{}, fmt.Errorf("failed to re-read config: %w", err)
		}
	}
	s, err := config.LoadSettings(v)
	if err != nil {
		return scheduler.Settings{}, err
	}
	return scheduler.Settings{
		Location:          s.Location,
		Cron:              s.AutoSyncCron,
		ExportDestination: s.ExportDestination,
		AutoSyncEnabled:   s.AutoSyncEnabled,
		AutoPushToSheets:  s.AutoPushToSheets,
	}, nil
}

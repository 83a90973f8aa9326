package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Veraticus/autobudgeter/internal/audit"
	"github.com/Veraticus/autobudgeter/internal/budget"
	"github.com/Veraticus/autobudgeter/internal/cli"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/config"
	"github.com/Veraticus/autobudgeter/internal/engine"
	"github.com/Veraticus/autobudgeter/internal/ingest"
	"github.com/Veraticus/autobudgeter/internal/llm"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/sheets"
	"github.com/Veraticus/autobudgeter/internal/storage"
	"github.com/Veraticus/autobudgeter/internal/syncer"
)

// app holds the resources shared by commands: configuration, the database and the
// audit recorder.
type app struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	recorder  *audit.Recorder
	publisher *audit.AMQPPublisher
	logger    *slog.Logger
}

// newApp loads configuration and opens the migrated database.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		var cfgErr *common.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, common.NewUserError(
				fmt.Sprintf("%s: set %s in %s or the environment", err, cfgErr.Setting, configFileUsed()), err)
		}
		return nil, err
	}

	store, err := initStorage(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store, logger: slog.Default()}

	var publishers []audit.Publisher
	if cfg.Audit.AMQPURL != "" {
		publisher, err := audit.NewAMQPPublisher(cfg.Audit.AMQPURL, cfg.Audit.AMQPExchange)
		if err != nil {
			// The database stays the source of truth; the broker is best effort.
			a.logger.Warn("Audit publisher unavailable", "exchange", cfg.Audit.AMQPExchange, "error", err)
		} else {
			a.publisher = publisher
			publishers = append(publishers, publisher)
		}
	}
	a.recorder = audit.NewRecorder(store, a.logger, publishers...)

	return a, nil
}

// initStorage opens the database and runs migrations.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (a *app) Close() error {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("Failed to close audit publisher", "error", err)
		}
	}
	return a.store.Close()
}

// engine builds the categorization engine. Without an LLM provider every unmatched
// transaction goes to review.
func (a *app) engine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	s := a.cfg.Settings
	settings := engine.Settings{
		Location:              s.Location,
		LLMProvider:           s.LLMProvider,
		Categories:            a.cfg.Categories(),
		ConfidenceThreshold:   s.ConfidenceThreshold,
		SuggestedRulePriority: s.SuggestedRulePriority,
		Concurrency:           s.Concurrency,
		LLMEnabled:            s.LLMEnabled,
	}

	var categorizer engine.Categorizer
	if s.LLMEnabled {
		registry := llm.NewRegistry()
		if err := registry.RegisterConfigs(ctx, a.cfg.LLM...); err != nil {
			return nil, fmt.Errorf("failed to configure LLM providers: %w", err)
		}
		if len(registry.Names()) == 0 {
			a.logger.Warn("LLM enabled but no provider has an API key; unmatched transactions will need review")
		}
		categorizer = llm.NewCategorizer(registry, llm.CategorizerOptions{
			Logger:    a.logger,
			CacheTTL:  a.cfg.LLMCacheTTL,
			RateLimit: v.GetInt("llm.rate_limit"),
		})
	}

	opts = append([]engine.Option{engine.WithLogger(a.logger)}, opts...)
	return engine.New(a.store, categorizer, a.recorder, settings, opts...), nil
}

func (a *app) aggregator() *budget.Aggregator {
	return budget.NewAggregator(a.store, a.cfg.Settings.Location, a.logger)
}

// openSheetsSink connects to the workbook; tests swap in a memory sink.
var openSheetsSink = func(ctx context.Context, cfg sheets.Config, logger *slog.Logger) (sheets.Sink, error) {
	return sheets.NewGoogleSink(ctx, cfg, logger)
}

// reconciler connects to the configured workbook.
func (a *app) reconciler(ctx context.Context) (*sheets.Reconciler, error) {
	if err := a.cfg.Sheets.Validate(); err != nil {
		return nil, err
	}
	sink, err := openSheetsSink(ctx, a.cfg.Sheets, a.logger)
	if err != nil {
		return nil, err
	}
	return sheets.NewReconciler(sink, a.aggregator(), a.recorder, a.cfg.Sheets,
		a.cfg.Categories(), a.cfg.Settings.Location, a.logger), nil
}

// pushMonth writes the role balances and the totals of m.
func (a *app) pushMonth(ctx context.Context, reconciler *sheets.Reconciler, m budget.Month) error {
	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	balances := model.BalancesFromAccounts(accounts)

	start, _ := budget.MonthWindow(m.Month, m.Year, a.cfg.Settings.Location)
	return reconciler.Push(ctx, sheets.PushInput{
		Date: start,
		Bank: balances.Bank,
		CC1:  balances.CC1,
		CC2:  balances.CC2,
	})
}

// autoPush pushes every month touched by dates when auto push to Google Sheets is on.
// The local changes are already saved, so failures are reported as warnings.
func (a *app) autoPush(ctx context.Context, out io.Writer, dates []time.Time) {
	s := a.cfg.Settings
	if !s.AutoPushToSheets || s.ExportDestination != model.ExportGoogleSheets || len(dates) == 0 {
		return
	}

	reconciler, err := a.reconciler(ctx)
	if err != nil {
		fmt.Fprintln(out, cli.FormatWarning("Spreadsheet push skipped: "+err.Error()))
		return
	}
	for _, m := range budget.DistinctMonths(dates, s.Location) {
		if err := a.pushMonth(ctx, reconciler, m); err != nil {
			fmt.Fprintln(out, cli.FormatWarning("Spreadsheet push failed for "+m.Label+": "+err.Error()))
			continue
		}
		fmt.Fprintln(out, cli.FormatSuccess(cli.SheetIcon+" Pushed "+m.Label))
	}
}

// syncer builds a syncer over source. When withPusher is set and the export
// destination is Google Sheets, the workbook is connected up front.
func (a *app) syncer(ctx context.Context, source ingest.Source, categorizer syncer.Categorizer, withPusher bool) (*syncer.Syncer, error) {
	opts := []syncer.Option{syncer.WithLogger(a.logger)}
	if withPusher && a.cfg.Settings.ExportDestination == model.ExportGoogleSheets {
		reconciler, err := a.reconciler(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, syncer.WithPusher(reconciler))
	}

	settings := syncer.Settings{
		Location:          a.cfg.Settings.Location,
		ExportDestination: a.cfg.Settings.ExportDestination,
		OverlapDays:       a.cfg.Settings.OverlapDays,
	}
	return syncer.New(a.store, source, categorizer, a.aggregator(), a.recorder, settings, opts...), nil
}

// configFileUsed names the config file viper read, or the default location.
func configFileUsed() string {
	if f := v.ConfigFileUsed(); f != "" {
		return f
	}
	return "~/.config/autobudget/config.yaml"
}

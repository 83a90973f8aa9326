// Package syncer runs one end-to-end sync: ingest, categorize, aggregate, and
// optionally push to the spreadsheet.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/autobudgeter/internal/audit"
	"github.com/Veraticus/autobudgeter/internal/budget"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/engine"
	"github.com/Veraticus/autobudgeter/internal/ingest"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/service"
	"github.com/Veraticus/autobudgeter/internal/sheets"
)

// ErrSyncInProgress is returned when another sync holds the lock.
var ErrSyncInProgress = errors.New("sync already in progress")

// DefaultOverlapDays re-fetches this many days before the newest stored transaction so
// pending transactions that posted late are picked up.
const DefaultOverlapDays = 7

// Store is the persistence a sync needs.
type Store interface {
	BeginTx(ctx context.Context) (service.Transaction, error)
	LatestTransactionDate(ctx context.Context) (time.Time, error)
	GetTransactionsInRange(ctx context.Context, start, end time.Time) ([]model.Transaction, error)
	GetTransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.Transaction, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

// Categorizer categorizes a batch of transactions.
type Categorizer interface {
	CategorizeBatch(ctx context.Context, txns []model.Transaction) (engine.BatchStats, error)
}

// Aggregator computes monthly totals.
type Aggregator interface {
	Aggregate(ctx context.Context, month time.Month, year int) (budget.Totals, error)
}

// Pusher writes balances and monthly totals to the spreadsheet.
type Pusher interface {
	Push(ctx context.Context, in sheets.PushInput) error
}

// Settings controls a sync.
type Settings struct {
	Location          *time.Location
	ExportDestination model.ExportDestination
	OverlapDays       int
}

// Options are per-run switches.
type Options struct {
	PushToSheets bool
}

// MonthTotals is the recomputed aggregation for one affected month.
type MonthTotals struct {
	Totals budget.Totals
	Month  budget.Month
}

// Result summarizes a sync. PushError is set when ingestion and categorization
// succeeded but the spreadsheet push failed.
type Result struct {
	PushError    error
	Months       []MonthTotals
	Ingested     int
	Removed      int
	Skipped      int
	Categorized  int
	Transfers    int
	NeedsReview  int
	RulesCreated int
	Pushed       bool
}

// Syncer runs syncs one at a time.
type Syncer struct {
	store       Store
	source      ingest.Source
	categorizer Categorizer
	aggregator  Aggregator
	pusher      Pusher
	recorder    audit.Sink
	logger      *slog.Logger
	now         func() time.Time
	settings    Settings
	mu          sync.Mutex
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithPusher enables spreadsheet pushes.
func WithPusher(p Pusher) Option {
	return func(s *Syncer) {
		s.pusher = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New creates a Syncer.
func New(store Store, source ingest.Source, categorizer Categorizer, aggregator Aggregator, recorder audit.Sink, settings Settings, opts ...Option) *Syncer {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.OverlapDays <= 0 {
		settings.OverlapDays = DefaultOverlapDays
	}
	if settings.ExportDestination == "" {
		settings.ExportDestination = model.ExportNative
	}

	s := &Syncer{
		store:       store,
		source:      source,
		categorizer: categorizer,
		aggregator:  aggregator,
		recorder:    recorder,
		settings:    settings,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sync")
	return s
}

// PerformSync runs one sync. Only one sync runs at a time; a concurrent call returns
// ErrSyncInProgress without doing anything. A failed push does not fail the sync; it
// is reported in Result.PushError.
func (s *Syncer) PerformSync(ctx context.Context, opts Options) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	started := s.now()
	result, err := s.run(ctx, opts)
	if err != nil {
		s.logger.Error("Sync failed", "source", s.source.Name(), "error", err)
		s.record(ctx, model.EventSyncFailed, map[string]any{
			"source":     s.source.Name(),
			"error":      err.Error(),
			"error_kind": common.Kind(err),
		})
		return result, err
	}

	payload := map[string]any{
		"source":        s.source.Name(),
		"ingested":      result.Ingested,
		"removed":       result.Removed,
		"skipped":       result.Skipped,
		"categorized":   result.Categorized,
		"transfers":     result.Transfers,
		"needs_review":  result.NeedsReview,
		"rules_created": result.RulesCreated,
		"months":        monthLabels(result.Months),
		"pushed":        result.Pushed,
	}
	if result.PushError != nil {
		payload["push_error"] = result.PushError.Error()
	}
	s.record(ctx, model.EventSyncCompleted, payload)

	s.logger.Info("Sync completed",
		"ingested", result.Ingested,
		"categorized", result.Categorized,
		"needs_review", result.NeedsReview,
		"months", len(result.Months),
		"duration", s.now().Sub(started))
	return result, nil
}

func (s *Syncer) run(ctx context.Context, opts Options) (Result, error) {
	var result Result

	since, err := s.since(ctx)
	if err != nil {
		return result, err
	}

	s.logger.Info("Fetching transactions", "source", s.source.Name(), "since", since)
	batch, err := s.source.Fetch(ctx, since)
	if err != nil {
		return result, fmt.Errorf("failed to fetch from %s: %w", s.source.Name(), err)
	}

	normalized := ingest.Normalize(batch, s.settings.Location, s.logger)
	result.Skipped = normalized.Skipped

	stale, err := s.stalePending(ctx, batch, normalized.Transactions)
	if err != nil {
		return result, err
	}

	ingested, err := s.persist(ctx, normalized, stale)
	if err != nil {
		return result, err
	}
	result.Ingested = ingested
	result.Removed = len(stale)

	pending, err := s.store.GetTransactionsByStatus(ctx, model.StatusUncategorized)
	if err != nil {
		return result, fmt.Errorf("failed to load uncategorized transactions: %w", err)
	}
	stats, err := s.categorizer.CategorizeBatch(ctx, pending)
	result.Categorized = stats.Categorized
	result.Transfers = stats.Transfers
	result.NeedsReview = stats.NeedsReview
	result.RulesCreated = stats.RulesCreated
	if err != nil {
		return result, fmt.Errorf("failed to categorize transactions: %w", err)
	}

	dates := make([]time.Time, 0, len(normalized.Transactions)+len(pending))
	for _, t := range normalized.Transactions {
		dates = append(dates, t.Date)
	}
	for _, t := range pending {
		dates = append(dates, t.Date)
	}
	for _, month := range budget.DistinctMonths(dates, s.settings.Location) {
		totals, aggErr := s.aggregator.Aggregate(ctx, month.Month, month.Year)
		if aggErr != nil {
			return result, fmt.Errorf("failed to aggregate %s: %w", month.Label, aggErr)
		}
		s.logger.Info("Recomputed monthly totals", "month", month.Label, "categories", len(totals))
		result.Months = append(result.Months, MonthTotals{Month: month, Totals: totals})
	}

	if opts.PushToSheets && s.settings.ExportDestination == model.ExportGoogleSheets {
		result.PushError = s.push(ctx)
		result.Pushed = result.PushError == nil
		if result.PushError != nil {
			s.logger.Warn("Spreadsheet push failed", "error", result.PushError)
		}
	}

	return result, nil
}

func (s *Syncer) since(ctx context.Context) (time.Time, error) {
	latest, err := s.store.LatestTransactionDate(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest transaction date: %w", err)
	}
	if latest.IsZero() {
		return time.Time{}, nil
	}
	return latest.AddDate(0, 0, -s.settings.OverlapDays), nil
}

func (s *Syncer) stalePending(ctx context.Context, batch ingest.Batch, fresh []model.Transaction) ([]string, error) {
	if !batch.Complete || batch.Start.IsZero() || batch.End.IsZero() {
		return nil, nil
	}
	stored, err := s.store.GetTransactionsInRange(ctx, batch.Start, batch.End.AddDate(0, 0, 1).Add(-time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("failed to load stored transactions: %w", err)
	}
	return ingest.StalePending(batch, stored, fresh), nil
}

func (s *Syncer) persist(ctx context.Context, normalized ingest.Normalized, stale []string) (count int, err error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to roll back ingest", "error", rbErr)
			}
		}
	}()

	if len(normalized.Accounts) > 0 {
		if err = tx.UpsertAccounts(ctx, normalized.Accounts); err != nil {
			return 0, fmt.Errorf("failed to store accounts: %w", err)
		}
	}
	if len(normalized.Transactions) > 0 {
		if count, err = tx.UpsertTransactions(ctx, normalized.Transactions); err != nil {
			return 0, fmt.Errorf("failed to store transactions: %w", err)
		}
	}
	if len(stale) > 0 {
		if err = tx.MarkRemoved(ctx, stale); err != nil {
			return 0, fmt.Errorf("failed to mark removed transactions: %w", err)
		}
		s.logger.Info("Marked dropped pending transactions removed", "count", len(stale))
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit ingest: %w", err)
	}
	return count, nil
}

func (s *Syncer) push(ctx context.Context) error {
	if s.pusher == nil {
		return &common.ConfigurationError{Setting: "sheets", Err: errors.New("google sheets export is selected but not configured")}
	}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	balances := model.BalancesFromAccounts(accounts)

	date, err := s.store.LatestTransactionDate(ctx)
	if err != nil {
		return fmt.Errorf("failed to read latest transaction date: %w", err)
	}
	if date.IsZero() {
		date = s.now()
	}

	return s.pusher.Push(ctx, sheets.PushInput{
		Date: date,
		Bank: balances.Bank,
		CC1:  balances.CC1,
		CC2:  balances.CC2,
	})
}

func (s *Syncer) record(ctx context.Context, eventType string, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Append(context.WithoutCancel(ctx), eventType, payload); err != nil {
		s.logger.Error("Failed to record audit event", "event_type", eventType, "error", err)
	}
}

func monthLabels(months []MonthTotals) []string {
	labels := make([]string, len(months))
	for i, m := range months {
		labels[i] = m.Month.Label
	}
	return labels
}

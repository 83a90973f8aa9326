package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/audit"
	"github.com/Veraticus/autobudgeter/internal/budget"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
)

// Stage names the step of a push that failed.
type Stage string

// Push stages, in execution order.
const (
	StageBalances      Stage = "balances"
	StageMonthlyTab    Stage = "monthly_tab"
	StageMonthlyTotals Stage = "monthly_totals"
)

// PushError reports which stage of a push failed. Earlier stages stay written.
type PushError struct {
	Err             error
	Stage           Stage
	BalancesWritten bool
}

func (e *PushError) Error() string {
	return fmt.Sprintf("sheets push failed at %s: %v", e.Stage, e.Err)
}

func (e *PushError) Unwrap() error {
	return e.Err
}

// Aggregator supplies monthly totals.
type Aggregator interface {
	Aggregate(ctx context.Context, month time.Month, year int) (budget.Totals, error)
}

// PushInput is the data for one push.
type PushInput struct {
	Date time.Time
	Bank decimal.Decimal
	CC1  decimal.Decimal
	CC2  decimal.Decimal
}

// Reconciler writes balances and monthly totals into the workbook.
type Reconciler struct {
	sink       Sink
	aggregator Aggregator
	recorder   audit.Sink
	loc        *time.Location
	logger     *slog.Logger
	categories []string
	config     Config
}

// NewReconciler creates a reconciler. categories seed new monthly tabs in order.
func NewReconciler(sink Sink, aggregator Aggregator, recorder audit.Sink, config Config, categories []string, loc *time.Location, logger *slog.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		sink:       sink,
		aggregator: aggregator,
		recorder:   recorder,
		config:     config,
		categories: categories,
		loc:        loc,
		logger:     logger.With("component", "sheets"),
	}
}

// Push writes the three balances, then the category totals for the month containing
// in.Date. Reserved cells and the derived row are never written.
func (r *Reconciler) Push(ctx context.Context, in PushInput) error {
	month := budget.MonthKey(in.Date, r.loc)

	err := r.push(ctx, in, month)
	if err != nil {
		r.record(ctx, model.EventSheetsPushFailed, map[string]any{
			"month":      month.Label,
			"stage":      string(stageOf(err)),
			"error":      err.Error(),
			"error_kind": common.Kind(err),
		})
		return err
	}

	r.record(ctx, model.EventSheetsPush, map[string]any{
		"month": month.Label,
		"bank":  in.Bank.String(),
		"cc1":   in.CC1.String(),
		"cc2":   in.CC2.String(),
	})
	return nil
}

func stageOf(err error) Stage {
	var pe *PushError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

func (r *Reconciler) push(ctx context.Context, in PushInput, month budget.Month) error {
	if err := r.config.ValidateLayout(); err != nil {
		return &PushError{Stage: StageBalances, Err: err}
	}

	if err := r.writeBalances(ctx, in); err != nil {
		return &PushError{Stage: StageBalances, Err: err}
	}

	title := TabTitle(r.config.MonthlyTabTemplate, month)
	if err := r.ensureMonthlyTab(ctx, title); err != nil {
		return &PushError{Stage: StageMonthlyTab, Err: err, BalancesWritten: true}
	}

	written, err := r.writeMonthlyTotals(ctx, title, month)
	if err != nil {
		return &PushError{Stage: StageMonthlyTotals, Err: err, BalancesWritten: true}
	}

	r.logger.Info("Pushed to sheets",
		"spreadsheet_id", r.config.SpreadsheetID,
		"month", month.Label,
		"categories_written", written)
	return nil
}

func (r *Reconciler) balanceProtection() Protection {
	return Protection{Sheet: r.config.RunningBalanceSheet, Cells: r.config.ReservedCells}
}

func (r *Reconciler) writeBalances(ctx context.Context, in PushInput) error {
	sheet := r.config.RunningBalanceSheet
	updates := []ValueRange{
		{Range: Qualify(sheet, r.config.BankCell), Values: [][]any{{in.Bank.InexactFloat64()}}},
		{Range: Qualify(sheet, r.config.CC1Cell), Values: [][]any{{in.CC1.InexactFloat64()}}},
		{Range: Qualify(sheet, r.config.CC2Cell), Values: [][]any{{in.CC2.InexactFloat64()}}},
	}

	if err := Check(updates, r.balanceProtection()); err != nil {
		return err
	}
	return r.sink.BatchWrite(ctx, r.config.SpreadsheetID, InputRaw, updates)
}

// ensureMonthlyTab creates and seeds the month's tab the first time it is needed. A tab
// that exists but has no labels in the read range is seeded again: an earlier push may
// have created it and failed before the seed landed.
func (r *Reconciler) ensureMonthlyTab(ctx context.Context, title string) error {
	titles, err := r.sink.SheetTitles(ctx, r.config.SpreadsheetID)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(titles, func(t string) bool { return strings.EqualFold(t, title) }) {
		rows, err := r.sink.ReadRange(ctx, r.config.SpreadsheetID, Qualify(title, r.config.MonthlyReadRange))
		if err != nil {
			return err
		}
		if len(BuildRowMap(rows)) > 0 {
			return nil
		}
		r.logger.Warn("Monthly tab exists but is empty, seeding it", "title", title)
		return r.seedMonthlyTab(ctx, title)
	}

	if err := r.sink.AddSheet(ctx, r.config.SpreadsheetID, title); err != nil {
		return err
	}
	if err := r.seedMonthlyTab(ctx, title); err != nil {
		return err
	}

	r.logger.Info("Created monthly tab", "title", title, "categories", len(r.categories))
	return nil
}

func (r *Reconciler) seedMonthlyTab(ctx context.Context, title string) error {
	rows := seedRows(r.categories, r.config.DerivedLabel)
	seed := []ValueRange{{
		Range:  Qualify(title, fmt.Sprintf("A1:B%d", len(rows))),
		Values: rows,
	}}
	// The seed is the only write that may place the derived formula.
	if err := Check(seed, r.balanceProtection()); err != nil {
		return err
	}
	return r.sink.BatchWrite(ctx, r.config.SpreadsheetID, InputUserEntered, seed)
}

func (r *Reconciler) writeMonthlyTotals(ctx context.Context, title string, month budget.Month) (int, error) {
	rows, err := r.sink.ReadRange(ctx, r.config.SpreadsheetID, Qualify(title, r.config.MonthlyReadRange))
	if err != nil {
		return 0, err
	}
	rowMap := BuildRowMap(rows)

	totals, err := r.aggregator.Aggregate(ctx, month.Month, month.Year)
	if err != nil {
		return 0, err
	}

	readRange, err := ParseRange(r.config.MonthlyReadRange)
	if err != nil {
		return 0, err
	}
	protection := Protection{Sheet: title}
	if idx, ok := rowMap[r.config.DerivedLabel]; ok {
		protection.Rows = append(protection.Rows, readRange.StartRow+idx)
	}

	updates := r.buildUpdates(title, rows, rowMap, totals, readRange)
	if len(updates) == 0 {
		return 0, nil
	}

	if err := Check(updates, protection, r.balanceProtection()); err != nil {
		return 0, err
	}
	if err := r.sink.BatchWrite(ctx, r.config.SpreadsheetID, InputRaw, updates); err != nil {
		return 0, err
	}
	return len(updates), nil
}

// buildUpdates targets column B of each category row present in the tab. Categories
// missing from the tab are skipped, as is any row labeled with the derived label.
func (r *Reconciler) buildUpdates(title string, rows [][]any, rowMap map[string]int, totals budget.Totals, readRange Range) []ValueRange {
	var updates []ValueRange
	for _, category := range totals.Categories() {
		idx, ok := rowMap[category]
		if !ok {
			r.logger.Debug("Category has no row in monthly tab", "category", category, "title", title)
			continue
		}
		if label := strings.TrimSpace(fmt.Sprint(rows[idx][0])); label == r.config.DerivedLabel {
			continue
		}

		row := readRange.StartRow + idx
		updates = append(updates, ValueRange{
			Range:  Qualify(title, Cell(row, readRange.StartCol+1)),
			Values: [][]any{{totals[category].InexactFloat64()}},
		})
	}
	return updates
}

func (r *Reconciler) record(ctx context.Context, eventType string, payload map[string]any) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Append(context.WithoutCancel(ctx), eventType, payload); err != nil {
		r.logger.Error("Failed to record audit event", "event_type", eventType, "error", err)
	}
}

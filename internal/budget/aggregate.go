// Package budget computes monthly per-category spend totals in a fixed time zone and
// summarizes them against category budgets.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// Totals maps a category name to summed spend. Uncategorized spend has no key.
type Totals map[string]decimal.Decimal

// Categories returns the category names in sorted order.
func (t Totals) Categories() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two totals hold the same categories and amounts.
func (t Totals) Equal(other Totals) bool {
	if len(t) != len(other) {
		return false
	}
	for name, amount := range t {
		o, ok := other[name]
		if !ok || !o.Equal(amount) {
			return false
		}
	}
	return true
}

// Store reads transactions by date.
type Store interface {
	GetTransactionsInRange(ctx context.Context, start, end time.Time) ([]model.Transaction, error)
}

// Aggregator computes monthly totals. The month window is always evaluated in loc,
// never in the server's local zone.
type Aggregator struct {
	store  Store
	loc    *time.Location
	logger *slog.Logger
}

// NewAggregator creates an aggregator over store for the given zone.
func NewAggregator(store Store, loc *time.Location, logger *slog.Logger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:  store,
		loc:    loc,
		logger: logger.With("component", "budget"),
	}
}

// Location returns the zone months are evaluated in.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Aggregate sums settled, counted spend per category for one calendar month.
func (a *Aggregator) Aggregate(ctx context.Context, month time.Month, year int) (Totals, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	start, end := MonthWindow(month, year, a.loc)
	txns, err := a.store.GetTransactionsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s %d: %w", month, year, err)
	}

	counted := make([]model.Transaction, 0, len(txns))
	for _, txn := range txns {
		if Included(txn) {
			counted = append(counted, txn)
		}
	}

	totals := ComputeTotals(counted)

	a.logger.Debug("Aggregated month",
		"month", int(month),
		"year", year,
		"transactions", len(txns),
		"counted", len(counted),
		"categories", len(totals))

	return totals, nil
}

// Included reports whether a transaction counts toward monthly totals. Pending
// transactions and those ignored, transferred, removed or awaiting review are excluded.
func Included(txn model.Transaction) bool {
	if txn.Pending {
		return false
	}
	switch txn.Status {
	case model.StatusIgnored, model.StatusTransfer, model.StatusRemoved, model.StatusNeedsReview:
		return false
	}
	return true
}

// ComputeTotals sums spend by category. Transactions without a category are skipped.
func ComputeTotals(txns []model.Transaction) Totals {
	totals := make(Totals)
	for _, txn := range txns {
		if !txn.HasCategory() {
			continue
		}
		totals[txn.Category] = totals[txn.Category].Add(txn.AmountSpend)
	}
	return totals
}

// MonthWindow returns the first and last instant of a calendar month in loc.
func MonthWindow(month time.Month, year int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

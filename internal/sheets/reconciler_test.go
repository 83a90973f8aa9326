package sheets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/budget"
	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
)

const testSpreadsheet = "sheet-123"

type fakeAggregator struct {
	totals budget.Totals
	err    error
	month  time.Month
	year   int
}

func (f *fakeAggregator) Aggregate(_ context.Context, month time.Month, year int) (budget.Totals, error) {
	f.month, f.year = month, year
	return f.totals, f.err
}

type auditRecord struct {
	payload   map[string]any
	eventType string
}

type fakeRecorder struct {
	events []auditRecord
	mu     sync.Mutex
}

func (f *fakeRecorder) Append(_ context.Context, eventType string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditRecord{eventType: eventType, payload: payload})
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SpreadsheetID = testSpreadsheet
	return cfg
}

func newWorkbook(t *testing.T) *MemorySink {
	t.Helper()
	sink := NewMemorySink()
	ctx := context.Background()
	require.NoError(t, sink.AddSheet(ctx, testSpreadsheet, "Running Balance"))
	require.NoError(t, sink.BatchWrite(ctx, testSpreadsheet, InputUserEntered, []ValueRange{
		{Range: "'Running Balance'!D3", Values: [][]any{{"=D2-D4"}}},
	}))
	return sink
}

func pushInput() PushInput {
	return PushInput{
		Date: time.Date(2026, time.January, 20, 12, 0, 0, 0, time.UTC),
		Bank: decimal.RequireFromString("1200.50"),
		CC1:  decimal.NewFromInt(300),
		CC2:  decimal.NewFromInt(75),
	}
}

func TestPush_WritesBalancesAndTotals(t *testing.T) {
	sink := newWorkbook(t)
	ctx := context.Background()
	require.NoError(t, sink.AddSheet(ctx, testSpreadsheet, "January 2026"))
	require.NoError(t, sink.BatchWrite(ctx, testSpreadsheet, InputUserEntered, []ValueRange{
		{Range: "'January 2026'!A1", Values: [][]any{{"Food", ""}, {"SUM", "=SUM(B1:B3)"}, {"Grocery", ""}}},
	}))

	agg := &fakeAggregator{totals: budget.Totals{
		"Food":    decimal.NewFromInt(15),
		"Grocery": decimal.NewFromInt(7),
		"SUM":     decimal.NewFromInt(999),
		"Travel":  decimal.NewFromInt(40),
	}}
	rec := &fakeRecorder{}
	r := NewReconciler(sink, agg, rec, testConfig(), model.CategoryNames(model.DefaultBudgets), time.UTC, nil)

	require.NoError(t, r.Push(ctx, pushInput()))

	bank, _ := sink.Value(testSpreadsheet, "'Running Balance'!B2")
	assert.InDelta(t, 1200.50, bank, 0.001)
	cc1, _ := sink.Value(testSpreadsheet, "'Running Balance'!D2")
	assert.InDelta(t, 300.0, cc1, 0.001)
	cc2, _ := sink.Value(testSpreadsheet, "'Running Balance'!D4")
	assert.InDelta(t, 75.0, cc2, 0.001)
	derived, _ := sink.Value(testSpreadsheet, "'Running Balance'!D3")
	assert.Equal(t, "=D2-D4", derived)

	food, _ := sink.Value(testSpreadsheet, "'January 2026'!B1")
	assert.InDelta(t, 15.0, food, 0.001)
	sum, _ := sink.Value(testSpreadsheet, "'January 2026'!B2")
	assert.Equal(t, "=SUM(B1:B3)", sum)
	grocery, _ := sink.Value(testSpreadsheet, "'January 2026'!B3")
	assert.InDelta(t, 7.0, grocery, 0.001)

	assert.Equal(t, time.January, agg.month)
	assert.Equal(t, 2026, agg.year)

	// Setup writes plus one balance batch and one totals batch.
	writes := sink.Writes()
	require.Len(t, writes, 4)
	assert.Equal(t, InputRaw, writes[2].Input)
	assert.Len(t, writes[2].Data, 3)
	assert.Len(t, writes[3].Data, 2)
	for _, w := range writes[2:] {
		for _, vr := range w.Data {
			assert.NotContains(t, vr.Range, "D3")
			assert.NotEqual(t, "'January 2026'!B2", vr.Range)
		}
	}

	require.Len(t, rec.events, 1)
	assert.Equal(t, model.EventSheetsPush, rec.events[0].eventType)
	assert.Equal(t, "January 2026", rec.events[0].payload["month"])
	assert.Equal(t, "1200.5", rec.events[0].payload["bank"])
}

func TestPush_CreatesAndSeedsMonthlyTab(t *testing.T) {
	sink := newWorkbook(t)
	agg := &fakeAggregator{totals: budget.Totals{"Grocery": decimal.NewFromInt(7)}}
	categories := []string{"Food", "Grocery"}
	r := NewReconciler(sink, agg, nil, testConfig(), categories, time.UTC, nil)

	require.NoError(t, r.Push(context.Background(), pushInput()))

	titles, err := sink.SheetTitles(context.Background(), testSpreadsheet)
	require.NoError(t, err)
	assert.Contains(t, titles, "January 2026")

	rows, err := sink.ReadRange(context.Background(), testSpreadsheet, "'January 2026'!A1:B50")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Food", rows[0][0])
	assert.Equal(t, "SUM", rows[2][0])
	assert.Equal(t, "=SUM(B1:B2)", rows[2][1])
	assert.InDelta(t, 7.0, rows[1][1], 0.001)

	// A second push must not reseed the tab.
	before := len(sink.Writes())
	require.NoError(t, r.Push(context.Background(), pushInput()))
	for _, w := range sink.Writes()[before:] {
		assert.Equal(t, InputRaw, w.Input)
	}
}

func TestPush_SeedsTabLeftEmptyByFailedPush(t *testing.T) {
	sink := newWorkbook(t)
	seedFails := true
	sink.FailWrite = func(call WriteCall) error {
		if seedFails && call.Input == InputUserEntered {
			return errors.New("quota exceeded")
		}
		return nil
	}
	agg := &fakeAggregator{totals: budget.Totals{"Food": decimal.NewFromInt(15)}}
	rec := &fakeRecorder{}
	r := NewReconciler(sink, agg, rec, testConfig(), []string{"Food", "Grocery"}, time.UTC, nil)
	ctx := context.Background()

	err := r.Push(ctx, pushInput())
	var pushErr *PushError
	require.ErrorAs(t, err, &pushErr)
	assert.Equal(t, StageMonthlyTab, pushErr.Stage)

	titles, err := sink.SheetTitles(ctx, testSpreadsheet)
	require.NoError(t, err)
	assert.Contains(t, titles, "January 2026", "the tab was created before the seed failed")

	seedFails = false
	require.NoError(t, r.Push(ctx, pushInput()))

	rows, err := sink.ReadRange(ctx, testSpreadsheet, "'January 2026'!A1:B50")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Food", rows[0][0])
	assert.InDelta(t, 15.0, rows[0][1], 0.001)
	assert.Equal(t, "=SUM(B1:B2)", rows[2][1])

	require.Len(t, rec.events, 2)
	assert.Equal(t, model.EventSheetsPushFailed, rec.events[0].eventType)
	assert.Equal(t, model.EventSheetsPush, rec.events[1].eventType)
}

func TestPush_UsesConfiguredZoneForMonth(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	sink := newWorkbook(t)
	agg := &fakeAggregator{totals: budget.Totals{}}
	r := NewReconciler(sink, agg, nil, testConfig(), []string{"Food"}, kolkata, nil)

	in := pushInput()
	in.Date = time.Date(2026, time.January, 31, 20, 0, 0, 0, time.UTC)
	require.NoError(t, r.Push(context.Background(), in))

	assert.Equal(t, time.February, agg.month)
	titles, _ := sink.SheetTitles(context.Background(), testSpreadsheet)
	assert.Contains(t, titles, "February 2026")
}

func TestPush_PartialFailure(t *testing.T) {
	sink := newWorkbook(t)
	ctx := context.Background()
	require.NoError(t, sink.AddSheet(ctx, testSpreadsheet, "January 2026"))
	require.NoError(t, sink.BatchWrite(ctx, testSpreadsheet, InputRaw, []ValueRange{
		{Range: "'January 2026'!A1", Values: [][]any{{"Food", ""}}},
	}))

	sink.FailWrite = func(call WriteCall) error {
		if strings.Contains(call.Data[0].Range, "January 2026") {
			return common.NewUpstreamError(providerName, 503, errors.New("backend unavailable"))
		}
		return nil
	}

	agg := &fakeAggregator{totals: budget.Totals{"Food": decimal.NewFromInt(15)}}
	rec := &fakeRecorder{}
	r := NewReconciler(sink, agg, rec, testConfig(), []string{"Food"}, time.UTC, nil)

	err := r.Push(ctx, pushInput())
	var pushErr *PushError
	require.ErrorAs(t, err, &pushErr)
	assert.Equal(t, StageMonthlyTotals, pushErr.Stage)
	assert.True(t, pushErr.BalancesWritten)
	assert.Equal(t, "upstream", common.Kind(err))

	bank, ok := sink.Value(testSpreadsheet, "'Running Balance'!B2")
	require.True(t, ok)
	assert.InDelta(t, 1200.50, bank, 0.001)

	require.Len(t, rec.events, 1)
	assert.Equal(t, model.EventSheetsPushFailed, rec.events[0].eventType)
	assert.Equal(t, string(StageMonthlyTotals), rec.events[0].payload["stage"])
}

func TestPush_BalanceFailureStopsEarly(t *testing.T) {
	sink := newWorkbook(t)
	sink.FailWrite = func(WriteCall) error { return errors.New("quota") }
	agg := &fakeAggregator{}
	r := NewReconciler(sink, agg, nil, testConfig(), []string{"Food"}, time.UTC, nil)

	err := r.Push(context.Background(), pushInput())
	var pushErr *PushError
	require.ErrorAs(t, err, &pushErr)
	assert.Equal(t, StageBalances, pushErr.Stage)
	assert.False(t, pushErr.BalancesWritten)
	assert.Zero(t, agg.year)
}

func TestPush_ReservedBalanceCellRejected(t *testing.T) {
	sink := newWorkbook(t)
	cfg := testConfig()
	cfg.CC1Cell = "D3"
	r := NewReconciler(sink, &fakeAggregator{}, nil, cfg, []string{"Food"}, time.UTC, nil)

	err := r.Push(context.Background(), pushInput())
	require.Error(t, err)

	derived, _ := sink.Value(testSpreadsheet, "'Running Balance'!D3")
	assert.Equal(t, "=D2-D4", derived)
}

func TestPush_AggregationErrorAfterBalances(t *testing.T) {
	sink := newWorkbook(t)
	agg := &fakeAggregator{err: errors.New("db closed")}
	r := NewReconciler(sink, agg, nil, testConfig(), []string{"Food"}, time.UTC, nil)

	err := r.Push(context.Background(), pushInput())
	var pushErr *PushError
	require.ErrorAs(t, err, &pushErr)
	assert.Equal(t, StageMonthlyTotals, pushErr.Stage)
}

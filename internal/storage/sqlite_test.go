package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/service"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)

	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testTransaction(id string, date time.Time, merchant, amount string) model.Transaction {
	return model.Transaction{
		ExternalID:  id,
		AccountID:   "acc1",
		Date:        date,
		Merchant:    merchant,
		Description: merchant + " purchase",
		AmountSpend: decimal.RequireFromString(amount),
	}
}

func TestSQLiteStorage_Migrations(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestSQLiteStorage_UpsertTransactions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	txns := []model.Transaction{
		testTransaction("t1", day, "McDonalds", "10.50"),
		testTransaction("t2", day.Add(24*time.Hour), "Starbucks", "4.25"),
	}

	n, err := store.UpsertTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUncategorized, got.Status)
	assert.Equal(t, model.SourceNone, got.Source)
	assert.True(t, decimal.RequireFromString("10.5").Equal(got.AmountSpend))
	assert.True(t, day.Equal(got.Date))
	assert.Nil(t, got.Confidence)

	t.Run("unchanged records are no-ops", func(t *testing.T) {
		n, err := store.UpsertTransactions(ctx, txns)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("existing decisions survive an upstream change", func(t *testing.T) {
		require.NoError(t, store.UpdateDecision(ctx, "t1", model.Decision{
			Category: "Food",
			Status:   model.StatusCategorized,
			Source:   model.SourceRule,
		}))

		changed := testTransaction("t1", day, "McDonalds", "11.00")
		n, err := store.UpsertTransactions(ctx, []model.Transaction{changed})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := store.GetTransaction(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "Food", got.Category)
		assert.Equal(t, model.StatusCategorized, got.Status)
		assert.Equal(t, model.SourceRule, got.Source)
		assert.True(t, decimal.RequireFromString("11").Equal(got.AmountSpend))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := store.UpsertTransactions(ctx, nil)
		require.ErrorIs(t, err, ErrNilParameter)

		_, err = store.UpsertTransactions(ctx, []model.Transaction{{AccountID: "a", Date: day}})
		require.ErrorIs(t, err, ErrInvalidTransaction)
	})
}

func TestSQLiteStorage_QueryTransactions(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	jan31 := time.Date(2026, 1, 31, 18, 29, 0, 0, time.UTC)
	feb1 := time.Date(2026, 1, 31, 18, 31, 0, 0, time.UTC)
	_, err := store.UpsertTransactions(ctx, []model.Transaction{
		testTransaction("a", jan31, "A", "1"),
		testTransaction("b", feb1, "B", "2"),
		testTransaction("c", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), "C", "3"),
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  []string
	}{
		{
			name:  "inclusive bounds",
			start: jan31,
			end:   feb1,
			want:  []string{"a", "b"},
		},
		{
			name:  "end excludes later rows",
			start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2026, 1, 31, 18, 30, 0, 0, time.UTC),
			want:  []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetTransactionsInRange(ctx, tt.start, tt.end)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, txn := range got {
				ids = append(ids, txn.ExternalID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err = store.GetTransactionsInRange(ctx, feb1, jan31)
	require.ErrorIs(t, err, ErrInvalidDateRange)

	latest, err := store.LatestTransactionDate(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Equal(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, store.MarkRemoved(ctx, []string{"c"}))
	removed, err := store.GetTransactionsByStatus(ctx, model.StatusRemoved)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "c", removed[0].ExternalID)

	listed, err := store.ListTransactions(ctx, service.TransactionFilter{Status: model.StatusUncategorized, Limit: 1})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "b", listed[0].ExternalID)
}

func TestSQLiteStorage_UpdateDecision(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.UpsertTransactions(ctx, []model.Transaction{
		testTransaction("t1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "Uber", "7"),
	})
	require.NoError(t, err)

	require.NoError(t, store.UpdateDecision(ctx, "t1", model.Decision{
		Category:   "Transport",
		Status:     model.StatusNeedsReview,
		Source:     model.SourceLLM,
		Confidence: model.Float64Ptr(0.4),
	}))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.4, *got.Confidence, 1e-9)
	assert.Equal(t, model.StatusNeedsReview, got.Status)

	err = store.UpdateDecision(ctx, "missing", model.Decision{Status: model.StatusCategorized})
	require.ErrorIs(t, err, common.ErrNotFound)

	err = store.UpdateDecision(ctx, "t1", model.Decision{Status: "bogus"})
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = store.GetTransaction(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_Rules(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	rules := []*model.Rule{
		{Name: "low", Pattern: "cafe", PatternType: model.PatternSubstring, Category: "Food", Priority: 0, Enabled: true},
		{Name: "high", Pattern: "^uber", PatternType: model.PatternRegex, Category: "Transport", Priority: 5, Enabled: true},
		{Name: "off", Pattern: "amazon", PatternType: model.PatternSubstring, Category: "Shopping", Priority: 9, Enabled: false},
	}
	for _, r := range rules {
		require.NoError(t, store.CreateRule(ctx, r))
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, model.OriginUser, r.Origin)
	}

	enabled, err := store.GetEnabledRules(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "high", enabled[0].Name)
	assert.Equal(t, "low", enabled[1].Name)

	require.NoError(t, store.SetRuleEnabled(ctx, rules[2].ID, true))
	enabled, err = store.GetEnabledRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "off", enabled[0].Name)

	require.NoError(t, store.DeleteRule(ctx, rules[0].ID))
	all, err := store.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.ErrorIs(t, store.DeleteRule(ctx, rules[0].ID), common.ErrNotFound)
	require.ErrorIs(t, store.CreateRule(ctx, &model.Rule{Pattern: "x", PatternType: "glob", Category: "Food"}), ErrInvalidRule)
}

func TestSQLiteStorage_Accounts(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertAccounts(ctx, []model.Account{
		{ID: "checking", Name: "Checking", BalanceCurrent: decimal.RequireFromString("1200.50")},
		{ID: "visa", Name: "Visa", BalanceCurrent: decimal.RequireFromString("300")},
	}))

	require.NoError(t, store.SetAccountRole(ctx, "checking", model.RoleBank))
	require.NoError(t, store.SetAccountRole(ctx, "visa", model.RoleBank))

	// A balance refresh must not clear the mapping.
	require.NoError(t, store.UpsertAccounts(ctx, []model.Account{
		{ID: "visa", Name: "Visa", BalanceCurrent: decimal.RequireFromString("310")},
	}))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	roles := map[string]model.BalanceRole{}
	for _, a := range accounts {
		roles[a.ID] = a.BalanceRole
	}
	assert.Equal(t, model.RoleNone, roles["checking"])
	assert.Equal(t, model.RoleBank, roles["visa"])

	balances := model.BalancesFromAccounts(accounts)
	assert.True(t, decimal.RequireFromString("310").Equal(balances.Bank))

	require.ErrorIs(t, store.SetAccountRole(ctx, "nope", model.RoleCC1), common.ErrNotFound)
	require.ErrorIs(t, store.SetAccountRole(ctx, "visa", "savings"), ErrInvalidAccount)
}

func TestSQLiteStorage_Audit(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first := &model.AuditEvent{EventType: model.EventCategorizedByRule, Payload: map[string]any{"rule_id": "r1"}}
	second := &model.AuditEvent{EventType: model.EventSheetsPush, Payload: map[string]any{"bank": 10.5}}
	require.NoError(t, store.AppendAudit(ctx, first))
	require.NoError(t, store.AppendAudit(ctx, second))
	assert.NotEmpty(t, first.ID)

	events, err := store.ListAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventSheetsPush, events[0].EventType)
	assert.InDelta(t, 10.5, events[0].Payload["bank"], 1e-9)
	assert.Equal(t, "r1", events[1].Payload["rule_id"])

	require.ErrorIs(t, store.AppendAudit(ctx, &model.AuditEvent{}), ErrInvalidAuditEvent)
}

func TestSQLiteStorage_Transaction(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	day := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertAccounts(ctx, []model.Account{{ID: "acc1", Name: "Checking"}}))
	_, err = tx.UpsertTransactions(ctx, []model.Transaction{testTransaction("t1", day, "A", "1")})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	_, err = store.GetTransaction(ctx, "t1")
	require.ErrorIs(t, err, common.ErrNotFound)

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.UpsertTransactions(ctx, []model.Transaction{testTransaction("t1", day, "A", "1")})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
}

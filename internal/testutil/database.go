// Package testutil provides shared fixtures for tests that need a real database.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/storage"
)

// SetupTestDB creates a migrated in-memory database that is closed when the test ends.
//
// Example:
//
//	store := testutil.SetupTestDB(t)
//	testutil.SeedTransactions(t, store, testutil.Txn("t1", date, "Swiggy", "250"))
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// SeedTransactions stores transactions, failing the test on error.
func SeedTransactions(t *testing.T, store *storage.SQLiteStorage, txns ...model.Transaction) {
	t.Helper()
	if _, err := store.UpsertTransactions(context.Background(), txns); err != nil {
		t.Fatalf("failed to seed transactions: %v", err)
	}
}

// SeedRules stores rules, failing the test on error.
func SeedRules(t *testing.T, store *storage.SQLiteStorage, rules ...model.Rule) {
	t.Helper()
	for i := range rules {
		if err := store.CreateRule(context.Background(), &rules[i]); err != nil {
			t.Fatalf("failed to seed rule %q: %v", rules[i].Name, err)
		}
	}
}

package testutil

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// Txn builds an uncategorized, posted transaction. amount is the spend in decimal form.
func Txn(id string, date time.Time, merchant, amount string) model.Transaction {
	return model.Transaction{
		ExternalID:  id,
		AccountID:   "acc-1",
		Date:        date,
		Merchant:    merchant,
		Description: merchant,
		AmountSpend: decimal.RequireFromString(amount),
		Status:      model.StatusUncategorized,
		Source:      model.SourceNone,
	}
}

// Categorized returns txn with a rule-sourced category.
func Categorized(txn model.Transaction, category string) model.Transaction {
	txn.Category = category
	txn.Status = model.StatusCategorized
	txn.Source = model.SourceRule
	return txn
}

// Rule builds an enabled substring rule.
func Rule(pattern, category string, priority int) model.Rule {
	return model.Rule{
		Name:        "Rule for " + pattern,
		Pattern:     pattern,
		PatternType: model.PatternSubstring,
		Category:    category,
		Origin:      model.OriginUser,
		Priority:    priority,
		Enabled:     true,
	}
}

// Location loads a time zone, failing the test when it is unknown.
func Location(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("failed to load location %q: %v", name, err)
	}
	return loc
}

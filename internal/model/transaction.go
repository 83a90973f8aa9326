// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a transaction's categorization.
type TransactionStatus string

// Transaction status constants.
const (
	StatusUncategorized TransactionStatus = "uncategorized"
	StatusCategorized   TransactionStatus = "categorized"
	StatusNeedsReview   TransactionStatus = "needs_review"
	StatusTransfer      TransactionStatus = "transfer"
	StatusIgnored       TransactionStatus = "ignored"
	StatusRemoved       TransactionStatus = "removed"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusUncategorized, StatusCategorized, StatusNeedsReview,
		StatusTransfer, StatusIgnored, StatusRemoved:
		return true
	}
	return false
}

// CategorizationSource identifies which mechanism produced the current category.
type CategorizationSource string

// Categorization source constants.
const (
	SourceRule   CategorizationSource = "rule"
	SourceLLM    CategorizationSource = "llm"
	SourceManual CategorizationSource = "manual"
	SourceNone   CategorizationSource = "none"
)

// Transaction represents a single normalized financial transaction.
type Transaction struct {
	Date        time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Confidence  *float64
	ExternalID  string
	AccountID   string
	Merchant    string // optional, cleaned merchant name
	Description string // raw upstream description
	Category    string // empty when unset
	Status      TransactionStatus
	Source      CategorizationSource
	AmountSpend decimal.Decimal // positive = money spent
	Pending     bool
}

// HasCategory reports whether a category has been assigned.
func (t *Transaction) HasCategory() bool {
	return t.Category != ""
}

// Decided reports whether the transaction has left the uncategorized state.
func (t *Transaction) Decided() bool {
	return t.Status != StatusUncategorized && t.Status != ""
}

// Decision is the outcome of categorizing a single transaction.
type Decision struct {
	Confidence *float64
	Category   string
	RuleID     string
	Reason     string
	Status     TransactionStatus
	Source     CategorizationSource
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

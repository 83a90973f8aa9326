// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Status    model.TransactionStatus
	Limit     int
	Offset    int
}

// TransactionStore persists canonical transactions and their decisions.
type TransactionStore interface {
	UpsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	GetTransaction(ctx context.Context, externalID string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.Transaction, error)
	GetTransactionsInRange(ctx context.Context, start, end time.Time) ([]model.Transaction, error)
	UpdateDecision(ctx context.Context, externalID string, decision model.Decision) error
	MarkRemoved(ctx context.Context, externalIDs []string) error
	LatestTransactionDate(ctx context.Context) (time.Time, error)
}

// RuleStore persists categorization rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *model.Rule) error
	ListRules(ctx context.Context) ([]model.Rule, error)
	GetEnabledRules(ctx context.Context) ([]model.Rule, error)
	SetRuleEnabled(ctx context.Context, id string, enabled bool) error
	DeleteRule(ctx context.Context, id string) error
}

// AccountStore persists upstream accounts and their balance roles.
type AccountStore interface {
	UpsertAccounts(ctx context.Context, accounts []model.Account) error
	ListAccounts(ctx context.Context) ([]model.Account, error)
	SetAccountRole(ctx context.Context, accountID string, role model.BalanceRole) error
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, event *model.AuditEvent) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEvent, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	TransactionStore
	RuleStore
	AccountStore
	AuditStore

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction covering one ingestion batch.
type Transaction interface {
	Commit() error
	Rollback() error
	UpsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error)
	UpsertAccounts(ctx context.Context, accounts []model.Account) error
	MarkRemoved(ctx context.Context, externalIDs []string) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

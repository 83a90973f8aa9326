// Package storage provides the SQLite persistence layer for transactions, rules, accounts and the audit log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidStatus      = errors.New("invalid transaction status")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidRule        = errors.New("invalid rule")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidAuditEvent  = errors.New("invalid audit event")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ExternalID == "" {
		return fmt.Errorf("%w: missing external ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	if txn.Status != "" && !txn.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, txn.Status)
	}
	return nil
}

// validateDecision validates a categorization decision before it is persisted.
func validateDecision(d model.Decision) error {
	if !d.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 1) {
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidTransaction, *d.Confidence)
	}
	return nil
}

// validateRule validates a rule.
func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if !rule.PatternType.Valid() {
		return fmt.Errorf("%w: unknown pattern type %q", ErrInvalidRule, rule.PatternType)
	}
	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidRule)
	}
	return nil
}

// validateAccounts validates a slice of accounts.
func validateAccounts(accounts []model.Account) error {
	for i, acct := range accounts {
		if acct.ID == "" {
			return fmt.Errorf("%w: account at index %d is missing an ID", ErrInvalidAccount, i)
		}
		if !acct.BalanceRole.Valid() {
			return fmt.Errorf("%w: unknown balance role %q", ErrInvalidAccount, acct.BalanceRole)
		}
	}
	return nil
}

// validateAuditEvent validates an audit event.
func validateAuditEvent(event *model.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("%w: audit event", ErrNilParameter)
	}
	if event.EventType == "" {
		return fmt.Errorf("%w: missing event type", ErrInvalidAuditEvent)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/model"
	"github.com/Veraticus/autobudgeter/internal/service"
)

const transactionColumns = `external_id, account_id, date, merchant, description, amount_spend,
	pending, category, status, source, confidence, created_at, updated_at`

// UpsertTransactions inserts new transactions and refreshes upstream fields of existing ones.
// Decision fields of existing rows are never touched, and rows whose upstream fields are
// unchanged are left alone. It returns the number of rows inserted or changed.
func (s *SQLiteStorage) UpsertTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := s.upsertTransactionsTx(ctx, tx, transactions)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) upsertTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			account_id = excluded.account_id,
			date = excluded.date,
			merchant = excluded.merchant,
			description = excluded.description,
			amount_spend = excluded.amount_spend,
			pending = excluded.pending,
			updated_at = excluded.updated_at
		WHERE transactions.account_id != excluded.account_id
			OR transactions.date != excluded.date
			OR transactions.merchant != excluded.merchant
			OR transactions.description != excluded.description
			OR transactions.amount_spend != excluded.amount_spend
			OR transactions.pending != excluded.pending
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := formatTime(s.now())
	changed := 0
	for _, txn := range transactions {
		status := txn.Status
		if status == "" {
			status = model.StatusUncategorized
		}
		source := txn.Source
		if source == "" {
			source = model.SourceNone
		}

		result, execErr := stmt.ExecContext(ctx,
			txn.ExternalID,
			txn.AccountID,
			formatTime(txn.Date),
			txn.Merchant,
			txn.Description,
			txn.AmountSpend.String(),
			txn.Pending,
			nullString(txn.Category),
			string(status),
			string(source),
			nullFloat(txn.Confidence),
			now,
			now,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to upsert transaction %s: %w", txn.ExternalID, execErr)
		}
		if rows, rowsErr := result.RowsAffected(); rowsErr == nil {
			changed += int(rows)
		}
	}

	return changed, nil
}

// GetTransaction retrieves a transaction by its upstream identity.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, externalID string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_id = ?`, externalID)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", externalID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions retrieves transactions matching filter, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, formatTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "date <= ?")
		args = append(args, formatTime(*filter.EndDate))
	}
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
		}
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, external_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	return s.queryTransactions(ctx, query, args...)
}

// GetTransactionsByStatus retrieves every transaction in the given status, oldest first.
func (s *SQLiteStorage) GetTransactionsByStatus(ctx context.Context, status model.TransactionStatus) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = ? ORDER BY date ASC, external_id ASC`,
		string(status))
}

// GetTransactionsInRange retrieves transactions dated within [start, end] inclusive.
func (s *SQLiteStorage) GetTransactionsInRange(ctx context.Context, start, end time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}

	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE date >= ? AND date <= ? ORDER BY date ASC, external_id ASC`,
		formatTime(start), formatTime(end))
}

// UpdateDecision records a categorization decision on a single transaction.
func (s *SQLiteStorage) UpdateDecision(ctx context.Context, externalID string, decision model.Decision) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return err
	}
	if err := validateDecision(decision); err != nil {
		return err
	}

	source := decision.Source
	if source == "" {
		source = model.SourceNone
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, status = ?, source = ?, confidence = ?, updated_at = ?
		WHERE external_id = ?
	`,
		nullString(decision.Category),
		string(decision.Status),
		string(source),
		nullFloat(decision.Confidence),
		formatTime(s.now()),
		externalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update decision: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", externalID, common.ErrNotFound)
	}
	return nil
}

// MarkRemoved moves transactions to the removed status without deleting them.
func (s *SQLiteStorage) MarkRemoved(ctx context.Context, externalIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.markRemovedTx(ctx, tx, externalIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) markRemovedTx(ctx context.Context, tx *sql.Tx, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE external_id = ? AND status != ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := formatTime(s.now())
	for _, id := range externalIDs {
		if _, err := stmt.ExecContext(ctx, string(model.StatusRemoved), now, id, string(model.StatusRemoved)); err != nil {
			return fmt.Errorf("failed to mark transaction %s removed: %w", id, err)
		}
	}
	return nil
}

// LatestTransactionDate returns the most recent stored transaction date, or the zero time.
func (s *SQLiteStorage) LatestTransactionDate(ctx context.Context) (time.Time, error) {
	if err := validateContext(ctx); err != nil {
		return time.Time{}, err
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(date) FROM transactions`).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest transaction date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return parseTime(latest.String)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn                        model.Transaction
		date, createdAt, updatedAt string
		amount                     string
		category                   sql.NullString
		confidence                 sql.NullFloat64
		status, source             string
	)

	if err := row.Scan(
		&txn.ExternalID, &txn.AccountID, &date, &txn.Merchant, &txn.Description, &amount,
		&txn.Pending, &category, &status, &source, &confidence, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if txn.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if txn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if txn.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if txn.AmountSpend, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount for %s: %w", txn.ExternalID, err)
	}

	txn.Category = category.String
	txn.Status = model.TransactionStatus(status)
	txn.Source = model.CategorizationSource(source)
	if confidence.Valid {
		txn.Confidence = model.Float64Ptr(confidence.Float64)
	}

	return &txn, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

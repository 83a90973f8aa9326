package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// UpsertAccounts stores upstream accounts and their current balances.
// A stored balance role is kept unless the incoming account carries one.
func (s *SQLiteStorage) UpsertAccounts(ctx context.Context, accounts []model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccounts(accounts); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.upsertAccountsTx(ctx, tx, accounts); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) upsertAccountsTx(ctx context.Context, tx *sql.Tx, accounts []model.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accounts (id, name, mask, type, balance_current, balance_role, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mask = excluded.mask,
			type = excluded.type,
			balance_current = excluded.balance_current,
			balance_role = CASE WHEN excluded.balance_role != '' THEN excluded.balance_role ELSE accounts.balance_role END,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := formatTime(s.now())
	for _, acct := range accounts {
		if _, err := stmt.ExecContext(ctx,
			acct.ID, acct.Name, acct.Mask, acct.Type,
			acct.BalanceCurrent.String(), string(acct.BalanceRole), now,
		); err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", acct.ID, err)
		}
	}
	return nil
}

// ListAccounts retrieves every known account.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, mask, type, balance_current, balance_role, updated_at
		FROM accounts
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var (
			acct                   model.Account
			balance, role, updated string
		)
		if err := rows.Scan(&acct.ID, &acct.Name, &acct.Mask, &acct.Type, &balance, &role, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if acct.BalanceCurrent, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("failed to parse balance for account %s: %w", acct.ID, err)
		}
		acct.BalanceRole = model.BalanceRole(role)
		if acct.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// SetAccountRole maps an account to a running-balance role. Any other account holding
// the same role is cleared so each role resolves to one account.
func (s *SQLiteStorage) SetAccountRole(ctx context.Context, accountID string, role model.BalanceRole) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown balance role %q", ErrInvalidAccount, role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if role != model.RoleNone {
		if _, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance_role = '' WHERE balance_role = ? AND id != ?`,
			string(role), accountID); err != nil {
			return fmt.Errorf("failed to clear previous role holder: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance_role = ?, updated_at = ? WHERE id = ?`,
		string(role), formatTime(s.now()), accountID)
	if err != nil {
		return fmt.Errorf("failed to set account role: %w", err)
	}
	if err := requireAffected(result, "account "+accountID); err != nil {
		return err
	}

	return tx.Commit()
}

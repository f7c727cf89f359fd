package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"brokerlink/internal/domain/account"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, connection_id, user_id, name, account_type, balance, currency,
	last_holdings_sync_at, last_transactions_sync_at, initial_sync_completed, created_at, updated_at`

func scanAccount(row rowScanner) (*account.ExternalAccount, error) {
	var acc account.ExternalAccount
	var holdingsAt, transactionsAt sql.NullTime
	if err := row.Scan(
		&acc.ID, &acc.ConnectionID, &acc.UserID, &acc.Name, &acc.AccountType, &acc.Balance, &acc.Currency,
		&holdingsAt, &transactionsAt, &acc.InitialSyncCompleted, &acc.CreatedAt, &acc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if holdingsAt.Valid {
		acc.LastHoldingsSyncAt = &holdingsAt.Time
	}
	if transactionsAt.Valid {
		acc.LastTransactionsSyncAt = &transactionsAt.Time
	}
	return &acc, nil
}

// Upsert creates the account on first observation and refreshes its
// descriptive fields afterwards. Balance is written by UpdateBalance only.
// A row owned by another user is left untouched and ErrOwnerMismatch returned.
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.ExternalAccount, error) {
	query := `
		INSERT INTO external_accounts (id, connection_id, user_id, name, account_type, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
			SET connection_id = EXCLUDED.connection_id,
			    name = COALESCE(NULLIF(EXCLUDED.name, ''), external_accounts.name),
			    account_type = COALESCE(NULLIF(EXCLUDED.account_type, ''), external_accounts.account_type),
			    currency = COALESCE(NULLIF(EXCLUDED.currency, ''), external_accounts.currency),
			    updated_at = NOW()
			WHERE external_accounts.user_id = EXCLUDED.user_id
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		params.ID, params.ConnectionID, params.UserID, params.Name, params.AccountType, params.Currency,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", params.ID, account.ErrOwnerMismatch)
	}
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("account %s: %w", params.ID, account.ErrConnectionMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return acc, nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.ExternalAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM external_accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// ListByUserID retrieves all accounts for a specific user
func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.ExternalAccount, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM external_accounts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *AccountRepository) ListByConnection(ctx context.Context, connectionID string) ([]*account.ExternalAccount, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM external_accounts WHERE connection_id = $1 ORDER BY created_at DESC`, connectionID)
}

func (r *AccountRepository) list(ctx context.Context, query string, args ...any) ([]*account.ExternalAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.ExternalAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, params account.BalanceParams) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE external_accounts
		SET balance = $1,
		    currency = COALESCE(NULLIF($2, ''), currency),
		    initial_sync_completed = true,
		    updated_at = $3
		WHERE id = $4
	`, params.Amount, params.Currency, params.SyncedAt, params.AccountID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// ReplacePositions swaps the account's holdings in one transaction.
func (r *AccountRepository) ReplacePositions(ctx context.Context, accountID string, positions []account.Position) error {
	return r.db.withTx(ctx, "positions.replace", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE account_id = $1`, accountID); err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}

		for _, p := range positions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO positions (account_id, symbol, description, quantity, price, currency)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (account_id, symbol) DO UPDATE
					SET quantity = positions.quantity + EXCLUDED.quantity,
					    price = EXCLUDED.price
			`, accountID, p.Symbol, p.Description, p.Quantity, p.Price, p.Currency); err != nil {
				return fmt.Errorf("failed to insert position %s: %w", p.Symbol, err)
			}
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE external_accounts SET last_holdings_sync_at = NOW(), updated_at = NOW() WHERE id = $1`,
			accountID,
		)
		if err != nil {
			return fmt.Errorf("failed to stamp holdings sync: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return account.ErrAccountNotFound
		}
		return nil
	})
}

func (r *AccountRepository) ListPositions(ctx context.Context, accountID string) ([]account.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, symbol, description, quantity, price, currency, updated_at
		FROM positions
		WHERE account_id = $1
		ORDER BY symbol
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []account.Position
	for rows.Next() {
		var p account.Position
		if err := rows.Scan(&p.AccountID, &p.Symbol, &p.Description, &p.Quantity, &p.Price, &p.Currency, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

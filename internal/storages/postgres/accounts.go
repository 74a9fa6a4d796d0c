package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-bank/internal/storages"
)

const accountColumns = `id, user_id, account_number, country, account_type, status, created_at, updated_at`

// CreateAccount создает счет. Нарушение уникальности номера или пользователя дает ErrAlreadyExists.
func (s *PostgresStorage) CreateAccount(ctx context.Context, account *storages.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, account_number, country, account_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, account.ID, account.UserID, account.AccountNumber, account.Country, account.AccountType, account.Status, now)
	if err != nil {
		if derr := domainError(err); derr != nil {
			return derr
		}
		s.logger.Errorf("Failed to create account: %v", err)
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.CreatedAt, account.UpdatedAt = now, now

	s.logger.Infof("Created account %s for user %s (%s)", account.AccountNumber, account.UserID, account.Country)
	return nil
}

// GetAccountByUser возвращает счет пользователя
func (s *PostgresStorage) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*storages.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	return s.scanAccount(row)
}

// GetAccountByNumber возвращает счет по номеру
func (s *PostgresStorage) GetAccountByNumber(ctx context.Context, accountNumber string) (*storages.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	return s.scanAccount(row)
}

func (s *PostgresStorage) scanAccount(row *sql.Row) (*storages.Account, error) {
	var a storages.Account
	err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.Country, &a.AccountType, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get account: %v", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// AccountNumberExists проверяет, занят ли номер счета
func (s *PostgresStorage) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account number: %w", err)
	}
	return exists, nil
}

// GetBalance возвращает баланс пользователя в конкретной валюте
func (s *PostgresStorage) GetBalance(ctx context.Context, userID uuid.UUID, currency string) (*storages.Balance, error) {
	var b storages.Balance
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, currency, balance, created_at, updated_at
		FROM currency_balances
		WHERE user_id = $1 AND currency = $2
	`, userID, currency).Scan(&b.UserID, &b.Currency, &b.Amount, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get balance: %v", err)
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

// GetAllBalances возвращает все балансы пользователя
func (s *PostgresStorage) GetAllBalances(ctx context.Context, userID uuid.UUID) ([]storages.Balance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, currency, balance, created_at, updated_at
		FROM currency_balances
		WHERE user_id = $1
		ORDER BY currency
	`, userID)
	if err != nil {
		s.logger.Errorf("Failed to query balances: %v", err)
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []storages.Balance
	for rows.Next() {
		var b storages.Balance
		if err := rows.Scan(&b.UserID, &b.Currency, &b.Amount, &b.CreatedAt, &b.UpdatedAt); err != nil {
			s.logger.Errorf("Failed to scan balance: %v", err)
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

// SetBalance устанавливает баланс и пишет в журнал корректировку на разницу
func (s *PostgresStorage) SetBalance(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal, description string) error {
	if amount.IsNegative() {
		return storages.ErrInsufficientFunds
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var previous decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM currency_balances WHERE user_id = $1 AND currency = $2 FOR UPDATE
	`, userID, currency).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to lock balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO currency_balances (user_id, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, currency) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, userID, currency, amount, now)
	if err != nil {
		if derr := domainError(err); derr != nil {
			return derr
		}
		s.logger.Errorf("Failed to set balance: %v", err)
		return fmt.Errorf("failed to set balance: %w", err)
	}

	delta := amount.Sub(previous)
	if !delta.IsZero() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions (id, user_id, amount, currency, transaction_type, description, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New(), userID, delta, currency, storages.TransactionTypeAdjustment, description,
			storages.TransactionStatusCompleted, now)
		if err != nil {
			return fmt.Errorf("failed to record adjustment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit balance: %w", err)
	}

	s.logger.Infof("Balance for user %s set to %s %s (delta %s)", userID, amount, currency, delta)
	return nil
}

// GetUserTransactions возвращает записи журнала пользователя, новые первыми
func (s *PostgresStorage) GetUserTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]storages.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transfer_id, user_id, amount, currency, transaction_type, counterparty_account,
			counterparty_name, description, status, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		s.logger.Errorf("Failed to query transactions: %v", err)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []storages.Transaction
	for rows.Next() {
		var t storages.Transaction
		err := rows.Scan(
			&t.ID,
			&t.TransferID,
			&t.UserID,
			&t.Amount,
			&t.Currency,
			&t.Type,
			&t.CounterpartyAccount,
			&t.CounterpartyName,
			&t.Description,
			&t.Status,
			&t.CreatedAt,
		)
		if err != nil {
			s.logger.Errorf("Failed to scan transaction: %v", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// GetIdempotentResponse возвращает сохраненный ответ для ключа идемпотентности
func (s *PostgresStorage) GetIdempotentResponse(ctx context.Context, userID uuid.UUID, key string) (*storages.IdempotentResponse, error) {
	var r storages.IdempotentResponse
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, key, response_status, response_body, created_at
		FROM idempotency_keys WHERE user_id = $1 AND key = $2
	`, userID, key).Scan(&r.UserID, &r.Key, &r.Status, &r.Body, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return &r, nil
}

// ReserveIdempotencyKey занимает ключ строкой без ответа (response_status = 0).
// Если ключ уже занят или обработан, возвращает ErrAlreadyExists.
func (s *PostgresStorage) ReserveIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (user_id, key, response_status, response_body, created_at)
		VALUES ($1, $2, 0, ''::bytea, $3)
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return storages.ErrAlreadyExists
	}
	return nil
}

// SaveIdempotentResponse записывает ответ в занятый ключ; уже сохраненный ответ не перезаписывается
func (s *PostgresStorage) SaveIdempotentResponse(ctx context.Context, resp *storages.IdempotentResponse) error {
	resp.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (user_id, key, response_status, response_body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, key) DO UPDATE
		SET response_status = EXCLUDED.response_status, response_body = EXCLUDED.response_body
		WHERE idempotency_keys.response_status = 0
	`, resp.UserID, resp.Key, resp.Status, resp.Body, resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save idempotency key: %w", err)
	}
	return nil
}

// ReleaseIdempotencyKey снимает резерв без ответа, чтобы запрос можно было повторить
func (s *PostgresStorage) ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys WHERE user_id = $1 AND key = $2 AND response_status = 0
	`, userID, key)
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// GetSystemStatistics собирает статистику для админ-панели
func (s *PostgresStorage) GetSystemStatistics(ctx context.Context) (*storages.SystemStatistics, error) {
	stats := &storages.SystemStatistics{TotalBalances: make(map[string]decimal.Decimal)}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE verified),
			COUNT(*) FILTER (WHERE status = 'suspended'),
			(SELECT COUNT(*) FROM transactions)
		FROM users
	`).Scan(&stats.TotalUsers, &stats.VerifiedUsers, &stats.SuspendedUsers, &stats.TotalTransactions)
	if err != nil {
		s.logger.Errorf("Failed to get statistics: %v", err)
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT currency, SUM(balance) FROM currency_balances GROUP BY currency`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var currency string
		var total decimal.Decimal
		if err := rows.Scan(&currency, &total); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		stats.TotalBalances[currency] = total
	}

	return stats, rows.Err()
}

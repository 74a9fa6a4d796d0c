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

// maxSerializationRetries - сколько раз повторяем перевод при конфликте сериализации
const maxSerializationRetries = 3

// ExecuteTransfer выполняет перевод атомарно: оба баланса и обе записи журнала
// меняются в одной serializable-транзакции либо не меняются вовсе.
func (s *PostgresStorage) ExecuteTransfer(ctx context.Context, transfer *storages.TransferRecord) error {
	if transfer.ID == uuid.Nil {
		transfer.ID = uuid.New()
	}

	var err error
	for attempt := 1; attempt <= maxSerializationRetries; attempt++ {
		err = s.executeTransferOnce(ctx, transfer)
		if !isRetryable(err) {
			break
		}
		s.logger.Warnf("Transfer %s serialization conflict, attempt %d/%d", transfer.ID, attempt, maxSerializationRetries)
	}
	if err != nil {
		return err
	}

	s.logger.Infof("Transfer completed: ID=%s, %s %s from %s to %s",
		transfer.ID, transfer.Amount, transfer.Currency, transfer.SenderID, transfer.RecipientID)
	return nil
}

func (s *PostgresStorage) executeTransferOnce(ctx context.Context, transfer *storages.TransferRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		s.logger.Errorf("Failed to begin transaction: %v", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// 1. Баланс получателя в валюте перевода может отсутствовать
	_, err = tx.ExecContext(ctx, `
		INSERT INTO currency_balances (user_id, currency, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (user_id, currency) DO NOTHING
	`, transfer.RecipientID, transfer.Currency, now)
	if err != nil {
		s.logger.Errorf("Failed to prepare recipient balance: %v", err)
		return fmt.Errorf("failed to prepare recipient balance: %w", err)
	}

	// 2. Блокируем обе строки в порядке user_id, чтобы встречные переводы не взаимоблокировались
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id, balance FROM currency_balances
		WHERE currency = $1 AND user_id IN ($2, $3)
		ORDER BY user_id
		FOR UPDATE
	`, transfer.Currency, transfer.SenderID, transfer.RecipientID)
	if err != nil {
		s.logger.Errorf("Failed to lock balances: %v", err)
		return fmt.Errorf("failed to lock balances: %w", err)
	}

	senderBalance := decimal.Zero
	senderFound := false
	for rows.Next() {
		var userID uuid.UUID
		var balance decimal.Decimal
		if err := rows.Scan(&userID, &balance); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan balance: %w", err)
		}
		if userID == transfer.SenderID {
			senderBalance, senderFound = balance, true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to lock balances: %w", err)
	}

	// 3. Проверяем достаточность средств уже под блокировкой
	if !senderFound || senderBalance.LessThan(transfer.Amount) {
		return fmt.Errorf("%w: have %s, need %s", storages.ErrInsufficientFunds, senderBalance, transfer.Amount)
	}

	// 4. Списываем у отправителя
	_, err = tx.ExecContext(ctx, `
		UPDATE currency_balances SET balance = balance - $1, updated_at = $2
		WHERE user_id = $3 AND currency = $4
	`, transfer.Amount, now, transfer.SenderID, transfer.Currency)
	if err != nil {
		if pgCode(err) == codeCheckViolation {
			return storages.ErrInsufficientFunds
		}
		s.logger.Errorf("Failed to debit sender: %v", err)
		return fmt.Errorf("failed to debit sender: %w", err)
	}

	// 5. Зачисляем получателю
	_, err = tx.ExecContext(ctx, `
		UPDATE currency_balances SET balance = balance + $1, updated_at = $2
		WHERE user_id = $3 AND currency = $4
	`, transfer.Amount, now, transfer.RecipientID, transfer.Currency)
	if err != nil {
		s.logger.Errorf("Failed to credit recipient: %v", err)
		return fmt.Errorf("failed to credit recipient: %w", err)
	}

	// 6. Две записи журнала: списание и зачисление
	insertLedger := `
		INSERT INTO transactions (id, transfer_id, user_id, amount, currency, transaction_type,
			counterparty_account, counterparty_name, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.ExecContext(ctx, insertLedger,
		uuid.New(), transfer.ID, transfer.SenderID, transfer.Amount.Neg(), transfer.Currency,
		storages.TransactionTypeTransferOut, transfer.RecipientAccount, transfer.RecipientName,
		transfer.Description, storages.TransactionStatusCompleted, now)
	if err != nil {
		s.logger.Errorf("Failed to record debit: %v", err)
		return fmt.Errorf("failed to record debit: %w", err)
	}

	_, err = tx.ExecContext(ctx, insertLedger,
		uuid.New(), transfer.ID, transfer.RecipientID, transfer.Amount, transfer.Currency,
		storages.TransactionTypeTransferIn, transfer.SenderAccount, transfer.SenderName,
		transfer.RecipientDescription, storages.TransactionStatusCompleted, now)
	if err != nil {
		s.logger.Errorf("Failed to record credit: %v", err)
		return fmt.Errorf("failed to record credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if pgCode(err) == codeSerializationFailure {
			return err
		}
		s.logger.Errorf("Failed to commit transfer: %v", err)
		return fmt.Errorf("failed to commit transfer: %w", err)
	}

	transfer.CreatedAt = now
	return nil
}

// isRetryable сообщает, стоит ли повторить операцию после ошибки
func isRetryable(err error) bool {
	return err != nil && !errors.Is(err, storages.ErrInsufficientFunds) && pgCode(err) == codeSerializationFailure
}

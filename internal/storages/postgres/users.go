package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"gw-bank/internal/storages"
)

const userColumns = `id, email, password_hash, role, status, verified, otp_hash, otp_expires_at, created_at, updated_at`

// CreateUser создает пользователя и его профиль в одной транзакции
func (s *PostgresStorage) CreateUser(ctx context.Context, user *storages.User, profile *storages.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, status, verified, otp_hash, otp_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, user.ID, user.Email, user.PasswordHash, user.Role, user.Status, user.Verified, user.OTPHash, user.OTPExpiresAt, now)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return storages.ErrAlreadyExists
		}
		s.logger.Errorf("Failed to create user: %v", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	profile.UserID = user.ID
	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, email, first_name, last_name, phone_number, address, date_of_birth, ssn, country,
			conversion_fee_pending, conversion_fee_amount, conversion_fee_currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`, profile.UserID, profile.Email, profile.FirstName, profile.LastName, profile.PhoneNumber, profile.Address,
		profile.DateOfBirth, profile.SSN, profile.Country, profile.ConversionFeePending, profile.ConversionFeeAmount,
		profile.ConversionFeeCurrency, now)
	if err != nil {
		s.logger.Errorf("Failed to create profile: %v", err)
		return fmt.Errorf("failed to create profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", err)
	}

	user.CreatedAt, user.UpdatedAt = now, now
	profile.CreatedAt, profile.UpdatedAt = now, now

	s.logger.Infof("Created user: %s (ID: %s)", user.Email, user.ID)
	return nil
}

// GetUserByEmail возвращает пользователя по email
func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*storages.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	return s.scanUser(row)
}

// GetUserByID возвращает пользователя по ID
func (s *PostgresStorage) GetUserByID(ctx context.Context, userID uuid.UUID) (*storages.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return s.scanUser(row)
}

func (s *PostgresStorage) scanUser(row *sql.Row) (*storages.User, error) {
	var user storages.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.Verified,
		&user.OTPHash,
		&user.OTPExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get user: %v", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// MarkUserVerified помечает email пользователя подтвержденным и сбрасывает OTP
func (s *PostgresStorage) MarkUserVerified(ctx context.Context, userID uuid.UUID) error {
	return s.execOne(ctx, `
		UPDATE users SET verified = TRUE, otp_hash = '', otp_expires_at = NULL, updated_at = $1
		WHERE id = $2
	`, time.Now().UTC(), userID)
}

// UpdateUserStatus блокирует или активирует пользователя вместе с его счетом
func (s *PostgresStorage) UpdateUserStatus(ctx context.Context, userID uuid.UUID, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`, status, now, userID)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storages.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET status = $1, updated_at = $2 WHERE user_id = $3`, status, now, userID); err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status change: %w", err)
	}

	s.logger.Infof("User %s status set to %s", userID, status)
	return nil
}

// DeleteUser удаляет пользователя; профиль, счет, балансы, журнал и логины удаляются каскадно
func (s *PostgresStorage) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete idempotency keys: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		s.logger.Errorf("Failed to delete user: %v", err)
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storages.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}

	s.logger.Infof("User %s deleted", userID)
	return nil
}

// ListUsers возвращает пользователей с балансами, отфильтрованных по имени, email или номеру счета
func (s *PostgresStorage) ListUsers(ctx context.Context, search string, limit int) ([]storages.UserSummary, error) {
	query := `
		SELECT u.id, u.email, p.first_name, p.last_name, p.country, COALESCE(a.account_number, ''),
			u.role, u.status, u.verified, p.conversion_fee_pending, u.created_at
		FROM users u
		JOIN profiles p ON p.user_id = u.id
		LEFT JOIN accounts a ON a.user_id = u.id
		WHERE $1 = ''
			OR LOWER(p.first_name || ' ' || p.last_name) LIKE '%' || LOWER($1) || '%'
			OR LOWER(u.email) LIKE '%' || LOWER($1) || '%'
			OR a.account_number LIKE '%' || $1 || '%'
		ORDER BY u.created_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, search, limit)
	if err != nil {
		s.logger.Errorf("Failed to query users: %v", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []storages.UserSummary
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var u storages.UserSummary
		var firstName, lastName string
		if err := rows.Scan(&u.ID, &u.Email, &firstName, &lastName, &u.Country, &u.AccountNumber,
			&u.Role, &u.Status, &u.Verified, &u.FeePending, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.FullName = strings.TrimSpace(firstName + " " + lastName)
		u.Balances = make(map[string]decimal.Decimal)
		index[u.ID] = len(users)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	if len(users) == 0 {
		return users, nil
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID.String())
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT user_id, currency, balance FROM currency_balances WHERE user_id = ANY($1::uuid[])
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var userID uuid.UUID
		var currency string
		var amount decimal.Decimal
		if err := balanceRows.Scan(&userID, &currency, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if i, ok := index[userID]; ok {
			users[i].Balances[currency] = amount
		}
	}

	return users, balanceRows.Err()
}

// RecordLogin сохраняет попытку входа
func (s *PostgresStorage) RecordLogin(ctx context.Context, log *storages.LoginLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_logs (id, user_id, success, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, log.ID, log.UserID, log.Success, log.IPAddress, log.UserAgent, log.CreatedAt)
	if err != nil {
		s.logger.Errorf("Failed to record login: %v", err)
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// GetProfile возвращает профиль пользователя
func (s *PostgresStorage) GetProfile(ctx context.Context, userID uuid.UUID) (*storages.Profile, error) {
	var p storages.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, first_name, last_name, phone_number, address, date_of_birth, ssn, country,
			conversion_fee_pending, conversion_fee_amount, conversion_fee_currency, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(
		&p.UserID,
		&p.Email,
		&p.FirstName,
		&p.LastName,
		&p.PhoneNumber,
		&p.Address,
		&p.DateOfBirth,
		&p.SSN,
		&p.Country,
		&p.ConversionFeePending,
		&p.ConversionFeeAmount,
		&p.ConversionFeeCurrency,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get profile: %v", err)
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// UpdateConversionFee выставляет или снимает комиссию за конвертацию
func (s *PostgresStorage) UpdateConversionFee(ctx context.Context, userID uuid.UUID, pending bool, amount decimal.Decimal, currency string) error {
	err := s.execOne(ctx, `
		UPDATE profiles
		SET conversion_fee_pending = $1, conversion_fee_amount = $2, conversion_fee_currency = $3, updated_at = $4
		WHERE user_id = $5
	`, pending, amount, currency, time.Now().UTC(), userID)
	if err != nil {
		return err
	}

	s.logger.Infof("Conversion fee for user %s: pending=%t amount=%s %s", userID, pending, amount, currency)
	return nil
}

// execOne выполняет UPDATE и возвращает ErrNotFound, если ни одна строка не изменилась
func (s *PostgresStorage) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Errorf("Failed to execute update: %v", err)
		return fmt.Errorf("failed to execute update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storages.ErrNotFound
	}
	return nil
}

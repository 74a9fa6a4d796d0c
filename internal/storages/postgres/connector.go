package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
)

// Коды ошибок PostgreSQL, которые хранилище переводит в доменные ошибки
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
)

// Config содержит конфигурацию для подключения к PostgreSQL
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN собирает строку подключения в формате key=value
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// PostgresStorage реализует интерфейсы Storage и RatesStorage для PostgreSQL
type PostgresStorage struct {
	db     *sql.DB
	logger *logrus.Logger
}

var (
	_ storages.Storage      = (*PostgresStorage)(nil)
	_ storages.RatesStorage = (*PostgresStorage)(nil)
)

// New создает новое подключение к PostgreSQL и готовит схему
func New(cfg *Config, logger *logrus.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL")

	storage := &PostgresStorage{
		db:     db,
		logger: logger,
	}

	if err := storage.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema создает необходимые таблицы, если они не существуют
func (s *PostgresStorage) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		otp_hash VARCHAR(255) NOT NULL DEFAULT '',
		otp_expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		email VARCHAR(255) NOT NULL,
		first_name VARCHAR(100) NOT NULL DEFAULT '',
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		phone_number VARCHAR(32) NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		date_of_birth VARCHAR(10) NOT NULL DEFAULT '',
		ssn VARCHAR(11) NOT NULL DEFAULT '',
		country VARCHAR(2) NOT NULL DEFAULT 'US',
		conversion_fee_pending BOOLEAN NOT NULL DEFAULT FALSE,
		conversion_fee_amount NUMERIC(20, 8) NOT NULL DEFAULT 0,
		conversion_fee_currency VARCHAR(3) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		user_id UUID UNIQUE NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		account_number VARCHAR(34) UNIQUE NOT NULL,
		country VARCHAR(2) NOT NULL,
		account_type VARCHAR(20) NOT NULL DEFAULT 'checking',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS currency_balances (
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		currency VARCHAR(3) NOT NULL,
		balance NUMERIC(20, 8) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, currency),
		CHECK (balance >= 0)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY,
		transfer_id UUID,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount NUMERIC(20, 8) NOT NULL,
		currency VARCHAR(3) NOT NULL,
		transaction_type VARCHAR(20) NOT NULL,
		counterparty_account VARCHAR(34) NOT NULL DEFAULT '',
		counterparty_name VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'completed',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS login_logs (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		success BOOLEAN NOT NULL,
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		user_id UUID NOT NULL,
		key VARCHAR(255) NOT NULL,
		response_status INTEGER NOT NULL,
		response_body BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, key)
	);

	CREATE TABLE IF NOT EXISTS exchange_rates (
		currency VARCHAR(3) PRIMARY KEY,
		usd_rate NUMERIC(20, 8) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_transfer ON transactions(transfer_id);
	CREATE INDEX IF NOT EXISTS idx_login_logs_user ON login_logs(user_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info("Database schema initialized")
	return nil
}

// Close закрывает соединение с базой данных
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		s.logger.Info("Closing database connection")
		return s.db.Close()
	}
	return nil
}

// Ping проверяет соединение с базой данных
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// pgCode возвращает SQLSTATE ошибки драйвера или пустую строку
func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// domainError переводит нарушение ограничения в ошибку пакета storages, иначе nil.
// Ссылка на несуществующего пользователя (внешний ключ) считается ErrNotFound.
func domainError(err error) error {
	switch pgCode(err) {
	case codeUniqueViolation:
		return storages.ErrAlreadyExists
	case codeForeignKeyViolation:
		return storages.ErrNotFound
	case codeCheckViolation:
		return storages.ErrInsufficientFunds
	}
	return nil
}

package storages

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound возвращается, когда запись не найдена
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists возвращается при нарушении уникальности
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInsufficientFunds возвращается, когда списание увело бы баланс в минус
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Storage определяет интерфейс для работы с хранилищем данных
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *User, profile *Profile) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error)
	MarkUserVerified(ctx context.Context, userID uuid.UUID) error
	UpdateUserStatus(ctx context.Context, userID uuid.UUID, status string) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	ListUsers(ctx context.Context, search string, limit int) ([]UserSummary, error)
	RecordLogin(ctx context.Context, log *LoginLog) error

	// Profile operations
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpdateConversionFee(ctx context.Context, userID uuid.UUID, pending bool, amount decimal.Decimal, currency string) error

	// Account operations
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByUser(ctx context.Context, userID uuid.UUID) (*Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*Account, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)

	// Balance operations
	GetBalance(ctx context.Context, userID uuid.UUID, currency string) (*Balance, error)
	GetAllBalances(ctx context.Context, userID uuid.UUID) ([]Balance, error)
	SetBalance(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal, description string) error

	// Transaction operations
	GetUserTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]Transaction, error)

	// Atomic operations for transfer
	ExecuteTransfer(ctx context.Context, transfer *TransferRecord) error

	// Idempotency
	GetIdempotentResponse(ctx context.Context, userID uuid.UUID, key string) (*IdempotentResponse, error)
	ReserveIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error
	SaveIdempotentResponse(ctx context.Context, resp *IdempotentResponse) error
	ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) error

	// Statistics
	GetSystemStatistics(ctx context.Context) (*SystemStatistics, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// RatesStorage определяет интерфейс хранилища курсов валют
type RatesStorage interface {
	GetUsdRates(ctx context.Context) ([]ExchangeRate, error)
	GetUsdRate(ctx context.Context, currency string) (*ExchangeRate, error)
	UpsertUsdRate(ctx context.Context, rate *ExchangeRate) error
}

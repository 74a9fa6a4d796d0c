package storages

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User представляет учетную запись для аутентификации
type User struct {
	ID           uuid.UUID  `db:"id"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Role         string     `db:"role"`   // user, admin
	Status       string     `db:"status"` // active, suspended
	Verified     bool       `db:"verified"`
	OTPHash      string     `db:"otp_hash"`
	OTPExpiresAt *time.Time `db:"otp_expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Profile содержит персональные данные пользователя и флаг комиссии за конвертацию
type Profile struct {
	UserID                uuid.UUID       `db:"user_id"`
	Email                 string          `db:"email"`
	FirstName             string          `db:"first_name"`
	LastName              string          `db:"last_name"`
	PhoneNumber           string          `db:"phone_number"`
	Address               string          `db:"address"`
	DateOfBirth           string          `db:"date_of_birth"`
	SSN                   string          `db:"ssn"`
	Country               string          `db:"country"`
	ConversionFeePending  bool            `db:"conversion_fee_pending"`
	ConversionFeeAmount   decimal.Decimal `db:"conversion_fee_amount"`
	ConversionFeeCurrency string          `db:"conversion_fee_currency"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

// FullName возвращает имя и фамилию через пробел
func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Account представляет банковский счет пользователя (один на пользователя)
type Account struct {
	ID            uuid.UUID `db:"id"`
	UserID        uuid.UUID `db:"user_id"`
	AccountNumber string    `db:"account_number"`
	Country       string    `db:"country"`
	AccountType   string    `db:"account_type"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Balance представляет баланс пользователя в определенной валюте
type Balance struct {
	UserID    uuid.UUID       `db:"user_id"`
	Currency  string          `db:"currency"`
	Amount    decimal.Decimal `db:"balance"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Transaction - неизменяемая запись в журнале операций.
// Отрицательная сумма означает списание, положительная - зачисление.
type Transaction struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	TransferID          uuid.NullUUID   `db:"transfer_id" json:"transfer_id"`
	UserID              uuid.UUID       `db:"user_id" json:"-"`
	Amount              decimal.Decimal `db:"amount" json:"amount"`
	Currency            string          `db:"currency" json:"currency"`
	Type                string          `db:"transaction_type" json:"type"`
	CounterpartyAccount string          `db:"counterparty_account" json:"counterparty_account,omitempty"`
	CounterpartyName    string          `db:"counterparty_name" json:"counterparty_name,omitempty"`
	Description         string          `db:"description" json:"description"`
	Status              string          `db:"status" json:"status"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// TransferRecord описывает перевод, который хранилище применяет одной транзакцией
type TransferRecord struct {
	ID                   uuid.UUID
	SenderID             uuid.UUID
	SenderAccount        string
	SenderName           string
	RecipientID          uuid.UUID
	RecipientAccount     string
	RecipientName        string
	Amount               decimal.Decimal
	Currency             string
	Description          string
	RecipientDescription string
	CreatedAt            time.Time
}

// LoginLog - запись о попытке входа
type LoginLog struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Success   bool      `db:"success"`
	IPAddress string    `db:"ip_address"`
	UserAgent string    `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}

// IdempotentResponse - сохраненный ответ на запрос с Idempotency-Key.
// Status == 0 означает, что ключ занят запросом, который еще выполняется.
type IdempotentResponse struct {
	UserID    uuid.UUID `db:"user_id"`
	Key       string    `db:"key"`
	Status    int       `db:"response_status"`
	Body      []byte    `db:"response_body"`
	CreatedAt time.Time `db:"created_at"`
}

// Pending сообщает, что ответ еще не записан
func (r *IdempotentResponse) Pending() bool {
	return r.Status == 0
}

// UserSummary - строка списка пользователей в админ-панели
type UserSummary struct {
	ID            uuid.UUID                  `json:"id"`
	Email         string                     `json:"email"`
	FullName      string                     `json:"full_name"`
	Country       string                     `json:"country"`
	AccountNumber string                     `json:"account_number,omitempty"`
	Role          string                     `json:"role"`
	Status        string                     `json:"status"`
	Verified      bool                       `json:"verified"`
	FeePending    bool                       `json:"conversion_fee_pending"`
	Balances      map[string]decimal.Decimal `json:"balances"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// SystemStatistics - агрегированная статистика для админ-панели
type SystemStatistics struct {
	TotalUsers        int64                      `json:"total_users"`
	VerifiedUsers     int64                      `json:"verified_users"`
	SuspendedUsers    int64                      `json:"suspended_users"`
	TotalTransactions int64                      `json:"total_transactions"`
	TotalBalances     map[string]decimal.Decimal `json:"total_balances"`
}

// ExchangeRate - курс валюты к доллару США
type ExchangeRate struct {
	Currency  string          `db:"currency"`
	UsdRate   decimal.Decimal `db:"usd_rate"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Статусы пользователей и счетов
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// AccountTypeChecking - единственный тип счета, который открывает система
const AccountTypeChecking = "checking"

// TransactionType определяет типы записей журнала
const (
	TransactionTypeTransferOut = "transfer_out"
	TransactionTypeTransferIn  = "transfer_in"
	TransactionTypeAdjustment  = "adjustment"
)

// TransactionStatus определяет статусы записей журнала
const (
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

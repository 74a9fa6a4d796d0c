// Package transfer проверяет и применяет переводы между счетами.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-bank/internal/storages"
)

// Типы перевода
const (
	TypeInternal = "internal"
	TypeExternal = "external"
)

// SenderContext - данные отправителя, передаваемые валидатору явно
type SenderContext struct {
	UserID               uuid.UUID
	Email                string
	FullName             string
	Country              string
	AccountNumber        string
	ConversionFeePending bool
}

// Request - запрос на перевод в том виде, в котором его прислал клиент
type Request struct {
	Amount           string `json:"amount" binding:"required"`
	Currency         string `json:"currency" binding:"required"`
	AccountNumber    string `json:"account_number" binding:"required"`
	RecipientCountry string `json:"recipient_country" binding:"required"`
	RecipientName    string `json:"recipient_name,omitempty"`
	Type             string `json:"transfer_type,omitempty"`
	RoutingNumber    string `json:"routing_number,omitempty"`
	Description      string `json:"description,omitempty"`
}

// Admissible - перевод, прошедший все проверки
type Admissible struct {
	Sender           SenderContext
	RecipientID      uuid.UUID
	RecipientAccount string
	RecipientName    string
	RecipientEmail   string
	Amount           decimal.Decimal
	Currency         string
	Description      string
	Type             string
	RoutingNumber    string
}

// validatorStore - то, что валидатору нужно от хранилища
type validatorStore interface {
	GetBalance(ctx context.Context, userID uuid.UUID, currency string) (*storages.Balance, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*storages.Account, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*storages.Profile, error)
}

// Validator выполняет проверки перевода строго по порядку и ничего не пишет
type Validator struct {
	store validatorStore
	rules *Rules
}

// NewValidator создает валидатор
func NewValidator(store validatorStore, rules *Rules) *Validator {
	return &Validator{store: store, rules: rules}
}

// Validate возвращает Admissible или первую причину отказа
func (v *Validator) Validate(ctx context.Context, sender SenderContext, req Request) (*Admissible, error) {
	// 1. Неоплаченная комиссия блокирует переводы в стране с ограничением
	if sender.ConversionFeePending && strings.EqualFold(sender.Country, v.rules.FeeRestrictedCountry) {
		return nil, ErrTransferBlocked
	}

	// 2. Сумма и валюта
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !v.rules.IsSupportedCurrency(currency) {
		return nil, ErrUnsupportedCurrency
	}
	if !v.rules.ValidAmount(amount, currency) {
		return nil, ErrInvalidAmount
	}

	// 3. Баланс отправителя; отсутствующий баланс считается нулевым
	balance := decimal.Zero
	b, err := v.store.GetBalance(ctx, sender.UserID, currency)
	switch {
	case err == nil:
		balance = b.Amount
	case !errors.Is(err, storages.ErrNotFound):
		return nil, fmt.Errorf("failed to get sender balance: %w", err)
	}
	if amount.GreaterThan(balance) {
		return nil, ErrInsufficientFunds
	}

	// 4. Формат номера счета для страны получателя
	accountNumber := DigitsOnly(req.AccountNumber)
	digits, ok := v.rules.AccountDigits(req.RecipientCountry)
	if !ok || len(accountNumber) != digits {
		return nil, ErrInvalidAccountFormat
	}

	// 5. Внешний перевод требует routing number
	transferType := strings.ToLower(strings.TrimSpace(req.Type))
	if transferType == "" {
		transferType = TypeInternal
	}
	routingNumber := strings.TrimSpace(req.RoutingNumber)
	if transferType == TypeExternal && !v.rules.RoutingNumber.MatchString(routingNumber) {
		return nil, ErrInvalidRoutingNumber
	}

	// 6. Счет получателя существует и активен
	account, err := v.store.GetAccountByNumber(ctx, accountNumber)
	if errors.Is(err, storages.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient account: %w", err)
	}
	if account.Status != storages.StatusActive {
		return nil, ErrAccountInactive
	}

	// 7. Себе переводить нельзя
	if account.UserID == sender.UserID {
		return nil, ErrSelfTransfer
	}

	profile, err := v.store.GetProfile(ctx, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient profile: %w", err)
	}

	// 8. Имя получателя, если указано, должно входить в полное имя владельца счета.
	// Это подсказка от опечаток, а не проверка полномочий.
	recipientName := profile.FullName()
	if name := strings.TrimSpace(req.RecipientName); name != "" {
		if !strings.Contains(strings.ToLower(recipientName), strings.ToLower(name)) {
			return nil, ErrRecipientNameMismatch
		}
	}

	return &Admissible{
		Sender:           sender,
		RecipientID:      account.UserID,
		RecipientAccount: account.AccountNumber,
		RecipientName:    recipientName,
		RecipientEmail:   profile.Email,
		Amount:           amount,
		Currency:         currency,
		Description:      strings.TrimSpace(req.Description),
		Type:             transferType,
		RoutingNumber:    routingNumber,
	}, nil
}

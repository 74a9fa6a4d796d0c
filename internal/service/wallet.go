package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-bank/internal/storages"
	"gw-bank/internal/transfer"
)

// Ограничения выдачи журнала операций
const (
	DefaultTransactionsLimit = 50
	MaxTransactionsLimit     = 200
)

// AccountDetails - счет вместе с данными владельца
type AccountDetails struct {
	AccountNumber         string          `json:"account_number"`
	Country               string          `json:"country"`
	Currency              string          `json:"currency"`
	AccountType           string          `json:"account_type"`
	Status                string          `json:"status"`
	FullName              string          `json:"full_name"`
	Email                 string          `json:"email"`
	ConversionFeePending  bool            `json:"conversion_fee_pending"`
	ConversionFeeAmount   decimal.Decimal `json:"conversion_fee_amount"`
	ConversionFeeCurrency string          `json:"conversion_fee_currency,omitempty"`
}

// BalanceView - баланс в валюте с эквивалентом в долларах
type BalanceView struct {
	Currency      string              `json:"currency"`
	Amount        decimal.Decimal     `json:"amount"`
	UsdEquivalent decimal.NullDecimal `json:"usd_equivalent"`
}

// GetAccount возвращает счет пользователя, открывая его при необходимости
func (s *BankService) GetAccount(ctx context.Context, userID uuid.UUID) (*AccountDetails, error) {
	account, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.storage.GetProfile(ctx, userID)
	if errors.Is(err, storages.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	details := &AccountDetails{
		AccountNumber:         account.AccountNumber,
		Country:               account.Country,
		AccountType:           account.AccountType,
		Status:                account.Status,
		FullName:              profile.FullName(),
		Email:                 profile.Email,
		ConversionFeePending:  profile.ConversionFeePending,
		ConversionFeeAmount:   profile.ConversionFeeAmount,
		ConversionFeeCurrency: profile.ConversionFeeCurrency,
	}
	if rule, ok := s.rules.Countries[account.Country]; ok {
		details.Currency = rule.Currency
	}
	return details, nil
}

// GetBalances возвращает все балансы пользователя с эквивалентом в долларах
func (s *BankService) GetBalances(ctx context.Context, userID uuid.UUID) ([]BalanceView, error) {
	if _, err := s.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}

	balances, err := s.storage.GetAllBalances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}

	rates := s.usdRates(ctx)
	fallback := s.rules.UsdRates()

	views := make([]BalanceView, 0, len(balances))
	for _, b := range balances {
		view := BalanceView{Currency: b.Currency, Amount: b.Amount}
		rate, ok := rates[b.Currency]
		if !ok {
			rate, ok = fallback[b.Currency]
		}
		if ok {
			view.UsdEquivalent = decimal.NullDecimal{Decimal: b.Amount.Mul(rate).Round(2), Valid: true}
		}
		views = append(views, view)
	}
	return views, nil
}

// usdRates берет курсы из кеша, затем из сервиса курсов, затем из таблицы стран
func (s *BankService) usdRates(ctx context.Context) map[string]decimal.Decimal {
	if rates, ok := s.ratesCache.Get(); ok {
		return rates
	}

	if s.rates != nil {
		rates, err := s.rates.GetUsdRates(ctx)
		if err == nil && len(rates) > 0 {
			s.ratesCache.Set(rates)
			return rates
		}
		s.logger.Warnf("Rates service unavailable, using built-in rates: %v", err)
	}

	return s.rules.UsdRates()
}

// GetTransactions возвращает последние записи журнала пользователя, новые первыми
func (s *BankService) GetTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]storages.Transaction, error) {
	transactions, err := s.storage.GetUserTransactions(ctx, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	if transactions == nil {
		transactions = []storages.Transaction{}
	}
	return transactions, nil
}

// Transfer проверяет и выполняет перевод от имени пользователя
func (s *BankService) Transfer(ctx context.Context, userID uuid.UUID, req transfer.Request) (*transfer.Confirmation, error) {
	user, err := s.storage.GetUserByID(ctx, userID)
	if errors.Is(err, storages.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Status == storages.StatusSuspended {
		return nil, ErrUserSuspended
	}

	profile, err := s.storage.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	account, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	sender := transfer.SenderContext{
		UserID:               userID,
		Email:                user.Email,
		FullName:             profile.FullName(),
		Country:              profile.Country,
		AccountNumber:        account.AccountNumber,
		ConversionFeePending: profile.ConversionFeePending,
	}

	admissible, err := s.validator.Validate(ctx, sender, req)
	if err != nil {
		return nil, err
	}

	return s.applier.Apply(ctx, admissible)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultTransactionsLimit
	}
	if limit > MaxTransactionsLimit {
		return MaxTransactionsLimit
	}
	return limit
}

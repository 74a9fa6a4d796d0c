package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gw-bank/internal/storages"
	"gw-bank/internal/transfer"
	"gw-bank/pkg"
)

// maxAccountNumberAttempts ограничивает число попыток подобрать свободный номер
const maxAccountNumberAttempts = 32

// EnsureAccount возвращает счет пользователя, открывая его при первом обращении
func (s *BankService) EnsureAccount(ctx context.Context, userID uuid.UUID) (*storages.Account, error) {
	account, err := s.storage.GetAccountByUser(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storages.ErrNotFound) {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	country := transfer.DefaultCountry
	profile, err := s.storage.GetProfile(ctx, userID)
	switch {
	case err == nil:
		if s.rules.IsSupportedCountry(profile.Country) {
			country = strings.ToUpper(profile.Country)
		}
	case !errors.Is(err, storages.ErrNotFound):
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	digits, _ := s.rules.AccountDigits(country)

	for attempt := 0; attempt < maxAccountNumberAttempts; attempt++ {
		number, err := s.newAccountNumber(digits)
		if err != nil {
			return nil, err
		}

		exists, err := s.storage.AccountNumberExists(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("failed to check account number: %w", err)
		}
		if exists {
			continue
		}

		account := &storages.Account{
			ID:            uuid.New(),
			UserID:        userID,
			AccountNumber: number,
			Country:       country,
			AccountType:   storages.AccountTypeChecking,
			Status:        storages.StatusActive,
		}
		err = s.storage.CreateAccount(ctx, account)
		if err == nil {
			s.logger.Infof("Opened account %s (%s) for user %s", pkg.MaskAccountNumber(number), country, userID)
			return account, nil
		}
		if !errors.Is(err, storages.ErrAlreadyExists) {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}

		// Конфликт: счет уже открыл параллельный запрос либо номер заняли между проверкой и вставкой
		if existing, getErr := s.storage.GetAccountByUser(ctx, userID); getErr == nil {
			return existing, nil
		}
	}

	s.logger.Errorf("Failed to allocate account number for user %s after %d attempts", userID, maxAccountNumberAttempts)
	return nil, ErrAccountNumberExhausted
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
	"gw-bank/internal/transfer"
	"gw-bank/pkg"
)

// ListUsers возвращает пользователей для админ-панели; search ищет по email и имени
func (s *BankService) ListUsers(ctx context.Context, search string, limit int) ([]storages.UserSummary, error) {
	users, err := s.storage.ListUsers(ctx, search, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []storages.UserSummary{}
	}
	return users, nil
}

// GetStatistics возвращает агрегированную статистику системы
func (s *BankService) GetStatistics(ctx context.Context) (*storages.SystemStatistics, error) {
	stats, err := s.storage.GetSystemStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return stats, nil
}

// SetUserStatus блокирует или разблокирует пользователя вместе с его счетом
func (s *BankService) SetUserStatus(ctx context.Context, userID uuid.UUID, status string) error {
	if status != storages.StatusActive && status != storages.StatusSuspended {
		return ErrInvalidStatus
	}

	if err := s.storage.UpdateUserStatus(ctx, userID, status); err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update user status: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"status":  status,
	}).Info("User status changed by administrator")
	return nil
}

// DeleteUser удаляет пользователя вместе с профилем, счетом, балансами и историей.
// Записи контрагентов о переводах с этим пользователем остаются.
func (s *BankService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.storage.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.logger.WithField("user_id", userID).Info("User deleted by administrator")
	return nil
}

// AdjustBalance устанавливает баланс пользователя в валюте и пишет корректировку в журнал
func (s *BankService) AdjustBalance(ctx context.Context, userID uuid.UUID, currency string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	currency = pkg.NormalizeCurrency(currency)
	if !s.rules.IsSupportedCurrency(currency) {
		return transfer.ErrUnsupportedCurrency
	}
	if !amount.Equal(amount.Truncate(s.rules.AmountDecimals(currency))) {
		return transfer.ErrInvalidAmount
	}

	err := s.storage.SetBalance(ctx, userID, currency, amount, "Balance adjusted by administrator")
	if err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to set balance: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"currency": currency,
		"amount":   amount.String(),
	}).Info("Balance adjusted by administrator")
	return nil
}

// SetConversionFee выставляет или снимает неоплаченную комиссию за конвертацию
func (s *BankService) SetConversionFee(ctx context.Context, userID uuid.UUID, pending bool, amount decimal.Decimal, currency string) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	currency = pkg.NormalizeCurrency(currency)
	if currency != "" && !s.rules.IsSupportedCurrency(currency) {
		return transfer.ErrUnsupportedCurrency
	}
	if !pending {
		amount, currency = decimal.Zero, ""
	}

	if err := s.storage.UpdateConversionFee(ctx, userID, pending, amount, currency); err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update conversion fee: %w", err)
	}

	s.logger.Infof("Conversion fee for user %s set: pending=%t", userID, pending)
	return nil
}

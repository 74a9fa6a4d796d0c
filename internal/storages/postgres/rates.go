package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gw-bank/internal/storages"
)

// GetUsdRates возвращает курсы всех валют к доллару
func (s *PostgresStorage) GetUsdRates(ctx context.Context) ([]storages.ExchangeRate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT currency, usd_rate, updated_at FROM exchange_rates ORDER BY currency`)
	if err != nil {
		s.logger.Errorf("Failed to query exchange rates: %v", err)
		return nil, fmt.Errorf("failed to query exchange rates: %w", err)
	}
	defer rows.Close()

	var rates []storages.ExchangeRate
	for rows.Next() {
		var rate storages.ExchangeRate
		if err := rows.Scan(&rate.Currency, &rate.UsdRate, &rate.UpdatedAt); err != nil {
			s.logger.Errorf("Failed to scan exchange rate: %v", err)
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		rates = append(rates, rate)
	}

	if err = rows.Err(); err != nil {
		s.logger.Errorf("Error iterating exchange rates: %v", err)
		return nil, fmt.Errorf("error iterating exchange rates: %w", err)
	}

	s.logger.Debugf("Retrieved %d exchange rates", len(rates))
	return rates, nil
}

// GetUsdRate возвращает курс конкретной валюты к доллару
func (s *PostgresStorage) GetUsdRate(ctx context.Context, currency string) (*storages.ExchangeRate, error) {
	var rate storages.ExchangeRate
	err := s.db.QueryRowContext(ctx, `
		SELECT currency, usd_rate, updated_at FROM exchange_rates WHERE currency = $1
	`, currency).Scan(&rate.Currency, &rate.UsdRate, &rate.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warnf("Exchange rate not found: %s", currency)
		return nil, storages.ErrNotFound
	}
	if err != nil {
		s.logger.Errorf("Failed to get exchange rate: %v", err)
		return nil, fmt.Errorf("failed to get exchange rate: %w", err)
	}
	return &rate, nil
}

// UpsertUsdRate создает или обновляет курс валюты
func (s *PostgresStorage) UpsertUsdRate(ctx context.Context, rate *storages.ExchangeRate) error {
	rate.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (currency, usd_rate, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (currency) DO UPDATE SET usd_rate = EXCLUDED.usd_rate, updated_at = EXCLUDED.updated_at
	`, rate.Currency, rate.UsdRate, rate.UpdatedAt)
	if err != nil {
		s.logger.Errorf("Failed to upsert exchange rate: %v", err)
		return fmt.Errorf("failed to upsert exchange rate: %w", err)
	}

	s.logger.Infof("Exchange rate %s = %s USD", rate.Currency, rate.UsdRate)
	return nil
}

// SeedUsdRates заполняет пустую таблицу курсов начальными значениями
func (s *PostgresStorage) SeedUsdRates(ctx context.Context, rates map[string]decimal.Decimal) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchange_rates`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count exchange rates: %w", err)
	}
	if count > 0 {
		s.logger.Info("Exchange rates already present, skipping seed")
		return nil
	}

	for currency, usdRate := range rates {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO exchange_rates (currency, usd_rate) VALUES ($1, $2) ON CONFLICT (currency) DO NOTHING",
			currency, usdRate,
		)
		if err != nil {
			return fmt.Errorf("failed to seed rate %s: %w", currency, err)
		}
	}

	s.logger.Infof("Seeded %d exchange rates", len(rates))
	return nil
}

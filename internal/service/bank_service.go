package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/cache"
	"gw-bank/internal/config"
	"gw-bank/internal/storages"
	"gw-bank/internal/transfer"
)

// RatesProvider отдает курсы валют к доллару (gRPC клиент сервиса курсов)
type RatesProvider interface {
	GetUsdRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Notifier отправляет пользователю уведомления о переводах и коды подтверждения
type Notifier interface {
	transfer.Notifier
	SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error
}

// BankService сервисный слой для бизнес-логики
type BankService struct {
	storage    storages.Storage
	rules      *transfer.Rules
	validator  *transfer.Validator
	applier    *transfer.Applier
	rates      RatesProvider
	ratesCache *cache.RatesCache
	notifier   Notifier
	auth       config.AuthConfig
	logger     *logrus.Logger

	newAccountNumber func(digits int) (string, error)
	newOTP           func() (string, error)
	now              func() time.Time
}

// NewBankService создает новый экземпляр сервиса.
// rates и notifier могут быть nil: тогда курсы берутся из таблицы стран, а уведомления не отправляются.
func NewBankService(
	storage storages.Storage,
	rules *transfer.Rules,
	rates RatesProvider,
	ratesCache *cache.RatesCache,
	notifier Notifier,
	auth config.AuthConfig,
	logger *logrus.Logger,
) *BankService {
	if ratesCache == nil {
		ratesCache = cache.NewRatesCache(config.DefaultCacheRatesTTL)
	}
	if auth.MinPasswordLength <= 0 {
		auth.MinPasswordLength = config.DefaultMinPasswordLength
	}
	if auth.OTPTTL <= 0 {
		auth.OTPTTL = config.DefaultOTPTTL
	}

	var transferNotifier transfer.Notifier
	if notifier != nil {
		transferNotifier = notifier
	}

	return &BankService{
		storage:          storage,
		rules:            rules,
		validator:        transfer.NewValidator(storage, rules),
		applier:          transfer.NewApplier(storage, transferNotifier, logger),
		rates:            rates,
		ratesCache:       ratesCache,
		notifier:         notifier,
		auth:             auth,
		logger:           logger,
		newAccountNumber: randomAccountNumber,
		newOTP:           randomOTP,
		now:              time.Now,
	}
}

// Ping проверяет доступность хранилища
func (s *BankService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// randomAccountNumber генерирует номер из digits цифр, первая цифра не ноль
func randomAccountNumber(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("invalid account number length %d", digits)
	}

	buf := make([]byte, digits)
	for i := range buf {
		limit := int64(10)
		offset := byte('0')
		if i == 0 {
			limit, offset = 9, '1'
		}
		n, err := rand.Int(rand.Reader, big.NewInt(limit))
		if err != nil {
			return "", fmt.Errorf("failed to generate account number: %w", err)
		}
		buf[i] = offset + byte(n.Int64())
	}
	return string(buf), nil
}

// randomOTP генерирует шестизначный код подтверждения
func randomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

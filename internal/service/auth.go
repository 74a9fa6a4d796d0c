package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"gw-bank/internal/storages"
	"gw-bank/internal/transfer"
	"gw-bank/pkg"
)

// RegisterInput - данные анкеты при регистрации
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Address     string
	DateOfBirth string
	SSN         string
	Country     string
}

// LoginInput - учетные данные и сведения о клиенте для журнала входов
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// RegisterUser регистрирует нового пользователя и отправляет ему код подтверждения
func (s *BankService) RegisterUser(ctx context.Context, in RegisterInput) (*storages.User, error) {
	email := pkg.NormalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < s.auth.MinPasswordLength {
		return nil, ErrWeakPassword
	}

	country := strings.ToUpper(strings.TrimSpace(in.Country))
	if country == "" {
		country = transfer.DefaultCountry
	}
	if !s.rules.IsSupportedCountry(country) {
		return nil, ErrUnsupportedCountry
	}
	if country == "US" && strings.TrimSpace(in.SSN) == "" {
		return nil, ErrSSNRequired
	}

	// Проверяем, не существует ли уже пользователь
	_, err := s.storage.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, storages.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	// Хешируем пароль
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Errorf("Failed to hash password: %v", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := s.newOTP()
	if err != nil {
		return nil, err
	}
	otpHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash verification code: %w", err)
	}
	expiresAt := s.now().UTC().Add(s.auth.OTPTTL)

	role := storages.RoleUser
	if s.auth.IsAdminEmail(email) {
		role = storages.RoleAdmin
	}

	user := &storages.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(passwordHash),
		Role:         role,
		Status:       storages.StatusActive,
		OTPHash:      string(otpHash),
		OTPExpiresAt: &expiresAt,
	}
	profile := &storages.Profile{
		Email:       email,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Address:     strings.TrimSpace(in.Address),
		DateOfBirth: strings.TrimSpace(in.DateOfBirth),
		SSN:         strings.TrimSpace(in.SSN),
		Country:     country,
	}

	if err := s.storage.CreateUser(ctx, user, profile); err != nil {
		if errors.Is(err, storages.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Код уходит через канал уведомлений; недоставка не отменяет регистрацию
	if s.notifier != nil {
		if err := s.notifier.SendVerificationCode(ctx, email, code, s.auth.OTPTTL); err != nil {
			s.logger.Warnf("Failed to send verification code to %s: %v", email, err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"country": country,
		"role":    role,
	}).Info("User registered successfully")
	return user, nil
}

// VerifyOTP подтверждает email и открывает счет
func (s *BankService) VerifyOTP(ctx context.Context, email, code string) (*storages.Account, error) {
	user, err := s.storage.GetUserByEmail(ctx, pkg.NormalizeEmail(email))
	if errors.Is(err, storages.ErrNotFound) {
		return nil, ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.Verified {
		// Сначала код, потом срок действия: неверный код всегда invalid_otp
		if err := bcrypt.CompareHashAndPassword([]byte(user.OTPHash), []byte(strings.TrimSpace(code))); err != nil {
			s.logger.Warnf("Invalid verification code for user %s", user.ID)
			return nil, ErrInvalidOTP
		}
		if user.OTPExpiresAt == nil || s.now().After(*user.OTPExpiresAt) {
			return nil, ErrOTPExpired
		}
		if err := s.storage.MarkUserVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("failed to mark user verified: %w", err)
		}
		s.logger.Infof("User %s verified", user.ID)
	}

	return s.EnsureAccount(ctx, user.ID)
}

// Login аутентифицирует пользователя, пишет журнал входа и открывает счет при необходимости
func (s *BankService) Login(ctx context.Context, in LoginInput) (*storages.User, *storages.Account, error) {
	user, err := s.storage.GetUserByEmail(ctx, pkg.NormalizeEmail(in.Email))
	if errors.Is(err, storages.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Проверяем пароль
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.logger.Warnf("Failed authentication attempt for user: %s", user.ID)
		s.recordLogin(ctx, user.ID, false, in)
		return nil, nil, ErrInvalidCredentials
	}
	if !user.Verified {
		s.recordLogin(ctx, user.ID, false, in)
		return nil, nil, ErrNotVerified
	}
	if user.Status == storages.StatusSuspended {
		s.recordLogin(ctx, user.ID, false, in)
		return nil, nil, ErrUserSuspended
	}

	s.recordLogin(ctx, user.ID, true, in)

	account, err := s.EnsureAccount(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Infof("User authenticated successfully: %s", user.ID)
	return user, account, nil
}

func (s *BankService) recordLogin(ctx context.Context, userID uuid.UUID, success bool, in LoginInput) {
	err := s.storage.RecordLogin(ctx, &storages.LoginLog{
		ID:        uuid.New(),
		UserID:    userID,
		Success:   success,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	})
	if err != nil {
		s.logger.Warnf("Failed to record login for user %s: %v", userID, err)
	}
}

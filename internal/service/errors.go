package service

import "errors"

// Ошибки регистрации и входа
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password is too short")
	ErrSSNRequired        = errors.New("ssn is required for US residents")
	ErrUnsupportedCountry = errors.New("country is not supported")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidOTP         = errors.New("invalid verification code")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrNotVerified        = errors.New("email is not verified")
	ErrUserSuspended      = errors.New("user is suspended")
)

// Ошибки администрирования и счетов
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidStatus          = errors.New("status must be active or suspended")
	ErrNegativeAmount         = errors.New("amount must not be negative")
	ErrAccountNumberExhausted = errors.New("could not allocate a unique account number")
)

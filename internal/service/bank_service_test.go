package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gw-bank/internal/cache"
	"gw-bank/internal/config"
	"gw-bank/internal/logger"
	"gw-bank/internal/storages"
	"gw-bank/internal/storages/memory"
	"gw-bank/internal/transfer"
	"gw-bank/pkg"
)

// MockNotifier запоминает отправленные коды и уведомления
type MockNotifier struct {
	mu        sync.Mutex
	codes     map[string]string
	transfers []string
	err       error
}

func (m *MockNotifier) SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	return m.err
}

func (m *MockNotifier) NotifyTransferReceived(ctx context.Context, email, senderName string, amount decimal.Decimal, currency, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, email)
	return m.err
}

func (m *MockNotifier) Code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

// MockRates - мок для gRPC клиента курсов
type MockRates struct {
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (m *MockRates) GetUsdRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	m.calls++
	return m.rates, m.err
}

func newTestService(t *testing.T, rates RatesProvider) (*BankService, *memory.Storage, *MockNotifier) {
	t.Helper()
	store := memory.New()
	notifier := &MockNotifier{}
	svc := NewBankService(store, transfer.DefaultRules(), rates, cache.NewRatesCache(time.Minute), notifier,
		config.AuthConfig{
			AdminEmails:       []string{"admin@bank.test"},
			OTPTTL:            10 * time.Minute,
			MinPasswordLength: 8,
		}, logger.Discard())
	return svc, store, notifier
}

func registerVerified(t *testing.T, svc *BankService, notifier *MockNotifier, email, first, last, country string) (*storages.User, *storages.Account) {
	t.Helper()
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, RegisterInput{
		Email:     email,
		Password:  "password123",
		FirstName: first,
		LastName:  last,
		SSN:       "123-45-6789",
		Country:   country,
	})
	if err != nil {
		t.Fatalf("Failed to register %s: %v", email, err)
	}

	account, err := svc.VerifyOTP(ctx, email, notifier.Code(pkg.NormalizeEmail(email)))
	if err != nil {
		t.Fatalf("Failed to verify %s: %v", email, err)
	}
	return user, account
}

func TestRegisterVerifyLogin(t *testing.T) {
	svc, store, notifier := newTestService(t, nil)
	ctx := context.Background()
	svc.newOTP = func() (string, error) { return "123456", nil }

	_, err := svc.RegisterUser(ctx, RegisterInput{
		Email:     "Alice@Example.com",
		Password:  "password123",
		FirstName: "Alice",
		LastName:  "Smith",
		SSN:       "123-45-6789",
		Country:   "us",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if notifier.Code("alice@example.com") != "123456" {
		t.Fatalf("Expected verification code to be sent, got %q", notifier.Code("alice@example.com"))
	}

	login := LoginInput{Email: "alice@example.com", Password: "password123", IPAddress: "127.0.0.1"}
	if _, _, err := svc.Login(ctx, login); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("Expected ErrNotVerified, got %v", err)
	}

	if _, err := svc.VerifyOTP(ctx, "alice@example.com", "000000"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("Expected ErrInvalidOTP, got %v", err)
	}

	account, err := svc.VerifyOTP(ctx, "alice@example.com", "123456")
	if err != nil {
		t.Fatalf("Expected verification to succeed, got %v", err)
	}
	if len(account.AccountNumber) != 10 || account.AccountNumber[0] == '0' {
		t.Fatalf("Expected 10-digit US account number, got %s", account.AccountNumber)
	}

	if _, _, err := svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-password"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials, got %v", err)
	}

	user, loginAccount, err := svc.Login(ctx, login)
	if err != nil {
		t.Fatalf("Expected login to succeed, got %v", err)
	}
	if user.Role != storages.RoleUser {
		t.Fatalf("Expected role user, got %s", user.Role)
	}
	if loginAccount.AccountNumber != account.AccountNumber {
		t.Fatalf("Expected the same account on login, got %s and %s", account.AccountNumber, loginAccount.AccountNumber)
	}

	logs := store.LoginLogs()
	if len(logs) != 3 {
		t.Fatalf("Expected 3 login log entries, got %d", len(logs))
	}
	if logs[0].Success || logs[1].Success || !logs[2].Success {
		t.Fatalf("Unexpected login log outcomes: %+v", logs)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	cases := map[string]struct {
		input RegisterInput
		want  error
	}{
		"bad email":     {RegisterInput{Email: "nobody", Password: "password123", Country: "PL"}, ErrInvalidEmail},
		"weak password": {RegisterInput{Email: "a@b.c", Password: "short", Country: "PL"}, ErrWeakPassword},
		"no ssn for US": {RegisterInput{Email: "a@b.c", Password: "password123", Country: "US"}, ErrSSNRequired},
		"unknown land":  {RegisterInput{Email: "a@b.c", Password: "password123", Country: "XX"}, ErrUnsupportedCountry},
	}
	for name, tc := range cases {
		if _, err := svc.RegisterUser(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}

	input := RegisterInput{Email: "jan@bank.test", Password: "password123", Country: "PL"}
	if _, err := svc.RegisterUser(ctx, input); err != nil {
		t.Fatalf("Expected PL registration without SSN to succeed, got %v", err)
	}
	if _, err := svc.RegisterUser(ctx, input); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterAdminAndNotifierFailure(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	notifier.err = errors.New("broker down")

	user, err := svc.RegisterUser(context.Background(), RegisterInput{
		Email:    "ADMIN@bank.test",
		Password: "password123",
		Country:  "GB",
	})
	if err != nil {
		t.Fatalf("Expected registration despite notifier failure, got %v", err)
	}
	if user.Role != storages.RoleAdmin {
		t.Fatalf("Expected admin role, got %s", user.Role)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, RegisterInput{Email: "late@bank.test", Password: "password123", Country: "DE"})
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	// Неверный код после истечения срока - все равно invalid_otp
	if _, err := svc.VerifyOTP(ctx, "late@bank.test", "000000"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("Expected ErrInvalidOTP for wrong code, got %v", err)
	}
	if _, err := svc.VerifyOTP(ctx, "late@bank.test", notifier.Code("late@bank.test")); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("Expected ErrOTPExpired, got %v", err)
	}
}

func TestLoginSuspended(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()
	user, _ := registerVerified(t, svc, notifier, "bob@bank.test", "Bob", "Jones", "US")

	if err := svc.SetUserStatus(ctx, user.ID, storages.StatusSuspended); err != nil {
		t.Fatalf("Failed to suspend user: %v", err)
	}
	if _, _, err := svc.Login(ctx, LoginInput{Email: "bob@bank.test", Password: "password123"}); !errors.Is(err, ErrUserSuspended) {
		t.Fatalf("Expected ErrUserSuspended, got %v", err)
	}
}

func TestEnsureAccountCountryLength(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)

	for country, digits := range map[string]int{"PL": 26, "GB": 8, "JP": 7} {
		_, account := registerVerified(t, svc, notifier, country+"@bank.test", "Test", country, country)
		if len(account.AccountNumber) != digits {
			t.Fatalf("%s: expected %d digits, got %s", country, digits, account.AccountNumber)
		}
		if account.Country != country || account.Status != storages.StatusActive {
			t.Fatalf("%s: unexpected account %+v", country, account)
		}
	}
}

func TestEnsureAccountRetriesOnCollision(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()

	svc.newAccountNumber = func(int) (string, error) { return "1111111111", nil }
	registerVerified(t, svc, notifier, "first@bank.test", "First", "User", "US")

	numbers := []string{"1111111111", "1111111111", "2222222222"}
	svc.newAccountNumber = func(int) (string, error) {
		n := numbers[0]
		numbers = numbers[1:]
		return n, nil
	}
	user, err := svc.RegisterUser(ctx, RegisterInput{Email: "second@bank.test", Password: "password123", SSN: "1", Country: "US"})
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	account, err := svc.EnsureAccount(ctx, user.ID)
	if err != nil {
		t.Fatalf("Expected account after collisions, got %v", err)
	}
	if account.AccountNumber != "2222222222" {
		t.Fatalf("Expected 2222222222, got %s", account.AccountNumber)
	}

	again, err := svc.EnsureAccount(ctx, user.ID)
	if err != nil || again.AccountNumber != account.AccountNumber {
		t.Fatalf("Expected existing account to be returned, got %v, %v", again, err)
	}
}

func TestEnsureAccountGivesUp(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()

	svc.newAccountNumber = func(int) (string, error) { return "1111111111", nil }
	registerVerified(t, svc, notifier, "first@bank.test", "First", "User", "US")

	user, err := svc.RegisterUser(ctx, RegisterInput{Email: "second@bank.test", Password: "password123", SSN: "1", Country: "US"})
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if _, err := svc.EnsureAccount(ctx, user.ID); !errors.Is(err, ErrAccountNumberExhausted) {
		t.Fatalf("Expected ErrAccountNumberExhausted, got %v", err)
	}
}

func TestRandomAccountNumber(t *testing.T) {
	for i := 0; i < 100; i++ {
		number, err := randomAccountNumber(26)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(number) != 26 || number[0] == '0' || transfer.DigitsOnly(number) != number {
			t.Fatalf("Unexpected account number %s", number)
		}
	}
	if _, err := randomAccountNumber(0); err == nil {
		t.Fatal("Expected error for zero length")
	}
}

func TestGetBalancesUsdEquivalent(t *testing.T) {
	rates := &MockRates{rates: map[string]decimal.Decimal{"USD": decimal.NewFromInt(1), "PLN": decimal.RequireFromString("0.30")}}
	svc, _, notifier := newTestService(t, rates)
	ctx := context.Background()
	user, _ := registerVerified(t, svc, notifier, "jan@bank.test", "Jan", "Kowalski", "PL")

	if err := svc.AdjustBalance(ctx, user.ID, "pln", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Failed to adjust balance: %v", err)
	}

	for i := 0; i < 2; i++ {
		balances, err := svc.GetBalances(ctx, user.ID)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(balances) != 1 || balances[0].Currency != "PLN" {
			t.Fatalf("Unexpected balances %+v", balances)
		}
		if !balances[0].UsdEquivalent.Valid || !balances[0].UsdEquivalent.Decimal.Equal(decimal.NewFromInt(30)) {
			t.Fatalf("Expected 30 USD equivalent, got %v", balances[0].UsdEquivalent)
		}
	}
	if rates.calls != 1 {
		t.Fatalf("Expected rates to be served from cache on second call, got %d calls", rates.calls)
	}
}

func TestGetBalancesFallsBackToRules(t *testing.T) {
	svc, _, notifier := newTestService(t, &MockRates{err: errors.New("unavailable")})
	ctx := context.Background()
	user, _ := registerVerified(t, svc, notifier, "jan@bank.test", "Jan", "Kowalski", "PL")

	if err := svc.AdjustBalance(ctx, user.ID, "PLN", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Failed to adjust balance: %v", err)
	}
	balances, err := svc.GetBalances(ctx, user.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !balances[0].UsdEquivalent.Decimal.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("Expected 25 USD from built-in rate, got %v", balances[0].UsdEquivalent)
	}
}

func TestTransfer(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()
	alice, _ := registerVerified(t, svc, notifier, "alice@bank.test", "Alice", "Smith", "US")
	bob, bobAccount := registerVerified(t, svc, notifier, "bob@bank.test", "Bob", "Jones", "US")

	if err := svc.AdjustBalance(ctx, alice.ID, "USD", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Failed to fund sender: %v", err)
	}

	confirmation, err := svc.Transfer(ctx, alice.ID, transfer.Request{
		Amount:           "40",
		Currency:         "USD",
		AccountNumber:    bobAccount.AccountNumber,
		RecipientCountry: "US",
		RecipientName:    "bob",
	})
	if err != nil {
		t.Fatalf("Expected transfer to succeed, got %v", err)
	}
	if confirmation.RecipientName != "Bob Jones" {
		t.Fatalf("Expected recipient Bob Jones, got %s", confirmation.RecipientName)
	}

	aliceBalances, _ := svc.GetBalances(ctx, alice.ID)
	bobBalances, _ := svc.GetBalances(ctx, bob.ID)
	if !aliceBalances[0].Amount.Equal(decimal.NewFromInt(60)) || !bobBalances[0].Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("Expected 60/40, got %v/%v", aliceBalances[0].Amount, bobBalances[0].Amount)
	}

	history, err := svc.GetTransactions(ctx, alice.ID, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// Корректировка пополнения и списание перевода
	if len(history) != 2 || history[0].Type != storages.TransactionTypeTransferOut {
		t.Fatalf("Unexpected sender history %+v", history)
	}

	notifier.mu.Lock()
	sent := len(notifier.transfers)
	notifier.mu.Unlock()
	if sent != 1 {
		t.Fatalf("Expected 1 transfer notification, got %d", sent)
	}
}

func TestTransferRejections(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()
	alice, aliceAccount := registerVerified(t, svc, notifier, "alice@bank.test", "Alice", "Smith", "US")
	jan, _ := registerVerified(t, svc, notifier, "jan@bank.test", "Jan", "Kowalski", "PL")
	_, bobAccount := registerVerified(t, svc, notifier, "bob@bank.test", "Bob", "Jones", "US")

	if err := svc.AdjustBalance(ctx, alice.ID, "USD", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Failed to fund sender: %v", err)
	}

	self := transfer.Request{Amount: "10", Currency: "USD", AccountNumber: aliceAccount.AccountNumber, RecipientCountry: "US"}
	if _, err := svc.Transfer(ctx, alice.ID, self); !errors.Is(err, transfer.ErrSelfTransfer) {
		t.Fatalf("Expected ErrSelfTransfer, got %v", err)
	}

	if err := svc.AdjustBalance(ctx, jan.ID, "USD", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Failed to fund sender: %v", err)
	}
	if err := svc.SetConversionFee(ctx, jan.ID, true, decimal.NewFromInt(5), "PLN"); err != nil {
		t.Fatalf("Failed to set fee: %v", err)
	}
	toBob := transfer.Request{Amount: "10", Currency: "USD", AccountNumber: bobAccount.AccountNumber, RecipientCountry: "US"}
	if _, err := svc.Transfer(ctx, jan.ID, toBob); !errors.Is(err, transfer.ErrTransferBlocked) {
		t.Fatalf("Expected ErrTransferBlocked, got %v", err)
	}

	if err := svc.SetConversionFee(ctx, jan.ID, false, decimal.Zero, ""); err != nil {
		t.Fatalf("Failed to clear fee: %v", err)
	}
	if _, err := svc.Transfer(ctx, jan.ID, toBob); err != nil {
		t.Fatalf("Expected transfer after fee cleared, got %v", err)
	}

	if err := svc.SetUserStatus(ctx, alice.ID, storages.StatusSuspended); err != nil {
		t.Fatalf("Failed to suspend: %v", err)
	}
	if _, err := svc.Transfer(ctx, alice.ID, toBob); !errors.Is(err, ErrUserSuspended) {
		t.Fatalf("Expected ErrUserSuspended, got %v", err)
	}
}

func TestAdminOperations(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()
	alice, _ := registerVerified(t, svc, notifier, "alice@bank.test", "Alice", "Smith", "US")

	if err := svc.SetUserStatus(ctx, alice.ID, "deleted"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("Expected ErrInvalidStatus, got %v", err)
	}
	if err := svc.AdjustBalance(ctx, alice.ID, "USD", decimal.NewFromInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("Expected ErrNegativeAmount, got %v", err)
	}
	if err := svc.AdjustBalance(ctx, alice.ID, "XYZ", decimal.NewFromInt(1)); !errors.Is(err, transfer.ErrUnsupportedCurrency) {
		t.Fatalf("Expected ErrUnsupportedCurrency, got %v", err)
	}

	if err := svc.AdjustBalance(ctx, alice.ID, "USD", decimal.RequireFromString("1.005")); !errors.Is(err, transfer.ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount for sub-cent amount, got %v", err)
	}
	if err := svc.AdjustBalance(ctx, alice.ID, "JPY", decimal.RequireFromString("100.5")); !errors.Is(err, transfer.ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount for fractional yen, got %v", err)
	}

	stranger := alice.ID
	stranger[0] ^= 0xff
	if err := svc.AdjustBalance(ctx, stranger, "USD", decimal.NewFromInt(1)); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound, got %v", err)
	}

	users, err := svc.ListUsers(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(users) != 1 || users[0].Email != "alice@bank.test" {
		t.Fatalf("Unexpected users %+v", users)
	}

	stats, err := svc.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if stats.TotalUsers != 1 || stats.VerifiedUsers != 1 {
		t.Fatalf("Unexpected statistics %+v", stats)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, _, notifier := newTestService(t, nil)
	ctx := context.Background()
	alice, _ := registerVerified(t, svc, notifier, "alice@bank.test", "Alice", "Smith", "US")
	bob, bobAccount := registerVerified(t, svc, notifier, "bob@bank.test", "Bob", "Jones", "US")

	if err := svc.AdjustBalance(ctx, alice.ID, "USD", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Failed to fund sender: %v", err)
	}
	_, err := svc.Transfer(ctx, alice.ID, transfer.Request{
		Amount:           "40",
		Currency:         "USD",
		AccountNumber:    bobAccount.AccountNumber,
		RecipientCountry: "US",
	})
	if err != nil {
		t.Fatalf("Expected transfer to succeed, got %v", err)
	}

	if err := svc.DeleteUser(ctx, bob.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := svc.DeleteUser(ctx, bob.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Expected ErrUserNotFound on second delete, got %v", err)
	}

	if _, _, err := svc.Login(ctx, LoginInput{Email: "bob@bank.test", Password: "password123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Expected ErrInvalidCredentials for deleted user, got %v", err)
	}

	// Номер счета освобожден: перевод на него больше не проходит
	_, err = svc.Transfer(ctx, alice.ID, transfer.Request{
		Amount:           "10",
		Currency:         "USD",
		AccountNumber:    bobAccount.AccountNumber,
		RecipientCountry: "US",
	})
	if !errors.Is(err, transfer.ErrAccountNotFound) {
		t.Fatalf("Expected ErrAccountNotFound, got %v", err)
	}

	history, _ := svc.GetTransactions(ctx, alice.ID, 0)
	if len(history) != 2 {
		t.Fatalf("Expected sender history to survive, got %d rows", len(history))
	}

	stats, _ := svc.GetStatistics(ctx)
	if stats.TotalUsers != 1 || !stats.TotalBalances["USD"].Equal(decimal.NewFromInt(60)) {
		t.Fatalf("Unexpected statistics after delete %+v", stats)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{-1: 50, 0: 50, 10: 10, 200: 200, 1000: 200}
	for in, want := range cases {
		if got := normalizeLimit(in); got != want {
			t.Fatalf("normalizeLimit(%d): expected %d, got %d", in, want, got)
		}
	}
}

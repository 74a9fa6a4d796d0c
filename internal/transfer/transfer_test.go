package transfer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
	"gw-bank/internal/storages/memory"
)

// MockNotifier - мок для Notifier
type MockNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *MockNotifier) NotifyTransferReceived(ctx context.Context, email, senderName string, amount decimal.Decimal, currency, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, email)
	return m.err
}

func (m *MockNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// failingStore возвращает ошибку при применении перевода
type failingStore struct{ err error }

func (f failingStore) ExecuteTransfer(ctx context.Context, transfer *storages.TransferRecord) error {
	return f.err
}

type fixture struct {
	store     *memory.Storage
	validator *Validator
	applier   *Applier
	notifier  *MockNotifier
	sender    SenderContext
	recipient *storages.Account
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func createUser(t *testing.T, store *memory.Storage, email, first, last, country, accountNumber string) (*storages.User, *storages.Account) {
	t.Helper()
	ctx := context.Background()

	user := &storages.User{Email: email, Role: storages.RoleUser, Status: storages.StatusActive, Verified: true}
	profile := &storages.Profile{Email: email, FirstName: first, LastName: last, Country: country}
	if err := store.CreateUser(ctx, user, profile); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	account := &storages.Account{
		UserID:        user.ID,
		AccountNumber: accountNumber,
		Country:       country,
		AccountType:   storages.AccountTypeChecking,
		Status:        storages.StatusActive,
	}
	if err := store.CreateAccount(ctx, account); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return user, account
}

func newFixture(t *testing.T, senderUSD string) *fixture {
	t.Helper()
	store := memory.New()
	rules := DefaultRules()
	notifier := &MockNotifier{}

	sender, senderAccount := createUser(t, store, "alice@example.com", "Alice", "Smith", "US", "1111111111")
	_, recipientAccount := createUser(t, store, "bob@example.com", "Bob", "Jones", "US", "1234567890")

	if senderUSD != "" {
		if err := store.SetBalance(context.Background(), sender.ID, "USD", decimal.RequireFromString(senderUSD), "seed"); err != nil {
			t.Fatalf("Failed to seed balance: %v", err)
		}
	}

	return &fixture{
		store:     store,
		validator: NewValidator(store, rules),
		applier:   NewApplier(store, notifier, newTestLogger()),
		notifier:  notifier,
		sender: SenderContext{
			UserID:        sender.ID,
			Email:         sender.Email,
			FullName:      "Alice Smith",
			Country:       "US",
			AccountNumber: senderAccount.AccountNumber,
		},
		recipient: recipientAccount,
	}
}

func (f *fixture) transfer(ctx context.Context, req Request) (*Confirmation, error) {
	admissible, err := f.validator.Validate(ctx, f.sender, req)
	if err != nil {
		return nil, err
	}
	return f.applier.Apply(ctx, admissible)
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := f.store.GetBalance(context.Background(), userID, "USD")
	if errors.Is(err, storages.ErrNotFound) {
		return decimal.Zero
	}
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	return b.Amount
}

func transferRows(t *testing.T, store *memory.Storage, userID uuid.UUID) []storages.Transaction {
	t.Helper()
	txs, err := store.GetUserTransactions(context.Background(), userID, 100)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	var out []storages.Transaction
	for _, tx := range txs {
		if tx.Type != storages.TransactionTypeAdjustment {
			out = append(out, tx)
		}
	}
	return out
}

func usdRequest(amount string) Request {
	return Request{
		Amount:           amount,
		Currency:         "USD",
		AccountNumber:    "1234567890",
		RecipientCountry: "US",
		Type:             TypeInternal,
	}
}

func TestTransferSuccess(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()

	confirmation, err := f.transfer(ctx, usdRequest("40"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !confirmation.Amount.Equal(decimal.NewFromInt(40)) || confirmation.RecipientName != "Bob Jones" {
		t.Fatalf("Unexpected confirmation: %+v", confirmation)
	}
	if confirmation.Description != "Transfer to Bob Jones (1234567890)" {
		t.Fatalf("Expected default description, got %q", confirmation.Description)
	}

	if got := f.balance(t, f.sender.UserID); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("Expected sender balance 60, got %s", got)
	}
	if got := f.balance(t, f.recipient.UserID); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("Expected recipient balance 40, got %s", got)
	}

	debit := transferRows(t, f.store, f.sender.UserID)
	credit := transferRows(t, f.store, f.recipient.UserID)
	if len(debit) != 1 || len(credit) != 1 {
		t.Fatalf("Expected one ledger row per side, got %d and %d", len(debit), len(credit))
	}
	if !debit[0].Amount.Add(credit[0].Amount).IsZero() {
		t.Fatalf("Ledger rows must sum to zero: %s + %s", debit[0].Amount, credit[0].Amount)
	}
	if !debit[0].Amount.Equal(decimal.NewFromInt(-40)) {
		t.Fatalf("Expected debit -40, got %s", debit[0].Amount)
	}
	if debit[0].TransferID != credit[0].TransferID || debit[0].TransferID.UUID != confirmation.TransferID {
		t.Fatal("Expected both rows to carry the transfer id")
	}
	if credit[0].Description != "Transfer from Alice Smith" {
		t.Fatalf("Unexpected recipient description %q", credit[0].Description)
	}

	if f.notifier.Calls() != 1 {
		t.Fatalf("Expected one notification, got %d", f.notifier.Calls())
	}
}

func TestTransferNotificationFailureIsNonBlocking(t *testing.T) {
	f := newFixture(t, "100")
	f.notifier.err = errors.New("smtp down")

	if _, err := f.transfer(context.Background(), usdRequest("40")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.notifier.Calls() != 1 {
		t.Fatal("Expected notification to be attempted")
	}
	if got := f.balance(t, f.recipient.UserID); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("Expected recipient balance 40, got %s", got)
	}
}

func TestTransferInvalidAmount(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()

	// Суммы мельче цента обнулились бы в хранилище
	for _, amount := range []string{"0", "-5", "abc", "", "0.000000001", "1e-12", "10.005"} {
		_, err := f.transfer(ctx, usdRequest(amount))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Amount %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}

	if got := f.balance(t, f.sender.UserID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Expected balance unchanged, got %s", got)
	}
	if rows := transferRows(t, f.store, f.sender.UserID); len(rows) != 0 {
		t.Fatalf("Expected no ledger rows, got %d", len(rows))
	}
}

func TestAmountDecimals(t *testing.T) {
	rules := DefaultRules()

	cases := []struct {
		amount   string
		currency string
		valid    bool
	}{
		{"10", "USD", true},
		{"10.50", "USD", true},
		{"10.500", "USD", true},
		{"0.01", "EUR", true},
		{"0.001", "EUR", false},
		{"100", "JPY", true},
		{"100.0", "JPY", true},
		{"100.5", "JPY", false},
		{"0", "USD", false},
	}
	for _, tc := range cases {
		if got := rules.ValidAmount(decimal.RequireFromString(tc.amount), tc.currency); got != tc.valid {
			t.Fatalf("ValidAmount(%s %s): expected %t, got %t", tc.amount, tc.currency, tc.valid, got)
		}
	}
}

func TestTransferUnsupportedCurrency(t *testing.T) {
	f := newFixture(t, "100")
	req := usdRequest("10")
	req.Currency = "XYZ"

	if _, err := f.transfer(context.Background(), req); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("Expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newFixture(t, "100")

	_, err := f.transfer(context.Background(), usdRequest("100.01"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	if got := f.balance(t, f.sender.UserID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Expected balance unchanged, got %s", got)
	}

	// Отсутствующий баланс считается нулевым
	req := usdRequest("1")
	req.Currency = "EUR"
	if _, err := f.transfer(context.Background(), req); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds for missing balance, got %v", err)
	}
}

func TestTransferAccountFormat(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()

	req := usdRequest("10")
	req.AccountNumber = "12345"
	if _, err := f.transfer(ctx, req); !errors.Is(err, ErrInvalidAccountFormat) {
		t.Fatalf("Expected ErrInvalidAccountFormat, got %v", err)
	}

	req.AccountNumber = "1234567890"
	req.RecipientCountry = "ZZ"
	if _, err := f.transfer(ctx, req); !errors.Is(err, ErrInvalidAccountFormat) {
		t.Fatalf("Expected ErrInvalidAccountFormat for unknown country, got %v", err)
	}

	// Разделители в номере игнорируются
	req.RecipientCountry = "US"
	req.AccountNumber = "1234-5678-90"
	if _, err := f.transfer(ctx, req); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestTransferRoutingNumber(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()

	req := usdRequest("10")
	req.Type = TypeExternal
	for _, routing := range []string{"", "12345678", "12345678a", "1234567890"} {
		req.RoutingNumber = routing
		if _, err := f.transfer(ctx, req); !errors.Is(err, ErrInvalidRoutingNumber) {
			t.Fatalf("Routing %q: expected ErrInvalidRoutingNumber, got %v", routing, err)
		}
	}

	req.RoutingNumber = "021000021"
	if _, err := f.transfer(ctx, req); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestTransferAccountNotFound(t *testing.T) {
	f := newFixture(t, "100")
	req := usdRequest("10")
	req.AccountNumber = "9999999999"

	if _, err := f.transfer(context.Background(), req); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestTransferAccountInactive(t *testing.T) {
	f := newFixture(t, "100")
	if err := f.store.UpdateUserStatus(context.Background(), f.recipient.UserID, storages.StatusSuspended); err != nil {
		t.Fatalf("Failed to suspend recipient: %v", err)
	}

	if _, err := f.transfer(context.Background(), usdRequest("10")); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("Expected ErrAccountInactive, got %v", err)
	}
}

func TestTransferSelf(t *testing.T) {
	f := newFixture(t, "100")
	req := usdRequest("10")
	req.AccountNumber = f.sender.AccountNumber

	if _, err := f.transfer(context.Background(), req); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("Expected ErrSelfTransfer, got %v", err)
	}
}

func TestTransferRecipientName(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()

	req := usdRequest("10")
	req.RecipientName = "Charlie"
	if _, err := f.transfer(ctx, req); !errors.Is(err, ErrRecipientNameMismatch) {
		t.Fatalf("Expected ErrRecipientNameMismatch, got %v", err)
	}

	req.RecipientName = "bob"
	if _, err := f.transfer(ctx, req); err != nil {
		t.Fatalf("Expected case-insensitive match, got %v", err)
	}
}

func TestTransferBlockedByPendingFee(t *testing.T) {
	f := newFixture(t, "100")
	f.sender.Country = "PL"
	f.sender.ConversionFeePending = true

	// Блокировка срабатывает раньше любых других проверок
	req := usdRequest("-1")
	req.AccountNumber = f.sender.AccountNumber
	if _, err := f.transfer(context.Background(), req); !errors.Is(err, ErrTransferBlocked) {
		t.Fatalf("Expected ErrTransferBlocked, got %v", err)
	}

	// Та же комиссия в другой стране не блокирует
	f.sender.Country = "US"
	if _, err := f.transfer(context.Background(), usdRequest("10")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestTransferStoreFailure(t *testing.T) {
	logger := newTestLogger()
	admissible := &Admissible{Amount: decimal.NewFromInt(1), Currency: "USD"}

	applier := NewApplier(failingStore{err: errors.New("connection reset")}, nil, logger)
	if _, err := applier.Apply(context.Background(), admissible); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("Expected ErrTransferFailed, got %v", err)
	}

	applier = NewApplier(failingStore{err: storages.ErrInsufficientFunds}, nil, logger)
	if _, err := applier.Apply(context.Background(), admissible); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
}

func TestConcurrentTransfers(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.transfer(ctx, usdRequest("60"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
		default:
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("Expected exactly one transfer to succeed, got %d", succeeded)
	}

	if got := f.balance(t, f.sender.UserID); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("Expected sender balance 40, got %s", got)
	}
	if got := f.balance(t, f.recipient.UserID); !got.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("Expected recipient balance 60, got %s", got)
	}
}

func TestApplyAccountDigits(t *testing.T) {
	rules := DefaultRules()
	if err := rules.ApplyAccountDigits("US:12, xx:5"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if d, _ := rules.AccountDigits("us"); d != 12 {
		t.Fatalf("Expected 12 digits for US, got %d", d)
	}
	if d, ok := rules.AccountDigits("XX"); !ok || d != 5 {
		t.Fatalf("Expected 5 digits for XX, got %d", d)
	}

	if err := rules.ApplyAccountDigits("US=10"); err == nil {
		t.Fatal("Expected error for malformed entry")
	}
	if err := rules.ApplyAccountDigits("US:0"); err == nil {
		t.Fatal("Expected error for zero digits")
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("12 34-56a7"); got != "1234567" {
		t.Fatalf("Expected 1234567, got %q", got)
	}
}

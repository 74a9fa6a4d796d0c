// Package memory реализует хранилище в памяти процесса.
// Все изменения состояния выполняются под одним мьютексом, поэтому перевод
// (оба баланса и обе записи журнала) атомарен так же, как в PostgreSQL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-bank/internal/storages"
)

type balanceKey struct {
	userID   uuid.UUID
	currency string
}

type idempotencyKey struct {
	userID uuid.UUID
	key    string
}

// Storage хранит пользователей, счета, балансы и журнал в map
type Storage struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*storages.User
	profiles     map[uuid.UUID]*storages.Profile
	accounts     map[uuid.UUID]*storages.Account
	balances     map[balanceKey]*storages.Balance
	transactions []storages.Transaction
	logins       []storages.LoginLog
	idempotency  map[idempotencyKey]*storages.IdempotentResponse
	rates        map[string]storages.ExchangeRate
}

// New создает пустое хранилище
func New() *Storage {
	return &Storage{
		users:       make(map[uuid.UUID]*storages.User),
		profiles:    make(map[uuid.UUID]*storages.Profile),
		accounts:    make(map[uuid.UUID]*storages.Account),
		balances:    make(map[balanceKey]*storages.Balance),
		idempotency: make(map[idempotencyKey]*storages.IdempotentResponse),
		rates:       make(map[string]storages.ExchangeRate),
	}
}

func (s *Storage) CreateUser(_ context.Context, user *storages.User, profile *storages.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == email {
			return storages.ErrAlreadyExists
		}
	}

	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = email
	user.CreatedAt, user.UpdatedAt = now, now
	profile.UserID = user.ID
	profile.CreatedAt, profile.UpdatedAt = now, now

	u, p := *user, *profile
	s.users[user.ID] = &u
	s.profiles[user.ID] = &p
	return nil
}

func (s *Storage) GetUserByEmail(_ context.Context, email string) (*storages.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storages.ErrNotFound
}

func (s *Storage) GetUserByID(_ context.Context, userID uuid.UUID) (*storages.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storages.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Storage) MarkUserVerified(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storages.ErrNotFound
	}
	u.Verified = true
	u.OTPHash = ""
	u.OTPExpiresAt = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Storage) UpdateUserStatus(_ context.Context, userID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storages.ErrNotFound
	}
	now := time.Now().UTC()
	u.Status, u.UpdatedAt = status, now
	if a, ok := s.accounts[userID]; ok {
		a.Status, a.UpdatedAt = status, now
	}
	return nil
}

// DeleteUser удаляет пользователя со всеми его данными, как ON DELETE CASCADE в PostgreSQL
func (s *Storage) DeleteUser(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return storages.ErrNotFound
	}
	delete(s.users, userID)
	delete(s.profiles, userID)
	delete(s.accounts, userID)
	for k := range s.balances {
		if k.userID == userID {
			delete(s.balances, k)
		}
	}
	for k := range s.idempotency {
		if k.userID == userID {
			delete(s.idempotency, k)
		}
	}

	transactions := s.transactions[:0]
	for _, t := range s.transactions {
		if t.UserID != userID {
			transactions = append(transactions, t)
		}
	}
	s.transactions = transactions

	logins := s.logins[:0]
	for _, l := range s.logins {
		if l.UserID != userID {
			logins = append(logins, l)
		}
	}
	s.logins = logins
	return nil
}

func (s *Storage) ListUsers(_ context.Context, search string, limit int) ([]storages.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search = strings.ToLower(search)
	var out []storages.UserSummary
	for id, u := range s.users {
		p := s.profiles[id]
		summary := storages.UserSummary{
			ID:         u.ID,
			Email:      u.Email,
			FullName:   p.FullName(),
			Country:    p.Country,
			Role:       u.Role,
			Status:     u.Status,
			Verified:   u.Verified,
			FeePending: p.ConversionFeePending,
			Balances:   make(map[string]decimal.Decimal),
			CreatedAt:  u.CreatedAt,
		}
		if a, ok := s.accounts[id]; ok {
			summary.AccountNumber = a.AccountNumber
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(summary.FullName), search) &&
			!strings.Contains(summary.Email, search) &&
			!strings.Contains(summary.AccountNumber, search) {
			continue
		}
		for k, b := range s.balances {
			if k.userID == id {
				summary.Balances[k.currency] = b.Amount
			}
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) RecordLogin(_ context.Context, log *storages.LoginLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	log.CreatedAt = time.Now().UTC()
	s.logins = append(s.logins, *log)
	return nil
}

// LoginLogs возвращает копию журнала входов
func (s *Storage) LoginLogs() []storages.LoginLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storages.LoginLog(nil), s.logins...)
}

func (s *Storage) GetProfile(_ context.Context, userID uuid.UUID) (*storages.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, storages.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Storage) UpdateConversionFee(_ context.Context, userID uuid.UUID, pending bool, amount decimal.Decimal, currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return storages.ErrNotFound
	}
	p.ConversionFeePending = pending
	p.ConversionFeeAmount = amount
	p.ConversionFeeCurrency = currency
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Storage) CreateAccount(_ context.Context, account *storages.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return storages.ErrAlreadyExists
	}
	for _, a := range s.accounts {
		if a.AccountNumber == account.AccountNumber {
			return storages.ErrAlreadyExists
		}
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt, account.UpdatedAt = now, now
	cp := *account
	s.accounts[account.UserID] = &cp
	return nil
}

func (s *Storage) GetAccountByUser(_ context.Context, userID uuid.UUID) (*storages.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, storages.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Storage) GetAccountByNumber(_ context.Context, accountNumber string) (*storages.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.AccountNumber == accountNumber {
			cp := *a
			return &cp, nil
		}
	}
	return nil, storages.ErrNotFound
}

func (s *Storage) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	_, err := s.GetAccountByNumber(ctx, accountNumber)
	if err == storages.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *Storage) GetBalance(_ context.Context, userID uuid.UUID, currency string) (*storages.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[balanceKey{userID, currency}]
	if !ok {
		return nil, storages.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Storage) GetAllBalances(_ context.Context, userID uuid.UUID) ([]storages.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storages.Balance
	for k, b := range s.balances {
		if k.userID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *Storage) SetBalance(_ context.Context, userID uuid.UUID, currency string, amount decimal.Decimal, description string) error {
	if amount.IsNegative() {
		return storages.ErrInsufficientFunds
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return storages.ErrNotFound
	}

	now := time.Now().UTC()
	b := s.balanceLocked(userID, currency, now)
	delta := amount.Sub(b.Amount)
	b.Amount, b.UpdatedAt = amount, now

	if !delta.IsZero() {
		s.transactions = append(s.transactions, storages.Transaction{
			ID:          uuid.New(),
			UserID:      userID,
			Amount:      delta,
			Currency:    currency,
			Type:        storages.TransactionTypeAdjustment,
			Description: description,
			Status:      storages.TransactionStatusCompleted,
			CreatedAt:   now,
		})
	}
	return nil
}

// balanceLocked возвращает строку баланса, создавая нулевую при отсутствии. Вызывать под s.mu.
func (s *Storage) balanceLocked(userID uuid.UUID, currency string, now time.Time) *storages.Balance {
	key := balanceKey{userID, currency}
	b, ok := s.balances[key]
	if !ok {
		b = &storages.Balance{UserID: userID, Currency: currency, Amount: decimal.Zero, CreatedAt: now, UpdatedAt: now}
		s.balances[key] = b
	}
	return b
}

func (s *Storage) GetUserTransactions(_ context.Context, userID uuid.UUID, limit int) ([]storages.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storages.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].UserID == userID {
			out = append(out, s.transactions[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Storage) ExecuteTransfer(_ context.Context, transfer *storages.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transfer.ID == uuid.Nil {
		transfer.ID = uuid.New()
	}

	sender, ok := s.balances[balanceKey{transfer.SenderID, transfer.Currency}]
	if !ok || sender.Amount.LessThan(transfer.Amount) {
		return storages.ErrInsufficientFunds
	}
	if _, ok := s.users[transfer.RecipientID]; !ok {
		return storages.ErrNotFound
	}

	now := time.Now().UTC()
	recipient := s.balanceLocked(transfer.RecipientID, transfer.Currency, now)
	sender.Amount, sender.UpdatedAt = sender.Amount.Sub(transfer.Amount), now
	recipient.Amount, recipient.UpdatedAt = recipient.Amount.Add(transfer.Amount), now

	transferID := uuid.NullUUID{UUID: transfer.ID, Valid: true}
	s.transactions = append(s.transactions,
		storages.Transaction{
			ID:                  uuid.New(),
			TransferID:          transferID,
			UserID:              transfer.SenderID,
			Amount:              transfer.Amount.Neg(),
			Currency:            transfer.Currency,
			Type:                storages.TransactionTypeTransferOut,
			CounterpartyAccount: transfer.RecipientAccount,
			CounterpartyName:    transfer.RecipientName,
			Description:         transfer.Description,
			Status:              storages.TransactionStatusCompleted,
			CreatedAt:           now,
		},
		storages.Transaction{
			ID:                  uuid.New(),
			TransferID:          transferID,
			UserID:              transfer.RecipientID,
			Amount:              transfer.Amount,
			Currency:            transfer.Currency,
			Type:                storages.TransactionTypeTransferIn,
			CounterpartyAccount: transfer.SenderAccount,
			CounterpartyName:    transfer.SenderName,
			Description:         transfer.RecipientDescription,
			Status:              storages.TransactionStatusCompleted,
			CreatedAt:           now,
		},
	)
	transfer.CreatedAt = now
	return nil
}

func (s *Storage) GetIdempotentResponse(_ context.Context, userID uuid.UUID, key string) (*storages.IdempotentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.idempotency[idempotencyKey{userID, key}]
	if !ok {
		return nil, storages.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Storage) ReserveIdempotencyKey(_ context.Context, userID uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey{userID, key}
	if _, ok := s.idempotency[k]; ok {
		return storages.ErrAlreadyExists
	}
	s.idempotency[k] = &storages.IdempotentResponse{UserID: userID, Key: key, CreatedAt: time.Now().UTC()}
	return nil
}

func (s *Storage) SaveIdempotentResponse(_ context.Context, resp *storages.IdempotentResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := idempotencyKey{resp.UserID, resp.Key}
	if r, ok := s.idempotency[key]; ok && !r.Pending() {
		return nil
	}
	resp.CreatedAt = time.Now().UTC()
	cp := *resp
	cp.Body = append([]byte(nil), resp.Body...)
	s.idempotency[key] = &cp
	return nil
}

func (s *Storage) ReleaseIdempotencyKey(_ context.Context, userID uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := idempotencyKey{userID, key}
	if r, ok := s.idempotency[k]; ok && r.Pending() {
		delete(s.idempotency, k)
	}
	return nil
}

func (s *Storage) GetSystemStatistics(_ context.Context) (*storages.SystemStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &storages.SystemStatistics{
		TotalUsers:        int64(len(s.users)),
		TotalTransactions: int64(len(s.transactions)),
		TotalBalances:     make(map[string]decimal.Decimal),
	}
	for _, u := range s.users {
		if u.Verified {
			stats.VerifiedUsers++
		}
		if u.Status == storages.StatusSuspended {
			stats.SuspendedUsers++
		}
	}
	for k, b := range s.balances {
		stats.TotalBalances[k.currency] = stats.TotalBalances[k.currency].Add(b.Amount)
	}
	return stats, nil
}

func (s *Storage) GetUsdRates(_ context.Context) ([]storages.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storages.ExchangeRate, 0, len(s.rates))
	for _, r := range s.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (s *Storage) GetUsdRate(_ context.Context, currency string) (*storages.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rates[currency]
	if !ok {
		return nil, storages.ErrNotFound
	}
	return &r, nil
}

func (s *Storage) UpsertUsdRate(_ context.Context, rate *storages.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate.UpdatedAt = time.Now().UTC()
	s.rates[rate.Currency] = *rate
	return nil
}

func (s *Storage) Ping(context.Context) error { return nil }

func (s *Storage) Close() error { return nil }

var (
	_ storages.Storage      = (*Storage)(nil)
	_ storages.RatesStorage = (*Storage)(nil)
)

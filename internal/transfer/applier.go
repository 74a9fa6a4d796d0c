package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
)

// Notifier доставляет уведомление получателю перевода. Доставка не гарантируется.
type Notifier interface {
	NotifyTransferReceived(ctx context.Context, email, senderName string, amount decimal.Decimal, currency, description string) error
}

// applierStore - то, что применителю нужно от хранилища
type applierStore interface {
	ExecuteTransfer(ctx context.Context, transfer *storages.TransferRecord) error
}

// Confirmation - результат успешного перевода
type Confirmation struct {
	TransferID       uuid.UUID       `json:"transfer_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	RecipientName    string          `json:"recipient_name"`
	RecipientAccount string          `json:"recipient_account"`
	Description      string          `json:"description"`
}

// Applier применяет проверенный перевод
type Applier struct {
	store    applierStore
	notifier Notifier
	logger   *logrus.Logger
}

// NewApplier создает применитель; notifier может быть nil
func NewApplier(store applierStore, notifier Notifier, logger *logrus.Logger) *Applier {
	return &Applier{store: store, notifier: notifier, logger: logger}
}

// Apply списывает и зачисляет средства одной транзакцией хранилища, затем отправляет уведомление
func (a *Applier) Apply(ctx context.Context, t *Admissible) (*Confirmation, error) {
	description := t.Description
	if description == "" {
		description = fmt.Sprintf("Transfer to %s (%s)", t.RecipientName, t.RecipientAccount)
	}

	record := &storages.TransferRecord{
		ID:                   uuid.New(),
		SenderID:             t.Sender.UserID,
		SenderAccount:        t.Sender.AccountNumber,
		SenderName:           t.Sender.FullName,
		RecipientID:          t.RecipientID,
		RecipientAccount:     t.RecipientAccount,
		RecipientName:        t.RecipientName,
		Amount:               t.Amount,
		Currency:             t.Currency,
		Description:          description,
		RecipientDescription: fmt.Sprintf("Transfer from %s", t.Sender.FullName),
	}

	if err := a.store.ExecuteTransfer(ctx, record); err != nil {
		if errors.Is(err, storages.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		a.logger.Errorf("Transfer %s failed: %v", record.ID, err)
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	a.logger.WithFields(logrus.Fields{
		"transfer_id": record.ID,
		"sender":      t.Sender.UserID,
		"recipient":   t.RecipientID,
		"amount":      t.Amount.String(),
		"currency":    t.Currency,
	}).Info("Transfer applied")

	if a.notifier != nil && t.RecipientEmail != "" {
		if err := a.notifier.NotifyTransferReceived(ctx, t.RecipientEmail, t.Sender.FullName, t.Amount, t.Currency, description); err != nil {
			a.logger.Warnf("Failed to send transfer notification: %v", err)
		}
	}

	return &Confirmation{
		TransferID:       record.ID,
		Amount:           t.Amount,
		Currency:         t.Currency,
		RecipientName:    t.RecipientName,
		RecipientAccount: t.RecipientAccount,
		Description:      description,
	}, nil
}

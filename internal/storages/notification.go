package storages

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Типы уведомлений
const (
	NotificationTransferReceived = "transfer_received"
	NotificationVerificationCode = "verification_code"
)

// Статусы обработки уведомлений
const (
	NotificationStatusProcessed = "processed"
	NotificationStatusFailed    = "failed"
)

// Notification - уведомление, сохраненное сервисом уведомлений
type Notification struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientEmail string             `bson:"recipient_email" json:"recipient_email"`
	Type           string             `bson:"type" json:"type"`
	Message        string             `bson:"message" json:"message"`
	Metadata       map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	ProcessedAt    time.Time          `bson:"processed_at" json:"processed_at"`
	Status         string             `bson:"status" json:"status"`
}

// NotificationStatistics - статистика сохраненных уведомлений по типам
type NotificationStatistics struct {
	Total           int64            `json:"total"`
	ByType          map[string]int64 `json:"by_type"`
	LastProcessedAt time.Time        `json:"last_processed_at"`
}

// NotificationStorage определяет интерфейс хранилища уведомлений
type NotificationStorage interface {
	SaveNotification(ctx context.Context, n *Notification) error
	SaveNotificationBatch(ctx context.Context, batch []Notification) error
	GetNotificationsByRecipient(ctx context.Context, email string, limit int) ([]Notification, error)
	GetStatistics(ctx context.Context) (*NotificationStatistics, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

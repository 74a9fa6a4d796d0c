package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
)

// NotificationMessage - сообщение в топике уведомлений
type NotificationMessage struct {
	Type           string            `json:"type"`
	RecipientEmail string            `json:"recipient_email"`
	Message        string            `json:"message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// messageWriter - часть kafka.Writer, которой пользуется Producer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует уведомления в Kafka
type Producer struct {
	writer messageWriter
	logger *logrus.Logger
}

// NewProducer создает новый Kafka producer
func NewProducer(brokers []string, topic string, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Errorf("Failed to deliver %d notification(s) to Kafka: %v", len(messages), err)
			}
		},
	}

	logger.Infof("Kafka producer initialized for topic: %s", topic)

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// NotifyTransferReceived сообщает получателю о зачислении перевода
func (p *Producer) NotifyTransferReceived(ctx context.Context, email, senderName string, amount decimal.Decimal, currency, description string) error {
	return p.publish(ctx, NotificationMessage{
		Type:           storages.NotificationTransferReceived,
		RecipientEmail: email,
		Message:        fmt.Sprintf("You received %s %s from %s", amount.String(), currency, senderName),
		Metadata: map[string]string{
			"sender":      senderName,
			"amount":      amount.String(),
			"currency":    currency,
			"description": description,
		},
		Timestamp: time.Now().UTC(),
	})
}

// SendVerificationCode отправляет одноразовый код подтверждения email
func (p *Producer) SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return p.publish(ctx, NotificationMessage{
		Type:           storages.NotificationVerificationCode,
		RecipientEmail: email,
		Message:        fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(ttl.Minutes())),
		Metadata:       map[string]string{"code": code},
		Timestamp:      time.Now().UTC(),
	})
}

func (p *Producer) publish(ctx context.Context, message NotificationMessage) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		p.logger.Errorf("Failed to marshal Kafka message: %v", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Ключ - email получателя, чтобы уведомления одного человека шли в одну партицию
	kafkaMessage := kafka.Message{
		Key:   []byte(strings.ToLower(message.RecipientEmail)),
		Value: messageBytes,
		Time:  message.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		p.logger.Errorf("Failed to send message to Kafka: %v", err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Infof("Sent %s notification to Kafka for %s", message.Type, message.RecipientEmail)
	return nil
}

// Close закрывает Kafka producer
func (p *Producer) Close() error {
	if p.writer != nil {
		p.logger.Info("Closing Kafka producer")
		return p.writer.Close()
	}
	return nil
}

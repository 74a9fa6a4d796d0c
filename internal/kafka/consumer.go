package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"gw-bank/internal/storages"
)

// messageReader - часть kafka.Reader, которой пользуется Consumer
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает уведомления из Kafka и сохраняет их пакетами
type Consumer struct {
	reader        messageReader
	storage       storages.NotificationStorage
	logger        *logrus.Logger
	batchSize     int
	workers       int
	flushInterval time.Duration
	retryAttempts int
	retryDelay    time.Duration

	// Статистика
	mu                sync.RWMutex
	messagesProcessed int64
	messagesFailed    int64
	startTime         time.Time
}

// Config конфигурация consumer
type Config struct {
	Brokers       []string
	Topic         string
	GroupID       string
	MinBytes      int
	MaxBytes      int
	MaxWait       time.Duration
	BatchSize     int
	Workers       int
	FlushInterval time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// NewConsumer создает новый Kafka consumer
func NewConsumer(cfg *Config, storage storages.NotificationStorage, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		Logger:      kafka.LoggerFunc(logger.Debugf),
		ErrorLogger: kafka.LoggerFunc(logger.Errorf),
	})

	logger.Infof("Kafka consumer initialized: Topic=%s, GroupID=%s, Brokers=%v",
		cfg.Topic, cfg.GroupID, cfg.Brokers)

	return newConsumer(reader, cfg, storage, logger)
}

func newConsumer(reader messageReader, cfg *Config, storage storages.NotificationStorage, logger *logrus.Logger) *Consumer {
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	return &Consumer{
		reader:        reader,
		storage:       storage,
		logger:        logger,
		batchSize:     max(cfg.BatchSize, 1),
		workers:       max(cfg.Workers, 1),
		flushInterval: flushInterval,
		retryAttempts: max(cfg.RetryAttempts, 1),
		retryDelay:    cfg.RetryDelay,
		startTime:     time.Now(),
	}
}

// Start запускает чтение и воркеры; возвращается после отмены ctx
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer...")

	messages := make(chan kafka.Message, c.batchSize*2)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.processMessages(ctx, messages, workerID)
		}(i)
	}

	go func() {
		defer close(messages)
		c.readMessages(ctx, messages)
	}()

	wg.Wait()

	c.logger.Info("Kafka consumer stopped")
	return nil
}

// readMessages читает сообщения из Kafka
func (c *Consumer) readMessages(ctx context.Context, messages chan<- kafka.Message) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Stopping message reading...")
				return
			}
			c.logger.Errorf("Failed to fetch message: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		select {
		case messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// processMessages собирает пакеты и сохраняет их по размеру или по таймеру
func (c *Consumer) processMessages(ctx context.Context, messages <-chan kafka.Message, workerID int) {
	batch := make([]storages.Notification, 0, c.batchSize)
	kafkaMessages := make([]kafka.Message, 0, c.batchSize)

	flush := func(ctx context.Context) {
		if len(batch) > 0 {
			c.flushBatch(ctx, batch, kafkaMessages)
			batch = batch[:0]
			kafkaMessages = kafkaMessages[:0]
		}
	}

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Остаток сохраняем с отдельным таймаутом: исходный контекст уже отменен
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return

		case <-ticker.C:
			flush(ctx)

		case msg, ok := <-messages:
			if !ok {
				flush(ctx)
				return
			}

			notification, err := ParseMessage(msg.Value)
			if err != nil {
				c.logger.Errorf("Worker %d: Failed to parse message: %v", workerID, err)
				c.incrementFailed(1)
				// Битое сообщение коммитим, чтобы не блокировать партицию
				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.logger.Errorf("Worker %d: Failed to commit failed message: %v", workerID, err)
				}
				continue
			}

			batch = append(batch, *notification)
			kafkaMessages = append(kafkaMessages, msg)

			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		}
	}
}

// ParseMessage превращает JSON из топика в уведомление
func ParseMessage(value []byte) (*storages.Notification, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if msg.RecipientEmail == "" {
		return nil, fmt.Errorf("message has no recipient")
	}
	switch msg.Type {
	case storages.NotificationTransferReceived, storages.NotificationVerificationCode:
	default:
		return nil, fmt.Errorf("unknown notification type %q", msg.Type)
	}

	createdAt := msg.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &storages.Notification{
		RecipientEmail: msg.RecipientEmail,
		Type:           msg.Type,
		Message:        msg.Message,
		Metadata:       msg.Metadata,
		CreatedAt:      createdAt,
	}, nil
}

// flushBatch сохраняет пакет в хранилище с повторами и только потом коммитит смещения
func (c *Consumer) flushBatch(ctx context.Context, batch []storages.Notification, messages []kafka.Message) {
	start := time.Now()

	var err error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		err = c.storage.SaveNotificationBatch(ctx, batch)
		if err == nil {
			break
		}

		c.logger.Warnf("Attempt %d/%d: Failed to save batch: %v", attempt+1, c.retryAttempts, err)

		if attempt < c.retryAttempts-1 {
			time.Sleep(c.retryDelay)
		}
	}

	if err != nil {
		c.logger.Errorf("Failed to save batch after %d attempts: %v", c.retryAttempts, err)
		c.incrementFailed(int64(len(batch)))
		return
	}

	if err := c.reader.CommitMessages(ctx, messages...); err != nil {
		c.logger.Errorf("Failed to commit messages: %v", err)
		return
	}

	duration := time.Since(start)
	c.incrementProcessed(int64(len(batch)))

	c.logger.Infof("Flushed batch: size=%d, duration=%v", len(batch), duration)
}

func (c *Consumer) incrementProcessed(count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesProcessed += count
}

func (c *Consumer) incrementFailed(count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesFailed += count
}

// Statistics - счетчики обработки
type Statistics struct {
	MessagesProcessed int64
	MessagesFailed    int64
	Uptime            time.Duration
}

// GetStatistics возвращает статистику обработки
func (c *Consumer) GetStatistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Statistics{
		MessagesProcessed: c.messagesProcessed,
		MessagesFailed:    c.messagesFailed,
		Uptime:            time.Since(c.startTime),
	}
}

// Close закрывает consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing Kafka consumer")
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

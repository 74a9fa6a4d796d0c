package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gw-bank/internal/storages"
)

// SaveNotification сохраняет одно уведомление
func (s *MongoStorage) SaveNotification(ctx context.Context, n *storages.Notification) error {
	n.ProcessedAt = time.Now().UTC()
	n.Status = storages.NotificationStatusProcessed

	result, err := s.collection.InsertOne(ctx, n)
	if err != nil {
		s.logger.Errorf("Failed to save notification: %v", err)
		return fmt.Errorf("failed to save notification: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid
	}

	s.logger.Debugf("Saved notification: Type=%s, Recipient=%s", n.Type, n.RecipientEmail)
	return nil
}

// SaveNotificationBatch сохраняет пакет уведомлений одним запросом
func (s *MongoStorage) SaveNotificationBatch(ctx context.Context, batch []storages.Notification) error {
	if len(batch) == 0 {
		return nil
	}

	documents := make([]interface{}, len(batch))
	now := time.Now().UTC()

	for i := range batch {
		batch[i].ProcessedAt = now
		batch[i].Status = storages.NotificationStatusProcessed
		documents[i] = batch[i]
	}

	result, err := s.collection.InsertMany(ctx, documents)
	if err != nil {
		s.logger.Errorf("Failed to save notification batch: %v", err)
		return fmt.Errorf("failed to save notification batch: %w", err)
	}

	s.logger.Infof("Saved batch of %d notifications (inserted: %d)", len(batch), len(result.InsertedIDs))
	return nil
}

// GetNotificationsByRecipient возвращает последние уведомления получателя
func (s *MongoStorage) GetNotificationsByRecipient(ctx context.Context, email string, limit int) ([]storages.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"recipient_email": email}, opts)
	if err != nil {
		s.logger.Errorf("Failed to query notifications: %v", err)
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []storages.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		s.logger.Errorf("Failed to decode notifications: %v", err)
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}

	return notifications, nil
}

// GetStatistics считает уведомления по типам
func (s *MongoStorage) GetStatistics(ctx context.Context) (*storages.NotificationStatistics, error) {
	pipeline := []bson.M{
		{
			"$group": bson.M{
				"_id":            "$type",
				"count":          bson.M{"$sum": 1},
				"last_processed": bson.M{"$max": "$processed_at"},
			},
		},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.Errorf("Failed to get statistics: %v", err)
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Type          string    `bson:"_id"`
		Count         int64     `bson:"count"`
		LastProcessed time.Time `bson:"last_processed"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		s.logger.Errorf("Failed to decode statistics: %v", err)
		return nil, fmt.Errorf("failed to decode statistics: %w", err)
	}

	stats := &storages.NotificationStatistics{ByType: make(map[string]int64)}
	for _, r := range results {
		stats.ByType[r.Type] = r.Count
		stats.Total += r.Count
		if r.LastProcessed.After(stats.LastProcessedAt) {
			stats.LastProcessedAt = r.LastProcessed
		}
	}

	s.logger.Debugf("Notification statistics: total=%d", stats.Total)
	return stats, nil
}

var _ storages.NotificationStorage = (*MongoStorage)(nil)

package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chathub-io/chathub/internal/models"
)

// PointHistoryRepository is append-only. Entries are the audit trail
// behind every grant and reversal; nothing updates or deletes them.
type PointHistoryRepository interface {
	Append(ctx context.Context, entry *models.PointEntry) error
	ListByUser(ctx context.Context, userID string, limit int64) ([]*models.PointEntry, error)
}

type pointHistoryRepo struct {
	collection *mongo.Collection
}

func NewPointHistoryRepository(db *DB) PointHistoryRepository {
	return &pointHistoryRepo{
		collection: db.Database.Collection("point_history"),
	}
}

func (r *pointHistoryRepo) Append(ctx context.Context, entry *models.PointEntry) error {
	entry.ID = primitive.NewObjectID()
	entry.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append point entry: %w", err)
	}
	return nil
}

func (r *pointHistoryRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]*models.PointEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list point history: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.PointEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode point entries: %w", err)
	}
	return entries, nil
}

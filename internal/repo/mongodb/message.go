package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chathub-io/chathub/internal/models"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	UpdateContent(ctx context.Context, id primitive.ObjectID, content string) (*models.Message, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	// RemoveReaction pulls a (user, emoji) pair, reporting whether it
	// was present. AddReaction pushes one. The toggle does a remove
	// first and only adds when nothing came off.
	RemoveReaction(ctx context.Context, id primitive.ObjectID, userID, emoji string) (bool, error)
	AddReaction(ctx context.Context, id primitive.ObjectID, reaction models.Reaction) error
	GetDirectConversation(ctx context.Context, userA, userB string, limit int64, before *primitive.ObjectID) ([]*models.Message, error)
	GetGroupMessages(ctx context.Context, groupID primitive.ObjectID, limit int64, before *primitive.ObjectID) ([]*models.Message, error)
}

type messageRepo struct {
	collection *mongo.Collection
}

func NewMessageRepository(db *DB) MessageRepository {
	return &messageRepo{
		collection: db.Database.Collection("messages"),
	}
}

func (r *messageRepo) Create(ctx context.Context, message *models.Message) error {
	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now()
	message.UpdatedAt = message.CreatedAt
	if message.Reactions == nil {
		message.Reactions = []models.Reaction{}
	}

	if _, err := r.collection.InsertOne(ctx, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var message models.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &message, nil
}

func (r *messageRepo) UpdateContent(ctx context.Context, id primitive.ObjectID, content string) (*models.Message, error) {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"content":    content,
			"is_edited":  true,
			"edited_at":  now,
			"updated_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var message models.Message
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update message content: %w", err)
	}
	return &message, nil
}

func (r *messageRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if result.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *messageRepo) RemoveReaction(ctx context.Context, id primitive.ObjectID, userID, emoji string) (bool, error) {
	update := bson.M{
		"$pull": bson.M{"reactions": bson.M{"user_id": userID, "emoji": emoji}},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	if result.MatchedCount == 0 {
		return false, models.ErrNotFound
	}
	return result.ModifiedCount > 0, nil
}

func (r *messageRepo) AddReaction(ctx context.Context, id primitive.ObjectID, reaction models.Reaction) error {
	update := bson.M{
		"$push": bson.M{"reactions": reaction},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *messageRepo) GetDirectConversation(ctx context.Context, userA, userB string, limit int64, before *primitive.ObjectID) ([]*models.Message, error) {
	filter := bson.M{
		"group_id": nil,
		"$or": bson.A{
			bson.M{"sender_id": userA, "recipient_id": userB},
			bson.M{"sender_id": userB, "recipient_id": userA},
		},
	}
	return r.find(ctx, filter, limit, before)
}

func (r *messageRepo) GetGroupMessages(ctx context.Context, groupID primitive.ObjectID, limit int64, before *primitive.ObjectID) ([]*models.Message, error) {
	return r.find(ctx, bson.M{"group_id": groupID}, limit, before)
}

func (r *messageRepo) find(ctx context.Context, filter bson.M, limit int64, before *primitive.ObjectID) ([]*models.Message, error) {
	if before != nil {
		filter["_id"] = bson.M{"$lt": *before}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

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

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	// AddPoints atomically adjusts the user's point balance by delta
	// (negative for refund reversals) and returns the new balance.
	AddPoints(ctx context.Context, userID string, delta int) (int, error)
	AddBadge(ctx context.Context, userID, badge string) error
	RemoveBadge(ctx context.Context, userID, badge string) error
}

type userRepo struct {
	collection *mongo.Collection
}

func NewUserRepository(db *DB) UserRepository {
	return &userRepo{
		collection: db.Database.Collection("users"),
	}
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	var user models.User
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepo) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": user})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *userRepo) AddPoints(ctx context.Context, userID string, delta int) (int, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("parse user id: %w", err)
	}

	update := bson.M{
		"$inc": bson.M{"points": delta},
		"$set": bson.M{"updated_at": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	return user.Points, nil
}

func (r *userRepo) AddBadge(ctx context.Context, userID, badge string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$addToSet": bson.M{"badges": badge},
		"$set":      bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("add badge: %w", err)
	}
	return nil
}

func (r *userRepo) RemoveBadge(ctx context.Context, userID, badge string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$pull": bson.M{"badges": badge},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("remove badge: %w", err)
	}
	return nil
}

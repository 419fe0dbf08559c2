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

// ChallengeRepository serializes all progress mutations at the storage
// layer. Increment, decrement and completion flips are single atomic
// FindOneAndUpdate calls with filter guards, so two concurrent Advance
// calls for the same user can never lose an update.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Challenge, error)
	ListActive(ctx context.Context, userID string) ([]*models.Challenge, error)
	// IncrementCurrent adds amount to current, capped at target. It only
	// matches not-yet-completed records with headroom; ErrNotFound means
	// the record was already full or completed.
	IncrementCurrent(ctx context.Context, id primitive.ObjectID, amount int) (*models.Challenge, error)
	// DecrementCurrent subtracts amount from current, floored at zero.
	DecrementCurrent(ctx context.Context, id primitive.ObjectID, amount int) (*models.Challenge, error)
	// MarkCompleted flips completed exactly once: the filter only
	// matches uncompleted records at or past target.
	MarkCompleted(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Challenge, error)
	// ClearCompletion un-completes a record only when its completion
	// falls at or after windowStart. ErrNotFound means the completion is
	// older than the reversal window and stands.
	ClearCompletion(ctx context.Context, id primitive.ObjectID, windowStart time.Time) (*models.Challenge, error)
	MarkStageCompleted(ctx context.Context, id primitive.ObjectID, stage int, at time.Time) (*models.Challenge, error)
	ClearStageCompletion(ctx context.Context, id primitive.ObjectID, stage int, windowStart time.Time) (*models.Challenge, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// EnsureForUser inserts a challenge seeded from a template unless an
	// unexpired one with the same title already exists.
	EnsureForUser(ctx context.Context, userID string, tpl models.ChallengeTemplate, expiresAt time.Time) error
}

type challengeRepo struct {
	collection *mongo.Collection
}

func NewChallengeRepository(db *DB) ChallengeRepository {
	return &challengeRepo{
		collection: db.Database.Collection("challenges"),
	}
}

func (r *challengeRepo) Create(ctx context.Context, challenge *models.Challenge) error {
	challenge.ID = primitive.NewObjectID()
	challenge.CreatedAt = time.Now()
	challenge.UpdatedAt = challenge.CreatedAt

	if _, err := r.collection.InsertOne(ctx, challenge); err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

func (r *challengeRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Challenge, error) {
	var challenge models.Challenge
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&challenge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &challenge, nil
}

func (r *challengeRepo) ListActive(ctx context.Context, userID string) ([]*models.Challenge, error) {
	filter := bson.M{
		"user_id": userID,
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": time.Now()}},
		},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer cursor.Close(ctx)

	var challenges []*models.Challenge
	if err := cursor.All(ctx, &challenges); err != nil {
		return nil, fmt.Errorf("decode challenges: %w", err)
	}
	return challenges, nil
}

func (r *challengeRepo) IncrementCurrent(ctx context.Context, id primitive.ObjectID, amount int) (*models.Challenge, error) {
	filter := bson.M{
		"_id":       id,
		"completed": false,
		"$expr":     bson.M{"$lt": bson.A{"$current", "$target"}},
	}
	// Pipeline update so the cap is applied in the same atomic step.
	update := bson.A{
		bson.M{"$set": bson.M{
			"current":    bson.M{"$min": bson.A{"$target", bson.M{"$add": bson.A{"$current", amount}}}},
			"updated_at": "$$NOW",
		}},
	}
	return r.findOneAndUpdate(ctx, filter, update, "increment current")
}

func (r *challengeRepo) DecrementCurrent(ctx context.Context, id primitive.ObjectID, amount int) (*models.Challenge, error) {
	filter := bson.M{"_id": id}
	update := bson.A{
		bson.M{"$set": bson.M{
			"current":    bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$current", amount}}}},
			"updated_at": "$$NOW",
		}},
	}
	return r.findOneAndUpdate(ctx, filter, update, "decrement current")
}

func (r *challengeRepo) MarkCompleted(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Challenge, error) {
	filter := bson.M{
		"_id":       id,
		"completed": false,
		"$expr":     bson.M{"$gte": bson.A{"$current", "$target"}},
	}
	update := bson.M{
		"$set": bson.M{
			"completed":    true,
			"completed_at": at,
			"updated_at":   time.Now(),
		},
	}
	return r.findOneAndUpdate(ctx, filter, update, "mark completed")
}

func (r *challengeRepo) ClearCompletion(ctx context.Context, id primitive.ObjectID, windowStart time.Time) (*models.Challenge, error) {
	filter := bson.M{
		"_id":          id,
		"completed":    true,
		"completed_at": bson.M{"$gte": windowStart},
	}
	update := bson.M{
		"$set":   bson.M{"completed": false, "updated_at": time.Now()},
		"$unset": bson.M{"completed_at": ""},
	}
	return r.findOneAndUpdate(ctx, filter, update, "clear completion")
}

func (r *challengeRepo) MarkStageCompleted(ctx context.Context, id primitive.ObjectID, stage int, at time.Time) (*models.Challenge, error) {
	filter := bson.M{
		"_id": id,
		fmt.Sprintf("stages.%d.completed", stage): false,
	}
	update := bson.M{
		"$set": bson.M{
			fmt.Sprintf("stages.%d.completed", stage):    true,
			fmt.Sprintf("stages.%d.completed_at", stage): at,
			"updated_at": time.Now(),
		},
	}
	return r.findOneAndUpdate(ctx, filter, update, "mark stage completed")
}

func (r *challengeRepo) ClearStageCompletion(ctx context.Context, id primitive.ObjectID, stage int, windowStart time.Time) (*models.Challenge, error) {
	filter := bson.M{
		"_id": id,
		fmt.Sprintf("stages.%d.completed", stage):    true,
		fmt.Sprintf("stages.%d.completed_at", stage): bson.M{"$gte": windowStart},
	}
	update := bson.M{
		"$set": bson.M{
			fmt.Sprintf("stages.%d.completed", stage): false,
			"updated_at": time.Now(),
		},
		"$unset": bson.M{
			fmt.Sprintf("stages.%d.completed_at", stage): "",
		},
	}
	return r.findOneAndUpdate(ctx, filter, update, "clear stage completion")
}

func (r *challengeRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$ne": nil, "$lte": now},
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *challengeRepo) EnsureForUser(ctx context.Context, userID string, tpl models.ChallengeTemplate, expiresAt time.Time) error {
	filter := bson.M{
		"user_id":    userID,
		"title":      tpl.Title,
		"expires_at": bson.M{"$gt": time.Now()},
	}
	now := time.Now()
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":     userID,
			"title":       tpl.Title,
			"description": tpl.Description,
			"target":      tpl.Target,
			"current":     0,
			"completed":   false,
			"reward":      tpl.Reward,
			"stages":      tpl.Stages,
			"expires_at":  expiresAt,
			"created_at":  now,
			"updated_at":  now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("ensure challenge: %w", err)
	}
	return nil
}

func (r *challengeRepo) findOneAndUpdate(ctx context.Context, filter bson.M, update any, op string) (*models.Challenge, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var challenge models.Challenge
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&challenge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &challenge, nil
}

package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chathub-io/chathub/internal/models"
)

type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Group, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type groupRepo struct {
	collection *mongo.Collection
}

func NewGroupRepository(db *DB) GroupRepository {
	return &groupRepo{
		collection: db.Database.Collection("groups"),
	}
}

func (r *groupRepo) Create(ctx context.Context, group *models.Group) error {
	group.ID = primitive.NewObjectID()
	group.CreatedAt = time.Now()
	group.UpdatedAt = group.CreatedAt
	if group.Members == nil {
		group.Members = []string{group.OwnerID}
	}

	if _, err := r.collection.InsertOne(ctx, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (r *groupRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Group, error) {
	var group models.Group
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &group, nil
}

func (r *groupRepo) ListForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"members": userID})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []*models.Group
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return groups, nil
}

func (r *groupRepo) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return nil, fmt.Errorf("parse group id: %w", err)
	}
	group, err := r.GetByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	return group.Members, nil
}

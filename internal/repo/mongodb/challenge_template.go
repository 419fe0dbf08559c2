package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chathub-io/chathub/internal/models"
)

type ChallengeTemplateRepository interface {
	ListEnabled(ctx context.Context) ([]*models.ChallengeTemplate, error)
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

type challengeTemplateRepo struct {
	templates *mongo.Collection
	users     *mongo.Collection
}

func NewChallengeTemplateRepository(db *DB) ChallengeTemplateRepository {
	return &challengeTemplateRepo{
		templates: db.Database.Collection("challenge_templates"),
		users:     db.Database.Collection("users"),
	}
}

func (r *challengeTemplateRepo) ListEnabled(ctx context.Context) ([]*models.ChallengeTemplate, error) {
	cursor, err := r.templates.Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer cursor.Close(ctx)

	var templates []*models.ChallengeTemplate
	if err := cursor.All(ctx, &templates); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	return templates, nil
}

func (r *challengeTemplateRepo) ActiveUserIDs(ctx context.Context) ([]string, error) {
	cursor, err := r.users.Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		ids = append(ids, user.ID.Hex())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return ids, nil
}

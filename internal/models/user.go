package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username  string             `bson:"username" json:"username" validate:"required"`
	Email     string             `bson:"email" json:"email" validate:"required,email"`
	Avatar    string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Points    int                `bson:"points" json:"points"`
	Badges    []string           `bson:"badges" json:"badges"`
	Friends   []string           `bson:"friends" json:"friends"`
	IsActive  bool               `bson:"is_active" json:"is_active"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// PointEntry is an immutable ledger line in a user's point history.
// Earned, spent and reversed entries are appended and never mutated;
// the reward ledger replays them for its reversal-window checks.
type PointEntry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"user_id" json:"user_id" validate:"required"`
	Kind        PointEntryKind     `bson:"kind" json:"kind"`
	Amount      int                `bson:"amount" json:"amount"`
	ChallengeID ObjectID           `bson:"challenge_id,omitempty" json:"challenge_id,omitempty"`
	Stage       int                `bson:"stage,omitempty" json:"stage,omitempty"`
	Note        string             `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

type PointEntryKind string

const (
	PointEarned   PointEntryKind = "earned"
	PointSpent    PointEntryKind = "spent"
	PointReversed PointEntryKind = "reversed"
)

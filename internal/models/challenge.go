package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Challenge is a per-user progress record. Current is only ever moved
// through the reward ledger's increment/decrement operations; nothing
// else writes these fields.
type Challenge struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string             `bson:"user_id" json:"user_id" validate:"required"`
	Title       string             `bson:"title" json:"title" validate:"required"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Target      int                `bson:"target" json:"target" validate:"required,gt=0"`
	Current     int                `bson:"current" json:"current"`
	Completed   bool               `bson:"completed" json:"completed"`
	CompletedAt *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Reward      Reward             `bson:"reward" json:"reward"`
	// Stages, when present, define ordered thresholds each carrying its
	// own reward. They complete and reverse independently of the record's
	// top-level target.
	Stages    []ChallengeStage `bson:"stages,omitempty" json:"stages,omitempty"`
	ExpiresAt *time.Time       `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	CreatedAt time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time        `bson:"updated_at" json:"updated_at"`
}

type Reward struct {
	Points int    `bson:"points" json:"points"`
	Badge  string `bson:"badge,omitempty" json:"badge,omitempty"`
}

type ChallengeStage struct {
	Threshold   int        `bson:"threshold" json:"threshold"`
	Reward      Reward     `bson:"reward" json:"reward"`
	Completed   bool       `bson:"completed" json:"completed"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// QuizResultRequest reports how a user scored on a quiz challenge.
type QuizResultRequest struct {
	Correct int `json:"correct" validate:"min=0"`
	Total   int `json:"total" validate:"required,gt=0"`
}

// ChallengeTemplate seeds per-user daily challenges. Owned by the
// refresh job, read-only for everything else.
type ChallengeTemplate struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Target      int                `bson:"target" json:"target"`
	Reward      Reward             `bson:"reward" json:"reward"`
	Stages      []ChallengeStage   `bson:"stages,omitempty" json:"stages,omitempty"`
	TTL         time.Duration      `bson:"ttl" json:"ttl"`
	Enabled     bool               `bson:"enabled" json:"enabled"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is a persisted chat message. Exactly one of RecipientID and
// GroupID is set: RecipientID for direct conversations, GroupID for
// group conversations.
type Message struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SenderID    string              `bson:"sender_id" json:"sender_id" validate:"required"`
	RecipientID string              `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	GroupID     *primitive.ObjectID `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Content     string              `bson:"content" json:"content"`
	Attachment  string              `bson:"attachment,omitempty" json:"attachment,omitempty"`
	ReplyTo     *primitive.ObjectID `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	IsEdited    bool                `bson:"is_edited" json:"is_edited"`
	EditedAt    *time.Time          `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	Reactions   []Reaction          `bson:"reactions" json:"reactions"`
	Call        *CallMeta           `bson:"call,omitempty" json:"call,omitempty"`
	CreatedAt   time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updated_at" json:"updated_at"`
}

// Reaction is a single (user, emoji) pair. Unique per user+emoji on a
// message; reacting again with the same emoji removes it.
type Reaction struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// CallMeta records the outcome of a call attached to a message entry
// in the conversation history.
type CallMeta struct {
	Type     string `bson:"type" json:"type"` // "audio" or "video"
	Status   string `bson:"status" json:"status"`
	Duration int    `bson:"duration" json:"duration"` // seconds
}

func (m *Message) IsDirect() bool {
	return m.GroupID == nil
}

// HasReaction reports whether userID already reacted with emoji.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

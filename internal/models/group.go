package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Group struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name" validate:"required"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Avatar      string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	OwnerID     string             `bson:"owner_id" json:"owner_id" validate:"required"`
	Admins      []string           `bson:"admins" json:"admins"`
	Members     []string           `bson:"members" json:"members"`
	// AdminsOnly restricts sending to admins and the owner.
	AdminsOnly bool      `bson:"admins_only" json:"admins_only"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members,omitempty"`
	AdminsOnly  bool     `json:"admins_only,omitempty"`
}

func (g *Group) IsMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (g *Group) IsAdmin(userID string) bool {
	if g.OwnerID == userID {
		return true
	}
	for _, a := range g.Admins {
		if a == userID {
			return true
		}
	}
	return false
}

// CanSend reports whether userID may post in the group, honoring the
// admins-only send restriction.
func (g *Group) CanSend(userID string) bool {
	if !g.IsMember(userID) && g.OwnerID != userID {
		return false
	}
	if g.AdminsOnly {
		return g.IsAdmin(userID)
	}
	return true
}

// Package chat validates, persists and fans out message lifecycle
// events for direct and group conversations. Authorization failures
// are returned to the caller and reach the acting client only; nothing
// is broadcast for a rejected operation.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chathub-io/chathub/internal/identity"
	"github.com/chathub-io/chathub/internal/models"
	"github.com/chathub-io/chathub/internal/repo/mongodb"
	"github.com/chathub-io/chathub/internal/reward"
)

// Deliverer pushes events to live connections. Satisfied by
// delivery.Fanout.
type Deliverer interface {
	ToUser(userID, event string, payload any) bool
	ToGroup(ctx context.Context, groupID, event string, payload any, exclude map[string]bool) error
}

// RewardLedger is the slice of the reward ledger the pipeline drives:
// advance on send, pre-check and reverse around deletion. Satisfied by
// reward.Ledger.
type RewardLedger interface {
	Advance(ctx context.Context, userID string, kind reward.ActionKind, amount int) error
	PreCheck(ctx context.Context, userID string, kind reward.ActionKind, pending int) (reward.PreCheck, error)
	Reverse(ctx context.Context, userID string, kind reward.ActionKind, amount int) error
}

type Pipeline struct {
	messages mongodb.MessageRepository
	groups   mongodb.GroupRepository
	fanout   Deliverer
	ledger   RewardLedger
	log      *logger.Logger
}

func NewPipeline(
	messages mongodb.MessageRepository,
	groups mongodb.GroupRepository,
	fanout Deliverer,
	ledger RewardLedger,
) *Pipeline {
	return &Pipeline{
		messages: messages,
		groups:   groups,
		fanout:   fanout,
		ledger:   ledger,
		log:      logger.MustNamed("chat"),
	}
}

// Send validates the conversation target, persists the message, pushes
// it to every live recipient and advances the sender's reward ledger
// exactly once. Offline recipients are skipped, not failed: the message
// is durable and shows up on their next fetch.
func (p *Pipeline) Send(ctx context.Context, senderID string, payload models.SendMessagePayload) (*models.Message, error) {
	senderID = identity.Normalize(senderID)
	if senderID == "" {
		return nil, models.ErrUnauthorized
	}
	if (payload.RecipientID == "") == (payload.GroupID == "") {
		return nil, models.ErrMissingTarget
	}

	message := &models.Message{
		SenderID:   senderID,
		Content:    payload.Content,
		Attachment: payload.Attachment,
	}
	if payload.ReplyTo != "" {
		replyID, err := primitive.ObjectIDFromHex(payload.ReplyTo)
		if err != nil {
			return nil, models.ErrNotFound
		}
		message.ReplyTo = &replyID
	}

	actionKind := reward.ActionSendMessage
	if payload.GroupID != "" {
		groupID, err := primitive.ObjectIDFromHex(payload.GroupID)
		if err != nil {
			return nil, models.ErrBadConversationKey
		}
		group, err := p.groups.GetByID(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if !group.IsMember(senderID) {
			return nil, models.ErrNotMember
		}
		if !group.CanSend(senderID) {
			return nil, models.ErrGroupSendRestricted
		}
		message.GroupID = &groupID
		actionKind = reward.ActionGroupMessage
	} else {
		recipientID := identity.Normalize(payload.RecipientID)
		if _, err := DirectKey(senderID, recipientID); err != nil {
			return nil, err
		}
		message.RecipientID = recipientID
	}

	if err := p.messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	p.deliver(ctx, message, models.EventNewMessage)

	// Ledger errors must not fail an already persisted send.
	if err := p.ledger.Advance(ctx, senderID, actionKind, 1); err != nil {
		log.Errorw(ctx, "reward advance failed", "user_id", senderID, "error", err)
	}

	return message, nil
}

// Edit lets the original sender change the body text. The edited flag
// is set and the update is redelivered to everyone who saw the
// original.
func (p *Pipeline) Edit(ctx context.Context, actorID string, payload models.UpdateMessagePayload) (*models.Message, error) {
	actorID = identity.Normalize(actorID)
	message, err := p.getMessage(ctx, payload.MessageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != actorID {
		return nil, models.ErrNotSender
	}

	updated, err := p.messages.UpdateContent(ctx, message.ID, payload.Content)
	if err != nil {
		return nil, err
	}

	p.deliver(ctx, updated, models.EventMessageUpdated)
	return updated, nil
}

// DeleteOutcome is what a delete attempt came to. Warning is non-nil
// when the reward pre-check hit and the actor has not confirmed: the
// message is left intact and the actor must resubmit with confirmed.
type DeleteOutcome struct {
	Message *models.Message
	Warning *models.DeleteWarningPayload
	Deleted bool
}

// Delete applies the confirm-before-delete gate: when the actor is the
// original sender and removing the message would reverse a completed
// challenge or push a near-complete one backwards, an unconfirmed
// request gets a warning instead of a deletion. Authorization: direct
// messages may only be deleted by their sender, group messages by the
// sender or a group admin/owner.
func (p *Pipeline) Delete(ctx context.Context, actorID string, payload models.DeleteMessagePayload) (*DeleteOutcome, error) {
	actorID = identity.Normalize(actorID)
	message, err := p.getMessage(ctx, payload.MessageID)
	if err != nil {
		return nil, err
	}

	isSender := message.SenderID == actorID
	if message.IsDirect() {
		if !isSender {
			return nil, models.ErrNotAllowedToDelete
		}
	} else if !isSender {
		group, err := p.groups.GetByID(ctx, *message.GroupID)
		if err != nil {
			return nil, err
		}
		if !group.IsAdmin(actorID) {
			return nil, models.ErrNotAllowedToDelete
		}
	}

	actionKind := actionKindOf(message)
	if isSender && !payload.Confirmed {
		check, err := p.ledger.PreCheck(ctx, actorID, actionKind, 1)
		if err != nil {
			return nil, fmt.Errorf("reward pre-check: %w", err)
		}
		if !check.Empty() {
			return &DeleteOutcome{
				Message: message,
				Warning: &models.DeleteWarningPayload{
					MessageID:  message.ID.Hex(),
					Reversals:  check.Reversals,
					NearMisses: check.NearMisses,
				},
			}, nil
		}
	}

	if err := p.messages.Delete(ctx, message.ID); err != nil {
		return nil, err
	}

	if isSender {
		if err := p.ledger.Reverse(ctx, actorID, actionKind, 1); err != nil {
			log.Errorw(ctx, "reward reverse failed", "user_id", actorID, "error", err)
		}
	}

	p.deliver(ctx, message, models.EventMessageDeleted)
	return &DeleteOutcome{Message: message, Deleted: true}, nil
}

// React toggles the actor's (emoji) reaction on a message: present
// removes, absent adds. The updated message is redelivered.
func (p *Pipeline) React(ctx context.Context, actorID string, payload models.ReactMessagePayload) (*models.Message, error) {
	actorID = identity.Normalize(actorID)
	message, err := p.getMessage(ctx, payload.MessageID)
	if err != nil {
		return nil, err
	}
	if err := p.authorizeParticipant(ctx, actorID, message); err != nil {
		return nil, err
	}

	removed, err := p.messages.RemoveReaction(ctx, message.ID, actorID, payload.Emoji)
	if err != nil {
		return nil, err
	}
	if !removed {
		reaction := models.Reaction{UserID: actorID, Emoji: payload.Emoji, CreatedAt: time.Now()}
		if err := p.messages.AddReaction(ctx, message.ID, reaction); err != nil {
			return nil, err
		}
	}

	updated, err := p.messages.GetByID(ctx, message.ID)
	if err != nil {
		return nil, err
	}

	p.deliver(ctx, updated, models.EventMessageReacted)
	return updated, nil
}

// Typing relays a typing indicator to the other party (direct) or the
// other members (group). Nothing is persisted.
func (p *Pipeline) Typing(ctx context.Context, actorID string, payload models.TypingPayload) error {
	actorID = identity.Normalize(actorID)
	if actorID == "" {
		return models.ErrUnauthorized
	}

	event := map[string]any{
		"user_id":   actorID,
		"is_typing": payload.IsTyping,
	}
	if payload.GroupID != "" {
		event["group_id"] = payload.GroupID
		return p.fanout.ToGroup(ctx, payload.GroupID, models.EventTyping, event, map[string]bool{actorID: true})
	}
	if payload.RecipientID == "" {
		return models.ErrMissingTarget
	}
	p.fanout.ToUser(payload.RecipientID, models.EventTyping, event)
	return nil
}

func (p *Pipeline) getMessage(ctx context.Context, id string) (*models.Message, error) {
	messageID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrNotFound
	}
	return p.messages.GetByID(ctx, messageID)
}

func (p *Pipeline) authorizeParticipant(ctx context.Context, actorID string, message *models.Message) error {
	if message.IsDirect() {
		if actorID != message.SenderID && actorID != message.RecipientID {
			return models.ErrNotMember
		}
		return nil
	}
	group, err := p.groups.GetByID(ctx, *message.GroupID)
	if err != nil {
		return err
	}
	if !group.IsMember(actorID) {
		return models.ErrNotMember
	}
	return nil
}

// deliver pushes event to everyone who sees the message, sender echo
// included. Offline parties are skipped.
func (p *Pipeline) deliver(ctx context.Context, message *models.Message, event string) {
	if message.IsDirect() {
		p.fanout.ToUser(message.RecipientID, event, message)
		p.fanout.ToUser(message.SenderID, event, message)
		return
	}
	if err := p.fanout.ToGroup(ctx, message.GroupID.Hex(), event, message, nil); err != nil {
		p.log.Errorw("group fan-out failed",
			"group_id", message.GroupID.Hex(), "event", event, "error", err)
	}
}

func actionKindOf(message *models.Message) reward.ActionKind {
	if message.IsDirect() {
		return reward.ActionSendMessage
	}
	return reward.ActionGroupMessage
}

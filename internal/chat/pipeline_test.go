package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chathub-io/chathub/internal/chat"
	"github.com/chathub-io/chathub/internal/models"
	"github.com/chathub-io/chathub/internal/reward"
)

type fakeMessages struct {
	mu       sync.Mutex
	messages map[primitive.ObjectID]*models.Message
}

func newFakeMessages(messages ...*models.Message) *fakeMessages {
	r := &fakeMessages{messages: make(map[primitive.ObjectID]*models.Message)}
	for _, m := range messages {
		if m.ID.IsZero() {
			m.ID = primitive.NewObjectID()
		}
		r.messages[m.ID] = m
	}
	return r
}

func (r *fakeMessages) copyOf(m *models.Message) *models.Message {
	out := *m
	out.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return &out
}

func (r *fakeMessages) Create(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = primitive.NewObjectID()
	m.CreatedAt = time.Now()
	r.messages[m.ID] = r.copyOf(m)
	return nil
}

func (r *fakeMessages) GetByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return r.copyOf(m), nil
}

func (r *fakeMessages) UpdateContent(_ context.Context, id primitive.ObjectID, content string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	now := time.Now()
	m.EditedAt = &now
	return r.copyOf(m), nil
}

func (r *fakeMessages) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.messages, id)
	return nil
}

func (r *fakeMessages) RemoveReaction(_ context.Context, id primitive.ObjectID, userID, emoji string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return false, models.ErrNotFound
	}
	for i, reaction := range m.Reactions {
		if reaction.UserID == userID && reaction.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessages) AddReaction(_ context.Context, id primitive.ObjectID, reaction models.Reaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return models.ErrNotFound
	}
	m.Reactions = append(m.Reactions, reaction)
	return nil
}

func (r *fakeMessages) GetDirectConversation(context.Context, string, string, int64, *primitive.ObjectID) ([]*models.Message, error) {
	return nil, nil
}

func (r *fakeMessages) GetGroupMessages(context.Context, primitive.ObjectID, int64, *primitive.ObjectID) ([]*models.Message, error) {
	return nil, nil
}

type fakeGroups struct {
	groups map[primitive.ObjectID]*models.Group
}

func newFakeGroups(groups ...*models.Group) *fakeGroups {
	r := &fakeGroups{groups: make(map[primitive.ObjectID]*models.Group)}
	for _, g := range groups {
		if g.ID.IsZero() {
			g.ID = primitive.NewObjectID()
		}
		r.groups[g.ID] = g
	}
	return r
}

func (r *fakeGroups) Create(_ context.Context, g *models.Group) error {
	g.ID = primitive.NewObjectID()
	r.groups[g.ID] = g
	return nil
}

func (r *fakeGroups) GetByID(_ context.Context, id primitive.ObjectID) (*models.Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return g, nil
}

func (r *fakeGroups) ListForUser(context.Context, string) ([]*models.Group, error) { return nil, nil }

func (r *fakeGroups) MemberIDs(_ context.Context, groupID string) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return nil, models.ErrBadConversationKey
	}
	g, ok := r.groups[oid]
	if !ok {
		return nil, models.ErrNotFound
	}
	return g.Members, nil
}

type delivered struct {
	userID string
	event  string
}

type fakeDeliverer struct {
	mu     sync.Mutex
	groups *fakeGroups
	sent   []delivered
}

func (d *fakeDeliverer) ToUser(userID, event string, _ any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, delivered{userID: userID, event: event})
	return true
}

func (d *fakeDeliverer) ToGroup(ctx context.Context, groupID, event string, payload any, exclude map[string]bool) error {
	members, err := d.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if exclude[m] {
			continue
		}
		d.ToUser(m, event, payload)
	}
	return nil
}

func (d *fakeDeliverer) eventsFor(userID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, s := range d.sent {
		if s.userID == userID {
			out = append(out, s.event)
		}
	}
	return out
}

type fakeLedger struct {
	mu       sync.Mutex
	advances int
	reverses int
	precheck reward.PreCheck
}

func (l *fakeLedger) Advance(_ context.Context, _ string, _ reward.ActionKind, _ int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advances++
	return nil
}

func (l *fakeLedger) PreCheck(context.Context, string, reward.ActionKind, int) (reward.PreCheck, error) {
	return l.precheck, nil
}

func (l *fakeLedger) Reverse(_ context.Context, _ string, _ reward.ActionKind, _ int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reverses++
	return nil
}

func newPipeline(messages *fakeMessages, groups *fakeGroups) (*chat.Pipeline, *fakeDeliverer, *fakeLedger) {
	deliverer := &fakeDeliverer{groups: groups}
	ledger := &fakeLedger{}
	return chat.NewPipeline(messages, groups, deliverer, ledger), deliverer, ledger
}

func TestSendDirect(t *testing.T) {
	t.Parallel()
	messages := newFakeMessages()
	pipeline, deliverer, ledger := newPipeline(messages, newFakeGroups())

	msg, err := pipeline.Send(t.Context(), "alice", models.SendMessagePayload{
		RecipientID: "bob",
		Content:     "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "bob", msg.RecipientID)
	assert.False(t, msg.ID.IsZero())

	assert.Equal(t, []string{models.EventNewMessage}, deliverer.eventsFor("bob"))
	assert.Equal(t, []string{models.EventNewMessage}, deliverer.eventsFor("alice"), "sender echo")
	assert.Equal(t, 1, ledger.advances, "ledger advanced exactly once per send")
}

func TestSendRejectsBadTargets(t *testing.T) {
	t.Parallel()
	pipeline, _, ledger := newPipeline(newFakeMessages(), newFakeGroups())

	_, err := pipeline.Send(t.Context(), "alice", models.SendMessagePayload{Content: "hi"})
	assert.ErrorIs(t, err, models.ErrMissingTarget)

	_, err = pipeline.Send(t.Context(), "alice", models.SendMessagePayload{
		RecipientID: "bob", GroupID: "abc", Content: "hi",
	})
	assert.ErrorIs(t, err, models.ErrMissingTarget)

	// Self-conversation has no valid key.
	_, err = pipeline.Send(t.Context(), "alice", models.SendMessagePayload{
		RecipientID: "alice", Content: "hi",
	})
	assert.ErrorIs(t, err, models.ErrBadConversationKey)

	_, err = pipeline.Send(t.Context(), "alice", models.SendMessagePayload{
		GroupID: "not-a-hex-id", Content: "hi",
	})
	assert.ErrorIs(t, err, models.ErrBadConversationKey)

	assert.Zero(t, ledger.advances, "rejected sends never touch the ledger")
}

func TestSendGroupAuthorization(t *testing.T) {
	t.Parallel()
	group := &models.Group{
		ID:      primitive.NewObjectID(),
		Name:    "team",
		OwnerID: "alice",
		Admins:  []string{"bob"},
		Members: []string{"alice", "bob", "carol"},
	}
	groups := newFakeGroups(group)
	pipeline, deliverer, _ := newPipeline(newFakeMessages(), groups)

	_, err := pipeline.Send(t.Context(), "mallory", models.SendMessagePayload{
		GroupID: group.ID.Hex(), Content: "hi",
	})
	assert.ErrorIs(t, err, models.ErrNotMember)

	msg, err := pipeline.Send(t.Context(), "carol", models.SendMessagePayload{
		GroupID: group.ID.Hex(), Content: "hi all",
	})
	require.NoError(t, err)
	require.NotNil(t, msg.GroupID)
	assert.Equal(t, []string{models.EventNewMessage}, deliverer.eventsFor("alice"))
	assert.Equal(t, []string{models.EventNewMessage}, deliverer.eventsFor("bob"))
}

func TestSendGroupAdminsOnly(t *testing.T) {
	t.Parallel()
	group := &models.Group{
		ID:         primitive.NewObjectID(),
		Name:       "announcements",
		OwnerID:    "alice",
		Admins:     []string{"bob"},
		Members:    []string{"alice", "bob", "carol"},
		AdminsOnly: true,
	}
	pipeline, _, _ := newPipeline(newFakeMessages(), newFakeGroups(group))

	_, err := pipeline.Send(t.Context(), "carol", models.SendMessagePayload{
		GroupID: group.ID.Hex(), Content: "hi",
	})
	assert.ErrorIs(t, err, models.ErrGroupSendRestricted)

	_, err = pipeline.Send(t.Context(), "bob", models.SendMessagePayload{
		GroupID: group.ID.Hex(), Content: "admin hi",
	})
	assert.NoError(t, err)
}

func TestEditOnlyBySender(t *testing.T) {
	t.Parallel()
	message := &models.Message{SenderID: "alice", RecipientID: "bob", Content: "hi"}
	messages := newFakeMessages(message)
	pipeline, deliverer, _ := newPipeline(messages, newFakeGroups())

	_, err := pipeline.Edit(t.Context(), "bob", models.UpdateMessagePayload{
		MessageID: message.ID.Hex(), Content: "hacked",
	})
	assert.ErrorIs(t, err, models.ErrNotSender)

	updated, err := pipeline.Edit(t.Context(), "alice", models.UpdateMessagePayload{
		MessageID: message.ID.Hex(), Content: "hi there",
	})
	require.NoError(t, err)
	assert.True(t, updated.IsEdited)
	assert.Equal(t, "hi there", updated.Content)
	assert.Contains(t, deliverer.eventsFor("bob"), models.EventMessageUpdated)
}

func TestDeleteDirectOnlyBySender(t *testing.T) {
	t.Parallel()
	message := &models.Message{SenderID: "alice", RecipientID: "bob", Content: "hi"}
	messages := newFakeMessages(message)
	pipeline, _, _ := newPipeline(messages, newFakeGroups())

	_, err := pipeline.Delete(t.Context(), "bob", models.DeleteMessagePayload{
		MessageID: message.ID.Hex(),
	})
	assert.ErrorIs(t, err, models.ErrNotAllowedToDelete)
}

func TestDeleteGroupAuthorization(t *testing.T) {
	t.Parallel()
	group := &models.Group{
		ID:      primitive.NewObjectID(),
		OwnerID: "owner",
		Admins:  []string{"admin"},
		Members: []string{"owner", "admin", "sender", "member"},
	}

	tests := []struct {
		name    string
		actor   string
		wantErr error
	}{
		{name: "non-admin member rejected", actor: "member", wantErr: models.ErrNotAllowedToDelete},
		{name: "sender allowed", actor: "sender"},
		{name: "admin allowed", actor: "admin"},
		{name: "owner allowed regardless of admin list", actor: "owner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message := &models.Message{SenderID: "sender", GroupID: &group.ID, Content: "hi"}
			pipeline, _, _ := newPipeline(newFakeMessages(message), newFakeGroups(group))

			outcome, err := pipeline.Delete(t.Context(), tt.actor, models.DeleteMessagePayload{
				MessageID: message.ID.Hex(),
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, outcome.Deleted)
		})
	}
}

func TestDeleteConfirmationGate(t *testing.T) {
	t.Parallel()
	message := &models.Message{SenderID: "alice", RecipientID: "bob", Content: "hi"}
	messages := newFakeMessages(message)
	pipeline, deliverer, ledger := newPipeline(messages, newFakeGroups())
	ledger.precheck = reward.PreCheck{Reversals: []string{"Send 3 messages"}}

	// Unconfirmed: warning, message intact, nothing reversed.
	outcome, err := pipeline.Delete(t.Context(), "alice", models.DeleteMessagePayload{
		MessageID: message.ID.Hex(),
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Warning)
	assert.False(t, outcome.Deleted)
	assert.Equal(t, []string{"Send 3 messages"}, outcome.Warning.Reversals)

	_, err = messages.GetByID(t.Context(), message.ID)
	assert.NoError(t, err, "message must still exist")
	assert.Zero(t, ledger.reverses)
	assert.Empty(t, deliverer.eventsFor("bob"), "nothing broadcast for an aborted delete")

	// Confirmed: deleted, reversed exactly once.
	outcome, err = pipeline.Delete(t.Context(), "alice", models.DeleteMessagePayload{
		MessageID: message.ID.Hex(), Confirmed: true,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Deleted)
	assert.Nil(t, outcome.Warning)

	_, err = messages.GetByID(t.Context(), message.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, ledger.reverses)
	assert.Contains(t, deliverer.eventsFor("bob"), models.EventMessageDeleted)
}

func TestDeleteByAdminSkipsPreCheck(t *testing.T) {
	t.Parallel()
	group := &models.Group{
		ID:      primitive.NewObjectID(),
		OwnerID: "owner",
		Members: []string{"owner", "sender"},
	}
	message := &models.Message{SenderID: "sender", GroupID: &group.ID, Content: "hi"}
	pipeline, _, ledger := newPipeline(newFakeMessages(message), newFakeGroups(group))
	ledger.precheck = reward.PreCheck{Reversals: []string{"anything"}}

	// A non-sender admin deleting someone else's message never touches
	// the sender's ledger.
	outcome, err := pipeline.Delete(t.Context(), "owner", models.DeleteMessagePayload{
		MessageID: message.ID.Hex(),
	})
	require.NoError(t, err)
	assert.True(t, outcome.Deleted)
	assert.Nil(t, outcome.Warning)
	assert.Zero(t, ledger.reverses)
}

func TestReactToggles(t *testing.T) {
	t.Parallel()
	message := &models.Message{SenderID: "alice", RecipientID: "bob", Content: "hi"}
	messages := newFakeMessages(message)
	pipeline, _, _ := newPipeline(messages, newFakeGroups())

	payload := models.ReactMessagePayload{MessageID: message.ID.Hex(), Emoji: "👍"}

	updated, err := pipeline.React(t.Context(), "bob", payload)
	require.NoError(t, err)
	assert.True(t, updated.HasReaction("bob", "👍"))

	updated, err = pipeline.React(t.Context(), "bob", payload)
	require.NoError(t, err)
	assert.False(t, updated.HasReaction("bob", "👍"), "second react removes")
}

func TestReactRequiresParticipant(t *testing.T) {
	t.Parallel()
	message := &models.Message{SenderID: "alice", RecipientID: "bob", Content: "hi"}
	pipeline, _, _ := newPipeline(newFakeMessages(message), newFakeGroups())

	_, err := pipeline.React(t.Context(), "mallory", models.ReactMessagePayload{
		MessageID: message.ID.Hex(), Emoji: "👍",
	})
	assert.ErrorIs(t, err, models.ErrNotMember)
}

func TestTypingGoesToOtherPartyOnly(t *testing.T) {
	t.Parallel()
	pipeline, deliverer, _ := newPipeline(newFakeMessages(), newFakeGroups())

	err := pipeline.Typing(t.Context(), "alice", models.TypingPayload{
		RecipientID: "bob", IsTyping: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{models.EventTyping}, deliverer.eventsFor("bob"))
	assert.Empty(t, deliverer.eventsFor("alice"))
}

func TestDirectKey(t *testing.T) {
	t.Parallel()

	ab, err := chat.DirectKey("alice", "bob")
	require.NoError(t, err)
	ba, err := chat.DirectKey("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, ab, ba, "key is order-independent")

	a, b, err := chat.SplitDirectKey(ab)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string{a, b})

	_, err = chat.DirectKey("", "bob")
	assert.ErrorIs(t, err, models.ErrBadConversationKey)

	_, _, err = chat.SplitDirectKey("justone")
	assert.ErrorIs(t, err, models.ErrBadConversationKey)
}

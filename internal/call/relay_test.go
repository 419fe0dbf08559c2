package call_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chathub-io/chathub/internal/call"
	"github.com/chathub-io/chathub/internal/models"
)

type sent struct {
	userID  string
	event   string
	payload any
}

type fakeSender struct {
	// failuresLeft makes the first N ToUser calls report offline.
	failuresLeft int
	sent         []sent
	broadcasts   []string
}

func (s *fakeSender) ToUser(userID, event string, payload any) bool {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return false
	}
	s.sent = append(s.sent, sent{userID: userID, event: event, payload: payload})
	return true
}

func (s *fakeSender) Broadcast(event string, _ any) {
	s.broadcasts = append(s.broadcasts, event)
}

func TestInviteDeliversToCallee(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	relay := call.NewRelay(sender, time.Millisecond)

	err := relay.Invite(t.Context(), "alice", models.CallPayload{ToID: "bob", CallType: "video"})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "bob", sender.sent[0].userID)
	assert.Equal(t, models.EventIncomingCall, sender.sent[0].event)
	payload, ok := sender.sent[0].payload.(models.CallPayload)
	require.True(t, ok)
	assert.Equal(t, "alice", payload.FromID, "caller identity is stamped in")
	assert.Empty(t, sender.broadcasts)
}

func TestInviteRetriesOnceThenDelivers(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{failuresLeft: 1}
	relay := call.NewRelay(sender, time.Millisecond)

	err := relay.Invite(t.Context(), "alice", models.CallPayload{ToID: "bob"})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1, "second attempt reached the callee")
	assert.Empty(t, sender.broadcasts)
}

func TestInviteFallsBackToBroadcast(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{failuresLeft: 2}
	relay := call.NewRelay(sender, time.Millisecond)

	err := relay.Invite(t.Context(), "alice", models.CallPayload{ToID: "bob"})
	require.NoError(t, err, "unreachable callee is not an error for the caller")

	assert.Equal(t, []string{models.EventIncomingCall}, sender.broadcasts)
	// The caller gets an advisory, not a failure.
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "alice", sender.sent[0].userID)
	assert.Equal(t, models.EventCallError, sender.sent[0].event)
}

func TestInviteRequiresTarget(t *testing.T) {
	t.Parallel()
	relay := call.NewRelay(&fakeSender{}, time.Millisecond)

	err := relay.Invite(t.Context(), "alice", models.CallPayload{})
	assert.ErrorIs(t, err, models.ErrMissingTarget)
}

func TestSignalingRelaysVerbatim(t *testing.T) {
	t.Parallel()
	sdp := map[string]any{"type": "offer", "sdp": "v=0..."}
	candidate := map[string]any{"candidate": "candidate:1 1 UDP ..."}

	tests := []struct {
		name      string
		relayFunc func(r *call.Relay) error
		wantEvent string
	}{
		{
			name: "accept goes back to caller",
			relayFunc: func(r *call.Relay) error {
				return r.Accept(t.Context(), "bob", models.CallPayload{ToID: "alice"})
			},
			wantEvent: models.EventCallAnswered,
		},
		{
			name: "end notifies the other party",
			relayFunc: func(r *call.Relay) error {
				return r.End(t.Context(), "alice", models.CallPayload{ToID: "bob", Duration: 42})
			},
			wantEvent: models.EventCallEnded,
		},
		{
			name: "offer carries sdp",
			relayFunc: func(r *call.Relay) error {
				return r.Offer(t.Context(), "alice", models.CallPayload{ToID: "bob", SDP: sdp})
			},
			wantEvent: models.EventOffer,
		},
		{
			name: "answer carries sdp",
			relayFunc: func(r *call.Relay) error {
				return r.Answer(t.Context(), "bob", models.CallPayload{ToID: "alice", SDP: sdp})
			},
			wantEvent: models.EventAnswer,
		},
		{
			name: "ice candidate passes through",
			relayFunc: func(r *call.Relay) error {
				return r.Candidate(t.Context(), "alice", models.CallPayload{ToID: "bob", Candidate: candidate})
			},
			wantEvent: models.EventICECandidate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			relay := call.NewRelay(sender, time.Millisecond)

			require.NoError(t, tt.relayFunc(relay))
			require.Len(t, sender.sent, 1)
			assert.Equal(t, tt.wantEvent, sender.sent[0].event)
		})
	}
}

func TestSignalingFailsWhenPartyUnreachable(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{failuresLeft: 2}
	relay := call.NewRelay(sender, time.Millisecond)

	err := relay.Offer(t.Context(), "alice", models.CallPayload{ToID: "bob"})
	assert.ErrorIs(t, err, models.ErrNotFound, "mid-call signaling has no broadcast fallback")
	assert.Empty(t, sender.broadcasts)
}

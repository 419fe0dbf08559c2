// Package call relays WebRTC signaling between two parties. The
// coordinator never inspects SDP or ICE payloads, it only routes them.
package call

import (
	"context"
	"time"

	"github.com/carousell/ct-go/pkg/logger"

	"github.com/chathub-io/chathub/internal/identity"
	"github.com/chathub-io/chathub/internal/models"
)

// Sender is the delivery surface the relay needs. Satisfied by
// delivery.Fanout.
type Sender interface {
	ToUser(userID, event string, payload any) bool
	Broadcast(event string, payload any)
}

type Relay struct {
	send       Sender
	retryDelay time.Duration
	log        *logger.Logger
}

func NewRelay(send Sender, retryDelay time.Duration) *Relay {
	return &Relay{
		send:       send,
		retryDelay: retryDelay,
		log:        logger.MustNamed("call"),
	}
}

// Invite routes a call invitation to the callee. A callee whose
// connection is not found gets one retry after the configured delay;
// if that also misses, the invitation is broadcast so a client whose
// registry entry went stale can still pick it up by to_id. Invite only
// fails on a missing target, never on an unreachable one.
func (r *Relay) Invite(ctx context.Context, fromID string, payload models.CallPayload) error {
	payload.FromID = identity.Normalize(fromID)
	if payload.ToID == "" {
		return models.ErrMissingTarget
	}

	if err := r.deliver(ctx, payload.ToID, models.EventIncomingCall, payload); err != nil {
		r.log.Warnw("callee unreachable, broadcasting invitation",
			"from_id", payload.FromID, "to_id", payload.ToID)
		r.send.Broadcast(models.EventIncomingCall, payload)
		// Advisory only: the invitation is still out there via the
		// broadcast, so the caller sees a soft warning, not a failure.
		r.send.ToUser(payload.FromID, models.EventCallError, models.ErrorPayload{
			Reason: "callee not reachable, invitation broadcast",
		})
	}
	return nil
}

// Accept routes the callee's answer back to the caller.
func (r *Relay) Accept(ctx context.Context, fromID string, payload models.CallPayload) error {
	return r.relay(ctx, fromID, models.EventCallAnswered, payload)
}

// End tells the other party the call is over.
func (r *Relay) End(ctx context.Context, fromID string, payload models.CallPayload) error {
	return r.relay(ctx, fromID, models.EventCallEnded, payload)
}

// Offer, Answer and Candidate pass SDP/ICE material through verbatim.
func (r *Relay) Offer(ctx context.Context, fromID string, payload models.CallPayload) error {
	return r.relay(ctx, fromID, models.EventOffer, payload)
}

func (r *Relay) Answer(ctx context.Context, fromID string, payload models.CallPayload) error {
	return r.relay(ctx, fromID, models.EventAnswer, payload)
}

func (r *Relay) Candidate(ctx context.Context, fromID string, payload models.CallPayload) error {
	return r.relay(ctx, fromID, models.EventICECandidate, payload)
}

func (r *Relay) relay(ctx context.Context, fromID, event string, payload models.CallPayload) error {
	payload.FromID = identity.Normalize(fromID)
	if payload.ToID == "" {
		return models.ErrMissingTarget
	}
	return r.deliver(ctx, payload.ToID, event, payload)
}

// deliver tries the target once, waits out the retry delay and tries
// again. Registry entries are healed on lookup, so the second attempt
// catches a client that joined between the two.
func (r *Relay) deliver(ctx context.Context, toID, event string, payload models.CallPayload) error {
	if r.send.ToUser(toID, event, payload) {
		return nil
	}

	timer := time.NewTimer(r.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if r.send.ToUser(toID, event, payload) {
		return nil
	}
	return models.ErrNotFound
}

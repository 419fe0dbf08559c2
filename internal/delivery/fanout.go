// Package delivery is the addressing layer between logical recipients
// and live socket connections. Delivery to an offline party is a no-op:
// state is already persisted and shows up on the next fetch.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chathub-io/chathub/internal/presence"
)

// GroupMembers resolves a group id to its member user ids. Implemented
// by the mongodb group repository.
type GroupMembers interface {
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type Fanout struct {
	registry  *presence.Registry
	groups    GroupMembers
	log       *logger.Logger
	delivered *prometheus.CounterVec
}

func NewFanout(registry *presence.Registry, groups GroupMembers) *Fanout {
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socket_events_delivered_total",
		Help: "Socket events pushed to live connections",
	}, []string{"event"})
	if err := prometheus.Register(delivered); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			delivered = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	return &Fanout{
		registry:  registry,
		groups:    groups,
		log:       logger.MustNamed("delivery"),
		delivered: delivered,
	}
}

// ToUser pushes event to userID's live connection, if any. Returns
// whether a live delivery happened.
func (f *Fanout) ToUser(userID, event string, payload any) bool {
	conn, ok := f.registry.Lookup(userID)
	if !ok {
		return false
	}
	conn.Emit(event, payload)
	f.delivered.WithLabelValues(event).Inc()
	return true
}

// ToGroup pushes event to every group member with a live connection,
// skipping ids in exclude (typically the sender, who gets an echo with
// different framing). Offline members are silently skipped.
func (f *Fanout) ToGroup(ctx context.Context, groupID, event string, payload any, exclude map[string]bool) error {
	members, err := f.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return fmt.Errorf("resolve group members: %w", err)
	}
	for _, memberID := range members {
		if exclude[memberID] {
			continue
		}
		f.ToUser(memberID, event, payload)
	}
	return nil
}

// Broadcast pushes event to every live connection. Presence updates and
// the call relay's last-resort path use this.
func (f *Fanout) Broadcast(event string, payload any) {
	for _, conn := range f.registry.Conns() {
		conn.Emit(event, payload)
		f.delivered.WithLabelValues(event).Inc()
	}
}

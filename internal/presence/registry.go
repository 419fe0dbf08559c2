// Package presence owns the process-wide mapping from user identity to
// live socket connection. All access goes through Connect, Lookup,
// Disconnect and Snapshot; nothing else touches the map.
package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/carousell/ct-go/pkg/logger"

	"github.com/chathub-io/chathub/internal/identity"
)

// Conn is the narrow connection handle the registry tracks. Satisfied
// by socketio.Conn.
type Conn interface {
	ID() string
	Emit(event string, args ...interface{})
}

type entry struct {
	conn        Conn
	connectedAt time.Time
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	log     *logger.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		log:     logger.MustNamed("presence"),
	}
}

// Connect binds userID to conn. Idempotent upsert: a later connect for
// the same identity overwrites the old handle (last join wins, which is
// what multi-device clients expect).
func (r *Registry) Connect(userID string, conn Conn) {
	key := identity.Normalize(userID)
	if key == "" || conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = entry{conn: conn, connectedAt: time.Now()}
}

// Lookup resolves userID to its live connection. Exact match first; on
// a miss it scans all entries with case-insensitive and containment
// comparisons to recover from upstream identifier format drift, and
// heals the registry by inserting the canonical key. Absence is a
// normal outcome, not an error.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	key := identity.Normalize(userID)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	if e, ok := r.entries[key]; ok {
		r.mu.RUnlock()
		return e.conn, true
	}
	r.mu.RUnlock()

	// Fallback scan under the write lock so we can heal in place.
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.conn, true
	}
	folded := identity.Fold(key)
	for stored, e := range r.entries {
		if !fuzzyMatch(identity.Fold(stored), folded) {
			continue
		}
		r.log.Debugw("healed presence entry", "stored", stored, "canonical", key)
		r.entries[key] = e
		return e.conn, true
	}
	return nil, false
}

func fuzzyMatch(stored, wanted string) bool {
	if stored == wanted {
		return true
	}
	return strings.Contains(stored, wanted) || strings.Contains(wanted, stored)
}

// Disconnect removes the mapping for userID.
func (r *Registry) Disconnect(userID string) {
	key := identity.Normalize(userID)
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// DisconnectConn removes whichever entry holds conn, returning the
// identity that was bound to it. Used on transport-driven disconnects
// where only the handle is known.
func (r *Registry) DisconnectConn(conn Conn) (string, bool) {
	if conn == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Healing can leave format-variant aliases pointing at the same
	// handle; drop them all.
	var found string
	for userID, e := range r.entries {
		if e.conn.ID() == conn.ID() {
			delete(r.entries, userID)
			found = userID
		}
	}
	return found, found != ""
}

// Snapshot returns the set of currently connected user identifiers.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.entries))
	for userID := range r.entries {
		users = append(users, userID)
	}
	return users
}

// Conns returns every live connection, for broadcast fan-out.
func (r *Registry) Conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.entries))
	for _, e := range r.entries {
		conns = append(conns, e.conn)
	}
	return conns
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

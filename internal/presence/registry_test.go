package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chathub-io/chathub/internal/presence"
)

type fakeConn struct {
	id     string
	events []string
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, args ...interface{}) {
	c.events = append(c.events, event)
}

func TestConnectIsIdempotent(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	first := &fakeConn{id: "conn-1"}
	second := &fakeConn{id: "conn-2"}

	r.Connect("user-a", first)
	r.Connect("user-a", second)

	assert.Equal(t, 1, r.Len())

	conn, ok := r.Lookup("user-a")
	require.True(t, ok)
	assert.Equal(t, "conn-2", conn.ID(), "last join wins")
}

func TestLookupFallbackHealsFormatDrift(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	conn := &fakeConn{id: "conn-1"}
	r.Connect("abc123 ", conn)

	got, ok := r.Lookup("ABC123")
	require.True(t, ok, "case-insensitive fallback should resolve")
	assert.Equal(t, "conn-1", got.ID())

	// Healed: the canonical key now resolves via the exact path too.
	got, ok = r.Lookup("ABC123")
	require.True(t, ok)
	assert.Equal(t, "conn-1", got.ID())
}

func TestLookupWrapperNotation(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	conn := &fakeConn{id: "conn-1"}
	r.Connect("64af01", conn)

	got, ok := r.Lookup(`{ _id: 64af01 }`)
	require.True(t, ok)
	assert.Equal(t, "conn-1", got.ID())
}

func TestLookupMissIsNotAnError(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	_, ok := r.Lookup("nobody")
	assert.False(t, ok)

	_, ok = r.Lookup("")
	assert.False(t, ok)
}

func TestDisconnect(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	r.Connect("user-a", &fakeConn{id: "conn-1"})
	r.Disconnect("user-a")

	_, ok := r.Lookup("user-a")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestDisconnectConnDropsAliases(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	conn := &fakeConn{id: "conn-1"}
	r.Connect("ABC123", conn)

	// Force a healed alias alongside the original entry.
	_, ok := r.Lookup("abc123")
	require.True(t, ok)

	userID, ok := r.DisconnectConn(conn)
	require.True(t, ok)
	assert.NotEmpty(t, userID)
	assert.Equal(t, 0, r.Len())
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	r.Connect("user-a", &fakeConn{id: "conn-1"})
	r.Connect("user-b", &fakeConn{id: "conn-2"})

	assert.ElementsMatch(t, []string{"user-a", "user-b"}, r.Snapshot())
}

func TestOfflineSendLeavesNoResidue(t *testing.T) {
	t.Parallel()
	r := presence.NewRegistry()

	// Recipient offline: lookup misses, nothing is inserted.
	_, ok := r.Lookup("user-b")
	require.False(t, ok)
	assert.Equal(t, 0, r.Len())

	// They connect later and resolve cleanly.
	conn := &fakeConn{id: "conn-9"}
	r.Connect("user-b", conn)
	got, ok := r.Lookup("user-b")
	require.True(t, ok)
	assert.Equal(t, "conn-9", got.ID())
}

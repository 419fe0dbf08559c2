package chat

import (
	"strings"

	"github.com/chathub-io/chathub/internal/identity"
	"github.com/chathub-io/chathub/internal/models"
)

// DirectKey derives the deterministic conversation key for a two-party
// conversation: the normalized participant ids joined in sorted order,
// so both sides compute the same key.
func DirectKey(a, b string) (string, error) {
	a = identity.Normalize(a)
	b = identity.Normalize(b)
	if a == "" || b == "" || a == b {
		return "", models.ErrBadConversationKey
	}
	if a > b {
		a, b = b, a
	}
	return a + ":" + b, nil
}

// SplitDirectKey returns the two participant ids of a direct key.
func SplitDirectKey(key string) (string, string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", models.ErrBadConversationKey
	}
	return parts[0], parts[1], nil
}

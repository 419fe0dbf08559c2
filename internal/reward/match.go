package reward

import (
	"strings"

	"github.com/chathub-io/chathub/internal/models"
)

// ActionKind classifies the activity that drives challenge progress.
// Challenges are matched by keywords in their title/description rather
// than an exact enum, because challenge text is authored free-form.
type ActionKind string

const (
	ActionSendMessage  ActionKind = "send-message"
	ActionGroupMessage ActionKind = "group-message"
	ActionCall         ActionKind = "call"
	ActionReaction     ActionKind = "reaction"
)

var actionKeywords = map[ActionKind][]string{
	ActionSendMessage:  {"message", "messages", "chat", "text"},
	ActionGroupMessage: {"group", "message", "messages", "chat"},
	ActionCall:         {"call", "calls", "voice", "video"},
	ActionReaction:     {"react", "reaction", "emoji"},
}

// Matches reports whether a challenge's wording matches the action.
func Matches(challenge *models.Challenge, kind ActionKind) bool {
	keywords, ok := actionKeywords[kind]
	if !ok {
		return false
	}
	text := strings.ToLower(challenge.Title + " " + challenge.Description)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

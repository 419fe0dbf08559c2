package models

// Socket event names. Inbound names are what clients emit, outbound
// names are what the coordinator pushes back.
const (
	// inbound
	EventJoin          = "join"
	EventSendMessage   = "send-message"
	EventUpdateMessage = "update-message"
	EventDeleteMessage = "delete-message"
	EventReactMessage  = "react-message"
	EventTyping        = "typing"
	EventCallUser      = "call-user"
	EventCallAccept    = "call-accept"
	EventCallEnd       = "call-end"
	EventCallOffer     = "call-offer"
	EventCallAnswer    = "call-answer"
	EventICECandidate  = "ice-candidate"

	// outbound
	EventNewMessage        = "new-message"
	EventMessageUpdated    = "message-updated"
	EventMessageDeleted    = "message-deleted"
	EventMessageReacted    = "message-reacted"
	EventMessageError      = "message-error"
	EventDeleteWarning     = "delete-warning"
	EventThresholdWarning  = "delete-threshold-warning"
	EventChallengeUpdated  = "challenge-updated"
	EventChallengeReversed = "challenge-reversed"
	EventPointsUpdated     = "points-updated"
	EventOnlineUsers       = "getOnlineUsers"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventIncomingCall      = "incoming-call"
	EventCallAnswered      = "call-answered"
	EventCallEnded         = "call-ended"
	EventOffer             = "offer"
	EventAnswer            = "answer"
	EventCallSent          = "call-sent"
	EventCallError         = "call-error"
)

// SendMessagePayload is the inbound send-message body. Exactly one of
// RecipientID and GroupID must be set.
type SendMessagePayload struct {
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Content     string `json:"content"`
	Attachment  string `json:"attachment,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
}

type UpdateMessagePayload struct {
	MessageID string `json:"message_id" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"message_id" validate:"required"`
	// Confirmed acknowledges a previously issued delete warning.
	Confirmed bool `json:"confirmed,omitempty"`
}

type ReactMessagePayload struct {
	MessageID string `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

type TypingPayload struct {
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	IsTyping    bool   `json:"is_typing"`
}

// CallPayload carries call signaling verbatim between two parties.
// SDP/Candidate are opaque to the coordinator.
type CallPayload struct {
	FromID    string         `json:"from_id,omitempty"`
	ToID      string         `json:"to_id" validate:"required"`
	CallType  string         `json:"call_type,omitempty"` // "audio" or "video"
	SDP       map[string]any `json:"sdp,omitempty"`
	Candidate map[string]any `json:"candidate,omitempty"`
	Accepted  *bool          `json:"accepted,omitempty"`
	Duration  int            `json:"duration,omitempty"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

// DeleteWarningPayload tells the actor their deletion would reverse a
// completed challenge (Reversal) or push progress away from an almost
// finished one (NearMiss). The client must resubmit with confirmed=true.
type DeleteWarningPayload struct {
	MessageID  string   `json:"message_id"`
	Reversals  []string `json:"reversals,omitempty"`
	NearMisses []string `json:"near_misses,omitempty"`
}

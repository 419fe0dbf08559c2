package server

import (
	"context"
	"errors"
	"strings"

	"github.com/carousell/ct-go/pkg/logger"
	socketio "github.com/googollee/go-socket.io"
	"github.com/labstack/echo/v4"

	"github.com/chathub-io/chathub/internal/auth"
	"github.com/chathub-io/chathub/internal/call"
	"github.com/chathub-io/chathub/internal/chat"
	"github.com/chathub-io/chathub/internal/delivery"
	"github.com/chathub-io/chathub/internal/identity"
	"github.com/chathub-io/chathub/internal/models"
	"github.com/chathub-io/chathub/internal/presence"
)

// SocketHandler owns the socket.io server: handshake auth, presence
// bookkeeping and dispatch of every realtime event to the pipeline and
// the call relay. Operation failures are emitted to the acting
// connection only.
type SocketHandler struct {
	server      *socketio.Server
	authService *auth.Service
	registry    *presence.Registry
	fanout      *delivery.Fanout
	pipeline    *chat.Pipeline
	relay       *call.Relay
	log         *logger.Logger
}

func NewSocketHandler(
	authService *auth.Service,
	registry *presence.Registry,
	fanout *delivery.Fanout,
	pipeline *chat.Pipeline,
	relay *call.Relay,
) (*SocketHandler, error) {
	handler := &SocketHandler{
		server:      socketio.NewServer(nil),
		authService: authService,
		registry:    registry,
		fanout:      fanout,
		pipeline:    pipeline,
		relay:       relay,
		log:         logger.MustNamed("socket"),
	}
	handler.setupEvents()
	return handler, nil
}

func (h *SocketHandler) setupEvents() {
	h.server.OnConnect("/", func(s socketio.Conn) error {
		token := h.extractToken(s)
		if token == "" {
			h.log.Warnw("connection without token", "socket_id", s.ID())
			return s.Close()
		}

		user, err := h.authService.ValidateToken(context.Background(), token)
		if err != nil {
			h.log.Warnw("handshake auth failed", "socket_id", s.ID(), "error", err)
			return s.Close()
		}

		s.SetContext(map[string]interface{}{
			"user_id": user.ID.Hex(),
		})
		h.log.Infow("socket authenticated", "socket_id", s.ID(), "user_id", user.ID.Hex())
		return nil
	})

	h.server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		userID, ok := h.registry.DisconnectConn(s)
		if !ok {
			return
		}
		h.log.Infow("socket disconnected", "socket_id", s.ID(), "user_id", userID, "reason", reason)
		h.fanout.Broadcast(models.EventUserOffline, map[string]any{"user_id": userID})
		h.broadcastOnlineUsers()
	})

	// Clients announce themselves after connecting. The announced id
	// arrives in whatever shape the client keeps it in, so it goes
	// through identity normalization; the token user is the fallback.
	h.server.OnEvent("/", models.EventJoin, func(s socketio.Conn, raw interface{}) {
		userID := identity.Normalize(raw)
		if userID == "" {
			userID = h.connUserID(s)
		}
		if userID == "" {
			return
		}

		h.registry.Connect(userID, s)
		h.fanout.Broadcast(models.EventUserOnline, map[string]any{"user_id": userID})
		h.broadcastOnlineUsers()
	})

	h.server.OnEvent("/", models.EventSendMessage, func(s socketio.Conn, payload models.SendMessagePayload) {
		if _, err := h.pipeline.Send(context.Background(), h.connUserID(s), payload); err != nil {
			h.emitError(s, err)
		}
	})

	h.server.OnEvent("/", models.EventUpdateMessage, func(s socketio.Conn, payload models.UpdateMessagePayload) {
		if _, err := h.pipeline.Edit(context.Background(), h.connUserID(s), payload); err != nil {
			h.emitError(s, err)
		}
	})

	h.server.OnEvent("/", models.EventDeleteMessage, func(s socketio.Conn, payload models.DeleteMessagePayload) {
		outcome, err := h.pipeline.Delete(context.Background(), h.connUserID(s), payload)
		if err != nil {
			h.emitError(s, err)
			return
		}
		if outcome.Warning != nil {
			// Reversal warnings and near-miss warnings are separate
			// events so clients can phrase the confirmation prompt.
			event := models.EventThresholdWarning
			if len(outcome.Warning.Reversals) > 0 {
				event = models.EventDeleteWarning
			}
			s.Emit(event, outcome.Warning)
		}
	})

	h.server.OnEvent("/", models.EventReactMessage, func(s socketio.Conn, payload models.ReactMessagePayload) {
		if _, err := h.pipeline.React(context.Background(), h.connUserID(s), payload); err != nil {
			h.emitError(s, err)
		}
	})

	h.server.OnEvent("/", models.EventTyping, func(s socketio.Conn, payload models.TypingPayload) {
		if err := h.pipeline.Typing(context.Background(), h.connUserID(s), payload); err != nil {
			h.emitError(s, err)
		}
	})

	h.server.OnEvent("/", models.EventCallUser, func(s socketio.Conn, payload models.CallPayload) {
		if err := h.relay.Invite(context.Background(), h.connUserID(s), payload); err != nil {
			h.emitCallError(s, err)
			return
		}
		s.Emit(models.EventCallSent, payload)
	})

	h.server.OnEvent("/", models.EventCallAccept, h.callEvent(h.relay.Accept))
	h.server.OnEvent("/", models.EventCallEnd, h.callEvent(h.relay.End))
	h.server.OnEvent("/", models.EventCallOffer, h.callEvent(h.relay.Offer))
	h.server.OnEvent("/", models.EventCallAnswer, h.callEvent(h.relay.Answer))
	h.server.OnEvent("/", models.EventICECandidate, h.callEvent(h.relay.Candidate))

	h.server.OnError("/", func(s socketio.Conn, err error) {
		h.log.Errorw("socket error", "socket_id", s.ID(), "error", err)
	})
}

func (h *SocketHandler) callEvent(relayFunc func(context.Context, string, models.CallPayload) error) func(socketio.Conn, models.CallPayload) {
	return func(s socketio.Conn, payload models.CallPayload) {
		if err := relayFunc(context.Background(), h.connUserID(s), payload); err != nil {
			h.emitCallError(s, err)
		}
	}
}

func (h *SocketHandler) broadcastOnlineUsers() {
	h.fanout.Broadcast(models.EventOnlineUsers, h.registry.Snapshot())
}

func (h *SocketHandler) emitError(s socketio.Conn, err error) {
	s.Emit(models.EventMessageError, models.ErrorPayload{Reason: reasonOf(err)})
}

func (h *SocketHandler) emitCallError(s socketio.Conn, err error) {
	s.Emit(models.EventCallError, models.ErrorPayload{Reason: reasonOf(err)})
}

// reasonOf keeps internal detail out of client-facing errors: known
// sentinels pass through, everything else collapses to a generic
// reason.
func reasonOf(err error) string {
	for _, sentinel := range []error{
		models.ErrNotFound,
		models.ErrUnauthorized,
		models.ErrMissingTarget,
		models.ErrBadConversationKey,
		models.ErrNotMember,
		models.ErrNotSender,
		models.ErrNotAllowedToDelete,
		models.ErrGroupSendRestricted,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

func (h *SocketHandler) extractToken(s socketio.Conn) string {
	if header := s.RemoteHeader().Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	url := s.URL()
	return url.Query().Get("token")
}

func (h *SocketHandler) connUserID(s socketio.Conn) string {
	contextMap, ok := s.Context().(map[string]interface{})
	if !ok {
		return ""
	}
	userID, _ := contextMap["user_id"].(string)
	return userID
}

// Serve runs the socket.io accept loop; Close stops it.
func (h *SocketHandler) Serve() error { return h.server.Serve() }
func (h *SocketHandler) Close() error { return h.server.Close() }

// Handler mounts the socket.io endpoint on echo.
func (h *SocketHandler) Handler() echo.HandlerFunc {
	return echo.WrapHandler(h.server)
}

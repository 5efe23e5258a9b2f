package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"groupchat-service/internal/observability"
)

// RoomWebSocketHandler establishes global-room sessions and maintains the
// online-presence set.
type RoomWebSocketHandler struct {
	hub        *Hub
	presence   *Presence
	dispatcher *Dispatcher
	jwtSecret  string
	logger     *zap.Logger
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, presence *Presence, dispatcher *Dispatcher, jwtSecret string, logger *zap.Logger) *RoomWebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomWebSocketHandler{
		hub:        hub,
		presence:   presence,
		dispatcher: dispatcher,
		jwtSecret:  jwtSecret,
		logger:     logger,
	}
}

// Handle upgrades a global-room connection. Anonymous sessions receive
// broadcasts but do not count toward presence.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("groupchat-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithAttributes(attribute.String("room", "global")))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ident, err := identityFromRequest(c, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := newConnInfo(c, span.SpanContext().TraceID().String())
	client := newClient(conn, ident.UserID, ident.Username, 0, true, info)

	sessCtx := context.WithoutCancel(ctx)

	client.onClose = func() {
		h.hub.RemoveRoomClient(client)
		if !client.Anonymous() {
			count := h.presence.Remove(client.username)
			h.hub.BroadcastRoom(NewOnlineCountEvent(count))
		}
		observability.DecWSActive("room")
		publishSessionEvent(sessCtx, "room", 0, "ws_disconnect", info, ident.UserID, client.CloseReason())
	}

	h.hub.AddRoomClient(client)
	if !client.Anonymous() {
		count := h.presence.Add(client.username)
		h.hub.BroadcastRoom(NewOnlineCountEvent(count))
	}
	observability.IncWSActive("room")
	publishSessionEvent(sessCtx, "room", 0, "ws_connect", info, ident.UserID, "")

	go client.writePump()
	go client.readPump(sessCtx, h.dispatcher.DispatchRoom)
}

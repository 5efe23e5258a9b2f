package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GroupWebSocketHandler establishes group sessions.
type GroupWebSocketHandler struct {
	hub        *Hub
	groups     repositories.GroupRepository
	users      repositories.UserRepository
	dispatcher *Dispatcher
	jwtSecret  string
	logger     *zap.Logger
}

// NewGroupWebSocketHandler constructs a GroupWebSocketHandler.
func NewGroupWebSocketHandler(hub *Hub, groups repositories.GroupRepository, users repositories.UserRepository, dispatcher *Dispatcher, jwtSecret string, logger *zap.Logger) *GroupWebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupWebSocketHandler{
		hub:        hub,
		groups:     groups,
		users:      users,
		dispatcher: dispatcher,
		jwtSecret:  jwtSecret,
		logger:     logger,
	}
}

// Handle resolves the group from the route, binds the caller's identity,
// upgrades the connection and registers the session. An unresolvable group
// refuses the connection before acceptance; after acceptance nothing here
// fails the session except the connection itself.
func (h *GroupWebSocketHandler) Handle(c *gin.Context) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	ctx, span := otel.Tracer("groupchat-service/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithAttributes(attribute.Int64("group.id", groupID)))
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	ident, err := identityFromRequest(c, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if ident.UserID != 0 && ident.Username == "" {
		// tokens minted by the auth service may omit the display name
		if user, err := h.users.GetUser(ctx, ident.UserID); err == nil {
			ident.Username = user.Username
		}
	}

	group, err := h.groups.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "group lookup failed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := newConnInfo(c, span.SpanContext().TraceID().String())
	client := newClient(conn, ident.UserID, ident.Username, group.ID, false, info)

	// the request context dies when the handler returns; keep its values
	sessCtx := context.WithoutCancel(ctx)

	client.onClose = func() {
		h.hub.RemoveGroupClient(group.ID, client)
		observability.DecWSActive("group")
		publishSessionEvent(sessCtx, "group", group.ID, "ws_disconnect", info, ident.UserID, client.CloseReason())
	}

	h.hub.AddGroupClient(group.ID, client)
	observability.IncWSActive("group")
	publishSessionEvent(sessCtx, "group", group.ID, "ws_connect", info, ident.UserID, "")

	go client.writePump()
	go client.readPump(sessCtx, h.dispatcher.Dispatch)
}

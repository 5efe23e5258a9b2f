package ws

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/observability"
)

// identity is the authenticated context bound to a session at connect
// time. A zero UserID means anonymous.
type identity struct {
	UserID   int64
	Username string
}

// identityFromRequest resolves the caller from the Authorization header or
// the token query parameter. An absent token is anonymous; a present but
// invalid token is an error.
func identityFromRequest(c *gin.Context, jwtSecret string) (identity, error) {
	token := c.GetHeader("Authorization")
	if token != "" {
		parts := strings.SplitN(token, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			token = parts[1]
		}
	} else {
		token = c.Query("token")
	}

	if token == "" {
		return identity{}, nil
	}

	claims, err := auth.ParseToken(token, jwtSecret)
	if err != nil {
		return identity{}, err
	}
	return identity{UserID: claims.UserID, Username: claims.Username}, nil
}

func newConnInfo(c *gin.Context, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

// publishSessionEvent emits a ws lifecycle event onto the event bus.
func publishSessionEvent(ctx context.Context, kind string, resourceID int64, event string, info ConnInfo, userID int64, reason string) {
	observability.IncWSEvent(kind, event)
	_ = observability.PublishEvent(ctx, "ws_events."+kind, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        kind,
				"resource_id": resourceID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id": userID,
				"ip":      info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"groupchat-service/internal/middleware"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if val, ok := c.Get(middleware.ContextKeyUserID); ok {
		if userID, ok := val.(int64); ok && userID != 0 {
			value := strconv.FormatInt(userID, 10)
			return &value
		}
	}
	return nil
}

func callerID(c *gin.Context) int64 {
	if val, ok := c.Get(middleware.ContextKeyUserID); ok {
		if userID, ok := val.(int64); ok {
			return userID
		}
	}
	return 0
}

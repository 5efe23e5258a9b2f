package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/auth"
)

func setupAuthRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetInt64(ContextKeyUserID),
			"username": c.GetString(ContextKeyUsername),
		})
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	router := setupAuthRouter("secret")
	token, err := auth.GenerateToken(7, "alice", "secret", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"user_id":7`)
	require.Contains(t, rec.Body.String(), `"username":"alice"`)
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	router := setupAuthRouter("secret")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	router := setupAuthRouter("secret")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

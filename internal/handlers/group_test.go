package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/middleware"
	"groupchat-service/internal/mocks"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
)

const testAuditRoutingKey = "audit.groupchat"

func setupGroupRouter(handler *GroupHandler, userID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID)
		c.Next()
	})
	r.POST("/groups", handler.CreateGroup)
	r.GET("/groups", handler.ListGroups)
	r.POST("/groups/join", handler.JoinGroup)
	r.GET("/groups/:group_id/members", handler.ListMembers)
	r.DELETE("/groups/:group_id/members/:user_id", handler.RemoveMember)
	r.POST("/groups/:group_id/leave", handler.LeaveGroup)
	r.DELETE("/groups/:group_id", handler.DeleteGroup)
	r.GET("/groups/:group_id/messages", handler.GetGroupMessages)
	r.POST("/messages/:message_id/pin", handler.TogglePin)
	return r
}

func newGroupHandlerFixture() (*GroupHandler, *mocks.GroupRepositoryMock, *mocks.MessageRepositoryMock, *mocks.MessageCacheMock, *mocks.PublisherMock) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	cache := new(mocks.MessageCacheMock)
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, testAuditRoutingKey, mock.Anything).Return(nil)
	audit := telemetry.NewAuditEmitter(publisher, testAuditRoutingKey, "groupchat-service", "test", nil)
	return NewGroupHandler(groupRepo, messageRepo, cache, audit), groupRepo, messageRepo, cache, publisher
}

// auditEvent matches a published audit envelope by level and text.
func auditEvent(level, text string) any {
	return mock.MatchedBy(func(ev telemetry.AuditEnvelope) bool {
		return ev.Payload.Level == level && ev.Payload.Text == text
	})
}

func TestCreateGroupSuccess(t *testing.T) {
	handler, groupRepo, _, _, publisher := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("CreateGroup", mock.Anything, int64(1), "study", "s3cret").
		Return(models.Group{ID: 5, Name: "study", AdminID: 1}, nil).Once()

	body := bytes.NewBufferString(`{"name":"study","secret_key":"s3cret"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	groupRepo.AssertExpectations(t)
	publisher.AssertCalled(t, "Publish", mock.Anything, testAuditRoutingKey, auditEvent("INFO", "Group created"))
}

func TestCreateGroupGeneratesSecretKey(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("CreateGroup", mock.Anything, int64(1), "study", mock.MatchedBy(func(key string) bool {
		return key != ""
	})).Return(models.Group{ID: 5, Name: "study", AdminID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"study"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestCreateGroupDuplicateSecretKey(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("CreateGroup", mock.Anything, int64(1), "study", "dup").
		Return(nil, repositories.ErrDuplicateSecretKey).Once()

	body := bytes.NewBufferString(`{"name":"study","secret_key":"dup"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateGroupInvalidBody(t *testing.T) {
	handler, _, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListGroupsWithFilter(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("ListGroups", mock.Anything, "stu").
		Return([]models.Group{{ID: 5, Name: "study"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups?q=stu", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestJoinGroupSuccess(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 3)

	groupRepo.On("GetGroupBySecretKey", mock.Anything, "s3cret").
		Return(models.Group{ID: 5, Name: "study", AdminID: 1}, nil).Once()
	groupRepo.On("AddMember", mock.Anything, int64(5), int64(3)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/join", bytes.NewBufferString(`{"secret_key":"s3cret"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestJoinGroupUnknownKey(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 3)

	groupRepo.On("GetGroupBySecretKey", mock.Anything, "nope").
		Return(nil, repositories.ErrGroupNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/join", bytes.NewBufferString(`{"secret_key":"nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMembersRequiresMembership(t *testing.T) {
	handler, groupRepo, _, _, publisher := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 3)

	groupRepo.On("IsMember", mock.Anything, int64(5), int64(3)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/5/members", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	publisher.AssertCalled(t, "Publish", mock.Anything, testAuditRoutingKey, auditEvent("ERROR", "not allowed"))
}

func TestRemoveMemberAdminOnly(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 3)

	groupRepo.On("GetGroup", mock.Anything, int64(5)).
		Return(models.Group{ID: 5, AdminID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/5/members/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveMemberCannotRemoveAdmin(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("GetGroup", mock.Anything, int64(5)).
		Return(models.Group{ID: 5, AdminID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/5/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveMemberSuccess(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("GetGroup", mock.Anything, int64(5)).
		Return(models.Group{ID: 5, AdminID: 1}, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, int64(5), int64(2)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/5/members/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestLeaveGroupAdminRejected(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("GetGroup", mock.Anything, int64(5)).
		Return(models.Group{ID: 5, AdminID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	groupRepo.AssertNotCalled(t, "RemoveMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestLeaveGroupSuccess(t *testing.T) {
	handler, groupRepo, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 3)

	groupRepo.On("GetGroup", mock.Anything, int64(5)).
		Return(models.Group{ID: 5, AdminID: 1}, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, int64(5), int64(3)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestDeleteGroupSuccess(t *testing.T) {
	handler, groupRepo, _, cache, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	groupRepo.On("GetGroup", mock.Anything, int64(5)).
		Return(models.Group{ID: 5, AdminID: 1}, nil).Once()
	groupRepo.On("DeleteGroup", mock.Anything, int64(5)).Return(nil).Once()
	cache.On("Invalidate", mock.Anything, int64(5)).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	groupRepo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestGetGroupMessagesCacheMiss(t *testing.T) {
	handler, groupRepo, messageRepo, cache, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	rows := []repositories.MessageRow{
		{Message: models.Message{ID: 1, GroupID: 9, UserID: 1, Content: "hi"}, Username: "alice", SeenCount: 2},
	}
	groupRepo.On("IsMember", mock.Anything, int64(9), int64(1)).Return(true, nil).Once()
	cache.On("GetMessages", mock.Anything, int64(9)).Return(nil, false).Once()
	messageRepo.On("ListGroupMessages", mock.Anything, int64(9)).Return(rows, nil).Once()
	cache.On("SetMessages", mock.Anything, int64(9), mock.Anything).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []models.MessagePayload `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	require.Equal(t, "alice", resp.Messages[0].User)
	require.Equal(t, 2, resp.Messages[0].SeenCount)
	messageRepo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestGetGroupMessagesCacheHit(t *testing.T) {
	handler, groupRepo, messageRepo, cache, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	payloads := []models.MessagePayload{{ID: 1, User: "alice", Content: "hi"}}
	groupRepo.On("IsMember", mock.Anything, int64(9), int64(1)).Return(true, nil).Once()
	cache.On("GetMessages", mock.Anything, int64(9)).Return(payloads, true).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertNotCalled(t, "ListGroupMessages", mock.Anything, mock.Anything)
}

func TestGetGroupMessagesInvalidID(t *testing.T) {
	handler, _, _, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	req := httptest.NewRequest(http.MethodGet, "/groups/bad/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTogglePinFlipsFlag(t *testing.T) {
	handler, groupRepo, messageRepo, cache, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 1)

	messageRepo.On("GetMessage", mock.Anything, int64(20)).
		Return(models.Message{ID: 20, GroupID: 9, UserID: 2, Pinned: false}, nil).Once()
	groupRepo.On("GetGroup", mock.Anything, int64(9)).
		Return(models.Group{ID: 9, AdminID: 1}, nil).Once()
	messageRepo.On("SetPinned", mock.Anything, int64(20), true).Return(nil).Once()
	cache.On("Invalidate", mock.Anything, int64(9)).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/20/pin", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestTogglePinAdminOnly(t *testing.T) {
	handler, groupRepo, messageRepo, _, _ := newGroupHandlerFixture()
	router := setupGroupRouter(handler, 3)

	messageRepo.On("GetMessage", mock.Anything, int64(20)).
		Return(models.Message{ID: 20, GroupID: 9, UserID: 2}, nil).Once()
	groupRepo.On("GetGroup", mock.Anything, int64(9)).
		Return(models.Group{ID: 9, AdminID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/20/pin", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "SetPinned", mock.Anything, mock.Anything, mock.Anything)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
)

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groupRepo   repositories.GroupRepository
	messageRepo repositories.MessageRepository
	cache       repositories.MessageCache
	audit       *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, messageRepo repositories.MessageRepository, cache repositories.MessageCache, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		cache:       cache,
		audit:       audit,
	}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := callerID(c)

	var req struct {
		Name      string `json:"name" binding:"required"`
		SecretKey string `json:"secret_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SecretKey == "" {
		req.SecretKey = uuid.NewString()
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, req.Name, req.SecretKey)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateSecretKey) {
			h.emitAudit(c, "ERROR", "duplicate secret key")
			c.JSON(http.StatusConflict, gin.H{"error": "secret key already in use"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, gin.H{"group_id": group.ID, "secret_key": req.SecretKey})
}

// ListGroups returns groups matching the optional name filter.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupRepo.ListGroups(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// JoinGroup adds the caller to the group matching the secret key.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	userID := callerID(c)

	var req struct {
		SecretKey string `json:"secret_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupRepo.GetGroupBySecretKey(c.Request.Context(), req.SecretKey)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			h.emitAudit(c, "ERROR", "group not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join group"})
		return
	}

	if err := h.groupRepo.AddMember(c.Request.Context(), group.ID, userID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join group"})
		return
	}

	h.emitAudit(c, "INFO", "Group joined")
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// ListMembers returns the members of a group. Callers must belong to the group.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	if !h.requireMember(c, groupID) {
		return
	}

	members, err := h.groupRepo.ListMembers(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// RemoveMember removes a member from the group. Only the group admin may do this,
// and the admin cannot be removed.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}
	memberID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	group, ok := h.requireAdmin(c, groupID)
	if !ok {
		return
	}
	if memberID == group.AdminID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot remove the group admin"})
		return
	}

	if err := h.groupRepo.RemoveMember(c.Request.Context(), groupID, memberID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	h.emitAudit(c, "INFO", "Group member removed")
	c.Status(http.StatusNoContent)
}

// LeaveGroup removes the caller from the group. The admin must delete the group instead.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	userID := callerID(c)
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}
	if group.AdminID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "admin cannot leave, delete the group instead"})
		return
	}

	if err := h.groupRepo.RemoveMember(c.Request.Context(), groupID, userID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}

	h.emitAudit(c, "INFO", "Group left")
	c.Status(http.StatusNoContent)
}

// DeleteGroup removes the group and its messages. Admin only.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	if _, ok := h.requireAdmin(c, groupID); !ok {
		return
	}

	if err := h.groupRepo.DeleteGroup(c.Request.Context(), groupID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
		return
	}

	h.cache.Invalidate(c.Request.Context(), groupID)
	h.emitAudit(c, "INFO", "Group deleted")
	c.Status(http.StatusNoContent)
}

// GetGroupMessages returns the group history, pinned messages first.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := parseGroupID(c)
	if !ok {
		return
	}

	if !h.requireMember(c, groupID) {
		return
	}

	if payloads, ok := h.cache.GetMessages(c.Request.Context(), groupID); ok {
		c.JSON(http.StatusOK, gin.H{"messages": payloads})
		return
	}

	rows, err := h.messageRepo.ListGroupMessages(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	payloads := make([]models.MessagePayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, row.Payload())
	}

	h.cache.SetMessages(c.Request.Context(), groupID, payloads)
	c.JSON(http.StatusOK, gin.H{"messages": payloads})
}

// TogglePin flips the pinned flag on a message. Only the admin of the
// message's group may pin.
func (h *GroupHandler) TogglePin(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			h.emitAudit(c, "ERROR", "message not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not pin message"})
		return
	}

	if _, ok := h.requireAdmin(c, msg.GroupID); !ok {
		return
	}

	pinned := !msg.Pinned
	if err := h.messageRepo.SetPinned(c.Request.Context(), messageID, pinned); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not pin message"})
		return
	}

	h.cache.Invalidate(c.Request.Context(), msg.GroupID)
	h.emitAudit(c, "INFO", "Message pin toggled")
	c.JSON(http.StatusOK, gin.H{"id": messageID, "pinned": pinned})
}

func (h *GroupHandler) requireMember(c *gin.Context, groupID int64) bool {
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, callerID(c))
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return false
	}
	return true
}

func (h *GroupHandler) requireAdmin(c *gin.Context, groupID int64) (models.Group, bool) {
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return models.Group{}, false
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "group lookup failed"})
		return models.Group{}, false
	}
	if group.AdminID != callerID(c) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
		return models.Group{}, false
	}
	return group, true
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func parseGroupID(c *gin.Context) (int64, bool) {
	groupID, err := strconv.ParseInt(c.Param("group_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return 0, false
	}
	return groupID, true
}

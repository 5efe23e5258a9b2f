package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"groupchat-service/internal/blob"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

var (
	_ repositories.GroupRepository   = (*GroupRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
	_ repositories.MessageCache      = (*MessageCacheMock)(nil)
	_ blob.Store                     = (*BlobStoreMock)(nil)
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, adminID int64, name, secretKey string) (models.Group, error) {
	args := m.Called(ctx, adminID, name, secretKey)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroupBySecretKey(ctx context.Context, secretKey string) (models.Group, error) {
	args := m.Called(ctx, secretKey)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroups(ctx context.Context, nameQuery string) ([]models.Group, error) {
	args := m.Called(ctx, nameQuery)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID, userID int64) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID, userID int64) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) ListMembers(ctx context.Context, groupID int64) ([]models.User, error) {
	args := m.Called(ctx, groupID)
	var members []models.User
	if val := args.Get(0); val != nil {
		members = val.([]models.User)
	}
	return members, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID int64) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, params repositories.CreateMessageParams) (models.Message, error) {
	args := m.Called(ctx, params)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID int64) ([]repositories.MessageRow, error) {
	args := m.Called(ctx, groupID)
	var rows []repositories.MessageRow
	if val := args.Get(0); val != nil {
		rows = val.([]repositories.MessageRow)
	}
	return rows, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkSeenUpTo(ctx context.Context, groupID, userID, lastSeenID int64) ([]models.SeenUpdate, error) {
	args := m.Called(ctx, groupID, userID, lastSeenID)
	var updates []models.SeenUpdate
	if val := args.Get(0); val != nil {
		updates = val.([]models.SeenUpdate)
	}
	return updates, args.Error(1)
}

func (m *MessageRepositoryMock) SetPinned(ctx context.Context, messageID int64, pinned bool) error {
	args := m.Called(ctx, messageID, pinned)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int64) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type MessageCacheMock struct {
	mock.Mock
}

func (m *MessageCacheMock) GetMessages(ctx context.Context, groupID int64) ([]models.MessagePayload, bool) {
	args := m.Called(ctx, groupID)
	var payloads []models.MessagePayload
	if val := args.Get(0); val != nil {
		payloads = val.([]models.MessagePayload)
	}
	return payloads, args.Bool(1)
}

func (m *MessageCacheMock) SetMessages(ctx context.Context, groupID int64, payloads []models.MessagePayload) {
	m.Called(ctx, groupID, payloads)
}

func (m *MessageCacheMock) Invalidate(ctx context.Context, groupID int64) {
	m.Called(ctx, groupID)
}

type BlobStoreMock struct {
	mock.Mock
}

func (m *BlobStoreMock) Save(ctx context.Context, data []byte, ext string) (string, error) {
	args := m.Called(ctx, data, ext)
	return args.String(0), args.Error(1)
}

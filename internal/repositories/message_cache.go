package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"groupchat-service/internal/models"
)

const messageCacheTTL = 5 * time.Minute

// MessageCache caches the serialized history of a group. Any mutation to
// the group's messages must invalidate its entry.
type MessageCache interface {
	GetMessages(ctx context.Context, groupID int64) ([]models.MessagePayload, bool)
	SetMessages(ctx context.Context, groupID int64, payloads []models.MessagePayload)
	Invalidate(ctx context.Context, groupID int64)
}

type redisMessageCache struct {
	rdb *redis.Client
}

// NewMessageCache builds a redis-backed cache, or a noop cache when the
// redis URL is empty or unparsable.
func NewMessageCache(redisURL string) (MessageCache, error) {
	if redisURL == "" {
		return noopMessageCache{}, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &redisMessageCache{rdb: redis.NewClient(opts)}, nil
}

func messageCacheKey(groupID int64) string {
	return fmt.Sprintf("group:%d:messages", groupID)
}

func (c *redisMessageCache) GetMessages(ctx context.Context, groupID int64) ([]models.MessagePayload, bool) {
	data, err := c.rdb.Get(ctx, messageCacheKey(groupID)).Bytes()
	if err != nil {
		return nil, false
	}
	var payloads []models.MessagePayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, false
	}
	return payloads, true
}

func (c *redisMessageCache) SetMessages(ctx context.Context, groupID int64, payloads []models.MessagePayload) {
	data, err := json.Marshal(payloads)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, messageCacheKey(groupID), data, messageCacheTTL)
}

func (c *redisMessageCache) Invalidate(ctx context.Context, groupID int64) {
	c.rdb.Del(ctx, messageCacheKey(groupID))
}

type noopMessageCache struct{}

func (noopMessageCache) GetMessages(ctx context.Context, groupID int64) ([]models.MessagePayload, bool) {
	return nil, false
}

func (noopMessageCache) SetMessages(ctx context.Context, groupID int64, payloads []models.MessagePayload) {
}

func (noopMessageCache) Invalidate(ctx context.Context, groupID int64) {}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stellamgmt/stella/config"
)

// Typing markers expire on their own, so a client that disconnects mid-keystroke
// never leaves a stuck indicator behind.
const typingTTL = 5 * time.Second

// PresenceRepository stores the ephemeral per-conversation typing markers.
// Last write wins; nothing here is part of the durable log.
type PresenceRepository interface {
	SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error
	IsTyping(ctx context.Context, conversationID, userID string) (bool, error)
}

type presenceRepo struct {
	client *redis.Client
}

func NewPresenceRepo(client *redis.Client) PresenceRepository {
	return &presenceRepo{client: client}
}

func NewRedisClient(c *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       0,
	})
}

func typingKey(conversationID, userID string) string {
	return fmt.Sprintf("typing:conv:%s:user:%s", conversationID, userID)
}

func (p *presenceRepo) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	key := typingKey(conversationID, userID)
	if !isTyping {
		return p.client.Del(ctx, key).Err()
	}
	return p.client.Set(ctx, key, "1", typingTTL).Err()
}

func (p *presenceRepo) IsTyping(ctx context.Context, conversationID, userID string) (bool, error) {
	val, err := p.client.Get(ctx, typingKey(conversationID, userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

package session

import (
	"context"
	"errors"

	"loan-submission-queue/internal/domain/session"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const UserIDKey = "session:user_id"

// RedisProvider reads the cached user id written by the login flow.
type RedisProvider struct {
	rdb *redis.Client
	log *zap.Logger
}

var _ session.Provider = (*RedisProvider)(nil)

func NewRedisProvider(rdb *redis.Client, log *zap.Logger) *RedisProvider {
	return &RedisProvider{rdb: rdb, log: log}
}

func (p *RedisProvider) UserID(ctx context.Context) (string, bool) {
	id, err := p.rdb.Get(ctx, UserIDKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.log.Warn("session lookup failed", zap.Error(err))
		}
		return "", false
	}
	return id, id != ""
}

func (p *RedisProvider) SetUserID(ctx context.Context, userID string) error {
	return p.rdb.Set(ctx, UserIDKey, userID, 0).Err()
}

func (p *RedisProvider) Clear(ctx context.Context) error {
	return p.rdb.Del(ctx, UserIDKey).Err()
}

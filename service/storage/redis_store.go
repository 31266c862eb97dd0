package storage

import (
	"context"
	"errors"
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/errs"

	"github.com/redis/go-redis/v9"
)

// RedisStore 每个会话一个 string key，整体覆盖写并带 TTL。
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) key(ticketID string) string { return s.prefix + ticketID }

func (s *RedisStore) Load(ctx context.Context, ticketID string) ([]model.Message, error) {
	if err := checkTicket(ticketID); err != nil {
		return nil, err
	}
	b, err := s.rdb.Get(ctx, s.key(ticketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "redis get", "ticketId", ticketID)
	}
	return decodeSnapshot(ticketID, b)
}

func (s *RedisStore) Save(ctx context.Context, ticketID string, msgs []model.Message) error {
	if err := checkTicket(ticketID); err != nil {
		return err
	}
	b, err := encode(ticketID, msgs, s.now())
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(ticketID), b, s.ttl).Err(); err != nil {
		return errs.WrapMsg(err, "redis set", "ticketId", ticketID)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, ticketID string) error {
	return s.rdb.Del(ctx, s.key(ticketID)).Err()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

package redis

import (
	"context"
	"time"

	"PPDesk/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func (c *Config) norm() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
}

// Open 建立客户端并 ping 一次，失败时关闭客户端。
func Open(c Config) (*redis.Client, error) {
	c.norm()
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.WrapMsg(err, "redis ping", "addr", c.Addr)
	}
	return rdb, nil
}

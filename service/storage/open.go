package storage

import (
	"context"
	"strings"
	"time"

	"PPDesk/service/storage/badgerdb"
	deskredis "PPDesk/service/storage/redis"
	"PPDesk/tools/errs"

	"github.com/dgraph-io/badger/v4"
)

// Config 选择本地快照后端。
type Config struct {
	Driver string        // memory | redis | badger | none
	TTL    time.Duration // 快照有效期（默认 7 天）
	Prefix string        // key 前缀

	Redis  deskredis.Config
	Badger badgerdb.Config
}

// Open 按 driver 构造 Store；driver 为 none 时返回 nil, nil。
func Open(cfg Config) (Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemStore(cfg.TTL), nil
	case DriverNone:
		return nil, nil
	case DriverRedis:
		rdb, err := deskredis.Open(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(rdb, cfg.Prefix, cfg.TTL), nil
	case DriverBadger:
		db, err := badgerdb.Open(cfg.Badger)
		if err != nil {
			return nil, err
		}
		return newManagedBadger(db, cfg), nil
	}
	return nil, errs.ErrArgs.WrapMsg("unknown storage driver", "driver", cfg.Driver)
}

// managedBadger 带 GC 协程的 BadgerStore，Close 时一并停止。
type managedBadger struct {
	*BadgerStore
	cancel context.CancelFunc
}

func newManagedBadger(db *badger.DB, cfg Config) *managedBadger {
	ctx, cancel := context.WithCancel(context.Background())
	if !cfg.Badger.InMemory {
		badgerdb.RunGC(ctx, db, cfg.Badger.GCInterval, cfg.Badger.GCDiscardRatio)
	}
	return &managedBadger{BadgerStore: NewBadgerStore(db, cfg.Prefix, cfg.TTL), cancel: cancel}
}

func (m *managedBadger) Close() error {
	m.cancel()
	return m.BadgerStore.Close()
}

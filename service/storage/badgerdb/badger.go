package badgerdb

import (
	"context"
	"os"
	"time"

	"PPDesk/tools/errs"
	"PPDesk/tools/safe"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Config 本地嵌入式 badger。
type Config struct {
	Path       string // 持久化目录；InMemory 时忽略
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger // nil 关闭 badger 自带日志

	GCInterval     time.Duration // 值日志 GC 间隔，0 关闭
	GCDiscardRatio float64
}

func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true, GCInterval: 5 * time.Minute, GCDiscardRatio: 0.5}
}

func InMemoryConfig() Config { return Config{InMemory: true} }

// zapAdapter badger.Logger -> zap
type zapAdapter struct{ l *zap.SugaredLogger }

func (a zapAdapter) Errorf(f string, v ...interface{})   { a.l.Errorf(f, v...) }
func (a zapAdapter) Warningf(f string, v ...interface{}) { a.l.Warnf(f, v...) }
func (a zapAdapter) Infof(f string, v ...interface{})    { a.l.Infof(f, v...) }
func (a zapAdapter) Debugf(f string, v ...interface{})   { a.l.Debugf(f, v...) }

func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errs.ErrArgs.WrapMsg("badger path is required for a persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errs.WrapMsg(err, "create badger dir", "path", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(zapAdapter{l: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "open badger", "path", cfg.Path)
	}
	return db, nil
}

// RunGC 周期性回收值日志，ctx 取消后退出。内存库无需调用。
func RunGC(ctx context.Context, db *badger.DB, interval time.Duration, ratio float64) {
	if interval <= 0 {
		return
	}
	if ratio <= 0 {
		ratio = 0.5
	}
	safe.SafeGo("badger.gc", func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				for db.RunValueLogGC(ratio) == nil {
				}
			}
		}
	})
}

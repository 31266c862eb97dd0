package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPDesk/logger"
	"PPDesk/module/chat/model"
	"PPDesk/tools/safe"

	"go.uber.org/zap"
)

// Persister 把同步器推出的快照异步写入 Store。同一会话只保留最新一份待写快照。
type Persister struct {
	store   Store
	skip    []string // 不落盘的 id 前缀（占位消息）
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	pending map[string][]model.Message
	order   []string
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewPersister(store Store, skipPrefixes []string, log *zap.Logger) *Persister {
	if log == nil {
		log = logger.Named("chat.persist")
	}
	p := &Persister{
		store:   store,
		skip:    skipPrefixes,
		timeout: 5 * time.Second,
		log:     log,
		pending: make(map[string][]model.Message),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	safe.SafeGo("chat.persist", p.loop)
	return p
}

// Observe 作为订阅回调使用，不阻塞。
func (p *Persister) Observe(u model.Update) {
	if u.ConversationID == "" {
		return
	}
	msgs := p.filter(u.Messages)
	p.mu.Lock()
	if _, ok := p.pending[u.ConversationID]; !ok {
		p.order = append(p.order, u.ConversationID)
	}
	p.pending[u.ConversationID] = msgs
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Persister) filter(in []model.Message) []model.Message {
	out := make([]model.Message, 0, len(in))
	for _, m := range in {
		if p.skipped(m.ID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (p *Persister) skipped(id string) bool {
	for _, pre := range p.skip {
		if pre != "" && strings.HasPrefix(id, pre) {
			return true
		}
	}
	return false
}

func (p *Persister) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

func (p *Persister) flush() {
	p.mu.Lock()
	batch, order := p.pending, p.order
	p.pending, p.order = make(map[string][]model.Message), nil
	p.mu.Unlock()

	for _, id := range order {
		msgs := batch[id]
		if len(msgs) == 0 {
			continue // 空快照不覆盖已有缓存
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.store.Save(ctx, id, msgs); err != nil {
			p.log.Warn("save snapshot failed", zap.String("ticketId", id), zap.Error(err))
		}
		cancel()
	}
}

// Close 写完剩余快照后返回，幂等。
func (p *Persister) Close() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

package natsx

import (
	"encoding/json"
	"sync"
	"time"

	"PPDesk/module/chat/model"

	"github.com/nats-io/nats.go"
)

// Deduper 按 Nats-Msg-Id 去重（单进程内存）。
type Deduper struct {
	mu  sync.Mutex
	m   map[string]time.Time
	ttl time.Duration
	now func() time.Time
}

func NewDeduper(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Deduper{m: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// SeenOnce 首次出现返回 false；顺带清理过期键。
func (d *Deduper) SeenOnce(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.m {
		if !exp.After(now) {
			delete(d.m, k)
		}
	}
	if exp, ok := d.m[key]; ok && exp.After(now) {
		return true
	}
	d.m[key] = now.Add(d.ttl)
	return false
}

// UpdateHandler 收到的快照；重复投递已被过滤。
type UpdateHandler func(subject string, u model.Update)

// Decode 把一条 nats 消息还原为快照，重复的返回 ok=false。
func Decode(m *nats.Msg, d *Deduper) (model.Update, bool) {
	if d != nil {
		if id := headerToMap(m.Header)[HeaderMsgID]; id != "" && d.SeenOnce(id) {
			return model.Update{}, false
		}
	}
	var u model.Update
	if err := json.Unmarshal(m.Data, &u); err != nil {
		return model.Update{}, false
	}
	return u, true
}

// Watch 旁听某个会话（ticketID 为空时监听全部）的快照流。
func Watch(c *Client, prefix, ticketID string, h UpdateHandler) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	subject := prefix + ".>"
	if ticketID != "" {
		subject = prefix + "." + SubjectToken(ticketID)
	}
	d := NewDeduper(0)
	return c.Subscribe(subject, func(m *nats.Msg) {
		if u, ok := Decode(m, d); ok {
			h(m.Subject, u)
		}
	})
}

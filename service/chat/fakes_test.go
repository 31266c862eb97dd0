package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"PPDesk/module/chat/model"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ---- 可编排的传输 ----

type fakeTransport struct {
	mu        sync.Mutex
	ticketID  string
	h         TransportHandler
	sent      [][]byte
	sendErr   error
	gate      chan struct{} // 非 nil 时 Send 阻塞到 gate 关闭
	closed    bool
	closeCode int
}

func (t *fakeTransport) Send(b []byte) error {
	if t.gate != nil {
		<-t.gate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), b...))
	return nil
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.closeCode = code
	return nil
}

func (t *fakeTransport) isClosed() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.closeCode
}

func (t *fakeTransport) frames() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, 0, len(t.sent))
	for _, b := range t.sent {
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		out = append(out, m)
	}
	return out
}

func (t *fakeTransport) framesOfType(typ string) []map[string]any {
	var out []map[string]any
	for _, f := range t.frames() {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func (t *fakeTransport) push(v any) {
	b, _ := json.Marshal(v)
	t.h.OnMessage(b)
}

type fakeFactory struct {
	mu      sync.Mutex
	opened  []*fakeTransport
	openErr error
	sendErr error
	gate    chan struct{}
}

func (f *fakeFactory) Open(ticketID string, h TransportHandler) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	t := &fakeTransport{ticketID: ticketID, h: h, sendErr: f.sendErr, gate: f.gate}
	f.opened = append(f.opened, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opened) == 0 {
		return nil
	}
	return f.opened[len(f.opened)-1]
}

func (f *fakeFactory) at(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[i]
}

// ---- 可编排的 REST ----

type fakeAPI struct {
	mu        sync.Mutex
	history   map[string][]map[string]any
	fetchErr  error
	fetchGate chan struct{}
	postResp  map[string]any
	postErr   error
	posts     []model.OutboundMessage
}

func (a *fakeAPI) FetchMessages(ctx context.Context, ticketID string) ([]map[string]any, error) {
	if a.fetchGate != nil {
		select {
		case <-a.fetchGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.history[ticketID], nil
}

func (a *fakeAPI) PostMessage(ctx context.Context, ticketID string, msg model.OutboundMessage) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.posts = append(a.posts, msg)
	if a.postErr != nil {
		return nil, a.postErr
	}
	return a.postResp, nil
}

// pendingHistory 历史请求一直挂起，直到同步器关闭。
func pendingHistory() *fakeAPI { return &fakeAPI{fetchGate: make(chan struct{})} }

func (a *fakeAPI) postCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.posts)
}

type fakeCache struct {
	msgs map[string][]model.Message
}

func (c *fakeCache) Load(ctx context.Context, ticketID string) ([]model.Message, error) {
	return c.msgs[ticketID], nil
}

// ---- helpers ----

func newTestSync(t *testing.T, cfg Config, opts ...Option) *Synchronizer {
	t.Helper()
	if cfg.UserID == "" {
		cfg.UserID = "agent-1"
	}
	base := []Option{WithLogger(zap.NewNop()), WithMetrics(NewMetrics(prometheus.NewRegistry()))}
	s := New(cfg, append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func idsOf(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func findMessage(msgs []model.Message, pred func(model.Message) bool) (model.Message, bool) {
	for _, m := range msgs {
		if pred(m) {
			return m, true
		}
	}
	return model.Message{}, false
}

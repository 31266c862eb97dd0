package message

import (
	"strings"
	"time"

	"PPDesk/module/chat/model"
)

const (
	DefaultServerIDPrefix = "MSG-"
	DefaultLocalIDPrefix  = "local-"
	DefaultEchoWindow     = 30 * time.Second
)

// Outcome 一条入站消息的对账结果。
type Outcome int

const (
	Appended  Outcome = iota // 追加到末尾
	Duplicate                // id 已存在，忽略
	Upgraded                 // 命中本地待确认消息，改写 id
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	case Upgraded:
		return "upgraded"
	}
	return "unknown"
}

// Sequence 一个会话的有序消息日志，只追加、不删除、不按时间重排。
// 非并发安全，由同步器的事件循环独占。
type Sequence struct {
	msgs  []model.Message
	index map[string]int // id -> 下标
}

func NewSequence() *Sequence {
	return &Sequence{index: make(map[string]int)}
}

func (s *Sequence) Len() int { return len(s.msgs) }

// Messages 返回副本。
func (s *Sequence) Messages() []model.Message { return model.CloneMessages(s.msgs) }

func (s *Sequence) Get(id string) (model.Message, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Message{}, false
	}
	return s.msgs[i], true
}

func (s *Sequence) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Reset 清空（仅用于整批历史回放）。
func (s *Sequence) Reset() {
	s.msgs = s.msgs[:0]
	s.index = make(map[string]int)
}

// Any 是否存在满足条件的消息。
func (s *Sequence) Any(pred func(model.Message) bool) bool {
	for _, m := range s.msgs {
		if pred(m) {
			return true
		}
	}
	return false
}

func (s *Sequence) append(m model.Message) {
	s.index[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, m)
}

func (s *Sequence) rename(i int, newID string) {
	delete(s.index, s.msgs[i].ID)
	s.msgs[i].ID = newID
	s.index[newID] = i
}

// Config 对账参数。
type Config struct {
	LocalOrigin    model.Origin  // 本端身份，只有该来源的消息参与 echo-upgrade
	ServerIDPrefix string        // 服务端 id 前缀
	EchoWindow     time.Duration // 本地与回显时间差上限（严格小于）
}

func (c *Config) norm() {
	if c.LocalOrigin == "" {
		c.LocalOrigin = model.OriginAgent
	}
	if c.ServerIDPrefix == "" {
		c.ServerIDPrefix = DefaultServerIDPrefix
	}
	if c.EchoWindow <= 0 {
		c.EchoWindow = DefaultEchoWindow
	}
}

// Reconciler 去重 + echo-upgrade + 追加。
type Reconciler struct {
	cfg Config
}

func NewReconciler(cfg Config) *Reconciler {
	cfg.norm()
	return &Reconciler{cfg: cfg}
}

func (r *Reconciler) Config() Config { return r.cfg }

// Apply 对一条已规范化的入站消息对账。
func (r *Reconciler) Apply(seq *Sequence, in model.Message) Outcome {
	if seq.Has(in.ID) {
		return Duplicate
	}
	if r.isServerEcho(in) {
		if i := r.findEchoTarget(seq, in); i >= 0 {
			seq.rename(i, in.ID)
			seq.msgs[i].Pending = false
			return Upgraded
		}
	}
	in.Pending = false
	seq.append(in)
	return Appended
}

// Replay 清空后按顺序逐条 Apply。
func (r *Reconciler) Replay(seq *Sequence, msgs []model.Message) []Outcome {
	seq.Reset()
	out := make([]Outcome, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, r.Apply(seq, m))
	}
	return out
}

// AddLocal 追加一条本地乐观消息，id 冲突时返回 false。
func (r *Reconciler) AddLocal(seq *Sequence, m model.Message) bool {
	if seq.Has(m.ID) {
		return false
	}
	seq.append(m)
	return true
}

// AddSystem 追加一条合成的系统提示消息。
func (r *Reconciler) AddSystem(seq *Sequence, m model.Message) bool {
	m.Origin = model.OriginSystem
	m.Pending = false
	return r.AddLocal(seq, m)
}

// ConfirmLocal 用发送结果确认本地消息：
//   - 本地消息已不在（例如被历史回放清掉），按普通入站消息处理服务端消息；
//   - 服务端未给 id 或 id 已被其它消息占用，原地确认；
//   - 否则改写为服务端 id。
func (r *Reconciler) ConfirmLocal(seq *Sequence, localID string, server model.Message) Outcome {
	i, ok := seq.index[localID]
	if !ok {
		if server.ID == "" || strings.TrimSpace(server.Content) == "" {
			return Duplicate
		}
		return r.Apply(seq, server)
	}
	if server.ID != "" && server.ID != localID && !seq.Has(server.ID) {
		seq.rename(i, server.ID)
		seq.msgs[i].Pending = false
		seq.msgs[i].Error = false
		return Upgraded
	}
	seq.msgs[i].Pending = false
	seq.msgs[i].Error = false
	return Duplicate
}

// ConfirmInPlace 仅清除 pending，返回是否有变化。
func (r *Reconciler) ConfirmInPlace(seq *Sequence, id string) bool {
	i, ok := seq.index[id]
	if !ok || !seq.msgs[i].Pending {
		return false
	}
	seq.msgs[i].Pending = false
	return true
}

// MarkFailed 标记发送失败：error=true, pending=false。
func (r *Reconciler) MarkFailed(seq *Sequence, id string) bool {
	i, ok := seq.index[id]
	if !ok {
		return false
	}
	seq.msgs[i].Pending = false
	seq.msgs[i].Error = true
	return true
}

func (r *Reconciler) isServerEcho(in model.Message) bool {
	return in.Origin == r.cfg.LocalOrigin && strings.HasPrefix(in.ID, r.cfg.ServerIDPrefix)
}

// findEchoTarget 第一条同来源、同内容、时间差严格小于窗口的待确认消息。
func (r *Reconciler) findEchoTarget(seq *Sequence, in model.Message) int {
	for i, m := range seq.msgs {
		if !m.Pending || m.Origin != in.Origin || m.Content != in.Content {
			continue
		}
		d := in.Timestamp.Sub(m.Timestamp)
		if d < 0 {
			d = -d
		}
		if d < r.cfg.EchoWindow {
			return i
		}
	}
	return -1
}

package message

import (
	"strings"
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/decode"
	"PPDesk/tools/errs"
	"PPDesk/tools/ids"
)

// SynthesizedIDPrefix 入站消息缺少 id 时使用的前缀。
const SynthesizedIDPrefix = "ws-"

// Strategy 从一个原始对象中取出消息载荷。
type Strategy struct {
	Name    string
	Extract func(raw map[string]any) (map[string]any, bool)
}

// 网关/REST 已知的三种消息形状：平铺、{data:{...}}、{message:{...}}，按此顺序尝试。
var (
	FlatStrategy = Strategy{Name: "flat", Extract: func(raw map[string]any) (map[string]any, bool) {
		return raw, true
	}}
	DataStrategy    = Strategy{Name: "data", Extract: nested("data")}
	MessageStrategy = Strategy{Name: "message", Extract: nested("message")}
)

// DefaultStrategies 返回默认提取顺序的副本。
func DefaultStrategies() []Strategy {
	return []Strategy{FlatStrategy, DataStrategy, MessageStrategy}
}

func nested(key string) func(map[string]any) (map[string]any, bool) {
	return func(raw map[string]any) (map[string]any, bool) {
		return decode.ReadMap(raw, key)
	}
}

// wireMessage 入站消息的宽松形状。
type wireMessage struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketId"`
	Content   string    `json:"content"`
	IsClient  bool      `json:"isClient"`
	Origin    string    `json:"origin"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

var wireOptions = decode.Options{WeaklyTypedInput: true, StrictBool: true}

// Normalized 规范化结果。
type Normalized struct {
	Message  model.Message
	TicketID string // 载荷或外层帧里的 ticketId，可能为空
	Strategy string
}

// Normalizer 把任意已知形状的入站对象转成 model.Message。
type Normalizer struct {
	Strategies []Strategy
	NewID      func() string
	Now        func() time.Time
}

// NewNormalizer 默认策略、ws- 雪花 id、time.Now。
func NewNormalizer() *Normalizer {
	return &Normalizer{
		Strategies: DefaultStrategies(),
		NewID:      func() string { return ids.WithPrefix(SynthesizedIDPrefix) },
		Now:        time.Now,
	}
}

func (n *Normalizer) norm() {
	if len(n.Strategies) == 0 {
		n.Strategies = DefaultStrategies()
	}
	if n.NewID == nil {
		n.NewID = func() string { return ids.WithPrefix(SynthesizedIDPrefix) }
	}
	if n.Now == nil {
		n.Now = time.Now
	}
}

// Normalize 依次尝试各策略，第一个 content 非空的胜出；全部失败返回 ErrMalformedFrame。
func (n *Normalizer) Normalize(raw map[string]any) (Normalized, error) {
	if raw == nil {
		return Normalized{}, errs.ErrMalformedFrame.WrapMsg("nil payload")
	}
	n.norm()

	for _, st := range n.Strategies {
		payload, ok := st.Extract(raw)
		if !ok || payload == nil {
			continue
		}
		w, err := decode.DecodeMap[wireMessage](payload, wireOptions)
		if err != nil || strings.TrimSpace(w.Content) == "" {
			continue
		}
		return Normalized{
			Message:  n.toMessage(w),
			TicketID: firstNonEmpty(w.TicketID, outerTicketID(raw)),
			Strategy: st.Name,
		}, nil
	}
	return Normalized{}, errs.ErrMalformedFrame.WrapMsg("no content", "keys", keysOf(raw))
}

// NormalizeAll 规范化一批消息，跳过畸形项并返回被跳过的数量。
func (n *Normalizer) NormalizeAll(raws []map[string]any) ([]model.Message, int) {
	out := make([]model.Message, 0, len(raws))
	skipped := 0
	for _, raw := range raws {
		nm, err := n.Normalize(raw)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, nm.Message)
	}
	return out, skipped
}

func (n *Normalizer) toMessage(w *wireMessage) model.Message {
	origin, ok := model.ParseOrigin(w.Origin)
	if !ok {
		origin = model.OriginFromClient(w.IsClient)
	}
	ts := w.Timestamp
	if ts.IsZero() {
		ts = w.CreatedAt
	}
	if ts.IsZero() {
		ts = n.Now()
	}
	id := strings.TrimSpace(w.ID)
	if id == "" {
		id = n.NewID()
	}
	return model.Message{
		ID:        id,
		Content:   w.Content,
		Origin:    origin,
		UserName:  w.UserName,
		Timestamp: ts,
	}
}

func outerTicketID(raw map[string]any) string {
	s, _ := decode.ReadString(raw, "ticketId")
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func keysOf(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return strings.Join(keys, ",")
}

package chat

import (
	"encoding/json"
	"sync"
	"time"

	"PPDesk/module/chat/model"
	"PPDesk/tools/decode"
	"PPDesk/tools/errs"
	"PPDesk/tools/ids"
	"PPDesk/tools/safe"
)

// SimConfig 模拟网关，仅在显式配置时使用（本地开发/演示），不会作为连接失败的兜底。
type SimConfig struct {
	Latency        time.Duration              // 每个下行帧前的延迟
	ServerIDPrefix string                     // 确认 id 前缀（默认 MSG-）
	History        map[string][]model.Message // identify 后推送的历史
	Clock          func() time.Time
}

func (c *SimConfig) norm() {
	if c.ServerIDPrefix == "" {
		c.ServerIDPrefix = "MSG-"
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// SimTransportFactory 行为与真实网关一致：
// 连接后发 connection_established；identify -> identify_success（+ message_history）；
// new_message -> message_received（带服务端 id）。
type SimTransportFactory struct {
	cfg SimConfig
}

func NewSimTransportFactory(cfg SimConfig) *SimTransportFactory {
	cfg.norm()
	return &SimTransportFactory{cfg: cfg}
}

func (f *SimTransportFactory) Open(ticketID string, h TransportHandler) (Transport, error) {
	t := &simTransport{
		cfg:      f.cfg,
		ticketID: ticketID,
		h:        h,
		inbox:    make(chan func(), 64),
		stop:     make(chan struct{}),
	}
	safe.SafeGo("chat.sim.pump", t.pump)
	t.push(h.OnOpen)
	t.pushFrame(ServerFrame{Type: FrameConnectionEstablished, TicketID: ticketID})
	return t, nil
}

type simTransport struct {
	cfg      SimConfig
	ticketID string
	h        TransportHandler

	inbox chan func()
	stop  chan struct{}
	once  sync.Once
}

// pump 单协程按顺序投递回调。
func (t *simTransport) pump() {
	for {
		select {
		case fn := <-t.inbox:
			if t.cfg.Latency > 0 {
				select {
				case <-time.After(t.cfg.Latency):
				case <-t.stop:
					return
				}
			}
			select {
			case <-t.stop:
				return
			default:
			}
			fn()
		case <-t.stop:
			return
		}
	}
}

func (t *simTransport) push(fn func()) {
	select {
	case t.inbox <- fn:
	case <-t.stop:
	}
}

func (t *simTransport) pushFrame(f ServerFrame) {
	data := f.Bytes()
	t.push(func() { t.h.OnMessage(data) })
}

func (t *simTransport) Send(data []byte) error {
	select {
	case <-t.stop:
		return errs.ErrClosed.WrapMsg("simulated transport closed")
	default:
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errs.ErrMalformedFrame.WrapMsg("simulated gateway rejected frame", "err", err.Error())
	}
	typ, _ := decode.ReadString(raw, "type")
	switch typ {
	case FrameIdentify:
		t.pushFrame(ServerFrame{Type: FrameIdentifySuccess, TicketID: t.ticketID})
		if hist, ok := t.cfg.History[t.ticketID]; ok {
			wire := make([]WireMessage, 0, len(hist))
			for _, m := range hist {
				wire = append(wire, ToWire(t.ticketID, m))
			}
			t.pushFrame(ServerFrame{Type: FrameMessageHistory, TicketID: t.ticketID, Messages: wire})
		}
	case FrameNewMessage:
		in, ok := decode.ReadMap(raw, "data")
		if !ok {
			t.pushFrame(ServerFrame{Type: FrameError, TicketID: t.ticketID, Message: "new_message without data"})
			return nil
		}
		t.pushFrame(ServerFrame{Type: FrameMessageReceived, TicketID: t.ticketID, Data: t.confirm(in)})
	default:
		t.pushFrame(ServerFrame{Type: FrameError, TicketID: t.ticketID, Message: "unsupported frame type " + typ})
	}
	return nil
}

// confirm 原样回显并分配服务端 id；时间戳沿用客户端的。
func (t *simTransport) confirm(in map[string]any) WireMessage {
	content, _ := decode.ReadString(in, "content")
	userName, _ := decode.ReadString(in, "userName")
	isClient, _ := in["isClient"].(bool)
	ts, ok := decode.ParseTime(in["timestamp"])
	if !ok {
		ts = t.cfg.Clock()
	}
	return ToWire(t.ticketID, model.Message{
		ID:        ids.WithPrefix(t.cfg.ServerIDPrefix),
		Content:   content,
		Origin:    model.OriginFromClient(isClient),
		UserName:  userName,
		Timestamp: ts,
	})
}

func (t *simTransport) Close(code int, reason string) error {
	t.once.Do(func() { close(t.stop) })
	return nil
}

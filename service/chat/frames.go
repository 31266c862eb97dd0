package chat

import (
	"encoding/json"
	"strings"

	"PPDesk/module/chat/model"
	"PPDesk/tools/decode"
	"PPDesk/tools/errs"
)

// 网关帧类型
const (
	FrameConnectionEstablished = "connection_established"
	FrameIdentify              = "identify"
	FrameIdentifySuccess       = "identify_success"
	FrameError                 = "error"
	FrameMessageHistory        = "message_history"
	FrameNewMessage            = "new_message"
	FrameMessage               = "message"
	FrameMessageReceived       = "message_received"
)

// Frame 一帧已解析的 JSON 推送数据。
type Frame struct {
	Type     string
	TicketID string
	Raw      map[string]any
}

// ParseFrameJSON 只要求是 JSON 对象；type 可以缺失（走默认处理）。
func ParseFrameJSON(raw []byte) (Frame, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Frame{}, errs.ErrMalformedFrame.WrapMsg("unmarshal frame failed", "err", err.Error())
	}
	if m == nil {
		return Frame{}, errs.ErrMalformedFrame.WrapMsg("frame is not an object")
	}
	typ, _ := decode.ReadString(m, "type")
	ticket, _ := decode.ReadString(m, "ticketId")
	return Frame{Type: strings.TrimSpace(typ), TicketID: ticket, Raw: m}, nil
}

// ---- 客户端上行帧 ----

type identifyFrame struct {
	Type     string `json:"type"`
	TicketID string `json:"ticketId"`
	UserID   string `json:"userId"`
}

// BuildIdentify 连接建立后立刻发送。
func BuildIdentify(ticketID, userID string) ([]byte, error) {
	return json.Marshal(identifyFrame{Type: FrameIdentify, TicketID: ticketID, UserID: userID})
}

type newMessageFrame struct {
	Type     string                `json:"type"`
	TicketID string                `json:"ticketId"`
	Data     model.OutboundMessage `json:"data"`
}

// BuildNewMessage {type:"new_message", ticketId, data:{content,isClient,userId,userName,timestamp}}
func BuildNewMessage(ticketID string, out model.OutboundMessage) ([]byte, error) {
	return json.Marshal(newMessageFrame{Type: FrameNewMessage, TicketID: ticketID, Data: out})
}

// ---- 网关下行帧（模拟网关与测试用） ----

// ServerFrame 下行帧的通用形状。
type ServerFrame struct {
	Type     string `json:"type"`
	TicketID string `json:"ticketId,omitempty"`
	Data     any    `json:"data,omitempty"`
	Messages any    `json:"messages,omitempty"`
	Message  any    `json:"message,omitempty"`
}

func (f ServerFrame) Bytes() []byte {
	b, _ := json.Marshal(f)
	return b
}

// WireMessage 下行消息载荷（与网关 JSON 字段一致）。
type WireMessage struct {
	ID        string `json:"id"`
	TicketID  string `json:"ticketId,omitempty"`
	Content   string `json:"content"`
	IsClient  bool   `json:"isClient"`
	UserName  string `json:"userName,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ToWire model.Message -> 下行载荷。
func ToWire(ticketID string, m model.Message) WireMessage {
	return WireMessage{
		ID:        m.ID,
		TicketID:  ticketID,
		Content:   m.Content,
		IsClient:  m.IsClient(),
		UserName:  m.UserName,
		Timestamp: m.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

package model

import (
	"strings"
	"time"
)

// Origin 消息来源。只有 echo-upgrade 可以改写一条消息的 id，来源永不翻转。
type Origin string

const (
	OriginVisitor Origin = "visitor" // 访客（isClient=true）
	OriginAgent   Origin = "agent"   // 坐席（isClient=false）
	OriginSystem  Origin = "system"  // 本地合成的提示消息
)

// ParseOrigin 未知取值返回 false。
func ParseOrigin(s string) (Origin, bool) {
	switch Origin(strings.ToLower(strings.TrimSpace(s))) {
	case OriginVisitor:
		return OriginVisitor, true
	case OriginAgent:
		return OriginAgent, true
	case OriginSystem:
		return OriginSystem, true
	}
	return "", false
}

// OriginFromClient isClient=true 为访客，其余一律为坐席。
func OriginFromClient(isClient bool) Origin {
	if isClient {
		return OriginVisitor
	}
	return OriginAgent
}

// Message 会话内的一条消息（对账后 id 在会话内唯一）。
type Message struct {
	ID        string    `json:"id"`                 // 服务端 id（MSG-...）或本地临时 id（local-...）
	Content   string    `json:"content"`            // 文本内容，非空
	Origin    Origin    `json:"origin"`             // visitor / agent / system
	UserName  string    `json:"userName,omitempty"` // 发送者昵称（快照）
	Timestamp time.Time `json:"timestamp"`          // 发送时间
	Pending   bool      `json:"pending,omitempty"`  // 本地乐观回显，等待确认
	Error     bool      `json:"error,omitempty"`    // 发送最终失败
}

// IsClient 与网关的 isClient 字段对应。
func (m Message) IsClient() bool { return m.Origin == OriginVisitor }

// OutboundMessage POST /tickets/{id}/messages 的请求体，也是 new_message 帧的 data。
type OutboundMessage struct {
	Content   string `json:"content"`
	IsClient  bool   `json:"isClient"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// NewOutbound 由本地待发消息构造出站载荷。
func NewOutbound(m Message, userID string) OutboundMessage {
	return OutboundMessage{
		Content:   m.Content,
		IsClient:  m.IsClient(),
		UserID:    userID,
		UserName:  m.UserName,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// SessionState 推送会话状态机。
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateReconnecting SessionState = "reconnecting"
)

// Update 推给订阅者的只读快照，Messages 是独立副本。
type Update struct {
	ConversationID string       `json:"conversationId"`
	Messages       []Message    `json:"messages"`
	Connected      bool         `json:"connected"`
	State          SessionState `json:"state"`
	Revision       uint64       `json:"revision"`
}

// CloneMessages 返回切片的浅拷贝（Message 本身是值类型）。
func CloneMessages(in []Message) []Message {
	if in == nil {
		return []Message{}
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}

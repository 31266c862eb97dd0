package chat

import (
	"context"

	"PPDesk/module/chat/model"
)

// TransportHandler 推送连接的回调，由传输层自己的协程调用。
type TransportHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

// Transport 一条推送连接。Close 之后不得再回调 handler。
type Transport interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// TransportFactory Open 不阻塞：建连在后台进行，结果通过 handler 回调。
// 返回 error 表示连接无法构造（如 URL 非法）。
type TransportFactory interface {
	Open(ticketID string, h TransportHandler) (Transport, error)
}

// MessageAPI 工单消息 REST 接口。返回原始对象，由规范化器解析形状。
type MessageAPI interface {
	FetchMessages(ctx context.Context, ticketID string) ([]map[string]any, error)
	PostMessage(ctx context.Context, ticketID string, msg model.OutboundMessage) (map[string]any, error)
}

// Cache 本地持久化（只读一侧）；写入由订阅者完成。
type Cache interface {
	Load(ctx context.Context, ticketID string) ([]model.Message, error)
}

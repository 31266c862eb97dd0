package chat

import (
	"strings"
	"time"

	"PPDesk/module/chat/message"
	"PPDesk/module/chat/model"
)

const (
	// CloseNormal 主动关闭使用的关闭码，收到它不重连。
	CloseNormal = 1000
	// CloseAbnormal 连接异常断开（无关闭帧）。
	CloseAbnormal = 1006

	SystemIDPrefix      = "system-"
	PlaceholderIDPrefix = "placeholder-"

	DefaultGatewayURL     = "ws://localhost:8080/api/ws/chat/{ticketId}"
	DefaultReconnectDelay = 5 * time.Second
)

// ===== 配置 =====

type Config struct {
	// 本端身份
	UserID   string
	UserName string
	Origin   model.Origin // 本端发出消息的来源；空 => agent

	ReconnectDelay time.Duration // 非主动断开后的固定退避（默认 5s）

	// 对账
	ServerIDPrefix string        // 服务端 id 前缀（默认 MSG-）
	LocalIDPrefix  string        // 本地临时 id 前缀（默认 local-）
	EchoWindow     time.Duration // echo-upgrade 窗口（默认 30s，严格小于）

	SendQueue        int              // 每会话发送队列长度（默认 64）
	SubscriberBuffer int              // 每订阅者缓冲（默认 16，满了丢最旧）
	Clock            func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *Config) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Origin == "" {
		c.Origin = model.OriginAgent
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ServerIDPrefix == "" {
		c.ServerIDPrefix = message.DefaultServerIDPrefix
	}
	if c.LocalIDPrefix == "" {
		c.LocalIDPrefix = message.DefaultLocalIDPrefix
	}
	if c.EchoWindow <= 0 {
		c.EchoWindow = message.DefaultEchoWindow
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 16
	}
	if strings.TrimSpace(c.UserName) == "" {
		if c.Origin == model.OriginVisitor {
			c.UserName = "Visitor"
		} else {
			c.UserName = "Agent"
		}
	}
}

func (c Config) reconcilerConfig() message.Config {
	return message.Config{
		LocalOrigin:    c.Origin,
		ServerIDPrefix: c.ServerIDPrefix,
		EchoWindow:     c.EchoWindow,
	}
}

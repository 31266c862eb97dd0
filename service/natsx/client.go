package natsx

import (
	"context"
	"strings"
	"time"

	"PPDesk/tools/errs"

	"github.com/nats-io/nats.go"
)

// Mode 发布方式
type Mode int

const (
	Core      Mode = iota // 无持久化
	JetStream             // 经 JetStream 落流，按 Nats-Msg-Id 去重
)

// Config 客户端配置
type Config struct {
	Servers         []string
	Name            string
	User            string
	Password        string
	Mode            Mode
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

func (c *Config) norm() {
	if c.Name == "" {
		c.Name = "deskchat"
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.PublishAsyncMax == 0 {
		c.PublishAsyncMax = 4096
	}
}

// Sender 发布与订阅的最小面，便于替换连接。
type Sender interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) error
}

// Client 统一客户端
type Client struct {
	cfg Config
	nc  *nats.Conn
	js  nats.JetStreamContext
}

// Connect 连接 NATS；JetStream 模式下同时初始化 JS 上下文。
func Connect(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("nats servers missing")
	}
	cfg.norm()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", strings.Join(cfg.Servers, ","))
	}
	c := &Client{cfg: cfg, nc: nc}
	if cfg.Mode == JetStream {
		js, err := nc.JetStream(nats.PublishAsyncMaxPending(cfg.PublishAsyncMax))
		if err != nil {
			nc.Close()
			return nil, errs.WrapMsg(err, "init jetstream")
		}
		c.js = js
	}
	return c, nil
}

func (c *Client) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	if c.js != nil {
		if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
			return errs.WrapMsg(err, "jetstream publish", "subject", msg.Subject)
		}
		return nil
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "publish", "subject", msg.Subject)
	}
	return nil
}

// Subscribe core 订阅；JetStream 流上的 subject 同样可以这样旁听。
func (c *Client) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, cb)
	if err != nil {
		return nil, errs.WrapMsg(err, "subscribe", "subject", subject)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	return sub, nil
}

// Close 优雅关闭
func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

func toHeader(h map[string]string) nats.Header {
	hd := nats.Header{}
	for k, v := range h {
		hd.Add(k, v)
	}
	return hd
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

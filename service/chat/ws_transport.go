package chat

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"PPDesk/logger"
	"PPDesk/tools/errs"
	"PPDesk/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenSource 为握手提供 bearer 令牌；返回空串表示不带鉴权头。
type TokenSource interface {
	Token() (string, error)
}

// WSConfig websocket 传输配置。
type WSConfig struct {
	URL          string        // 含 {ticketId} 占位符的网关地址
	PingInterval time.Duration // 心跳间隔（默认 30s）
	PongWait     time.Duration // 读超时，收到 pong 时顺延（默认 60s）
	WriteTimeout time.Duration // 单次写超时（默认 10s）
	DialTimeout  time.Duration // 握手超时（默认 10s）
	ReadLimit    int64         // 单帧上限（默认 1MB）
	Tokens       TokenSource
	Logger       *zap.Logger
}

func (c *WSConfig) norm() {
	if c.URL == "" {
		c.URL = DefaultGatewayURL
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20 // 1MB
	}
	if c.Logger == nil {
		c.Logger = logger.Named("chat.ws")
	}
}

// WSTransportFactory gorilla/websocket 客户端。
type WSTransportFactory struct {
	cfg    WSConfig
	dialer *websocket.Dialer
}

func NewWSTransportFactory(cfg WSConfig) *WSTransportFactory {
	cfg.norm()
	return &WSTransportFactory{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Endpoint 把 {ticketId} 替换为转义后的会话 id。
func (f *WSTransportFactory) Endpoint(ticketID string) (string, error) {
	raw := strings.ReplaceAll(f.cfg.URL, "{ticketId}", url.PathEscape(ticketID))
	u, err := url.Parse(raw)
	if err != nil {
		return "", errs.ErrArgs.WrapMsg("invalid gateway url", "url", raw, "err", err.Error())
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", errs.ErrArgs.WrapMsg("gateway url must be ws:// or wss://", "url", raw)
	}
	return u.String(), nil
}

func (f *WSTransportFactory) Open(ticketID string, h TransportHandler) (Transport, error) {
	endpoint, err := f.Endpoint(ticketID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if f.cfg.Tokens != nil {
		tok, err := f.cfg.Tokens.Token()
		if err != nil {
			return nil, errs.WrapMsg(err, "issue gateway token")
		}
		if tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		cfg:      f.cfg,
		endpoint: endpoint,
		cancel:   cancel,
		log:      f.cfg.Logger.With(zap.String("ticketId", ticketID)),
	}
	safe.SafeGo("chat.ws.conn", func() { t.run(ctx, f.dialer, header, h) })
	return t, nil
}

type wsTransport struct {
	cfg      WSConfig
	endpoint string
	cancel   context.CancelFunc
	log      *zap.Logger

	mu     sync.Mutex // 保护 conn/closed
	conn   *websocket.Conn
	closed bool

	writeMu sync.Mutex // gorilla 同一时刻只允许一个写者
}

func (t *wsTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *wsTransport) run(ctx context.Context, dialer *websocket.Dialer, header http.Header, h TransportHandler) {
	conn, resp, err := dialer.DialContext(ctx, t.endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if !t.isClosed() {
			h.OnError(errs.WrapMsg(err, "dial gateway", "url", t.endpoint))
		}
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	conn.SetReadLimit(t.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	})

	h.OnOpen()

	stopPing := make(chan struct{})
	defer close(stopPing)
	safe.SafeGo("chat.ws.ping", func() { t.pingLoop(conn, stopPing) })

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return
			}
			code, reason := closeInfo(err)
			t.log.Info("gateway connection ended", zap.Int("code", code), zap.String("reason", reason))
			_ = conn.Close()
			h.OnClose(code, reason)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if t.isClosed() {
			return
		}
		h.OnMessage(data)
	}
}

func (t *wsTransport) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	tk := time.NewTicker(t.cfg.PingInterval)
	defer tk.Stop()
	for {
		select {
		case <-tk.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				t.log.Debug("ping failed", zap.Error(err))
				return
			}
		case <-stop:
			return
		}
	}
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if closed {
		return errs.ErrClosed.WrapMsg("transport closed")
	}
	if conn == nil {
		return errs.ErrNotConnected.WrapMsg("transport not open")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return errs.WrapMsg(err, "set write deadline")
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errs.ErrSendFailed.WrapMsg("write frame", "err", err.Error())
	}
	return nil
}

// Close 发送关闭帧（保留码 1005/1006/1015 不上线）后关闭底层连接，幂等。
func (t *wsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	t.cancel()
	if conn == nil {
		return nil
	}
	if sendableCloseCode(code) {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	return conn.Close()
}

func sendableCloseCode(code int) bool {
	switch code {
	case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return false
	}
	return code >= 1000 && code < 5000
}

// closeInfo 读错误 -> 关闭码；没有关闭帧的断开视为 1006。
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return CloseAbnormal, err.Error()
}

package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"PPDesk/logger"
	"PPDesk/module/chat/model"
	"PPDesk/tools/decode"
	"PPDesk/tools/errs"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TokenSource 提供 bearer 令牌；空串表示匿名。
type TokenSource interface {
	Token() (string, error)
}

// Config 工单 REST 接口。
type Config struct {
	BaseURL    string        // 例如 http://localhost:8080/api
	Timeout    time.Duration // 单次请求（默认 10s）
	RetryCount int           // GET 的重试次数（默认 2）；POST 不重试，由上层决定
	Tokens     TokenSource
	Logger     *zap.Logger
}

func (c *Config) norm() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	} else if c.RetryCount == 0 {
		c.RetryCount = 2
	}
	if c.Logger == nil {
		c.Logger = logger.Named("chat.api")
	}
}

// Client resty 实现的 chat.MessageAPI。
type Client struct {
	cfg  Config
	http *resty.Client
	log  *zap.Logger
}

func New(cfg Config) (*Client, error) {
	cfg.norm()
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.ErrArgs.WrapMsg("api base url must be http(s)://host[/path]", "url", cfg.BaseURL)
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{cfg: cfg, http: rc, log: cfg.Logger}, nil
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	req := c.http.R().SetContext(ctx)
	if c.cfg.Tokens != nil {
		tok, err := c.cfg.Tokens.Token()
		if err != nil {
			return nil, errs.WrapMsg(err, "issue api token")
		}
		if tok != "" {
			req.SetAuthToken(tok)
		}
	}
	return req, nil
}

func messagesPath(ticketID string) string {
	return "/tickets/" + url.PathEscape(ticketID) + "/messages"
}

// FetchMessages GET /tickets/{id}/messages。
// 兼容 {messages:[...]}、{data:[...]}、{data:{messages:[...]}} 和裸数组。
func (c *Client) FetchMessages(ctx context.Context, ticketID string) ([]map[string]any, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, errs.ErrArgs.WrapMsg("ticket id is empty")
	}
	var (
		resp *resty.Response
		err  error
	)
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		var req *resty.Request
		if req, err = c.request(ctx); err != nil {
			return nil, err
		}
		resp, err = req.Get(messagesPath(ticketID))
		if err == nil && resp.StatusCode() < 500 {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Debug("fetch messages retry", zap.String("ticketId", ticketID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if err != nil {
		return nil, errs.ErrHistoryUnavailable.WrapMsg("fetch messages", "ticketId", ticketID, "err", err.Error())
	}
	if resp.IsError() {
		return nil, errs.ErrHistoryUnavailable.WrapMsg("fetch messages", "ticketId", ticketID, "status", resp.StatusCode())
	}
	return parseMessageList(resp.Body())
}

func parseMessageList(body []byte) ([]map[string]any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, errs.ErrMalformedFrame.WrapMsg("decode message list", "err", err.Error())
	}
	switch t := v.(type) {
	case []any:
		return mapsOf(t), nil
	case map[string]any:
		if list, ok := decode.ReadMapSlice(t, "messages"); ok {
			return list, nil
		}
		if list, ok := decode.ReadMapSlice(t, "data"); ok {
			return list, nil
		}
		if data, ok := decode.ReadMap(t, "data"); ok {
			if list, ok := decode.ReadMapSlice(data, "messages"); ok {
				return list, nil
			}
		}
		return nil, nil
	case nil:
		return nil, nil
	}
	return nil, errs.ErrMalformedFrame.WrapMsg("unexpected message list shape")
}

func mapsOf(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// PostMessage POST /tickets/{id}/messages，返回服务端创建的对象（可能没有 id）。
func (c *Client) PostMessage(ctx context.Context, ticketID string, msg model.OutboundMessage) (map[string]any, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, errs.ErrArgs.WrapMsg("ticket id is empty")
	}
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(messagesPath(ticketID))
	if err != nil {
		return nil, errs.ErrSendFailed.WrapMsg("post message", "ticketId", ticketID, "err", err.Error())
	}
	if resp.IsError() {
		return nil, errs.ErrSendFailed.WrapMsg("post message", "ticketId", ticketID, "status", resp.StatusCode())
	}
	body := resp.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		// 2xx 但不是对象：视为已创建，只是没有服务端 id
		c.log.Debug("post message returned non-object body", zap.String("ticketId", ticketID))
		return map[string]any{}, nil
	}
	return out, nil
}
